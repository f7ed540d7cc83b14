package invoice

import (
	"sort"
)

// supportedDraftIntents are the intents the draft builder accepts
var supportedDraftIntents = map[string]bool{
	"billing.create_invoice": true,
	"billing.edit_invoice":   true,
	"billing.view_invoice":   true,
}

// draftSignalCount is the number of confidence signals the builder scores
const draftSignalCount = 6

// Draft is an unfinalized invoice built from intent entities. It is never
// persisted; the flow persists only at confirmation.
type Draft struct {
	Status        string   `json:"status"` // draft | ignored
	Reason        string   `json:"reason,omitempty"`
	Invoice       *Invoice `json:"invoice,omitempty"`
	MissingFields []string `json:"missing_fields"`
	Confidence    float64  `json:"confidence"`
}

// BuildDraft converts an intent payload into a draft invoice, handling
// partial and missing information gracefully.
func BuildDraft(intentName string, entities map[string]interface{}) *Draft {
	if !supportedDraftIntents[intentName] {
		return &Draft{
			Status:        "ignored",
			Reason:        "unsupported_intent",
			MissingFields: []string{},
		}
	}

	var missing []string
	signals := 0

	vendor := stringEntity(entities, "vendor", "seller")
	if vendor != "" {
		signals++
	} else {
		missing = append(missing, "vendor")
	}

	customer := stringEntity(entities, "customer", "buyer")
	if customer != "" {
		signals++
	} else {
		missing = append(missing, "customer")
	}

	invoiceNumber := stringEntity(entities, "invoice_number")
	if invoiceNumber != "" {
		signals++
	}

	invoiceDate := stringEntity(entities, "date")
	if invoiceDate != "" {
		signals++
	}

	items, incomplete := lineItemEntities(entities)
	if len(items) > 0 {
		signals++
	} else {
		missing = append(missing, "line_items")
	}
	if incomplete {
		missing = append(missing, "price_or_quantity")
	}

	inv := &Invoice{
		Vendor:        vendor,
		Customer:      customer,
		InvoiceNumber: invoiceNumber,
		InvoiceDate:   invoiceDate,
		Currency:      "INR",
		LineItems:     items,
		PaymentStatus: StatusDraft,
		Metadata: map[string]string{
			"source_intent": intentName,
		},
	}

	sort.Strings(missing)
	if missing == nil {
		missing = []string{}
	}

	return &Draft{
		Status:        "draft",
		Invoice:       inv,
		MissingFields: missing,
		Confidence:    float64(signals) / float64(draftSignalCount),
	}
}

// stringEntity returns the first non-empty string value among keys
func stringEntity(entities map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := entities[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// lineItemEntities extracts line items from an entities payload. Items
// without a name are dropped; the second return reports whether any kept
// item is missing its quantity or price.
func lineItemEntities(entities map[string]interface{}) ([]LineItem, bool) {
	raw, ok := entities["line_items"].([]interface{})
	if !ok {
		return nil, false
	}

	var items []LineItem
	incomplete := false
	for _, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		if name == "" {
			continue
		}

		item := LineItem{
			Name:       name,
			Confidence: 0.5,
		}
		if c, ok := numberEntity(m["confidence"]); ok {
			item.Confidence = c
		}
		if q, ok := numberEntity(m["quantity"]); ok {
			item.Quantity = &q
		}
		if p, ok := numberEntity(m["unit_price"]); ok {
			price := toMinor(p)
			item.UnitPrice = &price
		}
		if item.Quantity == nil || item.UnitPrice == nil {
			incomplete = true
		}
		items = append(items, item)
	}

	return items, incomplete
}

// numberEntity coerces a JSON-decoded numeric value
func numberEntity(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

package invoice

import (
	"fmt"
	"strings"
)

// ConfirmationOption is a selectable reply in a confirmation message
type ConfirmationOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Confirmation is a structured message asking the user to confirm or edit
// a draft invoice. Building it has no side effects: nothing is sent,
// nothing is stored.
type Confirmation struct {
	Type     string               `json:"type"`
	Header   string               `json:"header"`
	Body     string               `json:"body"`
	Footer   string               `json:"footer"`
	Options  []ConfirmationOption `json:"options"`
	Subtotal int64                `json:"subtotal"`
	Tax      int64                `json:"tax_amount"`
	Total    int64                `json:"total"`
	Currency string               `json:"currency"`
}

// BuildConfirmation formats a draft invoice for user confirmation
func BuildConfirmation(inv *Invoice) *Confirmation {
	currency := inv.Currency
	if currency == "" {
		currency = "INR"
	}

	lines, subtotal := formatItems(inv.LineItems, currency)

	total := subtotal + inv.TaxAmount

	var body []string
	if len(lines) > 0 {
		body = append(body, lines...)
	} else {
		body = append(body, "_No items added yet_")
	}

	body = append(body, "")
	body = append(body, fmt.Sprintf("*Subtotal:* %s %s", currency, minorString(subtotal)))
	if inv.TaxAmount != 0 {
		body = append(body, fmt.Sprintf("*Tax:* %s %s", currency, minorString(inv.TaxAmount)))
	}
	body = append(body, fmt.Sprintf("*Total:* %s %s", currency, minorString(total)))

	return &Confirmation{
		Type:   "invoice_confirmation",
		Header: "🧾 *Invoice Preview*",
		Body:   strings.Join(body, "\n"),
		Footer: "Please confirm or edit the invoice.",
		Options: []ConfirmationOption{
			{ID: "confirm", Label: "1️⃣ Confirm invoice"},
			{ID: "edit", Label: "2️⃣ Edit invoice"},
		},
		Subtotal: subtotal,
		Tax:      inv.TaxAmount,
		Total:    total,
		Currency: currency,
	}
}

// formatItems formats line items into readable lines and computes the
// subtotal in minor units.
func formatItems(items []LineItem, currency string) ([]string, int64) {
	var lines []string
	var subtotal int64

	for idx, item := range items {
		name := item.Name
		if name == "" {
			name = "Item"
		}

		if total, ok := item.Total(); ok {
			subtotal += total
			lines = append(lines, fmt.Sprintf("%d. %s — %s × %s %s = %s %s",
				idx+1, name, qtyString(*item.Quantity), currency, minorString(*item.UnitPrice), currency, minorString(total)))
		} else if item.UnitPrice != nil {
			lines = append(lines, fmt.Sprintf("%d. %s — %s %s", idx+1, name, currency, minorString(*item.UnitPrice)))
		} else {
			lines = append(lines, fmt.Sprintf("%d. %s", idx+1, name))
		}
	}

	return lines, subtotal
}

// minorString formats minor units as a decimal string
func minorString(amount int64) string {
	neg := ""
	if amount < 0 {
		neg = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", neg, amount/100, amount%100)
}

// qtyString formats a quantity without trailing zeros
func qtyString(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}

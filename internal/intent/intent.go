// Package intent is the platform entry point for the billing domain:
// upstream-classified intents are routed to the invoice flow, scanner,
// reminders, and reports. Non-billing intents are a safe no-op.
package intent

import (
	"strings"
	"time"
)

// Billing intent names, as classified upstream
const (
	IntentUpload        = "billing.upload"
	IntentOCR           = "billing.ocr"
	IntentExtract       = "billing.extract"
	IntentSummary       = "billing.summary"
	IntentReminder      = "billing.reminder"
	IntentReport        = "billing.report"
	IntentCreateInvoice = "billing.create_invoice"
	IntentEditInvoice   = "billing.edit_invoice"
	IntentViewInvoice   = "billing.view_invoice"
	IntentConfirm       = "billing.confirm"
	IntentCancel        = "billing.cancel"
)

// billingIntents is the set of intents this domain owns
var billingIntents = map[string]bool{
	IntentUpload:        true,
	IntentOCR:           true,
	IntentExtract:       true,
	IntentSummary:       true,
	IntentReminder:      true,
	IntentReport:        true,
	IntentCreateInvoice: true,
	IntentEditInvoice:   true,
	IntentViewInvoice:   true,
	IntentConfirm:       true,
	IntentCancel:        true,
}

// IsBillingIntent reports whether an intent belongs to the billing domain
func IsBillingIntent(name string) bool {
	return billingIntents[name]
}

// Entities are the extracted structured values accompanying an intent
type Entities map[string]interface{}

// String returns the first non-empty string value among keys
func (e Entities) String(keys ...string) string {
	for _, key := range keys {
		if v, ok := e[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Session is the execution context of one incoming message
type Session struct {
	Phone     string    `json:"phone"`
	MessageID string    `json:"message_id,omitempty"`
	MediaURL  string    `json:"media_url,omitempty"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Normalize sanitizes the incoming session context. Phone numbers lose
// their transport prefix and gain a country-code plus.
func (s Session) Normalize() Session {
	s.Phone = NormalizePhone(s.Phone)
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	return s
}

// NormalizePhone canonicalizes a phone number for use as a storage key
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "whatsapp:")
	phone = strings.ReplaceAll(phone, " ", "")
	if phone == "" {
		return ""
	}
	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}
	return phone
}

package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// interestedEvents are the provider webhook events this service handles
var interestedEvents = map[string]bool{
	"payment_link.paid":         true,
	"payment_link.payment_paid": true,
	"payment.captured":          true,
	"payment.authorized":        true,
	"payment.failed":            true,
	"order.paid":                true,
}

// paidStates are payment statuses that activate a subscription
var paidStates = map[string]bool{
	"captured":   true,
	"paid":       true,
	"authorized": true,
}

// VerifySignature verifies a webhook HMAC-SHA256 signature over the exact
// raw body bytes. Both hex and base64 encodings of the digest are
// accepted; comparison is constant-time.
func VerifySignature(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	digest := mac.Sum(nil)

	if hmac.Equal([]byte(hex.EncodeToString(digest)), []byte(signature)) {
		return true
	}
	return hmac.Equal([]byte(base64.StdEncoding.EncodeToString(digest)), []byte(signature))
}

// WebhookEvent is a decoded provider webhook payload
type WebhookEvent struct {
	Event   string                     `json:"event"`
	Payload map[string]json.RawMessage `json:"payload"`
}

// paymentEntity is the payment object inside a webhook payload
type paymentEntity struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"` // minor units
	Status   string `json:"status"`
	Currency string `json:"currency"`
	Contact  string `json:"contact"`
}

type entityWrapper struct {
	Entity *paymentEntity `json:"entity"`
}

// WebhookResult summarizes webhook processing for logging and tests
type WebhookResult struct {
	Status            string `json:"status"` // ok | ignored | no_payment_entity | error
	Event             string `json:"event"`
	ProviderPaymentID string `json:"provider_payment_id,omitempty"`
	PrevStatus        string `json:"prev_status,omitempty"`
	LatestStatus      string `json:"latest_status,omitempty"`
	Activated         bool   `json:"activated"`
	Note              string `json:"note,omitempty"`
}

// HandleWebhook processes a decoded webhook event idempotently: the
// payment record is upserted by provider payment ID, and a subscription
// is activated only on the transition into a paid state.
func (s *Service) HandleWebhook(event *WebhookEvent) (*WebhookResult, error) {
	if !interestedEvents[event.Event] {
		return &WebhookResult{
			Status: "ignored",
			Event:  event.Event,
			Note:   "event not in interested set",
		}, nil
	}

	entity := extractPaymentEntity(event.Payload)
	if entity == nil {
		return &WebhookResult{
			Status: "no_payment_entity",
			Event:  event.Event,
			Note:   "no payment entity found",
		}, nil
	}

	latestStatus := strings.ToLower(entity.Status)

	phone := ""
	if entity.Contact != "" {
		phone = normalizeContact(entity.Contact)
	}

	// Read existing record for previous status and phone recovery
	prevStatus := ""
	existing, err := s.store.GetPayment(entity.ID)
	if err != nil {
		// Lookup failure does not abort webhook processing
		slog.Warn("Payment lookup failed", "payment_id", entity.ID, "error", err)
	}
	if existing != nil {
		prevStatus = strings.ToLower(existing.Status)
		if phone == "" {
			phone = existing.Phone
		}
	}

	now := s.timeSource.Now()
	record := &Payment{
		ProviderPaymentID: entity.ID,
		Phone:             phone,
		Amount:            entity.Amount,
		Currency:          entity.Currency,
		Status:            latestStatus,
		UpdatedAt:         now,
	}
	if existing != nil {
		record.ReferenceID = existing.ReferenceID
		record.CreatedAt = existing.CreatedAt
	} else {
		record.CreatedAt = now
	}
	if record.Currency == "" {
		record.Currency = "INR"
	}
	if err := s.store.SavePayment(record); err != nil {
		slog.Error("Failed to upsert payment", "payment_id", entity.ID, "error", err)
	}

	result := &WebhookResult{
		Status:            "ok",
		Event:             event.Event,
		ProviderPaymentID: entity.ID,
		PrevStatus:        prevStatus,
		LatestStatus:      latestStatus,
	}

	// Activate only on transition into a paid state
	if paidStates[latestStatus] && !paidStates[prevStatus] && phone != "" {
		if _, err := s.ActivateSubscription(phone, ""); err != nil {
			result.Note = fmt.Sprintf("activation failed: %v", err)
			slog.Error("Subscription activation failed", "phone", phone, "error", err)
		} else {
			result.Activated = true
			result.Note = "subscription activated"
		}
	}

	return result, nil
}

// extractPaymentEntity finds a payment entity in a webhook payload,
// checking the common path first and then scanning all payload values.
func extractPaymentEntity(payload map[string]json.RawMessage) *paymentEntity {
	if raw, ok := payload["payment"]; ok {
		var wrapper entityWrapper
		if err := json.Unmarshal(raw, &wrapper); err == nil && valid(wrapper.Entity) {
			return wrapper.Entity
		}
	}

	for _, raw := range payload {
		var wrapper entityWrapper
		if err := json.Unmarshal(raw, &wrapper); err == nil && valid(wrapper.Entity) {
			return wrapper.Entity
		}
	}
	return nil
}

func valid(e *paymentEntity) bool {
	return e != nil && e.ID != "" && e.Status != ""
}

// normalizeContact coerces a provider contact into the canonical phone
// form used as the subscription key.
func normalizeContact(contact string) string {
	contact = strings.TrimSpace(contact)
	contact = strings.TrimPrefix(contact, "whatsapp:")
	if !strings.HasPrefix(contact, "+") {
		contact = "+" + contact
	}
	return contact
}

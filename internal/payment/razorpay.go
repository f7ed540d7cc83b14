package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// defaultBaseURL is the Razorpay REST API endpoint
const defaultBaseURL = "https://api.razorpay.com"

// LinkCreator creates payment links with the provider
type LinkCreator interface {
	CreatePaymentLink(ctx context.Context, req LinkRequest) (*PaymentLink, error)
}

// LinkRequest describes a payment link to create. Amount is minor units
// (paise).
type LinkRequest struct {
	Phone       string
	Amount      int64
	Currency    string
	Description string
	ReferenceID string
}

// PaymentLink is the provider's payment link
type PaymentLink struct {
	ID          string `json:"id"`
	ShortURL    string `json:"short_url"`
	Status      string `json:"status"`
	ReferenceID string `json:"reference_id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// Client calls the provider REST API with basic auth
type Client struct {
	keyID     string
	keySecret string
	baseURL   string
	client    *http.Client
}

// NewClient creates a new payment provider client
func NewClient(keyID, keySecret string) (*Client, error) {
	if keyID == "" || keySecret == "" {
		return nil, fmt.Errorf("payment provider keys are required")
	}
	return &Client{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   defaultBaseURL,
		client: &http.Client{
			// Short timeout so webhook-driven callers never stall
			Timeout: 10 * time.Second,
		},
	}, nil
}

// NewClientWithBaseURL creates a client against a custom endpoint for testing
func NewClientWithBaseURL(keyID, keySecret, baseURL string) (*Client, error) {
	c, err := NewClient(keyID, keySecret)
	if err != nil {
		return nil, err
	}
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c, nil
}

// linkPayload is the request body for the payment links API
type linkPayload struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	AcceptPartial  bool              `json:"accept_partial"`
	Description    string            `json:"description"`
	Customer       linkCustomer      `json:"customer"`
	Notify         linkNotify        `json:"notify"`
	ReminderEnable bool              `json:"reminder_enable"`
	ReferenceID    string            `json:"reference_id,omitempty"`
	Notes          map[string]string `json:"notes"`
}

type linkCustomer struct {
	Contact string `json:"contact"`
}

type linkNotify struct {
	SMS   bool `json:"sms"`
	Email bool `json:"email"`
}

// CleanPhone strips transport prefixes for the provider contact field
func CleanPhone(phone string) string {
	phone = strings.TrimPrefix(phone, "whatsapp:")
	return strings.TrimPrefix(phone, "+")
}

// NewReferenceID builds a stable external reference for a payment
func NewReferenceID(phone string) string {
	return fmt.Sprintf("ref-%s-%s", CleanPhone(phone), uuid.NewString())
}

// CreatePaymentLink creates a payment link via the provider REST API
func (c *Client) CreatePaymentLink(ctx context.Context, req LinkRequest) (*PaymentLink, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if req.Currency == "" {
		req.Currency = "INR"
	}
	if req.ReferenceID == "" {
		req.ReferenceID = NewReferenceID(req.Phone)
	}

	payload := linkPayload{
		Amount:        req.Amount,
		Currency:      req.Currency,
		AcceptPartial: false,
		Description:   req.Description,
		Customer:      linkCustomer{Contact: CleanPhone(req.Phone)},
		Notify:        linkNotify{},
		Notes: map[string]string{
			"phone":        req.Phone,
			"reference_id": req.ReferenceID,
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/payment_links", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling payment API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("payment API error (status %d): %s", resp.StatusCode, string(body))
	}

	var link PaymentLink
	if err := json.NewDecoder(resp.Body).Decode(&link); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if link.ID == "" || link.ShortURL == "" {
		return nil, fmt.Errorf("payment link creation returned without id/url")
	}

	link.ReferenceID = req.ReferenceID
	link.Amount = req.Amount
	link.Currency = req.Currency
	return &link, nil
}

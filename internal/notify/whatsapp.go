package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WhatsApp sends text messages through a graph-style WhatsApp API endpoint
type WhatsApp struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewWhatsApp creates a new WhatsApp sender
func NewWhatsApp(baseURL string, token string) (*WhatsApp, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("whatsapp api url is required")
	}
	return &WhatsApp{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

type whatsappMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsappText `json:"text"`
}

type whatsappText struct {
	Body string `json:"body"`
}

// Notify sends a text message to a phone number
func (w *WhatsApp) Notify(ctx context.Context, recipient string, message string) error {
	body := whatsappMessage{
		MessagingProduct: "whatsapp",
		To:               strings.TrimPrefix(recipient, "whatsapp:"),
		Type:             "text",
		Text:             whatsappText{Body: message},
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/messages", w.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling whatsapp API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whatsapp API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}

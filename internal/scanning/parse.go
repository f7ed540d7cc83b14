package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// parseInvoiceJSON parses the JSON response from a vision model
func parseInvoiceJSON(text string) (*InvoiceData, error) {
	text = strings.TrimSpace(text)

	// Remove markdown code blocks if present
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	text = text[startIdx : endIdx+1]

	var data InvoiceData
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data.Date = normalizeDate(data.Date)

	data.Vendor = strings.TrimSpace(data.Vendor)
	if data.Vendor == "" {
		data.Vendor = "Unknown Vendor"
	}

	data.Currency = strings.ToUpper(strings.TrimSpace(data.Currency))
	if data.Currency == "" {
		data.Currency = "INR"
	}

	// Amounts stay float64 here (JSON from the model); the service layer
	// converts to integer minor units when building the invoice record.

	return &data, nil
}

// normalizeDate coerces a model-reported date into YYYY-MM-DD,
// falling back to today when it cannot be parsed.
func normalizeDate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Now().Format("2006-01-02")
	}

	if d, err := time.Parse("2006-01-02", value); err == nil {
		return d.Format("2006-01-02")
	}

	// Try other common formats
	formats := []string{
		"2006/01/02",
		"02/01/2006",
		"01/02/2006",
		"02-01-2006",
	}
	for _, format := range formats {
		if d, err := time.Parse(format, value); err == nil {
			return d.Format("2006-01-02")
		}
	}

	return time.Now().Format("2006-01-02")
}

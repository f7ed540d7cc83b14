package scanning

// LineItem is a single extracted invoice line with a confidence score.
// Quantity and UnitPrice are pointers because an OCR pass often finds a
// name without finding its numbers.
type LineItem struct {
	Name       string   `json:"name"`
	Quantity   *float64 `json:"quantity,omitempty"`
	UnitPrice  *float64 `json:"unit_price,omitempty"` // major units (rupees)
	Confidence float64  `json:"confidence"`
	RawLine    string   `json:"raw_line,omitempty"`
}

// InvoiceData contains extracted information from a bill or invoice
type InvoiceData struct {
	Vendor        string     `json:"vendor"`
	InvoiceNumber string     `json:"invoice_number"`
	Date          string     `json:"date"` // ISO 8601 format
	Currency      string     `json:"currency"`
	LineItems     []LineItem `json:"line_items"`
	Subtotal      float64    `json:"subtotal"`
	TaxAmount     float64    `json:"tax_amount"`
	TotalAmount   float64    `json:"total_amount"`
	RawText       string     `json:"raw_text"`
}

// Scanner defines the interface for invoice scanning operations
type Scanner interface {
	// ScanInvoice analyzes an invoice image/PDF and extracts structured data
	ScanInvoice(imageData []byte, contentType string) (*InvoiceData, error)
	// Close closes the scanner and releases resources
	Close() error
}

package invoice

import (
	"math"
	"time"
)

// PaymentStatus tracks where an invoice sits in its payment lifecycle
type PaymentStatus string

const (
	StatusDraft PaymentStatus = "DRAFT"
	StatusDue   PaymentStatus = "DUE"
	StatusPaid  PaymentStatus = "PAID"
)

// LineItem is one billed item. Quantity and UnitPrice are pointers because
// drafts built from partial OCR or partial entities legitimately lack them.
type LineItem struct {
	Name       string   `json:"name"`
	Quantity   *float64 `json:"quantity,omitempty"`
	UnitPrice  *int64   `json:"unit_price,omitempty"` // minor units (paise)
	Confidence float64  `json:"confidence,omitempty"`
}

// Total returns quantity x unit price in minor units, and whether both
// numbers were present.
func (li LineItem) Total() (int64, bool) {
	if li.Quantity == nil || li.UnitPrice == nil {
		return 0, false
	}
	return int64(math.Round(*li.Quantity * float64(*li.UnitPrice))), true
}

// Invoice represents a bill with metadata. All amounts are integer minor
// units (paise). Validation is soft: construction never fails, Warnings
// reports what is missing or malformed.
type Invoice struct {
	ID            string            `json:"id"`
	Vendor        string            `json:"vendor"`
	Customer      string            `json:"customer,omitempty"`
	InvoiceNumber string            `json:"invoice_number,omitempty"`
	InvoiceDate   string            `json:"invoice_date,omitempty"` // YYYY-MM-DD
	Currency      string            `json:"currency"`
	LineItems     []LineItem        `json:"line_items"`
	Subtotal      int64             `json:"subtotal,omitempty"`
	TaxAmount     int64             `json:"tax_amount,omitempty"`
	TotalAmount   int64             `json:"total_amount,omitempty"`
	PaymentStatus PaymentStatus     `json:"payment_status"`
	Phone         string            `json:"phone,omitempty"` // owner
	Filename      string            `json:"filename,omitempty"`
	ContentType   string            `json:"content_type,omitempty"`
	PDFFilename   string            `json:"pdf_filename,omitempty"`
	RawText       string            `json:"raw_text,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// dateFormats accepted for InvoiceDate (loose check)
var dateFormats = []string{"2006-01-02", "02/01/2006"}

// Warnings collects soft validation warnings without failing
func (inv *Invoice) Warnings() []string {
	var warnings []string

	if inv.Vendor == "" {
		warnings = append(warnings, "missing vendor")
	}
	if inv.InvoiceNumber == "" {
		warnings = append(warnings, "missing invoice_number")
	}
	if inv.InvoiceDate != "" && !validDate(inv.InvoiceDate) {
		warnings = append(warnings, "invoice_date format invalid")
	}
	if inv.TotalAmount < 0 {
		warnings = append(warnings, "total_amount cannot be negative")
	}

	return warnings
}

func validDate(value string) bool {
	for _, format := range dateFormats {
		if _, err := time.Parse(format, value); err == nil {
			return true
		}
	}
	return false
}

// ComputeTotal calculates the total from line items plus tax, in minor
// units. Items without both quantity and price are skipped. Tax rules are
// not enforced, this is arithmetic only.
func (inv *Invoice) ComputeTotal() int64 {
	var total int64
	for _, item := range inv.LineItems {
		if t, ok := item.Total(); ok {
			total += t
		}
	}
	return total + inv.TaxAmount
}

// IsComplete is a heuristic completeness check
func (inv *Invoice) IsComplete() bool {
	return inv.Vendor != "" &&
		inv.InvoiceNumber != "" &&
		(inv.TotalAmount != 0 || len(inv.LineItems) > 0)
}

// Metrics are per-user usage counters, recorded best-effort
type Metrics struct {
	InvoicesCreated int `json:"invoices_created"`
	Scans           int `json:"scans"`
	PDFsGenerated   int `json:"pdfs_generated"`
}

// Package pdf renders finalized invoices to A4 PDF documents.
package pdf

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/mina-assistant/billing/internal/invoice"
)

// BusinessInfo is printed in the invoice header
type BusinessInfo struct {
	Name    string
	Phone   string
	UPINote string // optional payment note, e.g. a UPI handle
}

// Renderer renders invoices with a fixed business identity
type Renderer struct {
	business BusinessInfo
}

// NewRenderer creates a Renderer for the given business
func NewRenderer(business BusinessInfo) *Renderer {
	return &Renderer{business: business}
}

// RenderInvoice renders an invoice to PDF bytes. Layout: large business
// name header, phone subheader, item table, bold total, optional payment
// note.
func (r *Renderer) RenderInvoice(inv *invoice.Invoice) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(13, 13, 13)
	doc.AddPage()

	name := r.business.Name
	if name == "" {
		name = inv.Vendor
	}

	// Header
	doc.SetFont("Helvetica", "B", 20)
	doc.CellFormat(0, 12, name, "", 1, "C", false, 0, "")
	if r.business.Phone != "" {
		doc.SetFont("Helvetica", "", 12)
		doc.CellFormat(0, 8, fmt.Sprintf("Phone: %s", r.business.Phone), "", 1, "C", false, 0, "")
	}
	doc.Ln(6)

	if inv.InvoiceNumber != "" || inv.InvoiceDate != "" {
		doc.SetFont("Helvetica", "", 11)
		doc.CellFormat(0, 7, fmt.Sprintf("Invoice %s    %s", inv.InvoiceNumber, inv.InvoiceDate), "", 1, "L", false, 0, "")
		doc.Ln(2)
	}

	// Item table
	widths := []float64{11, 85, 20, 30, 34}
	headers := []string{"#", "Item", "Qty", "Price", "Amount"}

	doc.SetFont("Helvetica", "B", 10)
	doc.SetFillColor(245, 245, 245)
	for i, h := range headers {
		doc.CellFormat(widths[i], 8, h, "1", 0, "L", true, 0, "")
	}
	doc.Ln(-1)

	doc.SetFont("Helvetica", "", 10)
	var subtotal int64
	for idx, item := range inv.LineItems {
		qty := ""
		if item.Quantity != nil {
			qty = trimFloat(*item.Quantity)
		}
		price := ""
		if item.UnitPrice != nil {
			price = formatMinor(*item.UnitPrice)
		}
		amount := ""
		if t, ok := item.Total(); ok {
			amount = formatMinor(t)
			subtotal += t
		}

		doc.CellFormat(widths[0], 8, fmt.Sprintf("%d", idx+1), "1", 0, "L", false, 0, "")
		doc.CellFormat(widths[1], 8, item.Name, "1", 0, "L", false, 0, "")
		doc.CellFormat(widths[2], 8, qty, "1", 0, "R", false, 0, "")
		doc.CellFormat(widths[3], 8, price, "1", 0, "R", false, 0, "")
		doc.CellFormat(widths[4], 8, amount, "1", 0, "R", false, 0, "")
		doc.Ln(-1)
	}

	// Totals
	total := inv.TotalAmount
	if total == 0 {
		total = subtotal + inv.TaxAmount
	}
	doc.Ln(4)
	doc.SetFont("Helvetica", "B", 14)
	doc.CellFormat(0, 10, fmt.Sprintf("Total: %s %s", inv.Currency, formatMinor(total)), "", 1, "R", false, 0, "")

	if r.business.UPINote != "" {
		doc.Ln(6)
		doc.SetFont("Helvetica", "", 11)
		doc.CellFormat(0, 8, fmt.Sprintf("Payment: %s", r.business.UPINote), "", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("rendering pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// formatMinor formats integer minor units as a decimal string
func formatMinor(amount int64) string {
	neg := ""
	if amount < 0 {
		neg = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", neg, amount/100, amount%100)
}

// trimFloat formats a quantity without trailing zeros
func trimFloat(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}

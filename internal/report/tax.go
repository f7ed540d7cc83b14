// Package report aggregates invoices into tax-time summaries and
// exports them as spreadsheets.
package report

import (
	"sort"
	"time"

	"github.com/mina-assistant/billing/internal/invoice"
)

// VendorTotal is the aggregate for one vendor
type VendorTotal struct {
	Vendor      string `json:"vendor"`
	Count       int    `json:"count"`
	TotalAmount int64  `json:"total_amount"`
	TaxAmount   int64  `json:"tax_amount"`
}

// MonthTotal is the aggregate for one calendar month
type MonthTotal struct {
	Month       string `json:"month"` // YYYY-MM
	Count       int    `json:"count"`
	TotalAmount int64  `json:"total_amount"`
	TaxAmount   int64  `json:"tax_amount"`
}

// TaxSummary aggregates invoices over a date range. Amounts are in
// minor units.
type TaxSummary struct {
	From         time.Time     `json:"from"`
	To           time.Time     `json:"to"`
	Currency     string        `json:"currency"`
	InvoiceCount int           `json:"invoice_count"`
	Subtotal     int64         `json:"subtotal"`
	TaxAmount    int64         `json:"tax_amount"`
	TotalAmount  int64         `json:"total_amount"`
	DueCount     int           `json:"due_count"`
	DueAmount    int64         `json:"due_amount"`
	PaidCount    int           `json:"paid_count"`
	PaidAmount   int64         `json:"paid_amount"`
	ByVendor     []VendorTotal `json:"by_vendor"`
	ByMonth      []MonthTotal  `json:"by_month"`
}

// Aggregate summarizes the invoices dated within [from, to]. Drafts are
// excluded; an invoice without a parseable date falls back to its
// creation time.
func Aggregate(invoices []*invoice.Invoice, from, to time.Time) *TaxSummary {
	summary := &TaxSummary{From: from, To: to, Currency: "INR"}

	vendors := map[string]*VendorTotal{}
	months := map[string]*MonthTotal{}

	for _, inv := range invoices {
		if inv.PaymentStatus == invoice.StatusDraft {
			continue
		}

		when := invoiceTime(inv)
		if when.Before(from) || when.After(to) {
			continue
		}

		summary.InvoiceCount++
		summary.Subtotal += inv.Subtotal
		summary.TaxAmount += inv.TaxAmount
		summary.TotalAmount += inv.TotalAmount
		if inv.Currency != "" {
			summary.Currency = inv.Currency
		}

		switch inv.PaymentStatus {
		case invoice.StatusDue:
			summary.DueCount++
			summary.DueAmount += inv.TotalAmount
		case invoice.StatusPaid:
			summary.PaidCount++
			summary.PaidAmount += inv.TotalAmount
		}

		vendor := inv.Vendor
		if vendor == "" {
			vendor = "Unknown Vendor"
		}
		vt, ok := vendors[vendor]
		if !ok {
			vt = &VendorTotal{Vendor: vendor}
			vendors[vendor] = vt
		}
		vt.Count++
		vt.TotalAmount += inv.TotalAmount
		vt.TaxAmount += inv.TaxAmount

		month := when.Format("2006-01")
		mt, ok := months[month]
		if !ok {
			mt = &MonthTotal{Month: month}
			months[month] = mt
		}
		mt.Count++
		mt.TotalAmount += inv.TotalAmount
		mt.TaxAmount += inv.TaxAmount
	}

	for _, vt := range vendors {
		summary.ByVendor = append(summary.ByVendor, *vt)
	}
	sort.Slice(summary.ByVendor, func(i, j int) bool {
		if summary.ByVendor[i].TotalAmount != summary.ByVendor[j].TotalAmount {
			return summary.ByVendor[i].TotalAmount > summary.ByVendor[j].TotalAmount
		}
		return summary.ByVendor[i].Vendor < summary.ByVendor[j].Vendor
	})

	for _, mt := range months {
		summary.ByMonth = append(summary.ByMonth, *mt)
	}
	sort.Slice(summary.ByMonth, func(i, j int) bool {
		return summary.ByMonth[i].Month < summary.ByMonth[j].Month
	})

	return summary
}

// invoiceTime resolves the effective date of an invoice
func invoiceTime(inv *invoice.Invoice) time.Time {
	if inv.InvoiceDate != "" {
		if parsed, err := time.Parse("2006-01-02", inv.InvoiceDate); err == nil {
			return parsed
		}
	}
	return inv.CreatedAt
}

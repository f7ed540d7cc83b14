package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/mina-assistant/billing/internal/invoice"
)

// Export renders a tax summary and its invoices as an xlsx workbook
// with Summary, By Vendor, and Invoices sheets.
func Export(summary *TaxSummary, invoices []*invoice.Invoice) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const summarySheet = "Summary"
	index, err := f.NewSheet(summarySheet)
	if err != nil {
		return nil, fmt.Errorf("creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	rows := [][]interface{}{
		{"Period", summary.From.Format("2006-01-02") + " to " + summary.To.Format("2006-01-02")},
		{"Currency", summary.Currency},
		{"Invoices", summary.InvoiceCount},
		{"Subtotal", major(summary.Subtotal)},
		{"Tax", major(summary.TaxAmount)},
		{"Total", major(summary.TotalAmount)},
		{"Due", fmt.Sprintf("%d (%0.2f)", summary.DueCount, major(summary.DueAmount))},
		{"Paid", fmt.Sprintf("%d (%0.2f)", summary.PaidCount, major(summary.PaidAmount))},
	}
	if err := writeRows(f, summarySheet, rows); err != nil {
		return nil, err
	}

	const vendorSheet = "By Vendor"
	if _, err := f.NewSheet(vendorSheet); err != nil {
		return nil, fmt.Errorf("creating sheet: %w", err)
	}
	vendorRows := [][]interface{}{{"Vendor", "Invoices", "Total", "Tax"}}
	for _, vt := range summary.ByVendor {
		vendorRows = append(vendorRows, []interface{}{
			vt.Vendor, vt.Count, major(vt.TotalAmount), major(vt.TaxAmount),
		})
	}
	if err := writeRows(f, vendorSheet, vendorRows); err != nil {
		return nil, err
	}

	const invoiceSheet = "Invoices"
	if _, err := f.NewSheet(invoiceSheet); err != nil {
		return nil, fmt.Errorf("creating sheet: %w", err)
	}
	invoiceRows := [][]interface{}{
		{"ID", "Date", "Vendor", "Customer", "Status", "Subtotal", "Tax", "Total"},
	}
	for _, inv := range invoices {
		if inv.PaymentStatus == invoice.StatusDraft {
			continue
		}
		when := invoiceTime(inv)
		if when.Before(summary.From) || when.After(summary.To) {
			continue
		}
		invoiceRows = append(invoiceRows, []interface{}{
			inv.ID, when.Format("2006-01-02"), inv.Vendor, inv.Customer,
			string(inv.PaymentStatus),
			major(inv.Subtotal), major(inv.TaxAmount), major(inv.TotalAmount),
		})
	}
	if err := writeRows(f, invoiceSheet, invoiceRows); err != nil {
		return nil, err
	}

	// Drop the default sheet that NewFile seeds
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("deleting default sheet: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return fmt.Errorf("resolving cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("setting cell %s: %w", cell, err)
			}
		}
	}
	return nil
}

func major(minor int64) float64 {
	return float64(minor) / 100
}

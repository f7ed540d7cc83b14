package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/mina-assistant/billing/internal/scanning"
)

// IDGenerator generates unique IDs for invoices
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// Renderer renders an invoice to PDF bytes
type Renderer interface {
	RenderInvoice(inv *Invoice) ([]byte, error)
}

// Mailer delivers an invoice PDF by email
type Mailer interface {
	SendInvoice(ctx context.Context, recipient, subject, body, pdfName string, pdfData []byte) error
}

// ReminderScheduler queues payment-due reminders
type ReminderScheduler interface {
	ScheduleDueReminder(phone, invoiceID, title, description string, dueAt time.Time) error
}

// defaultIDGenerator generates k-sortable unique IDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return ksuid.New().String()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// dueReminderOffset is how long after the invoice date a payment reminder
// fires when an invoice is finalized as DUE.
const dueReminderOffset = 7 * 24 * time.Hour

// Service handles invoice operations
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	renderer    Renderer
	mailer      Mailer
	reminders   ReminderScheduler
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time
// source. Renderer, mailer, and reminder scheduler are optional; set them
// with the With* methods.
func NewService(db DB, scanner scanning.Scanner, storage Storage) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// WithRenderer enables PDF generation on finalize
func (s *Service) WithRenderer(r Renderer) *Service {
	s.renderer = r
	return s
}

// WithMailer enables invoice delivery by email
func (s *Service) WithMailer(m Mailer) *Service {
	s.mailer = m
	return s
}

// WithReminders enables due-payment reminder scheduling
func (s *Service) WithReminders(r ReminderScheduler) *Service {
	s.reminders = r
	return s
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	// Remove special characters, keep only alphanumeric, spaces, hyphens, and underscores
	reg := regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	base = reg.ReplaceAllString(base, "")

	// Replace multiple spaces with single space
	reg = regexp.MustCompile(`\s+`)
	base = reg.ReplaceAllString(base, " ")

	base = strings.TrimSpace(base)

	// Truncate to reasonable length (50 chars for base, plus extension)
	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "invoice"
	}

	return base + ext
}

// toMinor converts a major-unit amount (rupees) to minor units (paise)
func toMinor(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// fromScan builds a draft invoice from scanner output
func fromScan(data *scanning.InvoiceData) *Invoice {
	items := make([]LineItem, 0, len(data.LineItems))
	for _, li := range data.LineItems {
		item := LineItem{
			Name:       li.Name,
			Quantity:   li.Quantity,
			Confidence: li.Confidence,
		}
		if li.UnitPrice != nil {
			price := toMinor(*li.UnitPrice)
			item.UnitPrice = &price
		}
		items = append(items, item)
	}

	return &Invoice{
		Vendor:        data.Vendor,
		InvoiceNumber: data.InvoiceNumber,
		InvoiceDate:   data.Date,
		Currency:      data.Currency,
		LineItems:     items,
		Subtotal:      toMinor(data.Subtotal),
		TaxAmount:     toMinor(data.TaxAmount),
		TotalAmount:   toMinor(data.TotalAmount),
		RawText:       data.RawText,
		PaymentStatus: StatusDraft,
	}
}

// ScanDocument stores an uploaded bill, scans it, and returns a draft
// invoice. The draft is NOT persisted; persistence happens at
// confirmation through CreateInvoice.
func (s *Service) ScanDocument(phone, filename string, data []byte, contentType string) (*Invoice, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	// Sanitize filename to clean up phone-generated long filenames
	cleanFilename := sanitizeFilename(filename)

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, cleanFilename), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	scanData, err := s.scanner.ScanInvoice(data, contentType)
	if err != nil {
		slog.Error("Failed to scan document",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		// Clean up the saved file since scanning failed
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	draft := fromScan(scanData)
	draft.ID = id
	draft.Phone = phone
	draft.Filename = savedPath
	draft.ContentType = contentType
	draft.CreatedAt = now
	draft.UpdatedAt = now

	s.recordMetric(phone, "scans")

	return draft, nil
}

// CreateResult reports the side effects of finalizing an invoice
type CreateResult struct {
	Invoice           *Invoice `json:"invoice"`
	Warnings          []string `json:"warnings,omitempty"`
	PDFGenerated      bool     `json:"pdf_generated"`
	EmailSent         bool     `json:"email_sent"`
	ReminderScheduled bool     `json:"reminder_scheduled"`
}

// CreateInvoice finalizes and persists an invoice with the given payment
// status (PAID or DUE). Post-creation side effects (PDF, email, due
// reminder) are best-effort and independently reported.
func (s *Service) CreateInvoice(ctx context.Context, inv *Invoice, status PaymentStatus) (*CreateResult, error) {
	switch status {
	case StatusPaid, StatusDue:
	default:
		return nil, fmt.Errorf("invalid payment status: %s", status)
	}

	now := s.timeSource.Now()
	if inv.ID == "" {
		inv.ID = s.idGenerator.Generate()
		inv.CreatedAt = now
	}
	if inv.Currency == "" {
		inv.Currency = "INR"
	}
	if inv.TotalAmount == 0 {
		inv.TotalAmount = inv.ComputeTotal()
	}
	inv.PaymentStatus = status
	inv.UpdatedAt = now

	if err := s.db.SaveInvoice(inv); err != nil {
		return nil, fmt.Errorf("saving invoice to database: %w", err)
	}

	s.recordMetric(inv.Phone, "invoices_created")

	result := &CreateResult{
		Invoice:  inv,
		Warnings: inv.Warnings(),
	}

	// PDF generation
	var pdfData []byte
	if s.renderer != nil {
		var err error
		pdfData, err = s.renderer.RenderInvoice(inv)
		if err != nil {
			slog.Warn("Failed to render invoice PDF", "id", inv.ID, "error", err)
		} else {
			pdfName := fmt.Sprintf("%s_invoice.pdf", inv.ID)
			if _, err := s.storage.Save(pdfName, pdfData); err != nil {
				slog.Warn("Failed to store invoice PDF", "id", inv.ID, "error", err)
			} else {
				inv.PDFFilename = pdfName
				result.PDFGenerated = true
				s.recordMetric(inv.Phone, "pdfs_generated")
				if err := s.db.SaveInvoice(inv); err != nil {
					slog.Warn("Failed to record PDF filename", "id", inv.ID, "error", err)
				}
			}
		}
	}

	// Email delivery, when a recipient is known
	if s.mailer != nil && pdfData != nil {
		if email := inv.Metadata["email"]; email != "" {
			subject := fmt.Sprintf("Invoice %s from %s", inv.InvoiceNumber, inv.Vendor)
			body := fmt.Sprintf("Please find attached invoice %s. Total: %s %d.%02d",
				inv.InvoiceNumber, inv.Currency, inv.TotalAmount/100, inv.TotalAmount%100)
			if err := s.mailer.SendInvoice(ctx, email, subject, body, inv.PDFFilename, pdfData); err != nil {
				slog.Warn("Failed to email invoice", "id", inv.ID, "error", err)
			} else {
				result.EmailSent = true
			}
		}
	}

	// Payment reminder for DUE invoices
	if status == StatusDue && s.reminders != nil {
		dueAt := s.dueDate(inv)
		desc := dueDescription(inv)
		if err := s.reminders.ScheduleDueReminder(inv.Phone, inv.ID, "Invoice payment due", desc, dueAt); err != nil {
			slog.Warn("Failed to schedule due payment reminder", "id", inv.ID, "error", err)
		} else {
			result.ReminderScheduled = true
		}
	}

	return result, nil
}

// dueDate determines the reminder due date: invoice date plus the default
// offset, or now plus the offset when the date is missing or unparseable.
func (s *Service) dueDate(inv *Invoice) time.Time {
	base := s.timeSource.Now()
	if inv.InvoiceDate != "" {
		if d, err := time.Parse("2006-01-02", inv.InvoiceDate); err == nil {
			base = d
		}
	}
	return base.Add(dueReminderOffset)
}

// dueDescription builds a human-readable reminder description
func dueDescription(inv *Invoice) string {
	parts := []string{"Invoice payment due"}
	if inv.Customer != "" {
		parts = append(parts, fmt.Sprintf("from %s", inv.Customer))
	}
	if inv.TotalAmount != 0 {
		parts = append(parts, fmt.Sprintf("(%s %d.%02d)", inv.Currency, inv.TotalAmount/100, inv.TotalAmount%100))
	}
	return strings.Join(parts, " ")
}

// recordMetric increments a usage counter, best-effort. Never blocks an
// operation.
func (s *Service) recordMetric(phone, metric string) {
	if phone == "" {
		return
	}
	if err := s.db.IncrementMetric(phone, metric); err != nil {
		slog.Debug("Failed to record metric", "phone", phone, "metric", metric, "error", err)
	}
}

// GetInvoice retrieves an invoice by ID
func (s *Service) GetInvoice(id string) (*Invoice, error) {
	inv, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}
	return inv, nil
}

// ListInvoices returns all invoices
func (s *Service) ListInvoices() ([]*Invoice, error) {
	invoices, err := s.db.ListInvoices()
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	return invoices, nil
}

// ListInvoicesByPhone returns invoices owned by a phone number
func (s *Service) ListInvoicesByPhone(phone string) ([]*Invoice, error) {
	invoices, err := s.db.ListInvoicesByPhone(phone)
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	return invoices, nil
}

// DeleteInvoice removes an invoice and its files
func (s *Service) DeleteInvoice(id string) error {
	inv, err := s.db.GetInvoice(id)
	if err != nil {
		return fmt.Errorf("getting invoice for deletion: %w", err)
	}

	if inv.Filename != "" {
		if err := s.storage.Delete(inv.Filename); err != nil {
			// Log error but continue with database deletion
			slog.Warn("Failed to delete file", "filename", inv.Filename, "error", err)
		}
	}
	if inv.PDFFilename != "" {
		if err := s.storage.Delete(inv.PDFFilename); err != nil {
			slog.Warn("Failed to delete file", "filename", inv.PDFFilename, "error", err)
		}
	}

	if err := s.db.DeleteInvoice(id); err != nil {
		return fmt.Errorf("deleting invoice from database: %w", err)
	}
	return nil
}

// GetInvoiceDocument retrieves the original uploaded document for an invoice
func (s *Service) GetInvoiceDocument(id string) ([]byte, string, error) {
	inv, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting invoice: %w", err)
	}
	if inv.Filename == "" {
		return nil, "", fmt.Errorf("invoice %s has no document", id)
	}

	data, err := s.storage.Get(inv.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting invoice document: %w", err)
	}

	return data, inv.ContentType, nil
}

// GetInvoicePDF retrieves the rendered PDF for an invoice, rendering it on
// demand when it has not been generated yet.
func (s *Service) GetInvoicePDF(id string) ([]byte, error) {
	inv, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}

	if inv.PDFFilename != "" {
		data, err := s.storage.Get(inv.PDFFilename)
		if err == nil {
			return data, nil
		}
		slog.Warn("Stored PDF missing, re-rendering", "id", id, "error", err)
	}

	if s.renderer == nil {
		return nil, fmt.Errorf("no PDF available for invoice %s", id)
	}

	data, err := s.renderer.RenderInvoice(inv)
	if err != nil {
		return nil, fmt.Errorf("rendering invoice: %w", err)
	}

	pdfName := fmt.Sprintf("%s_invoice.pdf", inv.ID)
	if _, err := s.storage.Save(pdfName, data); err == nil {
		inv.PDFFilename = pdfName
		inv.UpdatedAt = s.timeSource.Now()
		if err := s.db.SaveInvoice(inv); err != nil {
			slog.Warn("Failed to record PDF filename", "id", inv.ID, "error", err)
		}
		s.recordMetric(inv.Phone, "pdfs_generated")
	}

	return data, nil
}

// Metrics reads usage counters for a phone number, best-effort
func (s *Service) Metrics(phone string) *Metrics {
	metrics, err := s.db.GetMetrics(phone)
	if err != nil {
		return &Metrics{}
	}
	return metrics
}

package intent

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/mina-assistant/billing/internal/flow"
	"github.com/mina-assistant/billing/internal/invoice"
	"github.com/mina-assistant/billing/internal/report"
	"github.com/mina-assistant/billing/internal/scanning"
)

// Response is the structured reply produced for one intent
type Response struct {
	Status     string                 `json:"status"`
	Intent     string                 `json:"intent,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
	State      string                 `json:"state,omitempty"`
	NextAction string                 `json:"next_action,omitempty"`
	Text       string                 `json:"text,omitempty"`
	Message    *invoice.Confirmation  `json:"message,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Replayed   bool                   `json:"replayed,omitempty"`
}

// Router dispatches billing intents to the invoice flow and services
type Router struct {
	invoices  *invoice.Service
	flows     *flow.Flow
	reminders invoice.ReminderScheduler
	dedupe    DedupeStore
	logger    *slog.Logger
}

// NewRouter creates an intent router
func NewRouter(invoices *invoice.Service, flows *flow.Flow, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		invoices: invoices,
		flows:    flows,
		logger:   logger,
	}
}

// WithReminders enables manual reminder scheduling
func (r *Router) WithReminders(rs invoice.ReminderScheduler) *Router {
	r.reminders = rs
	return r
}

// WithDedupe enables message-ID replay protection
func (r *Router) WithDedupe(store DedupeStore) *Router {
	r.dedupe = store
	return r
}

// Handle routes one classified intent. Non-billing intents return
// (nil, nil) so an upstream dispatcher can fall through to other
// domains. A redelivered message ID replays the stored response
// without re-running side effects.
func (r *Router) Handle(ctx context.Context, intentName string, entities Entities, session Session) (*Response, error) {
	if !IsBillingIntent(intentName) {
		return nil, nil
	}

	session = session.Normalize()
	if session.Phone == "" {
		return &Response{Status: "error", Intent: intentName, Reason: "missing_phone"}, nil
	}

	if r.dedupe != nil && session.MessageID != "" {
		cached, err := r.dedupe.Get(session.MessageID)
		if err != nil {
			r.logger.Warn("dedupe lookup failed", "message_id", session.MessageID, "error", err)
		} else if cached != nil {
			replay := *cached
			replay.Replayed = true
			return &replay, nil
		}
	}

	resp, err := r.dispatch(ctx, intentName, entities, session)
	if err != nil {
		return nil, err
	}
	resp.Intent = intentName

	if r.dedupe != nil && session.MessageID != "" {
		if err := r.dedupe.Put(session.MessageID, resp); err != nil {
			r.logger.Warn("dedupe store failed", "message_id", session.MessageID, "error", err)
		}
	}

	return resp, nil
}

func (r *Router) dispatch(ctx context.Context, intentName string, entities Entities, session Session) (*Response, error) {
	switch intentName {
	case IntentUpload, IntentOCR, IntentExtract:
		return r.handleExtract(entities, session)
	case IntentCreateInvoice, IntentEditInvoice:
		return r.handleDraft(intentName, entities, session)
	case IntentViewInvoice:
		return r.handleView(session)
	case IntentConfirm:
		return r.handleConfirm(ctx, entities, session)
	case IntentCancel:
		return r.handleCancel(session)
	case IntentSummary:
		return r.handleSummary(session)
	case IntentReminder:
		return r.handleReminder(entities, session)
	case IntentReport:
		return r.handleReport(session)
	}
	return &Response{Status: "error", Reason: "unsupported_intent"}, nil
}

// handleExtract pulls line items out of OCR text and feeds them into the
// invoice flow. A document message without extracted text is redirected
// to the upload endpoint.
func (r *Router) handleExtract(entities Entities, session Session) (*Response, error) {
	text := entities.String("ocr_text", "text", "raw_text")
	if text == "" {
		return &Response{
			Status:     "needs_media",
			NextAction: "upload_document",
			Text:       "Please send the bill image or PDF so I can read the items.",
		}, nil
	}

	items := toInvoiceItems(scanning.ExtractLineItems(text))
	if len(items) == 0 {
		return &Response{
			Status:     "no_items_found",
			NextAction: "provide_items",
			Text:       "I could not find any line items in that text. You can list them manually, e.g. \"2 x Widget 150\".",
		}, nil
	}

	start, err := r.flows.StartOrResume(session.Phone, nil)
	if err != nil {
		return nil, fmt.Errorf("starting flow: %w", err)
	}
	if start.Status == "blocked" {
		return blockedResponse(start), nil
	}

	res, err := r.flows.Advance(session.Phone, flow.Updates{Items: items})
	if err != nil {
		return nil, fmt.Errorf("advancing flow: %w", err)
	}

	resp := flowResponse(res)
	resp.Data = map[string]interface{}{"items_extracted": len(items)}
	return resp, nil
}

// handleDraft builds a draft invoice from entities and advances the flow
func (r *Router) handleDraft(intentName string, entities Entities, session Session) (*Response, error) {
	draft := invoice.BuildDraft(intentName, entities)
	if draft.Status == "ignored" {
		return &Response{Status: "ignored", Reason: draft.Reason}, nil
	}

	start, err := r.flows.StartOrResume(session.Phone, nil)
	if err != nil {
		return nil, fmt.Errorf("starting flow: %w", err)
	}
	if start.Status == "blocked" {
		return blockedResponse(start), nil
	}

	updates := flow.Updates{Draft: draft.Invoice}
	if draft.Invoice != nil {
		updates.Items = draft.Invoice.LineItems
		updates.Customer = draft.Invoice.Customer
	}
	if payment := paymentEntity(entities); payment != "" {
		updates.Payment = payment
	}

	res, err := r.flows.Advance(session.Phone, updates)
	if err != nil {
		return nil, fmt.Errorf("advancing flow: %w", err)
	}

	resp := flowResponse(res)
	resp.Data = map[string]interface{}{
		"confidence":     draft.Confidence,
		"missing_fields": draft.MissingFields,
	}
	if res.State == flow.StateConfirmation && res.Data != nil {
		resp.Message = invoice.BuildConfirmation(composeInvoice(res.Data))
	}
	return resp, nil
}

// handleView shows the in-progress draft without advancing the flow
func (r *Router) handleView(session Session) (*Response, error) {
	current, err := r.flows.Current(session.Phone)
	if err != nil {
		return nil, fmt.Errorf("reading flow: %w", err)
	}
	if current == nil {
		return &Response{Status: "no_active_flow", Text: "There is no invoice in progress."}, nil
	}

	return &Response{
		Status:     "draft",
		State:      string(current.State),
		NextAction: "review",
		Message:    invoice.BuildConfirmation(composeInvoice(&current.Data)),
	}, nil
}

// handleConfirm finalizes the flow: the draft becomes a persisted
// invoice and post-creation side effects run.
func (r *Router) handleConfirm(ctx context.Context, entities Entities, session Session) (*Response, error) {
	updates := flow.Updates{Confirm: true}
	if payment := paymentEntity(entities); payment != "" {
		updates.Payment = payment
	}

	res, err := r.flows.Advance(session.Phone, updates)
	if err != nil {
		return nil, fmt.Errorf("advancing flow: %w", err)
	}
	if res.State != flow.StateCompleted {
		return flowResponse(res), nil
	}

	data, err := r.flows.Complete(session.Phone)
	if err != nil {
		return nil, fmt.Errorf("completing flow: %w", err)
	}

	inv := composeInvoice(data)
	inv.Phone = session.Phone

	status := invoice.StatusDue
	if strings.EqualFold(data.Payment, string(invoice.StatusPaid)) {
		status = invoice.StatusPaid
	}

	result, err := r.invoices.CreateInvoice(ctx, inv, status)
	if err != nil {
		return nil, fmt.Errorf("creating invoice: %w", err)
	}

	return &Response{
		Status: "created",
		State:  string(flow.StateCompleted),
		Text:   fmt.Sprintf("Invoice %s created for %s.", result.Invoice.ID, result.Invoice.Customer),
		Data: map[string]interface{}{
			"invoice_id":         result.Invoice.ID,
			"payment_status":     string(result.Invoice.PaymentStatus),
			"total_amount":       result.Invoice.TotalAmount,
			"warnings":           result.Warnings,
			"pdf_generated":      result.PDFGenerated,
			"email_sent":         result.EmailSent,
			"reminder_scheduled": result.ReminderScheduled,
		},
	}, nil
}

func (r *Router) handleCancel(session Session) (*Response, error) {
	res, err := r.flows.Cancel(session.Phone)
	if err != nil {
		return nil, fmt.Errorf("cancelling flow: %w", err)
	}
	if res.Status == "cancelled" {
		return &Response{Status: "cancelled", Text: "Okay, I discarded the invoice in progress."}, nil
	}
	return &Response{Status: "no_active_flow", Text: "There is no invoice in progress."}, nil
}

// handleSummary reports the caller's invoice counts and totals
func (r *Router) handleSummary(session Session) (*Response, error) {
	invoices, err := r.invoices.ListInvoicesByPhone(session.Phone)
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}

	var dueCount, paidCount int
	var dueTotal, paidTotal int64
	for _, inv := range invoices {
		switch inv.PaymentStatus {
		case invoice.StatusDue:
			dueCount++
			dueTotal += inv.TotalAmount
		case invoice.StatusPaid:
			paidCount++
			paidTotal += inv.TotalAmount
		}
	}

	metrics := r.invoices.Metrics(session.Phone)

	return &Response{
		Status: "summary",
		Text: fmt.Sprintf("You have %d invoices: %d due (₹%s) and %d paid (₹%s).",
			len(invoices), dueCount, rupees(dueTotal), paidCount, rupees(paidTotal)),
		Data: map[string]interface{}{
			"total":            len(invoices),
			"due_count":        dueCount,
			"due_amount":       dueTotal,
			"paid_count":       paidCount,
			"paid_amount":      paidTotal,
			"invoices_created": metrics.InvoicesCreated,
			"scans":            metrics.Scans,
			"pdfs_generated":   metrics.PDFsGenerated,
		},
	}, nil
}

// handleReminder schedules a manual payment reminder
func (r *Router) handleReminder(entities Entities, session Session) (*Response, error) {
	if r.reminders == nil {
		return &Response{Status: "error", Reason: "reminders_unavailable"}, nil
	}

	dueAt := time.Now().Add(7 * 24 * time.Hour)
	if raw := entities.String("date", "due_date"); raw != "" {
		if parsed, err := time.Parse("2006-01-02", raw); err == nil {
			dueAt = parsed
		}
	}

	title := entities.String("title", "note")
	if title == "" {
		title = "Payment reminder"
	}
	description := entities.String("description", "customer")

	if err := r.reminders.ScheduleDueReminder(session.Phone, "", title, description, dueAt); err != nil {
		return nil, fmt.Errorf("scheduling reminder: %w", err)
	}

	return &Response{
		Status: "scheduled",
		Text:   fmt.Sprintf("Reminder set for %s.", dueAt.Format("2 Jan 2006")),
		Data:   map[string]interface{}{"due_at": dueAt.Format(time.RFC3339)},
	}, nil
}

// handleReport aggregates the caller's invoices for the current month
func (r *Router) handleReport(session Session) (*Response, error) {
	invoices, err := r.invoices.ListInvoicesByPhone(session.Phone)
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}

	now := time.Now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	summary := report.Aggregate(invoices, from, now)

	return &Response{
		Status: "report",
		Text: fmt.Sprintf("%s: %d invoices, total ₹%s (tax ₹%s).",
			now.Format("January 2006"), summary.InvoiceCount,
			rupees(summary.TotalAmount), rupees(summary.TaxAmount)),
		Data: map[string]interface{}{"summary": summary},
	}, nil
}

func paymentEntity(entities Entities) string {
	payment := strings.ToUpper(entities.String("payment", "payment_status"))
	switch payment {
	case string(invoice.StatusPaid), string(invoice.StatusDue):
		return payment
	}
	return ""
}

// composeInvoice merges the flow working set into a draft invoice
func composeInvoice(data *flow.SessionData) *invoice.Invoice {
	inv := &invoice.Invoice{PaymentStatus: invoice.StatusDraft, Currency: "INR"}
	if data.Draft != nil {
		copied := *data.Draft
		inv = &copied
	}
	if len(data.Items) > 0 {
		inv.LineItems = data.Items
	}
	if data.Customer != "" {
		inv.Customer = data.Customer
	}
	if inv.Currency == "" {
		inv.Currency = "INR"
	}
	inv.ComputeTotal()
	return inv
}

func toInvoiceItems(items []scanning.LineItem) []invoice.LineItem {
	out := make([]invoice.LineItem, 0, len(items))
	for _, li := range items {
		item := invoice.LineItem{
			Name:       li.Name,
			Quantity:   li.Quantity,
			Confidence: li.Confidence,
		}
		if li.UnitPrice != nil {
			price := int64(math.Round(*li.UnitPrice * 100))
			item.UnitPrice = &price
		}
		out = append(out, item)
	}
	return out
}

func flowResponse(res *flow.Result) *Response {
	return &Response{
		Status:     res.Status,
		Reason:     res.Reason,
		State:      string(res.State),
		NextAction: res.NextAction,
	}
}

func blockedResponse(res *flow.Result) *Response {
	return &Response{
		Status: "blocked",
		Reason: res.Reason,
		Text:   "Another billing flow is already active. Finish or cancel it first.",
	}
}

func rupees(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

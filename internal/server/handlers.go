package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/mina-assistant/billing/internal/intent"
	"github.com/mina-assistant/billing/internal/invoice"
	"github.com/mina-assistant/billing/internal/payment"
	"github.com/mina-assistant/billing/internal/report"
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleIntent is the platform entry point: a classified intent plus
// entities and message context
func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Intent   string          `json:"intent"`
		Entities intent.Entities `json:"entities"`
		Context  intent.Session  `json:"context"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := s.router.Handle(r.Context(), req.Intent, req.Entities, req.Context)
	if err != nil {
		slog.Error("Error handling intent", "intent", req.Intent, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if resp == nil {
		// Not a billing intent, nothing for this domain to do
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ignored",
			"reason": "not_billing_intent",
		})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleScanInvoice accepts an uploaded bill and returns a draft invoice
func (s *Server) handleScanInvoice(w http.ResponseWriter, r *http.Request) {
	// Parse multipart form (50MB cap handles high-resolution phone photos)
	maxFormSize := int64(50 << 20)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		if err.Error() == "http: request body too large" {
			errorMsg = "File is too large. Maximum size is 50MB."
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errorMsg})
		return
	}

	phone := r.FormValue("phone")

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file provided"})
		return
	}
	defer f.Close()

	if header.Size > maxFormSize {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "File is too large. Maximum size is 50MB.",
		})
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "Error reading file. Please try again.",
		})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = detectContentType(data, header.Filename)
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	draft, err := s.invoices.ScanDocument(phone, header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error scanning document", "filename", header.Filename, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"draft":    draft,
		"warnings": draft.Warnings(),
	})
}

// detectContentType sniffs the payload and falls back to the extension
func detectContentType(data []byte, filename string) string {
	if detected := mimetype.Detect(data); detected.String() != "application/octet-stream" {
		return detected.String()
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return "application/octet-stream"
}

// handleCreateInvoice finalizes an invoice from a JSON body
func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var inv invoice.Invoice
	if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	status := inv.PaymentStatus
	if status == "" || status == invoice.StatusDraft {
		status = invoice.StatusDue
	}

	result, err := s.invoices.CreateInvoice(r.Context(), &inv, status)
	if err != nil {
		slog.Error("Error creating invoice", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// handleListInvoices returns invoices, optionally filtered by phone
func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	var (
		invoices []*invoice.Invoice
		err      error
	)

	if phone := r.URL.Query().Get("phone"); phone != "" {
		invoices, err = s.invoices.ListInvoicesByPhone(phone)
	} else {
		invoices, err = s.invoices.ListInvoices()
	}
	if err != nil {
		slog.Error("Error listing invoices", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Always return an array, not nil
	if invoices == nil {
		invoices = []*invoice.Invoice{}
	}

	writeJSON(w, http.StatusOK, invoices)
}

// handleGetInvoice returns a single invoice
func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Invoice ID required", http.StatusBadRequest)
		return
	}

	inv, err := s.invoices.GetInvoice(id)
	if err != nil {
		http.Error(w, "Invoice not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, inv)
}

// handleDeleteInvoice deletes an invoice and its stored files
func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Invoice ID required", http.StatusBadRequest)
		return
	}

	if err := s.invoices.DeleteInvoice(id); err != nil {
		http.Error(w, "Error deleting invoice", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleGetInvoiceFile returns the original uploaded document
func (s *Server) handleGetInvoiceFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Invoice ID required", http.StatusBadRequest)
		return
	}

	data, contentType, err := s.invoices.GetInvoiceDocument(id)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleGetInvoicePDF returns the generated invoice PDF, rendering it
// on demand when it has not been stored yet
func (s *Server) handleGetInvoicePDF(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Invoice ID required", http.StatusBadRequest)
		return
	}

	data, err := s.invoices.GetInvoicePDF(id)
	if err != nil {
		http.Error(w, "PDF not available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Write(data)
}

// handleCreatePaymentLink creates a payment link for an amount
func (s *Server) handleCreatePaymentLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone       string `json:"phone"`
		Amount      int64  `json:"amount"`
		Currency    string `json:"currency"`
		Description string `json:"description"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Phone == "" || req.Amount <= 0 {
		http.Error(w, "phone and a positive amount are required", http.StatusBadRequest)
		return
	}

	link, err := s.payments.CreateLink(r.Context(), req.Phone, req.Amount, req.Currency, req.Description)
	if err != nil {
		slog.Error("Error creating payment link", "error", err)
		http.Error(w, "Failed to create payment link", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusCreated, link)
}

// handlePaymentWebhook ingests provider payment events. Authentication
// is the HMAC signature header; processing is idempotent.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Error reading body", http.StatusBadRequest)
		return
	}

	// Never accept unverifiable webhook traffic
	if s.webhookSecret == "" {
		slog.Warn("Webhook rejected, no signing secret configured")
		http.Error(w, "Webhook secret not configured", http.StatusServiceUnavailable)
		return
	}
	signature := r.Header.Get("X-Razorpay-Signature")
	if !payment.VerifySignature(body, signature, s.webhookSecret) {
		slog.Warn("Webhook signature verification failed")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event payment.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "Invalid webhook payload", http.StatusBadRequest)
		return
	}

	result, err := s.payments.HandleWebhook(&event)
	if err != nil {
		slog.Error("Error handling webhook", "event", event.Event, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetSubscription reports whether a subscription is active
func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone")
	if phone == "" {
		http.Error(w, "phone is required", http.StatusBadRequest)
		return
	}

	active, err := s.payments.SubscriptionActive(phone)
	if err != nil {
		slog.Error("Error reading subscription", "phone", phone, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"phone":  phone,
		"active": active,
	})
}

// handleCreateSubscription creates a subscription payment link
func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
		Plan  string `json:"plan"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Phone == "" {
		http.Error(w, "phone is required", http.StatusBadRequest)
		return
	}

	link, err := s.payments.CreateSubscriptionLink(r.Context(), req.Phone, req.Plan)
	if err != nil {
		slog.Error("Error creating subscription link", "error", err)
		http.Error(w, "Failed to create subscription link", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusCreated, link)
}

// handleTaxSummary aggregates invoices over a date range. format=xlsx
// downloads the summary as a workbook.
func (s *Server) handleTaxSummary(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	now := time.Now().UTC()
	from := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	to := now

	if raw := query.Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, "Invalid from date, want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		from = parsed
	}
	if raw := query.Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, "Invalid to date, want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		// Include the whole end day
		to = parsed.Add(24*time.Hour - time.Nanosecond)
	}

	var (
		invoices []*invoice.Invoice
		err      error
	)
	if phone := query.Get("phone"); phone != "" {
		invoices, err = s.invoices.ListInvoicesByPhone(phone)
	} else {
		invoices, err = s.invoices.ListInvoices()
	}
	if err != nil {
		slog.Error("Error listing invoices", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	summary := report.Aggregate(invoices, from, to)

	if query.Get("format") == "xlsx" {
		workbook, err := report.Export(summary, invoices)
		if err != nil {
			slog.Error("Error exporting workbook", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="tax-summary.xlsx"`)
		w.Write(workbook)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// handleMetrics returns usage counters for a phone
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	phone := r.PathValue("phone")
	if phone == "" {
		http.Error(w, "Phone required", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, s.invoices.Metrics(phone))
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

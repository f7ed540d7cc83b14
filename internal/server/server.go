// Package server exposes the billing assistant over HTTP: the intent
// entry point, invoice CRUD, payment links and webhooks, subscriptions,
// and tax reports.
package server

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/mina-assistant/billing/internal/intent"
	"github.com/mina-assistant/billing/internal/invoice"
	"github.com/mina-assistant/billing/internal/payment"
)

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// Server handles HTTP requests for the billing assistant
type Server struct {
	invoices      *invoice.Service
	payments      *payment.Service
	router        *intent.Router
	basicAuth     BasicAuth
	webhookSecret string
	mux           *http.ServeMux
}

// NewServer creates a new Server with default mux
func NewServer(invoices *invoice.Service, payments *payment.Service, router *intent.Router, basicAuth BasicAuth, webhookSecret string) *Server {
	return NewServerWithMux(invoices, payments, router, basicAuth, webhookSecret, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(invoices *invoice.Service, payments *payment.Service, router *intent.Router, basicAuth BasicAuth, webhookSecret string, mux *http.ServeMux) *Server {
	s := &Server{
		invoices:      invoices,
		payments:      payments,
		router:        router,
		basicAuth:     basicAuth,
		webhookSecret: webhookSecret,
		mux:           mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// withCORS wraps the whole mux so every response, success or error,
// carries the CORS headers, and answers preflight requests
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Billing Assistant"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux
// Routes must be registered from most specific to least specific to avoid conflicts
func (s *Server) registerRoutes() {
	// Intent entry point
	s.mux.HandleFunc("POST /api/intent", s.requireAuth(s.handleIntent))

	// Invoices (most specific paths first)
	s.mux.HandleFunc("GET /api/invoices/{id}/file", s.requireAuth(s.handleGetInvoiceFile))
	s.mux.HandleFunc("GET /api/invoices/{id}/pdf", s.requireAuth(s.handleGetInvoicePDF))
	s.mux.HandleFunc("GET /api/invoices/{id}", s.requireAuth(s.handleGetInvoice))
	s.mux.HandleFunc("DELETE /api/invoices/{id}", s.requireAuth(s.handleDeleteInvoice))
	s.mux.HandleFunc("POST /api/invoices/scan", s.requireAuth(s.handleScanInvoice))
	s.mux.HandleFunc("GET /api/invoices", s.requireAuth(s.handleListInvoices))
	s.mux.HandleFunc("POST /api/invoices", s.requireAuth(s.handleCreateInvoice))

	// Payments. The webhook authenticates by signature, not basic auth.
	s.mux.HandleFunc("POST /api/payments/link", s.requireAuth(s.handleCreatePaymentLink))
	s.mux.HandleFunc("POST /api/webhooks/payment", s.handlePaymentWebhook)

	// Subscriptions
	s.mux.HandleFunc("GET /api/subscriptions", s.requireAuth(s.handleGetSubscription))
	s.mux.HandleFunc("POST /api/subscriptions", s.requireAuth(s.handleCreateSubscription))

	// Reports and metrics
	s.mux.HandleFunc("GET /api/reports/tax-summary", s.requireAuth(s.handleTaxSummary))
	s.mux.HandleFunc("GET /api/metrics/{phone}", s.requireAuth(s.handleMetrics))

	// Health check, unauthenticated for probes
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.withCORS(s.mux).ServeHTTP(w, r)
}

// Start begins serving HTTP on addr
func (s *Server) Start(addr string) error {
	return http.ListenAndServe(addr, s.withCORS(s.mux))
}

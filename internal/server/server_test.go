package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/mina-assistant/billing/internal/flow"
	"github.com/mina-assistant/billing/internal/intent"
	"github.com/mina-assistant/billing/internal/invoice"
	"github.com/mina-assistant/billing/internal/payment"
	"github.com/mina-assistant/billing/internal/scanning"
)

func TestServer(t *testing.T) {
	// Disable logging during tests
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	RegisterFailHandler(Fail)
	RunSpecs(t, "Server Suite")
}

// mockDB is an in-memory invoice database
type mockDB struct {
	invoices map[string]*invoice.Invoice
}

func newMockDB() *mockDB {
	return &mockDB{invoices: make(map[string]*invoice.Invoice)}
}

func (m *mockDB) SaveInvoice(inv *invoice.Invoice) error {
	m.invoices[inv.ID] = inv
	return nil
}

func (m *mockDB) GetInvoice(id string) (*invoice.Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, errors.New("invoice not found")
	}
	return inv, nil
}

func (m *mockDB) ListInvoices() ([]*invoice.Invoice, error) {
	invoices := make([]*invoice.Invoice, 0, len(m.invoices))
	for _, inv := range m.invoices {
		invoices = append(invoices, inv)
	}
	return invoices, nil
}

func (m *mockDB) ListInvoicesByPhone(phone string) ([]*invoice.Invoice, error) {
	var invoices []*invoice.Invoice
	for _, inv := range m.invoices {
		if inv.Phone == phone {
			invoices = append(invoices, inv)
		}
	}
	return invoices, nil
}

func (m *mockDB) DeleteInvoice(id string) error {
	delete(m.invoices, id)
	return nil
}

func (m *mockDB) IncrementMetric(string, string) error { return nil }

func (m *mockDB) GetMetrics(string) (*invoice.Metrics, error) {
	return &invoice.Metrics{Scans: 2, InvoicesCreated: 1}, nil
}

func (m *mockDB) Close() error { return nil }

// mockStorage is an in-memory document store
type mockStorage struct {
	files map[string][]byte
}

func newMockStorage() *mockStorage {
	return &mockStorage{files: make(map[string][]byte)}
}

func (m *mockStorage) Save(filename string, data []byte) (string, error) {
	m.files[filename] = data
	return filename, nil
}

func (m *mockStorage) Get(path string) ([]byte, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}

func (m *mockStorage) Delete(path string) error {
	delete(m.files, path)
	return nil
}

// mockScanner returns a fixed scan result
type mockScanner struct {
	scanErr error
}

func (m *mockScanner) ScanInvoice([]byte, string) (*scanning.InvoiceData, error) {
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	return &scanning.InvoiceData{
		Vendor:      "Sharma Traders",
		Currency:    "INR",
		TotalAmount: 295.0,
	}, nil
}

func (m *mockScanner) Close() error { return nil }

// mockLinks is a fake payment link provider
type mockLinks struct {
	createErr error
}

func (m *mockLinks) CreatePaymentLink(_ context.Context, req payment.LinkRequest) (*payment.PaymentLink, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &payment.PaymentLink{
		ID:          "plink_123",
		ShortURL:    "https://rzp.io/l/abc123",
		Status:      "created",
		ReferenceID: req.ReferenceID,
		Amount:      req.Amount,
		Currency:    "INR",
	}, nil
}

// memoryPayments is an in-memory payment store
type memoryPayments struct {
	payments      map[string]*payment.Payment
	subscriptions map[string]*payment.Subscription
}

func newMemoryPayments() *memoryPayments {
	return &memoryPayments{
		payments:      make(map[string]*payment.Payment),
		subscriptions: make(map[string]*payment.Subscription),
	}
}

func (m *memoryPayments) GetPayment(id string) (*payment.Payment, error) {
	return m.payments[id], nil
}

func (m *memoryPayments) SavePayment(p *payment.Payment) error {
	m.payments[p.ProviderPaymentID] = p
	return nil
}

func (m *memoryPayments) GetSubscription(phone string) (*payment.Subscription, error) {
	return m.subscriptions[phone], nil
}

func (m *memoryPayments) SaveSubscription(sub *payment.Subscription) error {
	m.subscriptions[sub.Phone] = sub
	return nil
}

// memoryFlowStore is an in-memory flow session store
type memoryFlowStore struct {
	sessions map[string]*flow.Session
}

func newMemoryFlowStore() *memoryFlowStore {
	return &memoryFlowStore{sessions: make(map[string]*flow.Session)}
}

func (m *memoryFlowStore) GetSession(phone string) (*flow.Session, error) {
	return m.sessions[phone], nil
}

func (m *memoryFlowStore) SetSession(phone string, session *flow.Session) error {
	m.sessions[phone] = session
	return nil
}

func (m *memoryFlowStore) ClearSession(phone string) error {
	delete(m.sessions, phone)
	return nil
}

var _ = Describe("Server", func() {
	var (
		db            *mockDB
		storage       *mockStorage
		scanner       *mockScanner
		payStore      *memoryPayments
		srv           *Server
		auth          BasicAuth
		webhookSecret string
		ghttpServer   *ghttp.Server
	)

	buildServer := func() {
		invoices := invoice.NewService(db, scanner, storage)
		payments := payment.NewService(payStore, &mockLinks{})
		router := intent.NewRouter(invoices, flow.New(newMemoryFlowStore()), nil)
		srv = NewServerWithMux(invoices, payments, router, auth, webhookSecret, http.NewServeMux())
	}

	// do issues one request against the server under test
	do := func(req *http.Request) *http.Response {
		ghttpServer.AppendHandlers(srv.ServeHTTP)
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	get := func(path string) *http.Response {
		req, err := http.NewRequest("GET", ghttpServer.URL()+path, nil)
		Expect(err).NotTo(HaveOccurred())
		return do(req)
	}

	postJSON := func(path string, payload interface{}) *http.Response {
		body, err := json.Marshal(payload)
		Expect(err).NotTo(HaveOccurred())
		req, err := http.NewRequest("POST", ghttpServer.URL()+path, bytes.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")
		return do(req)
	}

	decode := func(resp *http.Response) map[string]interface{} {
		defer resp.Body.Close()
		var out map[string]interface{}
		Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
		return out
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		scanner = &mockScanner{}
		payStore = newMemoryPayments()
		auth = BasicAuth{}
		webhookSecret = ""
		buildServer()
		ghttpServer = ghttp.NewServer()
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	Describe("health check", func() {
		It("should report ok", func() {
			resp := get("/healthz")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode(resp)["status"]).To(Equal("ok"))
		})
	})

	Describe("CORS", func() {
		It("should set headers on success responses", func() {
			resp := get("/api/invoices")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			resp.Body.Close()
		})

		It("should set headers on error responses", func() {
			resp := get("/api/invoices/missing")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			resp.Body.Close()
		})

		It("should answer preflight requests", func() {
			req, err := http.NewRequest("OPTIONS", ghttpServer.URL()+"/api/invoices", nil)
			Expect(err).NotTo(HaveOccurred())
			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("POST"))
			resp.Body.Close()
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
			buildServer()
		})

		It("should reject unauthenticated API requests", func() {
			resp := get("/api/invoices")
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			resp.Body.Close()
		})

		It("should accept valid credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/invoices", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "secret")
			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})

		It("should leave the health check open", func() {
			resp := get("/healthz")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})
	})

	Describe("POST /api/intent", func() {
		It("should ignore non-billing intents", func() {
			resp := postJSON("/api/intent", map[string]interface{}{
				"intent":  "weather.forecast",
				"context": map[string]string{"phone": "+919876500000"},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body := decode(resp)
			Expect(body["status"]).To(Equal("ignored"))
			Expect(body["reason"]).To(Equal("not_billing_intent"))
		})

		It("should route billing intents", func() {
			resp := postJSON("/api/intent", map[string]interface{}{
				"intent": "billing.create_invoice",
				"entities": map[string]interface{}{
					"vendor":   "Sharma Traders",
					"customer": "Ravi Kumar",
					"line_items": []map[string]interface{}{
						{"name": "Sugar", "quantity": 5, "unit_price": 50},
					},
				},
				"context": map[string]string{"phone": "+919876500000"},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body := decode(resp)
			Expect(body["status"]).To(Equal("advanced"))
			Expect(body["intent"]).To(Equal("billing.create_invoice"))
		})

		It("should reject an invalid body", func() {
			req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/intent", bytes.NewReader([]byte("not json")))
			Expect(err).NotTo(HaveOccurred())
			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})
	})

	Describe("POST /api/invoices/scan", func() {
		buildUpload := func(field, filename string) (*bytes.Buffer, string) {
			buf := &bytes.Buffer{}
			writer := multipart.NewWriter(buf)
			Expect(writer.WriteField("phone", "+919876500000")).To(Succeed())
			part, err := writer.CreateFormFile(field, filename)
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write([]byte("fake image bytes"))
			Expect(err).NotTo(HaveOccurred())
			Expect(writer.Close()).To(Succeed())
			return buf, writer.FormDataContentType()
		}

		It("should return a draft invoice", func() {
			buf, contentType := buildUpload("file", "bill.jpg")
			req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/invoices/scan", buf)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", contentType)

			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body := decode(resp)
			draft := body["draft"].(map[string]interface{})
			Expect(draft["vendor"]).To(Equal("Sharma Traders"))
			Expect(draft["payment_status"]).To(Equal("DRAFT"))
		})

		It("should reject a missing file", func() {
			buf, contentType := buildUpload("wrong_field", "bill.jpg")
			req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/invoices/scan", buf)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", contentType)

			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})

		It("should surface scan failures", func() {
			scanner.scanErr = errors.New("model unavailable")

			buf, contentType := buildUpload("file", "bill.jpg")
			req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/invoices/scan", buf)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", contentType)

			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})
	})

	Describe("invoice CRUD", func() {
		It("should create an invoice", func() {
			resp := postJSON("/api/invoices", map[string]interface{}{
				"vendor":         "Sharma Traders",
				"invoice_number": "INV-042",
				"currency":       "INR",
				"total_amount":   29500,
				"payment_status": "DUE",
				"phone":          "+919876500000",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			body := decode(resp)
			inv := body["invoice"].(map[string]interface{})
			Expect(inv["payment_status"]).To(Equal("DUE"))
			Expect(db.invoices).To(HaveLen(1))
		})

		It("should list invoices", func() {
			db.invoices["inv-1"] = &invoice.Invoice{ID: "inv-1", Vendor: "Sharma Traders"}

			resp := get("/api/invoices")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			defer resp.Body.Close()
			var invoices []map[string]interface{}
			Expect(json.NewDecoder(resp.Body).Decode(&invoices)).To(Succeed())
			Expect(invoices).To(HaveLen(1))
		})

		It("should return an empty array when there are no invoices", func() {
			resp := get("/api/invoices")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(bytes.TrimSpace(body))).To(Equal("[]"))
		})

		It("should filter by phone", func() {
			db.invoices["inv-1"] = &invoice.Invoice{ID: "inv-1", Phone: "+919876500000"}
			db.invoices["inv-2"] = &invoice.Invoice{ID: "inv-2", Phone: "+910000000000"}

			resp := get("/api/invoices?phone=%2B919876500000")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			defer resp.Body.Close()
			var invoices []map[string]interface{}
			Expect(json.NewDecoder(resp.Body).Decode(&invoices)).To(Succeed())
			Expect(invoices).To(HaveLen(1))
			Expect(invoices[0]["id"]).To(Equal("inv-1"))
		})

		It("should get an invoice by ID", func() {
			db.invoices["inv-1"] = &invoice.Invoice{ID: "inv-1", Vendor: "Sharma Traders"}

			resp := get("/api/invoices/inv-1")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode(resp)["vendor"]).To(Equal("Sharma Traders"))
		})

		It("should 404 for a missing invoice", func() {
			resp := get("/api/invoices/missing")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})

		It("should delete an invoice", func() {
			db.invoices["inv-1"] = &invoice.Invoice{ID: "inv-1"}

			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/invoices/inv-1", nil)
			Expect(err).NotTo(HaveOccurred())
			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.invoices).To(BeEmpty())
		})

		It("should serve the original document", func() {
			db.invoices["inv-1"] = &invoice.Invoice{ID: "inv-1", Filename: "doc.jpg", ContentType: "image/jpeg"}
			storage.files["doc.jpg"] = []byte("jpeg bytes")

			resp := get("/api/invoices/inv-1/file")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/jpeg"))
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(body).To(Equal([]byte("jpeg bytes")))
		})

		It("should 404 when no PDF is available", func() {
			db.invoices["inv-1"] = &invoice.Invoice{ID: "inv-1"}

			resp := get("/api/invoices/inv-1/pdf")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})
	})

	Describe("POST /api/payments/link", func() {
		It("should create a payment link", func() {
			resp := postJSON("/api/payments/link", map[string]interface{}{
				"phone":       "+919876500000",
				"amount":      29500,
				"description": "Invoice INV-042",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			body := decode(resp)
			Expect(body["short_url"]).To(Equal("https://rzp.io/l/abc123"))
		})

		It("should require a phone and positive amount", func() {
			resp := postJSON("/api/payments/link", map[string]interface{}{"amount": 0})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})
	})

	Describe("POST /api/webhooks/payment", func() {
		webhookBody := func() []byte {
			payload := map[string]interface{}{
				"event": "payment.captured",
				"payload": map[string]interface{}{
					"payment": map[string]interface{}{
						"entity": map[string]interface{}{
							"id":      "pay_123",
							"amount":  49900,
							"status":  "captured",
							"contact": "+919876500000",
						},
					},
				},
			}
			body, err := json.Marshal(payload)
			Expect(err).NotTo(HaveOccurred())
			return body
		}

		sign := func(body []byte, secret string) string {
			mac := hmac.New(sha256.New, []byte(secret))
			mac.Write(body)
			return hex.EncodeToString(mac.Sum(nil))
		}

		When("no webhook secret is configured", func() {
			It("should reject the event", func() {
				req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/webhooks/payment", bytes.NewReader(webhookBody()))
				Expect(err).NotTo(HaveOccurred())
				resp := do(req)
				Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
				Expect(payStore.subscriptions).To(BeEmpty())
				resp.Body.Close()
			})
		})

		When("a webhook secret is configured", func() {
			BeforeEach(func() {
				webhookSecret = "whsec_test"
				buildServer()
			})

			It("should reject a missing signature", func() {
				req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/webhooks/payment", bytes.NewReader(webhookBody()))
				Expect(err).NotTo(HaveOccurred())
				resp := do(req)
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				resp.Body.Close()
			})

			It("should reject a bad signature", func() {
				req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/webhooks/payment", bytes.NewReader(webhookBody()))
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("X-Razorpay-Signature", "deadbeef")
				resp := do(req)
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				resp.Body.Close()
			})

			It("should accept a valid signature", func() {
				body := webhookBody()
				req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/webhooks/payment", bytes.NewReader(body))
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("X-Razorpay-Signature", sign(body, "whsec_test"))
				resp := do(req)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})

			It("should not require basic auth", func() {
				auth = BasicAuth{Username: "admin", Password: "secret"}
				webhookSecret = "whsec_test"
				buildServer()

				body := webhookBody()
				req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/webhooks/payment", bytes.NewReader(body))
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("X-Razorpay-Signature", sign(body, "whsec_test"))
				resp := do(req)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})
		})
	})

	Describe("subscriptions", func() {
		It("should create a subscription link", func() {
			resp := postJSON("/api/subscriptions", map[string]interface{}{
				"phone": "+919876500000",
				"plan":  "basic",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			body := decode(resp)
			Expect(body["id"]).To(Equal("plink_123"))
			// The basic plan amount was requested
			Expect(body["amount"]).To(Equal(float64(29900)))
		})

		It("should report subscription status", func() {
			resp := get("/api/subscriptions?phone=%2B919876500000")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode(resp)["active"]).To(Equal(false))
		})

		It("should require a phone", func() {
			resp := get("/api/subscriptions")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})
	})

	Describe("GET /api/reports/tax-summary", func() {
		BeforeEach(func() {
			db.invoices["inv-1"] = &invoice.Invoice{
				ID: "inv-1", Vendor: "Sharma Traders",
				InvoiceDate:   "2024-01-15",
				PaymentStatus: invoice.StatusDue,
				Subtotal:      25000, TaxAmount: 4500, TotalAmount: 29500,
			}
		})

		It("should return a JSON summary", func() {
			resp := get("/api/reports/tax-summary?from=2024-01-01&to=2024-12-31")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body := decode(resp)
			Expect(body["invoice_count"]).To(Equal(float64(1)))
			Expect(body["total_amount"]).To(Equal(float64(29500)))
		})

		It("should download an xlsx workbook", func() {
			resp := get("/api/reports/tax-summary?from=2024-01-01&to=2024-12-31&format=xlsx")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(ContainSubstring("spreadsheetml"))
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(body[:2]).To(Equal([]byte("PK")))
		})

		It("should reject a malformed date", func() {
			resp := get("/api/reports/tax-summary?from=yesterday")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})
	})

	Describe("GET /api/metrics/{phone}", func() {
		It("should return usage counters", func() {
			resp := get("/api/metrics/+919876500000")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body := decode(resp)
			Expect(body["scans"]).To(Equal(float64(2)))
			Expect(body["invoices_created"]).To(Equal(float64(1)))
		})
	})
})

package payment

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Client", func() {
	var (
		apiServer *ghttp.Server
		client    *Client
	)

	BeforeEach(func() {
		apiServer = ghttp.NewServer()

		var err error
		client, err = NewClientWithBaseURL("rzp_test_key", "rzp_test_secret", apiServer.URL())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		apiServer.Close()
	})

	Describe("CreatePaymentLink", func() {
		When("the provider accepts the request", func() {
			BeforeEach(func() {
				apiServer.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest("POST", "/v1/payment_links"),
					ghttp.VerifyBasicAuth("rzp_test_key", "rzp_test_secret"),
					ghttp.VerifyContentType("application/json"),
					ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{
						"id":        "plink_123",
						"short_url": "https://rzp.io/l/abc123",
						"status":    "created",
					}),
				))
			})

			It("should return the payment link", func() {
				link, err := client.CreatePaymentLink(context.Background(), LinkRequest{
					Phone:       "whatsapp:+919876500000",
					Amount:      49900,
					Description: "Premium Subscription - ₹499/month",
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(link.ID).To(Equal("plink_123"))
				Expect(link.ShortURL).To(Equal("https://rzp.io/l/abc123"))
			})

			It("should carry the amount and default currency", func() {
				link, err := client.CreatePaymentLink(context.Background(), LinkRequest{
					Phone:  "+919876500000",
					Amount: 49900,
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(link.Amount).To(Equal(int64(49900)))
				Expect(link.Currency).To(Equal("INR"))
			})

			It("should assign a reference ID when none is given", func() {
				link, err := client.CreatePaymentLink(context.Background(), LinkRequest{
					Phone:  "+919876500000",
					Amount: 49900,
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(link.ReferenceID).To(HavePrefix("ref-919876500000-"))
			})
		})

		When("the provider rejects the request", func() {
			BeforeEach(func() {
				apiServer.AppendHandlers(ghttp.RespondWith(http.StatusUnauthorized, `{"error":{"description":"bad key"}}`))
			})

			It("should return an error", func() {
				_, err := client.CreatePaymentLink(context.Background(), LinkRequest{
					Phone:  "+919876500000",
					Amount: 49900,
				})
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("status 401"))
			})
		})

		When("the provider responds without an ID", func() {
			BeforeEach(func() {
				apiServer.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{}))
			})

			It("should return an error", func() {
				_, err := client.CreatePaymentLink(context.Background(), LinkRequest{
					Phone:  "+919876500000",
					Amount: 49900,
				})
				Expect(err).To(HaveOccurred())
			})
		})

		When("the amount is not positive", func() {
			It("should reject the request without calling the provider", func() {
				_, err := client.CreatePaymentLink(context.Background(), LinkRequest{
					Phone:  "+919876500000",
					Amount: 0,
				})
				Expect(err).To(HaveOccurred())
				Expect(apiServer.ReceivedRequests()).To(BeEmpty())
			})
		})
	})
})

var _ = Describe("CleanPhone", func() {
	It("should strip the whatsapp prefix", func() {
		Expect(CleanPhone("whatsapp:+919876500000")).To(Equal("919876500000"))
	})

	It("should strip the plus", func() {
		Expect(CleanPhone("+919876500000")).To(Equal("919876500000"))
	})

	It("should keep a bare number", func() {
		Expect(CleanPhone("919876500000")).To(Equal("919876500000"))
	})
})

package invoice

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BuildDraft", func() {
	var (
		intentName string
		entities   map[string]interface{}
		draft      *Draft
	)

	BeforeEach(func() {
		intentName = "billing.create_invoice"
		entities = map[string]interface{}{}
	})

	JustBeforeEach(func() {
		draft = BuildDraft(intentName, entities)
	})

	When("the intent is not a draft intent", func() {
		BeforeEach(func() {
			intentName = "billing.summary"
		})

		It("should ignore the request", func() {
			Expect(draft.Status).To(Equal("ignored"))
			Expect(draft.Reason).To(Equal("unsupported_intent"))
		})

		It("should not build an invoice", func() {
			Expect(draft.Invoice).To(BeNil())
		})
	})

	When("all entities are present", func() {
		BeforeEach(func() {
			entities = map[string]interface{}{
				"vendor":         "Sharma Traders",
				"customer":       "Ravi Kumar",
				"invoice_number": "INV-042",
				"date":           "2024-01-15",
				"line_items": []interface{}{
					map[string]interface{}{"name": "Sugar", "quantity": 5.0, "unit_price": 50.0},
				},
			}
		})

		It("should build a draft", func() {
			Expect(draft.Status).To(Equal("draft"))
		})

		It("should fill the invoice fields", func() {
			Expect(draft.Invoice.Vendor).To(Equal("Sharma Traders"))
			Expect(draft.Invoice.Customer).To(Equal("Ravi Kumar"))
			Expect(draft.Invoice.InvoiceNumber).To(Equal("INV-042"))
			Expect(draft.Invoice.InvoiceDate).To(Equal("2024-01-15"))
		})

		It("should convert unit prices to minor units", func() {
			Expect(draft.Invoice.LineItems).To(HaveLen(1))
			Expect(*draft.Invoice.LineItems[0].UnitPrice).To(Equal(int64(5000)))
		})

		It("should report no missing fields", func() {
			Expect(draft.MissingFields).To(BeEmpty())
		})

		It("should record the source intent", func() {
			Expect(draft.Invoice.Metadata["source_intent"]).To(Equal("billing.create_invoice"))
		})

		It("should keep the draft unfinalized", func() {
			Expect(draft.Invoice.PaymentStatus).To(Equal(StatusDraft))
		})
	})

	When("entities use alias keys", func() {
		BeforeEach(func() {
			entities = map[string]interface{}{
				"seller": "Gupta Stores",
				"buyer":  "Anita",
			}
		})

		It("should accept seller for vendor", func() {
			Expect(draft.Invoice.Vendor).To(Equal("Gupta Stores"))
		})

		It("should accept buyer for customer", func() {
			Expect(draft.Invoice.Customer).To(Equal("Anita"))
		})
	})

	When("no entities are present", func() {
		It("should still build a draft", func() {
			Expect(draft.Status).To(Equal("draft"))
		})

		It("should report missing fields sorted", func() {
			Expect(draft.MissingFields).To(Equal([]string{"customer", "line_items", "vendor"}))
		})

		It("should have zero confidence", func() {
			Expect(draft.Confidence).To(BeZero())
		})
	})

	When("a line item is missing its price", func() {
		BeforeEach(func() {
			entities = map[string]interface{}{
				"vendor":   "Sharma Traders",
				"customer": "Ravi Kumar",
				"line_items": []interface{}{
					map[string]interface{}{"name": "Sugar", "quantity": 5.0},
				},
			}
		})

		It("should keep the item", func() {
			Expect(draft.Invoice.LineItems).To(HaveLen(1))
			Expect(draft.Invoice.LineItems[0].UnitPrice).To(BeNil())
		})

		It("should flag the incomplete item", func() {
			Expect(draft.MissingFields).To(ContainElement("price_or_quantity"))
		})
	})

	When("a line item has no name", func() {
		BeforeEach(func() {
			entities = map[string]interface{}{
				"line_items": []interface{}{
					map[string]interface{}{"quantity": 5.0, "unit_price": 50.0},
					map[string]interface{}{"name": "Sugar", "quantity": 5.0, "unit_price": 50.0},
				},
			}
		})

		It("should drop the nameless item", func() {
			Expect(draft.Invoice.LineItems).To(HaveLen(1))
			Expect(draft.Invoice.LineItems[0].Name).To(Equal("Sugar"))
		})
	})

	When("only some signals are present", func() {
		BeforeEach(func() {
			entities = map[string]interface{}{
				"vendor":   "Sharma Traders",
				"customer": "Ravi Kumar",
				"line_items": []interface{}{
					map[string]interface{}{"name": "Sugar", "quantity": 5.0, "unit_price": 50.0},
				},
			}
		})

		It("should score confidence by signal count", func() {
			Expect(draft.Confidence).To(BeNumerically("~", 0.5, 0.001))
		})
	})
})

var _ = Describe("BuildConfirmation", func() {
	var (
		inv          *Invoice
		confirmation *Confirmation
	)

	BeforeEach(func() {
		qty := 5.0
		price := int64(5000)
		inv = &Invoice{
			Vendor:   "Sharma Traders",
			Currency: "INR",
			LineItems: []LineItem{
				{Name: "Sugar", Quantity: &qty, UnitPrice: &price},
			},
			TaxAmount: 4500,
		}
	})

	JustBeforeEach(func() {
		confirmation = BuildConfirmation(inv)
	})

	It("should be an invoice confirmation message", func() {
		Expect(confirmation.Type).To(Equal("invoice_confirmation"))
		Expect(confirmation.Header).To(ContainSubstring("Invoice Preview"))
	})

	It("should compute the subtotal from line items", func() {
		Expect(confirmation.Subtotal).To(Equal(int64(25000)))
	})

	It("should include tax in the total", func() {
		Expect(confirmation.Total).To(Equal(int64(29500)))
	})

	It("should list the item with quantity and price", func() {
		Expect(confirmation.Body).To(ContainSubstring("Sugar"))
		Expect(confirmation.Body).To(ContainSubstring("5 × INR 50.00"))
	})

	It("should offer confirm and edit options", func() {
		Expect(confirmation.Options).To(HaveLen(2))
		Expect(confirmation.Options[0].ID).To(Equal("confirm"))
		Expect(confirmation.Options[1].ID).To(Equal("edit"))
	})

	When("there are no items yet", func() {
		BeforeEach(func() {
			inv.LineItems = nil
			inv.TaxAmount = 0
		})

		It("should render a placeholder body", func() {
			Expect(confirmation.Body).To(ContainSubstring("No items added yet"))
		})

		It("should have a zero total", func() {
			Expect(confirmation.Total).To(BeZero())
		})
	})

	When("the currency is missing", func() {
		BeforeEach(func() {
			inv.Currency = ""
		})

		It("should default to INR", func() {
			Expect(confirmation.Currency).To(Equal("INR"))
		})
	})
})

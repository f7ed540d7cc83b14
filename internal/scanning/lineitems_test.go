package scanning

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ExtractLineItems", func() {
	var (
		ocrText string
		items   []LineItem
	)

	JustBeforeEach(func() {
		items = ExtractLineItems(ocrText)
	})

	When("the text is empty", func() {
		BeforeEach(func() {
			ocrText = ""
		})

		It("should return no items", func() {
			Expect(items).To(BeEmpty())
		})
	})

	When("a line has quantity, unit, and price", func() {
		BeforeEach(func() {
			ocrText = "Sugar 5 kg 250"
		})

		It("should extract one item", func() {
			Expect(items).To(HaveLen(1))
		})

		It("should extract the name", func() {
			Expect(items[0].Name).To(Equal("Sugar"))
		})

		It("should extract the quantity", func() {
			Expect(items[0].Quantity).NotTo(BeNil())
			Expect(*items[0].Quantity).To(Equal(5.0))
		})

		It("should take the last number as the price", func() {
			Expect(items[0].UnitPrice).NotTo(BeNil())
			Expect(*items[0].UnitPrice).To(Equal(250.0))
		})

		It("should score price, quantity, and unit signals", func() {
			Expect(items[0].Confidence).To(BeNumerically("~", 0.7, 0.001))
		})

		It("should keep the raw line", func() {
			Expect(items[0].RawLine).To(Equal("Sugar 5 kg 250"))
		})
	})

	When("a line has only a name and price", func() {
		BeforeEach(func() {
			ocrText = "Rice 120"
		})

		It("should extract the item without a quantity", func() {
			Expect(items).To(HaveLen(1))
			Expect(items[0].Name).To(Equal("Rice"))
			Expect(items[0].Quantity).To(BeNil())
			Expect(*items[0].UnitPrice).To(Equal(120.0))
		})

		It("should score only the price signal", func() {
			Expect(items[0].Confidence).To(BeNumerically("~", 0.4, 0.001))
		})
	})

	When("a line has no numbers", func() {
		BeforeEach(func() {
			ocrText = "Thank you for shopping"
		})

		It("should drop the low-confidence line", func() {
			Expect(items).To(BeEmpty())
		})
	})

	When("the text contains total lines", func() {
		BeforeEach(func() {
			ocrText = "Sugar 5 kg 250\nSubtotal 250\nGrand Total 250"
		})

		It("should skip total and subtotal lines", func() {
			Expect(items).To(HaveLen(1))
			Expect(items[0].Name).To(Equal("Sugar"))
		})
	})

	When("a line is too short", func() {
		BeforeEach(func() {
			ocrText = "ab\nSoap 2 pcs 80"
		})

		It("should ignore the short line", func() {
			Expect(items).To(HaveLen(1))
			Expect(items[0].Name).To(Equal("Soap"))
		})
	})

	When("a multi-line bill is parsed", func() {
		BeforeEach(func() {
			ocrText = "Sugar 5 kg 250\nRice 10 kg 800\nSoap 2 pcs 80\nTotal: 1130"
		})

		It("should extract all line items in order", func() {
			Expect(items).To(HaveLen(3))
			Expect(items[0].Name).To(Equal("Sugar"))
			Expect(items[1].Name).To(Equal("Rice"))
			Expect(items[2].Name).To(Equal("Soap"))
		})
	})
})

package invoice

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	bolt "go.etcd.io/bbolt"
)

var _ = Describe("BoltDB", func() {
	var (
		dir    string
		rawDB  *bolt.DB
		db     *BoltDB
		sample *Invoice
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "billing-db-test")
		Expect(err).NotTo(HaveOccurred())

		rawDB, err = bolt.Open(filepath.Join(dir, "test.db"), 0600, nil)
		Expect(err).NotTo(HaveOccurred())

		db, err = NewBoltDB(rawDB)
		Expect(err).NotTo(HaveOccurred())

		sample = &Invoice{
			ID:            "inv-1",
			Vendor:        "Sharma Traders",
			InvoiceNumber: "INV-042",
			Currency:      "INR",
			TotalAmount:   29500,
			PaymentStatus: StatusDue,
			Phone:         "+919876500000",
		}
	})

	AfterEach(func() {
		rawDB.Close()
		os.RemoveAll(dir)
	})

	Describe("SaveInvoice and GetInvoice", func() {
		It("should round-trip an invoice", func() {
			Expect(db.SaveInvoice(sample)).To(Succeed())

			got, err := db.GetInvoice("inv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Vendor).To(Equal("Sharma Traders"))
			Expect(got.TotalAmount).To(Equal(int64(29500)))
			Expect(got.PaymentStatus).To(Equal(StatusDue))
		})

		It("should return an error for a missing invoice", func() {
			_, err := db.GetInvoice("missing")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ListInvoicesByPhone", func() {
		BeforeEach(func() {
			Expect(db.SaveInvoice(sample)).To(Succeed())

			other := *sample
			other.ID = "inv-2"
			other.Phone = "+919876511111"
			Expect(db.SaveInvoice(&other)).To(Succeed())
		})

		It("should return only the owner's invoices", func() {
			invoices, err := db.ListInvoicesByPhone("+919876500000")
			Expect(err).NotTo(HaveOccurred())
			Expect(invoices).To(HaveLen(1))
			Expect(invoices[0].ID).To(Equal("inv-1"))
		})

		It("should list all invoices without a filter", func() {
			invoices, err := db.ListInvoices()
			Expect(err).NotTo(HaveOccurred())
			Expect(invoices).To(HaveLen(2))
		})
	})

	Describe("DeleteInvoice", func() {
		It("should remove a saved invoice", func() {
			Expect(db.SaveInvoice(sample)).To(Succeed())
			Expect(db.DeleteInvoice("inv-1")).To(Succeed())

			_, err := db.GetInvoice("inv-1")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("metrics", func() {
		It("should increment and read counters", func() {
			Expect(db.IncrementMetric("+919876500000", "scans")).To(Succeed())
			Expect(db.IncrementMetric("+919876500000", "scans")).To(Succeed())
			Expect(db.IncrementMetric("+919876500000", "invoices_created")).To(Succeed())

			metrics, err := db.GetMetrics("+919876500000")
			Expect(err).NotTo(HaveOccurred())
			Expect(metrics.Scans).To(Equal(2))
			Expect(metrics.InvoicesCreated).To(Equal(1))
		})

		It("should return zero counters for an unknown phone", func() {
			metrics, err := db.GetMetrics("+910000000000")
			Expect(err).NotTo(HaveOccurred())
			Expect(metrics.Scans).To(BeZero())
		})
	})
})

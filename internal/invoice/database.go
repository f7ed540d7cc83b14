package invoice

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

const (
	invoiceBucketName = "invoices"
	metricsBucketName = "billing_metrics"
)

// DB defines the interface for invoice persistence
type DB interface {
	// SaveInvoice saves an invoice to the database
	SaveInvoice(inv *Invoice) error

	// GetInvoice retrieves an invoice by ID
	GetInvoice(id string) (*Invoice, error)

	// ListInvoices returns all invoices
	ListInvoices() ([]*Invoice, error)

	// ListInvoicesByPhone returns all invoices owned by a phone number
	ListInvoicesByPhone(phone string) ([]*Invoice, error)

	// DeleteInvoice removes an invoice from the database
	DeleteInvoice(id string) error

	// IncrementMetric bumps a per-user usage counter
	IncrementMetric(phone string, metric string) error

	// GetMetrics reads per-user usage counters
	GetMetrics(phone string) (*Metrics, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB buckets on a shared
// bbolt database handle.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance on an open bbolt handle
func NewBoltDB(db *bbolt.DB) (*BoltDB, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(invoiceBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(metricsBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveInvoice saves an invoice to the database
func (b *BoltDB) SaveInvoice(inv *Invoice) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(invoiceBucketName))
		data, err := json.Marshal(inv)
		if err != nil {
			return fmt.Errorf("marshaling invoice: %w", err)
		}
		return bucket.Put([]byte(inv.ID), data)
	})
}

// GetInvoice retrieves an invoice by ID
func (b *BoltDB) GetInvoice(id string) (*Invoice, error) {
	var inv *Invoice
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(invoiceBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("invoice not found: %s", id)
		}
		return json.Unmarshal(data, &inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// ListInvoices returns all invoices
func (b *BoltDB) ListInvoices() ([]*Invoice, error) {
	invoices := make([]*Invoice, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(invoiceBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var inv Invoice
			if err := json.Unmarshal(v, &inv); err != nil {
				return fmt.Errorf("unmarshaling invoice: %w", err)
			}
			invoices = append(invoices, &inv)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

// ListInvoicesByPhone returns all invoices owned by a phone number
func (b *BoltDB) ListInvoicesByPhone(phone string) ([]*Invoice, error) {
	all, err := b.ListInvoices()
	if err != nil {
		return nil, err
	}
	invoices := make([]*Invoice, 0)
	for _, inv := range all {
		if inv.Phone == phone {
			invoices = append(invoices, inv)
		}
	}
	return invoices, nil
}

// DeleteInvoice removes an invoice from the database
func (b *BoltDB) DeleteInvoice(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(invoiceBucketName))
		return bucket.Delete([]byte(id))
	})
}

// IncrementMetric bumps a per-user usage counter
func (b *BoltDB) IncrementMetric(phone string, metric string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(metricsBucketName))

		var metrics Metrics
		if data := bucket.Get([]byte(phone)); data != nil {
			if err := json.Unmarshal(data, &metrics); err != nil {
				return fmt.Errorf("unmarshaling metrics: %w", err)
			}
		}

		switch metric {
		case "invoices_created":
			metrics.InvoicesCreated++
		case "scans":
			metrics.Scans++
		case "pdfs_generated":
			metrics.PDFsGenerated++
		default:
			// Unknown metrics are ignored
			return nil
		}

		data, err := json.Marshal(&metrics)
		if err != nil {
			return fmt.Errorf("marshaling metrics: %w", err)
		}
		return bucket.Put([]byte(phone), data)
	})
}

// GetMetrics reads per-user usage counters
func (b *BoltDB) GetMetrics(phone string) (*Metrics, error) {
	metrics := &Metrics{}
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(metricsBucketName))
		data := bucket.Get([]byte(phone))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, metrics)
	})
	if err != nil {
		return nil, err
	}
	return metrics, nil
}

// Close is a no-op; the shared bbolt handle is owned by the caller
func (b *BoltDB) Close() error {
	return nil
}

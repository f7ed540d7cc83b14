// Package payment creates provider payment links and processes their
// webhooks. Payment records are idempotent by provider payment ID.
package payment

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	paymentBucketName      = "payments"
	subscriptionBucketName = "subscriptions"
)

// Payment is a persisted payment record keyed by the provider's payment
// (or payment link) ID. Amounts are minor units (paise).
type Payment struct {
	ProviderPaymentID string    `json:"provider_payment_id"`
	Phone             string    `json:"phone,omitempty"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	Status            string    `json:"status"`
	ReferenceID       string    `json:"reference_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Subscription is a per-phone subscription record
type Subscription struct {
	Phone       string    `json:"phone"`
	Plan        string    `json:"plan"`
	ActiveUntil time.Time `json:"active_until"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store persists payments and subscriptions
type Store interface {
	// GetPayment returns a payment by provider payment ID, or nil
	GetPayment(providerPaymentID string) (*Payment, error)

	// SavePayment upserts a payment record
	SavePayment(p *Payment) error

	// GetSubscription returns the subscription for a phone, or nil
	GetSubscription(phone string) (*Subscription, error)

	// SaveSubscription upserts a subscription record
	SaveSubscription(sub *Subscription) error
}

// BoltStore implements Store on a shared bbolt database handle
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore creates a new BoltStore on an open bbolt handle
func NewBoltStore(db *bbolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(paymentBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(subscriptionBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// GetPayment returns a payment by provider payment ID, or nil
func (b *BoltStore) GetPayment(providerPaymentID string) (*Payment, error) {
	var p *Payment
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(paymentBucketName))
		data := bucket.Get([]byte(providerPaymentID))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SavePayment upserts a payment record
func (b *BoltStore) SavePayment(p *Payment) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(paymentBucketName))
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshaling payment: %w", err)
		}
		return bucket.Put([]byte(p.ProviderPaymentID), data)
	})
}

// GetSubscription returns the subscription for a phone, or nil
func (b *BoltStore) GetSubscription(phone string) (*Subscription, error) {
	var sub *Subscription
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(subscriptionBucketName))
		data := bucket.Get([]byte(phone))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &sub)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// SaveSubscription upserts a subscription record
func (b *BoltStore) SaveSubscription(sub *Subscription) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(subscriptionBucketName))
		data, err := json.Marshal(sub)
		if err != nil {
			return fmt.Errorf("marshaling subscription: %w", err)
		}
		return bucket.Put([]byte(sub.Phone), data)
	})
}

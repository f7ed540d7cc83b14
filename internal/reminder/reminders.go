// Package reminder queues payment reminders and delivers them on a
// schedule, along with daily billing briefs.
package reminder

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
	bolt "go.etcd.io/bbolt"
)

const reminderBucket = "reminders"

// maxAttempts bounds delivery retries for one reminder
const maxAttempts = 3

// Reminder is a queued payment reminder
type Reminder struct {
	ID          string    `json:"id"`
	Phone       string    `json:"phone"`
	InvoiceID   string    `json:"invoice_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	DueAt       time.Time `json:"due_at"`
	CreatedAt   time.Time `json:"created_at"`
	Attempts    int       `json:"attempts"`
	Delivered   bool      `json:"delivered"`
}

// Store persists queued reminders
type Store interface {
	Add(r *Reminder) error

	// Due returns undelivered reminders whose due time has passed and
	// that still have delivery attempts left
	Due(now time.Time) ([]*Reminder, error)

	// Update rewrites a reminder after a delivery attempt
	Update(r *Reminder) error
}

type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(db *bolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(reminderBucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Add(r *Reminder) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(reminderBucket))

		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal reminder: %w", err)
		}

		return bucket.Put([]byte(r.ID), data)
	})
}

func (s *BoltStore) Due(now time.Time) ([]*Reminder, error) {
	var due []*Reminder

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(reminderBucket))
		return bucket.ForEach(func(k, v []byte) error {
			var r Reminder
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("failed to unmarshal reminder: %w", err)
			}
			if !r.Delivered && r.Attempts < maxAttempts && !r.DueAt.After(now) {
				due = append(due, &r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return due, nil
}

func (s *BoltStore) Update(r *Reminder) error {
	return s.Add(r)
}

// Queue accepts reminders into a store. It satisfies the scheduling
// seam the invoice service depends on.
type Queue struct {
	store Store
}

func NewQueue(store Store) *Queue {
	return &Queue{store: store}
}

// ScheduleDueReminder queues a payment reminder for delivery at dueAt
func (q *Queue) ScheduleDueReminder(phone, invoiceID, title, description string, dueAt time.Time) error {
	r := &Reminder{
		ID:          ksuid.New().String(),
		Phone:       phone,
		InvoiceID:   invoiceID,
		Title:       title,
		Description: description,
		DueAt:       dueAt,
		CreatedAt:   time.Now(),
	}

	if err := q.store.Add(r); err != nil {
		return fmt.Errorf("queueing reminder: %w", err)
	}
	return nil
}

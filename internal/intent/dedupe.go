package intent

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

const dedupeBucket = "intent_dedupe"

// DedupeStore remembers the response produced for a message ID so that
// redelivered messages replay the prior response instead of re-running
// side effects
type DedupeStore interface {
	Get(messageID string) (*Response, error)
	Put(messageID string, resp *Response) error
}

type BoltDedupeStore struct {
	db *bolt.DB
}

func NewBoltDedupeStore(db *bolt.DB) (*BoltDedupeStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(dedupeBucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltDedupeStore{db: db}, nil
}

func (s *BoltDedupeStore) Get(messageID string) (*Response, error) {
	var resp *Response

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(dedupeBucket))
		data := bucket.Get([]byte(messageID))
		if data == nil {
			return nil
		}

		resp = &Response{}
		if err := json.Unmarshal(data, resp); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (s *BoltDedupeStore) Put(messageID string, resp *Response) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(dedupeBucket))

		data, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}

		return bucket.Put([]byte(messageID), data)
	})
}

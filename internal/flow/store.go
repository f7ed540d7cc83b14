package flow

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

const sessionBucketName = "flow_sessions"

// BoltStore implements Store on a shared bbolt database handle
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore creates a new BoltStore on an open bbolt handle
func NewBoltStore(db *bbolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sessionBucketName))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// GetSession returns the active session for a phone, or nil
func (b *BoltStore) GetSession(phone string) (*Session, error) {
	var session *Session
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucketName))
		data := bucket.Get([]byte(phone))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// SetSession saves the active session for a phone
func (b *BoltStore) SetSession(phone string, session *Session) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucketName))
		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("marshaling session: %w", err)
		}
		return bucket.Put([]byte(phone), data)
	})
}

// ClearSession removes the active session for a phone
func (b *BoltStore) ClearSession(phone string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucketName))
		return bucket.Delete([]byte(phone))
	})
}

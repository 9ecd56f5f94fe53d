// Package bbolt provides a BBolt-backed storage repository.
package bbolt

import (
	"encoding/json"
	"fmt"

	"github.com/jmcleod/mealdraw/storage"
	"go.etcd.io/bbolt"
)

// Store implements storage.Repository backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewRepository(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(recordType, recordID string) []byte {
	return []byte(fmt.Sprintf("%s:%s", recordType, recordID))
}

func (s *Store) Put(vaultID, recordType, recordID string, envelope *storage.Envelope) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(vaultID))
		if err != nil {
			return err
		}
		data, err := json.Marshal(envelope)
		if err != nil {
			return err
		}
		return b.Put(recordKey(recordType, recordID), data)
	})
}

func (s *Store) Get(vaultID, recordType, recordID string) (*storage.Envelope, error) {
	var envelope storage.Envelope
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(vaultID))
		if b == nil {
			return fmt.Errorf("%s: %w", vaultID, storage.ErrVaultNotFound)
		}
		data := b.Get(recordKey(recordType, recordID))
		if data == nil {
			return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
		}
		return json.Unmarshal(data, &envelope)
	})
	if err != nil {
		return nil, err
	}
	return &envelope, nil
}

func (s *Store) Delete(vaultID, recordType, recordID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(vaultID))
		if b == nil {
			return fmt.Errorf("%s: %w", vaultID, storage.ErrVaultNotFound)
		}
		key := recordKey(recordType, recordID)
		if b.Get(key) == nil {
			return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
		}
		return b.Delete(key)
	})
}

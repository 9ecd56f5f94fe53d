// Package storage provides the durable key-value layer that backs the
// client's persisted session snapshot.
package storage

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrVaultNotFound is returned when the namespace holding a record does not exist.
	ErrVaultNotFound = errors.New("vault not found")
)

// Repository stores sealed envelopes addressed by namespace, record type and ID.
type Repository interface {
	Put(vaultID string, recordType string, recordID string, envelope *Envelope) error
	Get(vaultID string, recordType string, recordID string) (*Envelope, error)
	Delete(vaultID string, recordType string, recordID string) error
}

// IsNotFound reports whether err means the record or its namespace is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrVaultNotFound)
}

// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"sync"

	"github.com/jmcleod/mealdraw/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Suitable for testing, demos, and single-process use cases.
type Repository struct {
	mu   sync.RWMutex
	data map[string]map[string]*storage.Envelope
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string]map[string]*storage.Envelope)}
}

func makeKey(recordType, recordID string) string {
	return recordType + ":" + recordID
}

func cloneEnvelope(env *storage.Envelope) *storage.Envelope {
	if env == nil {
		return nil
	}
	return &storage.Envelope{
		Ver:        env.Ver,
		Scheme:     env.Scheme,
		Nonce:      append([]byte(nil), env.Nonce...),
		Ciphertext: append([]byte(nil), env.Ciphertext...),
	}
}

func (r *Repository) Put(vaultID, recordType, recordID string, envelope *storage.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[vaultID]; !ok {
		r.data[vaultID] = make(map[string]*storage.Envelope)
	}
	r.data[vaultID][makeKey(recordType, recordID)] = cloneEnvelope(envelope)
	return nil
}

func (r *Repository) Get(vaultID, recordType, recordID string) (*storage.Envelope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vaultData, ok := r.data[vaultID]
	if !ok {
		return nil, storage.ErrVaultNotFound
	}
	env, ok := vaultData[makeKey(recordType, recordID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneEnvelope(env), nil
}

func (r *Repository) Delete(vaultID, recordType, recordID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := makeKey(recordType, recordID)
	vaultData, ok := r.data[vaultID]
	if !ok {
		return storage.ErrVaultNotFound
	}
	if _, ok := vaultData[k]; !ok {
		return storage.ErrNotFound
	}
	delete(vaultData, k)
	return nil
}

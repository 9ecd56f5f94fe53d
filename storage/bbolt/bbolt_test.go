package bbolt

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmcleod/mealdraw/storage"
	"go.etcd.io/bbolt"
)

func newTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	db, err := bbolt.Open(filepath.Join(t.TempDir(), "client.db"), 0600, nil)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBBoltStorage(t *testing.T) {
	s := NewRepository(newTestDB(t))
	vaultID := "__client"
	recordType := "SESSION"
	recordID := "user"
	env := &storage.Envelope{Ver: 1, Scheme: "aes256gcm", Nonce: make([]byte, 12), Ciphertext: []byte("cipher")}

	t.Run("GetMissingVault", func(t *testing.T) {
		_, err := s.Get(vaultID, recordType, recordID)
		if !errors.Is(err, storage.ErrVaultNotFound) {
			t.Errorf("expected ErrVaultNotFound, got %v", err)
		}
	})

	t.Run("PutGet", func(t *testing.T) {
		err := s.Put(vaultID, recordType, recordID, env)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := s.Get(vaultID, recordType, recordID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Ver != env.Ver {
			t.Errorf("expected version %d, got %d", env.Ver, got.Ver)
		}
		if string(got.Ciphertext) != "cipher" {
			t.Errorf("expected ciphertext %q, got %q", "cipher", got.Ciphertext)
		}
	})

	t.Run("GetMissingRecord", func(t *testing.T) {
		_, err := s.Get(vaultID, recordType, "other")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := s.Delete(vaultID, recordType, recordID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := s.Get(vaultID, recordType, recordID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := s.Delete(vaultID, recordType, recordID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})
}

func TestNewRepositoryFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.db")
	s, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("NewRepositoryFromFile failed: %v", err)
	}
	env := &storage.Envelope{Ver: 1, Scheme: "aes256gcm", Nonce: make([]byte, 12), Ciphertext: []byte("persist")}
	if err := s.Put("__client", "SESSION", "user", env); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get("__client", "SESSION", "user")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if string(got.Ciphertext) != "persist" {
		t.Errorf("expected persisted ciphertext, got %q", got.Ciphertext)
	}
}

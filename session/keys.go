package session

import (
	"fmt"

	"github.com/awnumar/memguard"

	icrypto "github.com/jmcleod/mealdraw/internal/crypto"
	"github.com/jmcleod/mealdraw/internal/util"
	"github.com/jmcleod/mealdraw/storage"
)

const (
	clientVaultID         = "__client"
	snapshotRecordType    = "SESSION"
	snapshotRecordID      = "user"
	snapshotKeyType       = "SNAPSHOT_KEY"
	snapshotKeyID         = "current"
	snapshotFormatVersion = 1
)

var (
	snapshotAAD    = icrypto.AADRecord(clientVaultID, snapshotRecordType, snapshotRecordID, snapshotFormatVersion)
	snapshotKeyAAD = icrypto.AADKeyWrap(clientVaultID, snapshotKeyID, snapshotFormatVersion)
)

// loadOrCreateSnapshotKey loads the snapshot encryption key from storage,
// unsealing it with the wrapping key, and moves it into a memguard enclave.
// If no key exists, or the stored key cannot be unsealed because the
// wrapping key changed, a fresh key is generated and persisted. Snapshots
// sealed under the old key become unreadable and restore as anonymous.
func loadOrCreateSnapshotKey(repo storage.Repository, wrappingKey []byte) (*memguard.Enclave, error) {
	aad := snapshotKeyAAD

	env, err := repo.Get(clientVaultID, snapshotKeyType, snapshotKeyID)
	switch {
	case err == nil:
		key, openErr := storage.OpenRecord(wrappingKey, env, aad)
		if openErr == nil && len(key) == util.AESKeySize {
			return memguard.NewEnclave(key), nil
		}
		util.WipeBytes(key)
	case !storage.IsNotFound(err):
		return nil, fmt.Errorf("reading snapshot key: %w", err)
	}

	key, err := util.RandomBytes(util.AESKeySize)
	if err != nil {
		return nil, err
	}
	sealed, err := storage.SealRecord(wrappingKey, key, aad)
	if err != nil {
		util.WipeBytes(key)
		return nil, fmt.Errorf("sealing new snapshot key: %w", err)
	}
	if err := repo.Put(clientVaultID, snapshotKeyType, snapshotKeyID, sealed); err != nil {
		util.WipeBytes(key)
		return nil, fmt.Errorf("persisting snapshot key: %w", err)
	}
	return memguard.NewEnclave(key), nil
}

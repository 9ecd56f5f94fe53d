package storage

import (
	"fmt"

	"github.com/jmcleod/mealdraw/internal/util"
)

const (
	envelopeVersion = 1
	schemeAESGCM    = "aes256gcm"
)

// Envelope is a sealed record containing AES-256-GCM encrypted data.
type Envelope struct {
	Ver        int    `json:"ver"`
	Scheme     string `json:"scheme"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// SealRecord encrypts plaintext into an Envelope using the given record key and AAD.
func SealRecord(recordKey, plaintext, aad []byte) (*Envelope, error) {
	cipher, err := util.EncryptAESWithAAD(plaintext, recordKey, aad)
	if err != nil {
		return nil, err
	}

	// util.EncryptAESWithAAD returns nonce || ciphertext.
	return &Envelope{
		Ver:        envelopeVersion,
		Scheme:     schemeAESGCM,
		Nonce:      cipher[:12],
		Ciphertext: cipher[12:],
	}, nil
}

// OpenRecord decrypts an Envelope using the given record key and AAD.
func OpenRecord(recordKey []byte, envelope *Envelope, aad []byte) ([]byte, error) {
	if envelope == nil {
		return nil, fmt.Errorf("nil envelope")
	}
	if envelope.Ver != envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version: %d", envelope.Ver)
	}
	if envelope.Scheme != schemeAESGCM {
		return nil, fmt.Errorf("unsupported envelope scheme: %s", envelope.Scheme)
	}

	// Reconstruct nonce || ciphertext without mutating envelope fields.
	fullCipher := make([]byte, len(envelope.Nonce)+len(envelope.Ciphertext))
	copy(fullCipher, envelope.Nonce)
	copy(fullCipher[len(envelope.Nonce):], envelope.Ciphertext)

	return util.DecryptAESWithAAD(fullCipher, recordKey, aad)
}

package cryptox

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// MinMasterKeyLen is the minimum master key length in bytes (256 bits).
	MinMasterKeyLen = 32
	// MinTableSaltLen is the minimum per-table salt length in bytes.
	MinTableSaltLen = 16

	fieldKeyInfo = "portalvault/v1/field-encryption"
	hashKeyInfo  = "portalvault/v1/account-hash"

	derivedKeyLen = 32 // AES-256
)

var (
	// ErrMasterKeyTooShort reports a missing or undersized master key.
	ErrMasterKeyTooShort = errors.New("cryptox: master key missing or shorter than 32 bytes")
	// ErrTableSaltTooShort reports a missing or undersized table salt.
	ErrTableSaltTooShort = errors.New("cryptox: table salt missing or shorter than 16 bytes")
	// ErrIntegrity reports ciphertext that failed authentication. Rows that
	// trip this must surface the failure, never altered plaintext.
	ErrIntegrity = errors.New("cryptox: ciphertext failed integrity check")
)

// Context holds the keys derived once at startup from the master key and the
// per-table salt. It is immutable after NewContext and safe for concurrent
// use. Derivation is deterministic, so rows written before a restart remain
// decryptable afterwards.
type Context struct {
	encKey  []byte
	hashKey []byte
}

// NewContext validates the secrets and derives the field-encryption and
// lookup-hash keys via HKDF-SHA256. A short or absent secret is a
// configuration error the process must not serve requests with; callers are
// expected to fail fast rather than fall back per call.
func NewContext(masterKey, tableSalt []byte) (*Context, error) {
	if len(masterKey) < MinMasterKeyLen {
		return nil, ErrMasterKeyTooShort
	}
	if len(tableSalt) < MinTableSaltLen {
		return nil, ErrTableSaltTooShort
	}

	encKey, err := deriveKey(masterKey, tableSalt, fieldKeyInfo)
	if err != nil {
		return nil, fmt.Errorf("derive field key: %w", err)
	}
	hashKey, err := deriveKey(masterKey, tableSalt, hashKeyInfo)
	if err != nil {
		return nil, fmt.Errorf("derive hash key: %w", err)
	}

	return &Context{encKey: encKey, hashKey: hashKey}, nil
}

func deriveKey(master, salt []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, master, salt, []byte(info))
	key := make([]byte, derivedKeyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

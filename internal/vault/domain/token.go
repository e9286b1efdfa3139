package domain

import "time"

// AcquiredToken is the result of a successful login flow: the opaque token
// read out of the portal's client-side storage plus its validity window.
// Owned by the acquisition attempt until handed to the store.
type AcquiredToken struct {
	AccountID string
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenRecord is the persisted row shape. Sensitive columns hold base64
// AES-GCM ciphertext; AccountIDHash is a deterministic salted digest used as
// the lookup index so equality queries never touch plaintext. Timestamps stay
// plaintext because range queries need them and they are not sensitive.
type TokenRecord struct {
	ID            string
	AccountIDEnc  string
	AccountIDHash string
	TokenEnc      string
	ExpiresAt     time.Time
	ExtractedAt   time.Time
	CreatedAt     time.Time
}

// StoredToken is a decrypted view of a TokenRecord returned to callers.
type StoredToken struct {
	RecordID    string
	AccountID   string
	Token       string
	ExpiresAt   time.Time
	ExtractedAt time.Time
	CreatedAt   time.Time
}

// TokenStatus is the read-only answer for the status operation. "No valid
// token" is an expected empty result, not an error.
type TokenStatus struct {
	HasValidToken bool
	ExpiresAt     *time.Time
	ExtractedAt   *time.Time
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/brokerops/portalvault/internal/vault/domain"
)

var (
	ErrNotFound = errors.New("store: not found")
)

// Store is the root data access interface. Concrete drivers (sqlite for now)
// implement this. The connection pool behind it is sized independently of the
// browser worker pool, so read-only callers never wait on an acquisition slot.
type Store interface {
	Tokens() Tokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing on nil and rolling
	// back on error. This is the recommended entry point; rotation of token
	// rows depends on it.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Tokens persists encrypted token records. The driver deals only in
// ciphertext and hashes; encryption and hashing happen above it.
type Tokens interface {
	// InsertTokenRecord stores a freshly encrypted record.
	InsertTokenRecord(ctx context.Context, rec domain.TokenRecord) error

	// DeleteTokensByAccountHash removes every record for the identifier hash.
	// Called inside the rotation transaction before the insert.
	DeleteTokensByAccountHash(ctx context.Context, hash string) (int64, error)

	// GetLatestTokenByAccountHash returns the most recent record for the hash
	// with expires_at after now. ErrNotFound when no valid record exists.
	GetLatestTokenByAccountHash(ctx context.Context, hash string, now time.Time) (domain.TokenRecord, error)

	// ListTokensByAccountHash returns up to limit records for the hash,
	// newest first, for audit/inspection.
	ListTokensByAccountHash(ctx context.Context, hash string, limit int) ([]domain.TokenRecord, error)

	// DeleteExpiredTokens is housekeeping for rows whose expiry has long passed.
	DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error)
}

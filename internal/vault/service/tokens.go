package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brokerops/portalvault/internal/vault/domain"
	"github.com/brokerops/portalvault/internal/vault/store"
	"github.com/brokerops/portalvault/pkg/cryptox"
	"github.com/brokerops/portalvault/pkg/idx"
)

const (
	// DefaultHistoryLimit applies when the caller does not ask for a limit.
	DefaultHistoryLimit = 20
	// MaxHistoryLimit caps how many rows one history call may return.
	MaxHistoryLimit = 100
)

// TokenService owns the encrypted token records: field encryption, the
// deterministic lookup hash and rotate-on-write persistence. The crypto
// context is initialized once at startup; a nil context here is a
// configuration bug, not a per-call condition.
type TokenService struct {
	Store  store.Store
	Crypto *cryptox.Context
}

// Put rotates the stored token for accountID: inside one transaction it
// deletes any prior rows for the identifier's hash and inserts the new
// encrypted row, so a concurrent reader never observes zero or two current
// rows. Returns the new record id.
func (s *TokenService) Put(
	ctx context.Context,
	accountID, token string,
	extractedAt, expiresAt time.Time,
) (idx.ID, error) {
	if err := s.ready(); err != nil {
		return idx.Zero, err
	}
	if !domain.ValidAccountID(accountID) {
		return idx.Zero, domain.NewError(domain.KindValidation, "account identifier does not match required shape")
	}

	hash := s.Crypto.AccountHash(accountID)

	accountEnc, err := s.Crypto.EncryptField(accountID)
	if err != nil {
		return idx.Zero, domain.WrapError(domain.KindCryptoConfig, "failed to encrypt account identifier", err)
	}
	tokenEnc, err := s.Crypto.EncryptField(token)
	if err != nil {
		return idx.Zero, domain.WrapError(domain.KindCryptoConfig, "failed to encrypt token", err)
	}

	rec := domain.TokenRecord{
		ID:            idx.New().String(),
		AccountIDEnc:  accountEnc,
		AccountIDHash: hash,
		TokenEnc:      tokenEnc,
		ExpiresAt:     expiresAt.UTC(),
		ExtractedAt:   extractedAt.UTC(),
		CreatedAt:     time.Now().UTC(),
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Tokens().DeleteTokensByAccountHash(ctx, hash); err != nil {
			return fmt.Errorf("rotate prior tokens: %w", err)
		}
		if err := tx.Tokens().InsertTokenRecord(ctx, rec); err != nil {
			return fmt.Errorf("insert token record: %w", err)
		}
		return nil
	})
	if err != nil {
		return idx.Zero, domain.WrapError(domain.KindStorage, "failed to persist token", err)
	}

	return idx.ID(rec.ID), nil
}

// GetLatestValid returns the decrypted token for the most recent unexpired
// row. The second return reports whether a valid token exists; absence is an
// expected empty result, not an error.
func (s *TokenService) GetLatestValid(ctx context.Context, accountID string) (domain.StoredToken, bool, error) {
	if err := s.ready(); err != nil {
		return domain.StoredToken{}, false, err
	}

	hash := s.Crypto.AccountHash(accountID)

	rec, err := s.Store.Tokens().GetLatestTokenByAccountHash(ctx, hash, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.StoredToken{}, false, nil
		}
		return domain.StoredToken{}, false, domain.WrapError(domain.KindStorage, "failed to query token", err)
	}

	tok, err := s.decryptRecord(rec)
	if err != nil {
		return domain.StoredToken{}, false, err
	}
	return tok, true, nil
}

// GetHistory returns up to limit decrypted records for the identifier,
// newest first.
func (s *TokenService) GetHistory(ctx context.Context, accountID string, limit int) ([]domain.StoredToken, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	hash := s.Crypto.AccountHash(accountID)

	records, err := s.Store.Tokens().ListTokensByAccountHash(ctx, hash, limit)
	if err != nil {
		return nil, domain.WrapError(domain.KindStorage, "failed to list tokens", err)
	}

	tokens := make([]domain.StoredToken, 0, len(records))
	for _, rec := range records {
		tok, err := s.decryptRecord(rec)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

// Status answers the read-only "is there a usable token" question without
// exposing the token value.
func (s *TokenService) Status(ctx context.Context, accountID string) (domain.TokenStatus, error) {
	tok, ok, err := s.GetLatestValid(ctx, accountID)
	if err != nil {
		return domain.TokenStatus{}, err
	}
	if !ok {
		return domain.TokenStatus{}, nil
	}
	return domain.TokenStatus{
		HasValidToken: true,
		ExpiresAt:     &tok.ExpiresAt,
		ExtractedAt:   &tok.ExtractedAt,
	}, nil
}

func (s *TokenService) decryptRecord(rec domain.TokenRecord) (domain.StoredToken, error) {
	accountID, err := s.Crypto.DecryptField(rec.AccountIDEnc)
	if err != nil {
		return domain.StoredToken{}, s.classifyDecrypt(rec.ID, err)
	}
	token, err := s.Crypto.DecryptField(rec.TokenEnc)
	if err != nil {
		return domain.StoredToken{}, s.classifyDecrypt(rec.ID, err)
	}

	return domain.StoredToken{
		RecordID:    rec.ID,
		AccountID:   accountID,
		Token:       token,
		ExpiresAt:   rec.ExpiresAt,
		ExtractedAt: rec.ExtractedAt,
		CreatedAt:   rec.CreatedAt,
	}, nil
}

func (s *TokenService) classifyDecrypt(recordID string, err error) error {
	if errors.Is(err, cryptox.ErrIntegrity) {
		return domain.WrapError(domain.KindIntegrity,
			fmt.Sprintf("stored record %s failed integrity check", recordID), err)
	}
	return domain.WrapError(domain.KindCryptoConfig, "failed to decrypt stored record", err)
}

func (s *TokenService) ready() error {
	if s.Crypto == nil {
		return domain.NewError(domain.KindCryptoConfig, "encryption context not initialized")
	}
	return nil
}

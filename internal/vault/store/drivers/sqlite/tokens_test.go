package sqlite_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/brokerops/portalvault/internal/vault/domain"
	"github.com/brokerops/portalvault/internal/vault/store"
	"github.com/brokerops/portalvault/internal/vault/store/drivers/sqlite"
	"github.com/brokerops/portalvault/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		filepath.Join(t.TempDir(), "vault.db"))
	st, err := sqlite.NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func record(hash string, expiresAt time.Time) domain.TokenRecord {
	now := time.Now().UTC()
	return domain.TokenRecord{
		ID:            idx.New().String(),
		AccountIDEnc:  "enc-account",
		AccountIDHash: hash,
		TokenEnc:      "enc-token",
		ExpiresAt:     expiresAt,
		ExtractedAt:   now,
		CreatedAt:     now,
	}
}

func TestInsertAndGetLatestToken(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := record("hash-a", now.Add(time.Hour))
	require.NoError(t, st.Tokens().InsertTokenRecord(ctx, rec))

	got, err := st.Tokens().GetLatestTokenByAccountHash(ctx, "hash-a", now)
	require.NoError(t, err)
	require.Equal(t, rec.ID, got.ID)
	require.Equal(t, rec.TokenEnc, got.TokenEnc)
	require.WithinDuration(t, rec.ExpiresAt, got.ExpiresAt, time.Second)
}

func TestGetLatestTokenSkipsExpired(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.Tokens().InsertTokenRecord(ctx, record("hash-a", now.Add(-time.Hour))))

	_, err := st.Tokens().GetLatestTokenByAccountHash(ctx, "hash-a", now)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetLatestTokenUnknownHash(t *testing.T) {
	st := newTestStore(t)

	_, err := st.Tokens().GetLatestTokenByAccountHash(context.Background(), "nope", time.Now())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteThenInsertInTx(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.Tokens().InsertTokenRecord(ctx, record("hash-a", now.Add(time.Hour))))
	require.NoError(t, st.Tokens().InsertTokenRecord(ctx, record("hash-a", now.Add(2*time.Hour))))

	replacement := record("hash-a", now.Add(3*time.Hour))
	err := st.WithTx(ctx, func(tx store.Tx) error {
		deleted, err := tx.Tokens().DeleteTokensByAccountHash(ctx, "hash-a")
		if err != nil {
			return err
		}
		require.EqualValues(t, 2, deleted)
		return tx.Tokens().InsertTokenRecord(ctx, replacement)
	})
	require.NoError(t, err)

	records, err := st.Tokens().ListTokensByAccountHash(ctx, "hash-a", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, replacement.ID, records[0].ID)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.Tokens().InsertTokenRecord(ctx, record("hash-a", now.Add(time.Hour))))

	boom := fmt.Errorf("boom")
	err := st.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Tokens().DeleteTokensByAccountHash(ctx, "hash-a"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Delete must have been rolled back.
	records, err := st.Tokens().ListTokensByAccountHash(ctx, "hash-a", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestListTokensNewestFirst(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var ids []string
	for i := range 3 {
		rec := record("hash-a", now.Add(time.Duration(i+1)*time.Hour))
		require.NoError(t, st.Tokens().InsertTokenRecord(ctx, rec))
		ids = append(ids, rec.ID)
	}

	records, err := st.Tokens().ListTokensByAccountHash(ctx, "hash-a", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, ids[2], records[0].ID)
	require.Equal(t, ids[1], records[1].ID)
}

func TestDeleteExpiredTokens(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.Tokens().InsertTokenRecord(ctx, record("hash-a", now.Add(-48*time.Hour))))
	require.NoError(t, st.Tokens().InsertTokenRecord(ctx, record("hash-b", now.Add(time.Hour))))

	deleted, err := st.Tokens().DeleteExpiredTokens(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	remaining, err := st.Tokens().ListTokensByAccountHash(ctx, "hash-b", 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
}

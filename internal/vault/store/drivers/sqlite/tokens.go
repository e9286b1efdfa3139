package sqlite

import (
	"context"
	"time"

	"github.com/brokerops/portalvault/internal/vault/domain"
)

type tokensRepo struct {
	db dbtx
}

func (r *tokensRepo) InsertTokenRecord(ctx context.Context, rec domain.TokenRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO portal_tokens (
			id, account_id_enc, account_id_hash, token_enc,
			expires_at, extracted_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AccountIDEnc, rec.AccountIDHash, rec.TokenEnc,
		rec.ExpiresAt.UTC(), rec.ExtractedAt.UTC(), rec.CreatedAt.UTC(),
	)
	return err
}

func (r *tokensRepo) DeleteTokensByAccountHash(ctx context.Context, hash string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM portal_tokens WHERE account_id_hash = ?`, hash)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *tokensRepo) GetLatestTokenByAccountHash(
	ctx context.Context,
	hash string,
	now time.Time,
) (domain.TokenRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, account_id_enc, account_id_hash, token_enc,
		       expires_at, extracted_at, created_at
		FROM portal_tokens
		WHERE account_id_hash = ? AND expires_at > ?
		ORDER BY id DESC
		LIMIT 1`,
		hash, now.UTC(),
	)

	rec, err := scanTokenRecord(row)
	if err != nil {
		return domain.TokenRecord{}, mapNotFound(err)
	}
	return rec, nil
}

func (r *tokensRepo) ListTokensByAccountHash(
	ctx context.Context,
	hash string,
	limit int,
) ([]domain.TokenRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id_enc, account_id_hash, token_enc,
		       expires_at, extracted_at, created_at
		FROM portal_tokens
		WHERE account_id_hash = ?
		ORDER BY id DESC
		LIMIT ?`,
		hash, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.TokenRecord
	for rows.Next() {
		rec, err := scanTokenRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *tokensRepo) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM portal_tokens WHERE expires_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTokenRecord(row rowScanner) (domain.TokenRecord, error) {
	var rec domain.TokenRecord
	err := row.Scan(
		&rec.ID, &rec.AccountIDEnc, &rec.AccountIDHash, &rec.TokenEnc,
		&rec.ExpiresAt, &rec.ExtractedAt, &rec.CreatedAt,
	)
	if err != nil {
		return domain.TokenRecord{}, err
	}
	return rec, nil
}

package voice

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists voiceprints in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgreSQL-backed voiceprint store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the voiceprints table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS voiceprints (
			id                VARCHAR(40) PRIMARY KEY,
			user_id           VARCHAR(64) NOT NULL DEFAULT '',
			phone_number      VARCHAR(32) NOT NULL DEFAULT '',
			caller_name       VARCHAR(128) NOT NULL DEFAULT '',
			hash              VARCHAR(64) NOT NULL UNIQUE,
			pitch             DOUBLE PRECISION NOT NULL,
			energy            DOUBLE PRECISION NOT NULL,
			spectral_centroid DOUBLE PRECISION NOT NULL,
			is_scammer        BOOLEAN NOT NULL DEFAULT FALSE,
			sample_count      INT NOT NULL DEFAULT 1,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_voiceprints_user
			ON voiceprints (user_id, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_voiceprints_scammers
			ON voiceprints (created_at DESC) WHERE is_scammer = TRUE;
	`)
	return err
}

func (s *PostgresStore) Upsert(ctx context.Context, fp *Fingerprint) (*Fingerprint, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO voiceprints
			(id, user_id, phone_number, caller_name, hash, pitch, energy,
			 spectral_centroid, is_scammer, sample_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10, $10)
		ON CONFLICT (hash) DO UPDATE SET
			sample_count = voiceprints.sample_count + 1,
			is_scammer = voiceprints.is_scammer OR EXCLUDED.is_scammer,
			updated_at = EXCLUDED.updated_at
		RETURNING id, user_id, phone_number, caller_name, hash, pitch, energy,
		          spectral_centroid, is_scammer, sample_count, created_at, updated_at
	`,
		fp.ID, fp.UserID, fp.PhoneNumber, fp.CallerName, fp.Hash,
		fp.Pitch, fp.Energy, fp.SpectralCentroid, fp.IsScammer, fp.CreatedAt,
	)
	out, err := scanFingerprint(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert voiceprint: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Fingerprint, error) {
	row := s.db.QueryRowContext(ctx, selectFingerprint+` WHERE id = $1`, id)
	fp, err := scanFingerprint(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return fp, err
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Fingerprint, error) {
	return s.list(ctx, selectFingerprint+` WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
}

func (s *PostgresStore) ListScammers(ctx context.Context, limit int) ([]*Fingerprint, error) {
	return s.list(ctx, selectFingerprint+` WHERE is_scammer = TRUE ORDER BY created_at DESC LIMIT $1`, limit)
}

func (s *PostgresStore) All(ctx context.Context, limit int) ([]*Fingerprint, error) {
	return s.list(ctx, selectFingerprint+` ORDER BY created_at DESC LIMIT $1`, limit)
}

func (s *PostgresStore) SetScammer(ctx context.Context, id string, isScammer bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE voiceprints SET is_scammer = $2, updated_at = NOW() WHERE id = $1
	`, id, isScammer)
	if err != nil {
		return fmt.Errorf("failed to flag voiceprint: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM voiceprints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete voiceprint: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectFingerprint = `
	SELECT id, user_id, phone_number, caller_name, hash, pitch, energy,
	       spectral_centroid, is_scammer, sample_count, created_at, updated_at
	FROM voiceprints`

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*Fingerprint, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list voiceprints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Fingerprint
	for rows.Next() {
		fp, err := scanFingerprint(rows)
		if err != nil {
			continue
		}
		result = append(result, fp)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFingerprint(row rowScanner) (*Fingerprint, error) {
	var fp Fingerprint
	if err := row.Scan(&fp.ID, &fp.UserID, &fp.PhoneNumber, &fp.CallerName, &fp.Hash,
		&fp.Pitch, &fp.Energy, &fp.SpectralCentroid, &fp.IsScammer, &fp.SampleCount,
		&fp.CreatedAt, &fp.UpdatedAt); err != nil {
		return nil, err
	}
	return &fp, nil
}

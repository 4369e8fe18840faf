package scoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/arjunrm/scamshield/internal/pagination"
	"github.com/arjunrm/scamshield/internal/signal"
)

// PostgresStore persists risk assessments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgreSQL-backed assessment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the assessments table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS assessments (
			id              VARCHAR(40) PRIMARY KEY,
			user_id         VARCHAR(64) NOT NULL DEFAULT '',
			session_id      VARCHAR(40) NOT NULL DEFAULT '',
			raw_score       NUMERIC(4,3) NOT NULL CHECK (raw_score >= 0 AND raw_score <= 1),
			tier            VARCHAR(10) NOT NULL CHECK (tier IN ('low', 'medium', 'high', 'critical')),
			scam_category   VARCHAR(32) NOT NULL DEFAULT '',
			confidence      NUMERIC(4,3) NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
			evidence        JSONB NOT NULL DEFAULT '[]',
			breakdown       JSONB NOT NULL DEFAULT '{}',
			recommendation  TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_assessments_user
			ON assessments (user_id, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_assessments_critical
			ON assessments (created_at DESC) WHERE tier = 'critical';
	`)
	return err
}

func (s *PostgresStore) Save(ctx context.Context, a *RiskAssessment) error {
	evidenceJSON, err := json.Marshal(a.Evidence)
	if err != nil {
		return fmt.Errorf("failed to marshal evidence: %w", err)
	}
	breakdownJSON, err := json.Marshal(a.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal breakdown: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assessments
			(id, user_id, session_id, raw_score, tier, scam_category, confidence, evidence, breakdown, recommendation, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		a.ID, a.UserID, a.SessionID, a.RawScore, string(a.Tier), string(a.ScamCategory),
		a.Confidence, evidenceJSON, breakdownJSON, a.Recommendation, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*RiskAssessment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, session_id, raw_score, tier, scam_category, confidence, evidence, breakdown, recommendation, created_at
		FROM assessments
		WHERE id = $1
	`, id)
	a, err := scanAssessment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return a, err
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int, before *pagination.Cursor) ([]*RiskAssessment, error) {
	query := `
		SELECT id, user_id, session_id, raw_score, tier, scam_category, confidence, evidence, breakdown, recommendation, created_at
		FROM assessments
		WHERE user_id = $1`
	args := []any{userID}
	if before != nil {
		query += ` AND (created_at, id) < ($2, $3)`
		args = append(args, before.CreatedAt, before.ID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ` + fmt.Sprintf("$%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*RiskAssessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			continue
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *PostgresStore) CountByTier(ctx context.Context) (map[Tier]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tier, COUNT(*) FROM assessments GROUP BY tier
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[Tier]int)
	for rows.Next() {
		var tier string
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, err
		}
		counts[Tier(tier)] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssessment(row rowScanner) (*RiskAssessment, error) {
	var (
		a             RiskAssessment
		tier, cat     string
		evidenceJSON  []byte
		breakdownJSON []byte
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.SessionID, &a.RawScore, &tier, &cat,
		&a.Confidence, &evidenceJSON, &breakdownJSON, &a.Recommendation, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Tier = Tier(tier)
	a.ScamCategory = signal.Category(cat)
	_ = json.Unmarshal(evidenceJSON, &a.Evidence)
	a.Breakdown = make(map[string]float64)
	_ = json.Unmarshal(breakdownJSON, &a.Breakdown)
	return &a, nil
}

package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/arjunrm/scamshield/internal/scoring"
)

// PostgresStore persists ended sessions and alerts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgreSQL-backed session store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the session tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS call_sessions (
			id               VARCHAR(40) PRIMARY KEY,
			user_id          VARCHAR(64) NOT NULL DEFAULT '',
			phone_number     VARCHAR(32) NOT NULL,
			status           VARCHAR(10) NOT NULL CHECK (status IN ('active', 'ended')),
			started_at       TIMESTAMPTZ NOT NULL,
			ended_at         TIMESTAMPTZ,
			end_reason       VARCHAR(20) NOT NULL DEFAULT '',
			last_activity_at TIMESTAMPTZ NOT NULL,
			fragment_count   INT NOT NULL DEFAULT 0,
			transcript       TEXT NOT NULL DEFAULT '',
			amount_mentioned NUMERIC(14,2),
			worst            JSONB
		);

		CREATE INDEX IF NOT EXISTS idx_call_sessions_user
			ON call_sessions (user_id, started_at DESC);

		CREATE TABLE IF NOT EXISTS session_alerts (
			id             VARCHAR(40) PRIMARY KEY,
			session_id     VARCHAR(40) NOT NULL,
			user_id        VARCHAR(64) NOT NULL DEFAULT '',
			tier           VARCHAR(10) NOT NULL CHECK (tier IN ('low', 'medium', 'high', 'critical')),
			fragment_index INT NOT NULL DEFAULT 0,
			assessment     JSONB,
			acknowledged   BOOLEAN NOT NULL DEFAULT FALSE,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_session_alerts_user
			ON session_alerts (user_id, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_session_alerts_unacked
			ON session_alerts (created_at DESC) WHERE acknowledged = FALSE;
	`)
	return err
}

func (s *PostgresStore) SaveSession(ctx context.Context, sess *Session) error {
	var worstJSON []byte
	if sess.Worst != nil {
		var err error
		worstJSON, err = json.Marshal(sess.Worst)
		if err != nil {
			return fmt.Errorf("failed to marshal worst assessment: %w", err)
		}
	}

	var amount sql.NullFloat64
	if sess.AmountMentioned != nil {
		amount = sql.NullFloat64{Float64: *sess.AmountMentioned, Valid: true}
	}
	var endedAt sql.NullTime
	if sess.EndedAt != nil {
		endedAt = sql.NullTime{Time: *sess.EndedAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO call_sessions
			(id, user_id, phone_number, status, started_at, ended_at, end_reason,
			 last_activity_at, fragment_count, transcript, amount_mentioned, worst)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			ended_at = EXCLUDED.ended_at,
			end_reason = EXCLUDED.end_reason,
			last_activity_at = EXCLUDED.last_activity_at,
			fragment_count = EXCLUDED.fragment_count,
			transcript = EXCLUDED.transcript,
			amount_mentioned = EXCLUDED.amount_mentioned,
			worst = EXCLUDED.worst
	`,
		sess.ID, sess.UserID, sess.PhoneNumber, string(sess.Status), sess.StartedAt,
		endedAt, string(sess.EndReason), sess.LastActivityAt, sess.FragmentCount,
		sess.Transcript, amount, nullableJSON(worstJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, phone_number, status, started_at, ended_at, end_reason,
		       last_activity_at, fragment_count, transcript, amount_mentioned, worst
		FROM call_sessions
		WHERE id = $1
	`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return sess, err
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, phone_number, status, started_at, ended_at, end_reason,
		       last_activity_at, fragment_count, transcript, amount_mentioned, worst
		FROM call_sessions
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			continue
		}
		result = append(result, sess)
	}
	return result, rows.Err()
}

func (s *PostgresStore) SaveAlert(ctx context.Context, a *Alert) error {
	var assessmentJSON []byte
	if a.Assessment != nil {
		var err error
		assessmentJSON, err = json.Marshal(a.Assessment)
		if err != nil {
			return fmt.Errorf("failed to marshal assessment: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_alerts
			(id, session_id, user_id, tier, fragment_index, assessment, acknowledged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		a.ID, a.SessionID, a.UserID, string(a.Tier), a.FragmentIndex,
		nullableJSON(assessmentJSON), a.Acknowledged, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAlerts(ctx context.Context, userID string, limit int) ([]*Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, user_id, tier, fragment_index, assessment, acknowledged, created_at
		FROM session_alerts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Alert
	for rows.Next() {
		var (
			a              Alert
			tier           string
			assessmentJSON []byte
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.UserID, &tier, &a.FragmentIndex,
			&assessmentJSON, &a.Acknowledged, &a.CreatedAt); err != nil {
			continue
		}
		a.Tier = scoring.Tier(tier)
		if len(assessmentJSON) > 0 {
			a.Assessment = &scoring.RiskAssessment{}
			_ = json.Unmarshal(assessmentJSON, a.Assessment)
		}
		result = append(result, &a)
	}
	return result, rows.Err()
}

func (s *PostgresStore) AcknowledgeAlert(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE session_alerts SET acknowledged = TRUE WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlertNotFound
	}
	return nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess      Session
		status    string
		reason    string
		endedAt   sql.NullTime
		amount    sql.NullFloat64
		worstJSON []byte
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.PhoneNumber, &status, &sess.StartedAt,
		&endedAt, &reason, &sess.LastActivityAt, &sess.FragmentCount, &sess.Transcript,
		&amount, &worstJSON); err != nil {
		return nil, err
	}
	sess.Status = Status(status)
	sess.EndReason = EndReason(reason)
	if endedAt.Valid {
		t := endedAt.Time.UTC()
		sess.EndedAt = &t
	}
	if amount.Valid {
		a := amount.Float64
		sess.AmountMentioned = &a
	}
	if len(worstJSON) > 0 {
		sess.Worst = &scoring.RiskAssessment{}
		_ = json.Unmarshal(worstJSON, sess.Worst)
	}
	return &sess, nil
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
)

const (
	schemaLockKey    int64 = 2026101601
	defaultListLimit       = 20
	maxListLimit           = 200
)

// TurnJournal stores finalized turns for auditing.
type TurnJournal struct {
	db *sql.DB
}

func NewTurnJournal(db *sql.DB) *TurnJournal {
	return &TurnJournal{db: db}
}

func (r *TurnJournal) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS assistant_turns (
	turn_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	intent TEXT NOT NULL,
	path TEXT NOT NULL,
	outcome TEXT NOT NULL,
	evidence_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assistant_turns_session_created
	ON assistant_turns(session_id, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *TurnJournal) Record(ctx context.Context, record domain.TurnRecord) error {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	const query = `
INSERT INTO assistant_turns (
	turn_id, session_id, question, answer, intent, path, outcome, evidence_count, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (turn_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query,
		record.TurnID,
		record.SessionID,
		record.Question,
		record.Answer,
		string(record.Intent),
		string(record.Path),
		string(record.Outcome),
		record.EvidenceCount,
		createdAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "record turn", err)
	}
	return nil
}

func (r *TurnJournal) ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.TurnRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	const query = `
SELECT turn_id, session_id, question, answer, intent, path, outcome, evidence_count, created_at
FROM assistant_turns
WHERE session_id = $1
ORDER BY created_at DESC
LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "list turns", err)
	}
	defer rows.Close()

	out := make([]domain.TurnRecord, 0, limit)
	for rows.Next() {
		var (
			rec                   domain.TurnRecord
			intent, path, outcome string
		)
		if err := rows.Scan(
			&rec.TurnID,
			&rec.SessionID,
			&rec.Question,
			&rec.Answer,
			&intent,
			&path,
			&outcome,
			&rec.EvidenceCount,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		rec.Intent = domain.Intent(intent)
		rec.Path = domain.Path(path)
		rec.Outcome = domain.Outcome(outcome)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return out, nil
}

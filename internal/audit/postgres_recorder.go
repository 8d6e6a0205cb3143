package audit

import (
	"context"
	"database/sql"
	"log/slog"
)

// PostgresRecorder writes audit entries to the audit_log table.
// Write failures are logged and dropped.
type PostgresRecorder struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRecorder creates an audit recorder backed by PostgreSQL.
func NewPostgresRecorder(db *sql.DB, logger *slog.Logger) *PostgresRecorder {
	return &PostgresRecorder{db: db, logger: logger}
}

func (r *PostgresRecorder) Record(ctx context.Context, e Entry) {
	actorType, actorID := actorFromCtx(ctx)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (actor_type, actor_id, action, user_id, charge_id, amount, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`, actorType, actorID, e.Action, e.UserID, nullable(e.ChargeID), e.Amount, e.Note)
	if err != nil {
		// Fire and forget: the grant that triggered this entry has already
		// committed and must not be disturbed.
		r.logger.Error("audit write failed", "action", e.Action, "user_id", e.UserID, "error", err)
	}
}

// List returns recent audit entries, newest first (operator view).
func (r *PostgresRecorder) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT action, user_id, COALESCE(charge_id, ''), amount, note
		FROM audit_log
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Action, &e.UserID, &e.ChargeID, &e.Amount, &e.Note); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

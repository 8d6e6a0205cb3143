package billing

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/inkpanel/panelpay/internal/idgen"
	"github.com/inkpanel/panelpay/internal/journal"
	"github.com/inkpanel/panelpay/internal/ledger"
)

// PostgresStore implements Store with PostgreSQL. The processed_events
// primary key is the concurrency primitive: of two racing deliveries of the
// same event, exactly one insert wins and the other sees a unique violation.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed billing store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const admitSQL = `
	INSERT INTO processed_events (event_id, event_type, received_at)
	VALUES ($1, $2, NOW())
`

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}

func (p *PostgresStore) Admit(ctx context.Context, ev *ProcessedEvent) error {
	_, err := p.db.ExecContext(ctx, admitSQL, ev.EventID, ev.EventType)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("failed to admit event: %w", err)
	}
	return nil
}

// Grant runs the whole unit in one transaction: admission insert, balance
// upsert, journal append, charge-id backfill. Any failure rolls everything
// back, the admission row included, so redelivery can retry cleanly.
func (p *PostgresStore) Grant(ctx context.Context, ev *ProcessedEvent, req GrantRequest) (*journal.Purchase, int64, error) {
	if req.Panels <= 0 {
		return nil, 0, journal.ErrInvalidPanels
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	if ev != nil {
		if _, err := tx.ExecContext(ctx, admitSQL, ev.EventID, ev.EventType); err != nil {
			if isUniqueViolation(err) {
				return nil, 0, ErrDuplicateEvent
			}
			return nil, 0, fmt.Errorf("failed to admit event: %w", err)
		}
	}

	balance, err := ledger.CreditInTx(ctx, tx, req.UserID, req.Panels)
	if err != nil {
		return nil, 0, err
	}

	rec := &journal.Purchase{
		ID:            idgen.WithPrefix("pur_"),
		UserID:        req.UserID,
		ChargeID:      req.ChargeID,
		AmountDollars: req.AmountDollars,
		Panels:        req.Panels,
		Note:          req.Note,
	}
	if err := journal.InsertInTx(ctx, tx, rec); err != nil {
		return nil, 0, err
	}

	if ev != nil && req.ChargeID != nil {
		// Backfill so refunds can find the event by charge id later.
		_, err = tx.ExecContext(ctx, `
			UPDATE processed_events SET related_charge_id = $2 WHERE event_id = $1
		`, ev.EventID, *req.ChargeID)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to backfill charge id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("failed to commit grant: %w", err)
	}
	return rec, balance, nil
}

func (p *PostgresStore) GetEvent(ctx context.Context, eventID string) (*ProcessedEvent, error) {
	ev := &ProcessedEvent{}
	var charge sql.NullString

	err := p.db.QueryRowContext(ctx, `
		SELECT event_id, event_type, received_at, related_charge_id
		FROM processed_events WHERE event_id = $1
	`, eventID).Scan(&ev.EventID, &ev.EventType, &ev.ReceivedAt, &charge)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if charge.Valid {
		ev.RelatedChargeID = &charge.String
	}
	return ev, nil
}

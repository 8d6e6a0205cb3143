package journal

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed purchase store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const insertSQL = `
	INSERT INTO purchase_records (id, user_id, charge_id, amount_dollars, panels, note, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, NOW())
	RETURNING created_at
`

func (p *PostgresStore) Insert(ctx context.Context, rec *Purchase) error {
	if rec.Panels <= 0 {
		return ErrInvalidPanels
	}
	err := p.db.QueryRowContext(ctx, insertSQL,
		rec.ID, rec.UserID, rec.ChargeID, rec.AmountDollars, rec.Panels, rec.Note,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record purchase: %w", err)
	}
	return nil
}

// InsertInTx appends the record inside a caller-owned transaction so the
// reconciler can commit it together with admission and the balance credit.
func InsertInTx(ctx context.Context, tx *sql.Tx, rec *Purchase) error {
	if rec.Panels <= 0 {
		return ErrInvalidPanels
	}
	err := tx.QueryRowContext(ctx, insertSQL,
		rec.ID, rec.UserID, rec.ChargeID, rec.AmountDollars, rec.Panels, rec.Note,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record purchase: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Purchase, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, charge_id, amount_dollars, panels, note, created_at
		FROM purchase_records
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPurchases(rows)
}

func (p *PostgresStore) ListAll(ctx context.Context, limit int) ([]*Purchase, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, charge_id, amount_dollars, panels, note, created_at
		FROM purchase_records
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPurchases(rows)
}

func (p *PostgresStore) FindByCharge(ctx context.Context, chargeID string) (*Purchase, error) {
	rec := &Purchase{}
	var charge sql.NullString
	var note sql.NullString

	err := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, charge_id, amount_dollars, panels, note, created_at
		FROM purchase_records
		WHERE charge_id = $1
	`, chargeID).Scan(&rec.ID, &rec.UserID, &charge, &rec.AmountDollars, &rec.Panels, &note, &rec.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrChargeNotFound
	}
	if err != nil {
		return nil, err
	}
	if charge.Valid {
		rec.ChargeID = &charge.String
	}
	rec.Note = note.String
	return rec, nil
}

func scanPurchases(rows *sql.Rows) ([]*Purchase, error) {
	var records []*Purchase
	for rows.Next() {
		rec := &Purchase{}
		var charge, note sql.NullString
		if err := rows.Scan(&rec.ID, &rec.UserID, &charge, &rec.AmountDollars, &rec.Panels, &note, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if charge.Valid {
			rec.ChargeID = &charge.String
		}
		rec.Note = note.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

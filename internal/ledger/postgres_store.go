package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed account store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetAccount retrieves a user's account.
func (p *PostgresStore) GetAccount(ctx context.Context, userID string) (*Account, error) {
	acct := &Account{UserID: userID}

	err := p.db.QueryRowContext(ctx, `
		SELECT balance, updated_at FROM credit_accounts WHERE user_id = $1
	`, userID).Scan(&acct.Balance, &acct.UpdatedAt)

	if err == sql.ErrNoRows {
		return &Account{UserID: userID, Balance: 0, UpdatedAt: time.Now()}, nil
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// Credit adds panels to a user's balance with an atomic upsert.
func (p *PostgresStore) Credit(ctx context.Context, userID string, panels int64) error {
	if panels <= 0 {
		return ErrInvalidAmount
	}
	_, err := p.db.ExecContext(ctx, creditSQL, userID, panels)
	if err != nil {
		return fmt.Errorf("failed to credit account: %w", err)
	}
	return nil
}

// Debit subtracts amount only when the balance covers it. The WHERE clause
// makes the check and the decrement a single atomic statement; the CHECK
// constraint (balance >= 0) is the backstop.
func (p *PostgresStore) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var remaining int64
	err := p.db.QueryRowContext(ctx, `
		UPDATE credit_accounts SET
			balance    = balance - $2,
			updated_at = NOW()
		WHERE user_id = $1 AND balance >= $2
		RETURNING balance
	`, userID, amount).Scan(&remaining)

	if err == sql.ErrNoRows {
		// No row matched: account absent or balance too low. Either way the
		// debit is denied with no mutation.
		return 0, ErrInsufficientBalance
	}
	if err != nil {
		return 0, fmt.Errorf("failed to debit account: %w", err)
	}
	return remaining, nil
}

// creditSQL is the upsert-increment shared by Credit and CreditInTx.
const creditSQL = `
	INSERT INTO credit_accounts (user_id, balance, updated_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (user_id) DO UPDATE SET
		balance    = credit_accounts.balance + $2,
		updated_at = NOW()
	RETURNING balance
`

// CreditInTx applies the balance upsert inside a caller-owned transaction and
// returns the resulting balance. The reconciler uses this so that admission,
// credit, and journal append commit or roll back together.
func CreditInTx(ctx context.Context, tx *sql.Tx, userID string, panels int64) (int64, error) {
	if panels <= 0 {
		return 0, ErrInvalidAmount
	}
	var balance int64
	if err := tx.QueryRowContext(ctx, creditSQL, userID, panels).Scan(&balance); err != nil {
		return 0, fmt.Errorf("failed to credit account: %w", err)
	}
	return balance, nil
}

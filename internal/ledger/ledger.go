// Package ledger tracks prepaid panel-credit balances.
//
// Flow:
//  1. A Stripe checkout completes and the reconciler credits the buyer
//  2. Feature code calls TrySpend before generating a panel
//  3. The store enforces balance >= 0 with a single conditional decrement
//
// The balance is the one piece of mutable shared state in the system; all
// mutation goes through the store's two atomic primitives (upsert-increment,
// conditional decrement). Callers never read-modify-write a balance.
package ledger

import (
	"context"
	"errors"

	"github.com/inkpanel/panelpay/internal/logging"
	"github.com/inkpanel/panelpay/internal/metrics"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// Store persists credit accounts. Both implementations must make Credit and
// Debit atomic: concurrent debits for the same user must never both succeed
// past the available balance.
type Store interface {
	// GetAccount returns the account, or a zero-balance account if the user
	// has never been credited.
	GetAccount(ctx context.Context, userID string) (*Account, error)

	// Credit adds panels to the account, creating it if absent.
	// panels must be positive.
	Credit(ctx context.Context, userID string, panels int64) error

	// Debit subtracts amount only if balance >= amount, returning the
	// remaining balance. Returns ErrInsufficientBalance otherwise (an absent
	// account reads as balance 0).
	Debit(ctx context.Context, userID string, amount int64) (int64, error)
}

// Notifier receives balance-change notifications. Failures are the
// notifier's problem; the ledger never blocks on it.
type Notifier interface {
	BalanceChanged(userID string, balance int64)
}

// Ledger is the consumption-side service over a credit account store.
type Ledger struct {
	store    Store
	notifier Notifier // optional
}

// New creates a ledger over the given store.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// SetNotifier attaches a balance-change notifier (e.g. the realtime hub).
func (l *Ledger) SetNotifier(n Notifier) {
	l.notifier = n
}

// Balance returns the user's current panel balance. Unknown users have
// balance zero.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	acct, err := l.store.GetAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// TrySpend atomically consumes amount panels from the user's balance.
// Returns (false, nil) when the balance is insufficient; callers gate
// metered work on the boolean rather than treating it as an error.
func (l *Ledger) TrySpend(ctx context.Context, userID string, amount int64) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidAmount
	}

	remaining, err := l.store.Debit(ctx, userID, amount)
	if errors.Is(err, ErrInsufficientBalance) {
		metrics.SpendDeniedTotal.Inc()
		return false, nil
	}
	if err != nil {
		return false, err
	}

	metrics.PanelsSpentTotal.Add(float64(amount))
	logging.L(ctx).Debug("panels spent", "user_id", userID, "amount", amount, "remaining", remaining)

	if l.notifier != nil {
		l.notifier.BalanceChanged(userID, remaining)
	}
	return true, nil
}

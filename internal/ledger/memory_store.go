package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory account store for demo/development mode.
// The mutex serializes mutations the way the database's atomic statements do.
type MemoryStore struct {
	accounts map[string]*Account
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory account store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*Account)}
}

func (m *MemoryStore) GetAccount(ctx context.Context, userID string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if acct, ok := m.accounts[userID]; ok {
		cp := *acct
		return &cp, nil
	}
	return &Account{UserID: userID, Balance: 0, UpdatedAt: time.Now()}, nil
}

func (m *MemoryStore) Credit(ctx context.Context, userID string, panels int64) error {
	if panels <= 0 {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.creditLocked(userID, panels)
	return nil
}

// creditLocked applies the increment; callers must hold mu.
func (m *MemoryStore) creditLocked(userID string, panels int64) {
	acct, ok := m.accounts[userID]
	if !ok {
		acct = &Account{UserID: userID}
		m.accounts[userID] = acct
	}
	acct.Balance += panels
	acct.UpdatedAt = time.Now()
}

// debitLocked is the conditional decrement; callers must hold mu.
func (m *MemoryStore) debitLocked(userID string, amount int64) (int64, error) {
	acct, ok := m.accounts[userID]
	if !ok || acct.Balance < amount {
		return 0, ErrInsufficientBalance
	}
	acct.Balance -= amount
	acct.UpdatedAt = time.Now()
	return acct.Balance, nil
}

func (m *MemoryStore) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debitLocked(userID, amount)
}

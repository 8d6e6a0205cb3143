package journal

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory purchase store for demo/development mode.
// Appends preserve insertion order, which stands in for created_at ordering.
type MemoryStore struct {
	records []*Purchase
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory purchase store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make([]*Purchase, 0)}
}

func (m *MemoryStore) Insert(ctx context.Context, rec *Purchase) error {
	if rec.Panels <= 0 {
		return ErrInvalidPanels
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	cp := *rec
	m.records = append(m.records, &cp)
	return nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit = clampLimit(limit)
	var result []*Purchase
	for i := len(m.records) - 1; i >= 0 && len(result) < limit; i-- {
		if m.records[i].UserID == userID {
			cp := *m.records[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MemoryStore) ListAll(ctx context.Context, limit int) ([]*Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit = clampLimit(limit)
	var result []*Purchase
	for i := len(m.records) - 1; i >= 0 && len(result) < limit; i-- {
		cp := *m.records[i]
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) FindByCharge(ctx context.Context, chargeID string) (*Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.records {
		if rec.ChargeID != nil && *rec.ChargeID == chargeID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrChargeNotFound
}

package billing

import (
	"context"
	"log/slog"
	"sync"

	"github.com/inkpanel/panelpay/internal/idgen"
	"github.com/inkpanel/panelpay/internal/journal"
	"github.com/inkpanel/panelpay/internal/ledger"
)

// MemoryStore implements Store over the in-memory ledger and journal stores
// for demo/development mode. A single mutex stands in for the database
// transaction; the failGrant hook lets tests exercise the rollback path.
//
// Rollback here is best-effort compensation, not a real transaction: the
// ledger store has its own lock, so a concurrent spend can consume panels
// between the credit and its undo. Postgres mode is the one with real
// atomicity.
type MemoryStore struct {
	events  map[string]*ProcessedEvent
	ledger  *ledger.MemoryStore
	journal *journal.MemoryStore
	mu      sync.Mutex

	// failGrant, when set, is consulted between the steps of Grant to
	// simulate a storage failure. Test hook only.
	failGrant func(stage string) error
}

// NewMemoryStore creates a billing store over in-memory ledger and journal stores.
func NewMemoryStore(l *ledger.MemoryStore, j *journal.MemoryStore) *MemoryStore {
	return &MemoryStore{
		events:  make(map[string]*ProcessedEvent),
		ledger:  l,
		journal: j,
	}
}

func (m *MemoryStore) Admit(ctx context.Context, ev *ProcessedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, seen := m.events[ev.EventID]; seen {
		return ErrDuplicateEvent
	}
	cp := *ev
	m.events[ev.EventID] = &cp
	return nil
}

func (m *MemoryStore) Grant(ctx context.Context, ev *ProcessedEvent, req GrantRequest) (*journal.Purchase, int64, error) {
	if req.Panels <= 0 {
		return nil, 0, journal.ErrInvalidPanels
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Step 1: admission.
	if ev != nil {
		if _, seen := m.events[ev.EventID]; seen {
			return nil, 0, ErrDuplicateEvent
		}
		cp := *ev
		m.events[ev.EventID] = &cp
	}

	undoAdmission := func() {
		if ev != nil {
			delete(m.events, ev.EventID)
		}
	}

	if err := m.fail("after_admit"); err != nil {
		undoAdmission()
		return nil, 0, err
	}

	// Step 2: balance credit.
	if err := m.ledger.Credit(ctx, req.UserID, req.Panels); err != nil {
		undoAdmission()
		return nil, 0, err
	}

	undoCredit := func() {
		if _, err := m.ledger.Debit(ctx, req.UserID, req.Panels); err != nil {
			slog.Warn("could not undo credit after failed grant, balance left inconsistent",
				"user_id", req.UserID, "panels", req.Panels, "error", err)
		}
	}

	if err := m.fail("after_credit"); err != nil {
		undoCredit()
		undoAdmission()
		return nil, 0, err
	}

	// Step 3: journal append, last so earlier steps are the only ones that
	// ever need compensating.
	rec := &journal.Purchase{
		ID:            idgen.WithPrefix("pur_"),
		UserID:        req.UserID,
		ChargeID:      req.ChargeID,
		AmountDollars: req.AmountDollars,
		Panels:        req.Panels,
		Note:          req.Note,
	}
	if err := m.journal.Insert(ctx, rec); err != nil {
		undoCredit()
		undoAdmission()
		return nil, 0, err
	}

	// Step 4: charge-id backfill on the admission record.
	if ev != nil && req.ChargeID != nil {
		m.events[ev.EventID].RelatedChargeID = req.ChargeID
	}

	acct, err := m.ledger.GetAccount(ctx, req.UserID)
	if err != nil {
		return rec, 0, nil
	}
	return rec, acct.Balance, nil
}

func (m *MemoryStore) GetEvent(ctx context.Context, eventID string) (*ProcessedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev, ok := m.events[eventID]; ok {
		cp := *ev
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryStore) fail(stage string) error {
	if m.failGrant == nil {
		return nil
	}
	return m.failGrant(stage)
}

// Package journal keeps the append-only record of completed panel grants.
//
// One checkout completion (or one manual admin grant) produces exactly one
// purchase record. Records are never updated or deleted; they are the audit
// trail behind purchase history and refund lookups.
package journal

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidPanels  = errors.New("panels granted must be positive")
	ErrChargeNotFound = errors.New("charge not found")
)

// Purchase is one completed credit grant.
type Purchase struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	ChargeID      *string   `json:"chargeId,omitempty"` // nil for manual/admin grants
	AmountDollars int64     `json:"amountDollars"`      // 0 for manual grants
	Panels        int64     `json:"panels"`             // always > 0
	Note          string    `json:"note,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Store persists purchase records. Append-only: no update or delete.
type Store interface {
	Insert(ctx context.Context, p *Purchase) error
	// ListByUser returns the user's purchases, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*Purchase, error)
	// ListAll returns all purchases, newest first (admin history view).
	ListAll(ctx context.Context, limit int) ([]*Purchase, error)
	// FindByCharge resolves a provider charge/session id to its purchase.
	FindByCharge(ctx context.Context, chargeID string) (*Purchase, error)
}

const defaultListLimit = 50

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > 500 {
		return 500
	}
	return limit
}

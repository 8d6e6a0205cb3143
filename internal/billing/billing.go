// Package billing reconciles payment-provider events into the credit ledger.
//
// Stripe delivers webhook events at-least-once and in no particular order.
// This package is the admission gate and orchestrator that turns those
// deliveries into exactly-once ledger effects:
//
//	event -> admit (unique event id) -> price -> credit + journal, atomically
//
// The processed_events uniqueness constraint is the sole dedup mechanism,
// never an in-memory cache, since webhook workers may run on many instances.
package billing

import (
	"context"
	"errors"
	"time"

	"github.com/inkpanel/panelpay/internal/journal"
)

var (
	// ErrDuplicateEvent means the event id has already been admitted.
	// Expected steady state under provider retries, never an error to log.
	ErrDuplicateEvent = errors.New("event already processed")
)

// EventCheckoutCompleted is the one provider event type that grants credits.
const EventCheckoutCompleted = "checkout.session.completed"

// ProviderEvent is the narrow, validated contract this package trusts from
// the webhook layer. Everything else in the provider payload is opaque.
type ProviderEvent struct {
	ID          string // provider-assigned event id, the idempotency key
	Type        string
	UserID      string // internal user id from checkout metadata; may be absent
	ChargeID    string // charge/session id, for refund lookups; may be absent
	AmountCents int64  // provider minor-unit total
}

// ProcessedEvent is the durable admission record for one distinct event id.
// Immutable after insert except for the backfilled charge reference.
type ProcessedEvent struct {
	EventID         string    `json:"eventId"`
	EventType       string    `json:"eventType"`
	ReceivedAt      time.Time `json:"receivedAt"`
	RelatedChargeID *string   `json:"relatedChargeId,omitempty"`
}

// GrantRequest describes one credit grant inside the atomic unit.
type GrantRequest struct {
	UserID        string
	ChargeID      *string // nil for manual grants
	AmountDollars int64
	Panels        int64
	Note          string
}

// Store persists processed events and executes the atomic grant unit.
//
// Grant must apply the admission insert (when ev is non-nil), the balance
// credit, the journal append, and the charge-id backfill as one unit: all
// visible together or not at all. A failure after admission must roll the
// admission back too, so the provider's redelivery can be processed.
type Store interface {
	// Admit records the event id without granting anything. Used for event
	// types that carry no credit and for admitted-but-unfulfillable events.
	Admit(ctx context.Context, ev *ProcessedEvent) error

	// Grant executes the atomic unit and returns the purchase record and the
	// user's resulting balance. ev may be nil (manual grants skip admission).
	Grant(ctx context.Context, ev *ProcessedEvent, req GrantRequest) (*journal.Purchase, int64, error)

	// GetEvent returns the admission record for an event id, or nil if the
	// event has never been seen.
	GetEvent(ctx context.Context, eventID string) (*ProcessedEvent, error)
}

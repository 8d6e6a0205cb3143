package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/inkpanel/panelpay/internal/audit"
	"github.com/inkpanel/panelpay/internal/journal"
	"github.com/inkpanel/panelpay/internal/metrics"
	"github.com/inkpanel/panelpay/internal/pricing"
	"github.com/inkpanel/panelpay/internal/traces"
)

var (
	ErrInvalidGrant = errors.New("invalid grant")
)

// Notifier receives push notifications after a successful grant.
type Notifier interface {
	BalanceChanged(userID string, balance int64)
	PurchaseRecorded(userID, purchaseID string, panels int64)
}

// Reconciler drives the admission state machine for provider events and is
// the only writer of credit grants.
type Reconciler struct {
	store    Store
	rule     pricing.Rule
	auditor  audit.Recorder
	notifier Notifier // optional
	logger   *slog.Logger
}

// NewReconciler creates a reconciler over the given store.
func NewReconciler(store Store, rule pricing.Rule, auditor audit.Recorder, logger *slog.Logger) *Reconciler {
	if auditor == nil {
		auditor = audit.Nop()
	}
	return &Reconciler{store: store, rule: rule, auditor: auditor, logger: logger}
}

// SetNotifier attaches a push notifier (e.g. the realtime hub).
func (r *Reconciler) SetNotifier(n Notifier) {
	r.notifier = n
}

// Handle reconciles one delivered provider event.
//
// State machine: Received -> Rejected | Duplicate | Processed | Failed.
// Duplicate and Rejected must both be acknowledged to the provider; only
// Failed asks for redelivery.
func (r *Reconciler) Handle(ctx context.Context, ev ProviderEvent) Outcome {
	ctx, span := traces.StartSpan(ctx, "billing.Handle",
		traces.EventID(ev.ID), traces.EventType(ev.Type))
	defer span.End()

	out := r.handle(ctx, ev)

	span.SetAttributes(traces.Outcome(out.Status.String()))
	metrics.PaymentEventsTotal.WithLabelValues(out.Status.String()).Inc()
	return out
}

func (r *Reconciler) handle(ctx context.Context, ev ProviderEvent) Outcome {
	// Malformed events have no valid identity to dedupe on: reject with no
	// side effects, not even an admission row.
	if ev.ID == "" || ev.Type == "" {
		return rejected("event is missing id or type")
	}

	if ev.Type != EventCheckoutCompleted {
		// Irrelevant event types are acknowledged no-ops. Admitting them
		// keeps redeliveries cheap and the processed_events table an honest
		// record of everything seen.
		return r.admitOnly(ctx, ev, "ignored event type")
	}

	if ev.UserID == "" {
		// The event has a legitimate identity, so it consumes its dedup slot:
		// redelivering it could never make it fulfillable.
		r.logger.Warn("checkout completed without user id, cannot fulfill",
			"event_id", ev.ID, "charge_id", ev.ChargeID)
		return r.admitOnly(ctx, ev, "no user id in checkout metadata")
	}

	dollars := pricing.DollarsFromCents(ev.AmountCents)
	panels := r.rule.Panels(dollars)
	if panels <= 0 {
		// Below one pack: a deliberate no-credit outcome, distinct from
		// failure. The dedup slot is consumed so there is no retry storm.
		r.logger.Warn("checkout amount below minimum pack, no panels granted",
			"event_id", ev.ID, "user_id", ev.UserID, "amount_dollars", dollars)
		return r.admitOnly(ctx, ev, "amount below minimum purchase")
	}

	var chargeID *string
	if ev.ChargeID != "" {
		chargeID = &ev.ChargeID
	}

	rec, balance, err := r.store.Grant(ctx, &ProcessedEvent{
		EventID:    ev.ID,
		EventType:  ev.Type,
		ReceivedAt: time.Now(),
	}, GrantRequest{
		UserID:        ev.UserID,
		ChargeID:      chargeID,
		AmountDollars: dollars,
		Panels:        panels,
	})
	if errors.Is(err, ErrDuplicateEvent) {
		return duplicate()
	}
	if err != nil {
		// The whole unit rolled back, admission included; redelivery is safe
		// and wanted.
		r.logger.Error("credit grant failed, event remains processable",
			"event_id", ev.ID, "user_id", ev.UserID, "error", err)
		return failed("storage failure during grant")
	}

	metrics.PanelsCreditedTotal.Add(float64(panels))
	r.auditor.Record(ctx, audit.Entry{
		Action:   "credit.grant",
		UserID:   ev.UserID,
		ChargeID: ev.ChargeID,
		Amount:   panels,
		Note:     fmt.Sprintf("checkout $%d", dollars),
	})
	if r.notifier != nil {
		r.notifier.BalanceChanged(ev.UserID, balance)
		r.notifier.PurchaseRecorded(ev.UserID, rec.ID, panels)
	}

	r.logger.Info("panels credited",
		"event_id", ev.ID, "user_id", ev.UserID,
		"amount_dollars", dollars, "panels", panels, "purchase_id", rec.ID)

	return processed("credited", rec)
}

// admitOnly consumes the event's dedup slot with no ledger effect.
func (r *Reconciler) admitOnly(ctx context.Context, ev ProviderEvent, reason string) Outcome {
	err := r.store.Admit(ctx, &ProcessedEvent{
		EventID:    ev.ID,
		EventType:  ev.Type,
		ReceivedAt: time.Now(),
	})
	if errors.Is(err, ErrDuplicateEvent) {
		return duplicate()
	}
	if err != nil {
		return failed("storage failure during admission")
	}
	return processed(reason, nil)
}

// GrantManual credits a user outside the event flow (support/compensation).
// It shares the atomic credit+journal unit but records no provider event.
func (r *Reconciler) GrantManual(ctx context.Context, userID string, panels int64, note string) (*journal.Purchase, error) {
	if userID == "" || panels <= 0 {
		return nil, ErrInvalidGrant
	}

	ctx, span := traces.StartSpan(ctx, "billing.GrantManual",
		traces.UserID(userID), traces.Panels(panels))
	defer span.End()

	rec, balance, err := r.store.Grant(ctx, nil, GrantRequest{
		UserID: userID,
		Panels: panels,
		Note:   note,
	})
	if err != nil {
		return nil, fmt.Errorf("manual grant for %s: %w", userID, err)
	}

	metrics.PanelsCreditedTotal.Add(float64(panels))
	r.auditor.Record(ctx, audit.Entry{
		Action: "credit.manual_grant",
		UserID: userID,
		Amount: panels,
		Note:   note,
	})
	if r.notifier != nil {
		r.notifier.BalanceChanged(userID, balance)
		r.notifier.PurchaseRecorded(userID, rec.ID, panels)
	}

	r.logger.Info("manual grant", "user_id", userID, "panels", panels, "note", note)
	return rec, nil
}

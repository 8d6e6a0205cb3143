// Package refund issues provider refunds for recorded purchases.
//
// A refund reverses the payment, not the credits: panels already granted
// stay granted. Clawing back credits a user may have partly spent would
// drive the balance negative or punish usage, so compensation is a support
// decision made with the manual-grant tooling, not an automatic debit.
package refund

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/inkpanel/panelpay/internal/audit"
	"github.com/inkpanel/panelpay/internal/journal"
	"github.com/inkpanel/panelpay/internal/metrics"
	"github.com/inkpanel/panelpay/internal/traces"
)

var (
	// ErrUnknownCharge means no purchase record references the charge.
	ErrUnknownCharge = errors.New("no purchase found for charge")
)

// ProviderClient issues the refund with the payment provider.
type ProviderClient interface {
	Refund(ctx context.Context, chargeID, reason string) (string, error)
}

// Result describes an issued refund.
type Result struct {
	PurchaseID       string `json:"purchaseId"`
	UserID           string `json:"userId"`
	ChargeID         string `json:"chargeId"`
	ProviderRefundID string `json:"providerRefundId"`
}

// Coordinator looks up the purchase behind a charge and refunds it.
type Coordinator struct {
	journal  journal.Store
	provider ProviderClient
	auditor  audit.Recorder
	logger   *slog.Logger
}

// NewCoordinator creates a refund coordinator.
func NewCoordinator(j journal.Store, provider ProviderClient, auditor audit.Recorder, logger *slog.Logger) *Coordinator {
	if auditor == nil {
		auditor = audit.Nop()
	}
	return &Coordinator{journal: j, provider: provider, auditor: auditor, logger: logger}
}

// Refund resolves chargeID to a recorded purchase and asks the provider to
// refund it. The provider call is not retried here; the caller sees the
// provider's error and decides.
func (c *Coordinator) Refund(ctx context.Context, chargeID, reason string) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "refund.Refund", traces.ChargeID(chargeID))
	defer span.End()

	rec, err := c.journal.FindByCharge(ctx, chargeID)
	if errors.Is(err, journal.ErrChargeNotFound) {
		metrics.RefundsTotal.WithLabelValues("unknown_charge").Inc()
		return nil, ErrUnknownCharge
	}
	if err != nil {
		return nil, fmt.Errorf("look up charge %s: %w", chargeID, err)
	}

	refundID, err := c.provider.Refund(ctx, chargeID, reason)
	if err != nil {
		metrics.RefundsTotal.WithLabelValues("provider_error").Inc()
		return nil, fmt.Errorf("provider refund for charge %s: %w", chargeID, err)
	}

	metrics.RefundsTotal.WithLabelValues("issued").Inc()
	c.auditor.Record(ctx, audit.Entry{
		Action:   "refund.issue",
		UserID:   rec.UserID,
		ChargeID: chargeID,
		Amount:   rec.Panels,
		Note:     reason,
	})
	c.logger.Info("refund issued",
		"charge_id", chargeID, "user_id", rec.UserID,
		"purchase_id", rec.ID, "provider_refund_id", refundID)

	return &Result{
		PurchaseID:       rec.ID,
		UserID:           rec.UserID,
		ChargeID:         chargeID,
		ProviderRefundID: refundID,
	}, nil
}

package refund

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpanel/panelpay/internal/journal"
)

type fakeProvider struct {
	refundID string
	err      error
	calls    []string
}

func (f *fakeProvider) Refund(ctx context.Context, chargeID, reason string) (string, error) {
	f.calls = append(f.calls, chargeID)
	return f.refundID, f.err
}

func seedPurchase(t *testing.T, j *journal.MemoryStore, chargeID string) *journal.Purchase {
	t.Helper()
	rec := &journal.Purchase{
		ID:            "pur_1",
		UserID:        "u1",
		ChargeID:      &chargeID,
		AmountDollars: 5,
		Panels:        50,
	}
	require.NoError(t, j.Insert(context.Background(), rec))
	return rec
}

func TestRefund_Issued(t *testing.T) {
	j := journal.NewMemoryStore()
	seedPurchase(t, j, "pi_1")
	provider := &fakeProvider{refundID: "re_1"}
	coord := NewCoordinator(j, provider, nil, slog.Default())

	result, err := coord.Refund(context.Background(), "pi_1", "requested_by_customer")
	require.NoError(t, err)
	assert.Equal(t, "pur_1", result.PurchaseID)
	assert.Equal(t, "u1", result.UserID)
	assert.Equal(t, "re_1", result.ProviderRefundID)
	assert.Equal(t, []string{"pi_1"}, provider.calls)
}

func TestRefund_UnknownCharge(t *testing.T) {
	j := journal.NewMemoryStore()
	provider := &fakeProvider{}
	coord := NewCoordinator(j, provider, nil, slog.Default())

	_, err := coord.Refund(context.Background(), "pi_missing", "")
	assert.ErrorIs(t, err, ErrUnknownCharge)
	// No purchase means no provider call at all.
	assert.Empty(t, provider.calls)
}

func TestRefund_ProviderError(t *testing.T) {
	j := journal.NewMemoryStore()
	seedPurchase(t, j, "pi_1")
	provider := &fakeProvider{err: errors.New("api down")}
	coord := NewCoordinator(j, provider, nil, slog.Default())

	_, err := coord.Refund(context.Background(), "pi_1", "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownCharge)
}

func TestStripeReason(t *testing.T) {
	assert.Equal(t, "duplicate", stripeReason("duplicate"))
	assert.Equal(t, "fraudulent", stripeReason("fraudulent"))
	assert.Equal(t, "requested_by_customer", stripeReason("requested_by_customer"))
	assert.Equal(t, "", stripeReason("buyer changed mind"))
	assert.Equal(t, "", stripeReason(""))
}

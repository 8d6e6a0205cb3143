package refund

import (
	"context"

	"github.com/stripe/stripe-go/v81"
	striperefund "github.com/stripe/stripe-go/v81/refund"
)

// StripeClient issues refunds through the Stripe API. The charge reference
// recorded at purchase time is the payment intent id.
type StripeClient struct{}

// NewStripeClient configures the stripe library with the secret key and
// returns a client.
func NewStripeClient(secretKey string) *StripeClient {
	stripe.Key = secretKey
	return &StripeClient{}
}

func (s *StripeClient) Refund(ctx context.Context, chargeID, reason string) (string, error) {
	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(chargeID),
	}
	if r := stripeReason(reason); r != "" {
		params.Reason = stripe.String(r)
	}

	ref, err := striperefund.New(params)
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

// stripeReason maps a free-text reason onto the fixed set Stripe accepts;
// anything else travels in the audit log only.
func stripeReason(reason string) string {
	switch reason {
	case string(stripe.RefundReasonDuplicate),
		string(stripe.RefundReasonFraudulent),
		string(stripe.RefundReasonRequestedByCustomer):
		return reason
	default:
		return ""
	}
}

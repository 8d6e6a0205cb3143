package checkout

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"

	"github.com/inkpanel/panelpay/internal/pricing"
)

// StripeCreator creates Stripe Checkout Sessions.
type StripeCreator struct {
	successURL string
	cancelURL  string
}

func NewStripeCreator(secretKey, successURL, cancelURL string) *StripeCreator {
	stripe.Key = secretKey
	return &StripeCreator{successURL: successURL, cancelURL: cancelURL}
}

func (s *StripeCreator) CreateSession(ctx context.Context, userID string, packs int64, rule pricing.Rule) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Params:            stripe.Params{Context: ctx},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(userID),
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(rule.PackPriceDollars * 100),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("Pack of %d panels", rule.PanelsPerPack)),
					},
				},
				Quantity: stripe.Int64(packs),
			},
		},
	}
	params.AddMetadata("user_id", userID)

	sess, err := session.New(params)
	if err != nil {
		return nil, err
	}
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

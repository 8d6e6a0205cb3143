// Package checkout creates provider checkout sessions for panel packs.
//
// The session carries the internal user id as client_reference_id so the
// webhook stream can attribute the completed payment back to an account.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/inkpanel/panelpay/internal/pricing"
	"github.com/inkpanel/panelpay/internal/traces"
)

var (
	ErrInvalidQuantity = errors.New("pack quantity must be positive")
)

const maxPacksPerSession = 100

// Session is the subset of the provider session the app needs: where to send
// the user, and the id we will later see back on the webhook.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// SessionCreator talks to the payment provider.
type SessionCreator interface {
	CreateSession(ctx context.Context, userID string, packs int64, rule pricing.Rule) (*Session, error)
}

// Service validates and creates checkout sessions.
type Service struct {
	creator SessionCreator
	rule    pricing.Rule
	logger  *slog.Logger
}

func NewService(creator SessionCreator, rule pricing.Rule, logger *slog.Logger) *Service {
	return &Service{creator: creator, rule: rule, logger: logger}
}

// Create starts a checkout session for the given number of packs.
func (s *Service) Create(ctx context.Context, userID string, packs int64) (*Session, error) {
	if packs <= 0 || packs > maxPacksPerSession {
		return nil, ErrInvalidQuantity
	}

	ctx, span := traces.StartSpan(ctx, "checkout.Create", traces.UserID(userID))
	defer span.End()

	session, err := s.creator.CreateSession(ctx, userID, packs, s.rule)
	if err != nil {
		return nil, fmt.Errorf("create checkout session for %s: %w", userID, err)
	}

	s.logger.Info("checkout session created",
		"user_id", userID, "packs", packs, "session_id", session.ID)
	return session, nil
}

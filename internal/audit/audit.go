// Package audit is the fire-and-forget administrative action log.
//
// The ledger core calls Record and moves on: a failed audit write is logged
// and swallowed, never allowed to affect ledger correctness. The audit trail
// is for operators, not for accounting; the purchase journal is the
// authoritative record of grants.
package audit

import (
	"context"
	"log/slog"
	"time"
)

type contextKey string

const (
	ctxActorType contextKey = "audit_actor_type"
	ctxActorID   contextKey = "audit_actor_id"
)

// WithActor attaches actor info to the context for audit logging.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	ctx = context.WithValue(ctx, ctxActorType, actorType)
	ctx = context.WithValue(ctx, ctxActorID, actorID)
	return ctx
}

func actorFromCtx(ctx context.Context) (actorType, actorID string) {
	actorType = "system"
	if v, ok := ctx.Value(ctxActorType).(string); ok {
		actorType = v
	}
	if v, ok := ctx.Value(ctxActorID).(string); ok {
		actorID = v
	}
	return
}

// Entry is one administrative action worth remembering.
type Entry struct {
	Action   string // e.g. "credit.grant", "credit.manual_grant", "refund.issue"
	UserID   string
	ChargeID string
	Amount   int64 // panels for grants, zero otherwise
	Note     string
}

// Recorder accepts audit entries. Implementations must never let a failure
// escape to the caller.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// --- Nop ---

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Entry) {}

// Nop returns a recorder that drops everything (in-memory/dev mode).
func Nop() Recorder {
	return nopRecorder{}
}

// --- Slog ---

type slogRecorder struct {
	logger *slog.Logger
}

// NewSlogRecorder returns a recorder that writes entries to the application
// log. Useful in development where there is no database.
func NewSlogRecorder(logger *slog.Logger) Recorder {
	return &slogRecorder{logger: logger}
}

func (r *slogRecorder) Record(ctx context.Context, e Entry) {
	actorType, actorID := actorFromCtx(ctx)
	r.logger.Info("audit",
		"action", e.Action,
		"actor_type", actorType,
		"actor_id", actorID,
		"user_id", e.UserID,
		"charge_id", e.ChargeID,
		"amount", e.Amount,
		"note", e.Note,
		"at", time.Now().UTC().Format(time.RFC3339),
	)
}

package billing

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/inkpanel/panelpay/internal/validation"
)

// maxWebhookBody caps the payload we are willing to read from the provider.
const maxWebhookBody = 1 << 16 // 64 KiB, Stripe events are small

// Handler provides the webhook endpoint and admin grant endpoint.
type Handler struct {
	reconciler    *Reconciler
	webhookSecret string // empty disables signature verification (dev only)
	logger        *slog.Logger
}

// NewHandler creates a new billing handler.
func NewHandler(reconciler *Reconciler, webhookSecret string, logger *slog.Logger) *Handler {
	return &Handler{reconciler: reconciler, webhookSecret: webhookSecret, logger: logger}
}

// RegisterWebhookRoutes sets up the provider-facing webhook route.
func (h *Handler) RegisterWebhookRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/stripe", h.HandleWebhook)
}

// RegisterAdminRoutes sets up admin-only billing routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/admin/grants", h.GrantManual)
}

// HandleWebhook receives a Stripe event, verifies its signature, and hands a
// narrowed ProviderEvent to the reconciler.
//
// Response contract (what makes Stripe stop or continue redelivering):
// Processed/Duplicate/Rejected -> 200; Failed -> 500.
// POST /webhooks/stripe
func (h *Handler) HandleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read payload"})
		return
	}

	var event stripe.Event
	if h.webhookSecret != "" {
		event, err = webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.webhookSecret)
		if err != nil {
			h.logger.Warn("webhook signature verification failed", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
			return
		}
	} else if err := json.Unmarshal(payload, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	outcome := h.reconciler.Handle(c.Request.Context(), providerEventFrom(&event))

	switch outcome.Status {
	case StatusProcessed:
		c.JSON(http.StatusOK, gin.H{"status": "processed"})
	case StatusDuplicate:
		// Steady state under provider retries; acknowledged, never logged as
		// an error.
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "duplicate"})
	case StatusRejected:
		// A malformed event can never become valid; acknowledge so the
		// provider stops redelivering it.
		h.logger.Warn("rejected provider event", "reason", outcome.Reason)
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": outcome.Reason})
	case StatusFailed:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "temporary failure, retry"})
	}
}

// providerEventFrom narrows a Stripe event to the fields the core trusts.
func providerEventFrom(event *stripe.Event) ProviderEvent {
	ev := ProviderEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}

	if event.Type == stripe.EventTypeCheckoutSessionCompleted && event.Data != nil {
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err == nil {
			ev.UserID = session.ClientReferenceID
			if ev.UserID == "" {
				ev.UserID = session.Metadata["user_id"]
			}
			// Prefer the payment intent as the charge reference; it is what
			// the provider refund API accepts. Fall back to the session id.
			ev.ChargeID = session.ID
			if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
				ev.ChargeID = session.PaymentIntent.ID
			}
			ev.AmountCents = session.AmountTotal
		}
	}
	return ev
}

type grantRequest struct {
	UserID string `json:"userId" binding:"required"`
	Panels int64  `json:"panels" binding:"required"`
	Note   string `json:"note"`
}

// GrantManual credits a user outside the payment flow (support tooling).
// POST /v1/admin/grants
func (h *Handler) GrantManual(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and panels are required"})
		return
	}
	if !validation.IsValidUserID(req.UserID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid userId"})
		return
	}
	note := validation.SanitizeString(req.Note, validation.MaxNoteLength)

	rec, err := h.reconciler.GrantManual(c.Request.Context(), req.UserID, req.Panels, note)
	if errors.Is(err, ErrInvalidGrant) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "panels must be positive"})
		return
	}
	if err != nil {
		h.logger.Error("manual grant failed", "user_id", req.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "grant failed"})
		return
	}

	c.JSON(http.StatusCreated, rec)
}

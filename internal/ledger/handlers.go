package ledger

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for balance reads and panel spending.
type Handler struct {
	ledger *Ledger
	logger *slog.Logger
}

// NewHandler creates a new ledger handler.
func NewHandler(ledger *Ledger, logger *slog.Logger) *Handler {
	return &Handler{ledger: ledger, logger: logger}
}

// RegisterRoutes sets up ledger routes. The spend route takes extra
// middleware so the caller can rate-limit the conditional-debit path
// without throttling balance reads.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, spendMiddleware ...gin.HandlerFunc) {
	r.GET("/users/:id/balance", h.GetBalance)
	r.POST("/users/:id/spend", append(spendMiddleware, h.Spend)...)
}

// GetBalance returns the user's current panel balance.
// GET /v1/users/:id/balance
func (h *Handler) GetBalance(c *gin.Context) {
	userID := c.Param("id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id required"})
		return
	}

	balance, err := h.ledger.Balance(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("balance lookup failed", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read balance"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"userId": userID, "balance": balance})
}

type spendRequest struct {
	Amount int64 `json:"amount"`
}

// Spend consumes panels before metered work. Defaults to one panel.
// POST /v1/users/:id/spend
func (h *Handler) Spend(c *gin.Context) {
	userID := c.Param("id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id required"})
		return
	}

	var req spendRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	if req.Amount == 0 {
		req.Amount = 1
	}

	granted, err := h.ledger.TrySpend(c.Request.Context(), userID, req.Amount)
	if errors.Is(err, ErrInvalidAmount) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		return
	}
	if err != nil {
		h.logger.Error("spend failed", "user_id", userID, "amount", req.Amount, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "spend failed"})
		return
	}

	if !granted {
		// Not an error: the caller is expected to deny the metered action.
		c.JSON(http.StatusPaymentRequired, gin.H{"granted": false, "error": "insufficient panel balance"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"granted": true})
}

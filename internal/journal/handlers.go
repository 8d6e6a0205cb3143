package journal

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for purchase history.
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler creates a new journal handler.
func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes sets up user-facing purchase history routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users/:id/purchases", h.ListByUser)
}

// RegisterAdminRoutes sets up the administrative history view.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/admin/purchases", h.ListAdmin)
	r.GET("/admin/charges/:chargeId/purchase", h.GetByCharge)
}

// ListByUser returns a user's purchase history, newest first.
// GET /v1/users/:id/purchases?limit=50
func (h *Handler) ListByUser(c *gin.Context) {
	userID := c.Param("id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id required"})
		return
	}

	records, err := h.store.ListByUser(c.Request.Context(), userID, parseLimit(c))
	if err != nil {
		h.logger.Error("purchase history lookup failed", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list purchases"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"purchases": records, "count": len(records)})
}

// ListAdmin returns purchase history across all users, or one user when
// ?userId= is given.
// GET /v1/admin/purchases?userId=&limit=100
func (h *Handler) ListAdmin(c *gin.Context) {
	var (
		records []*Purchase
		err     error
	)

	if userID := c.Query("userId"); userID != "" {
		records, err = h.store.ListByUser(c.Request.Context(), userID, parseLimit(c))
	} else {
		records, err = h.store.ListAll(c.Request.Context(), parseLimit(c))
	}
	if err != nil {
		h.logger.Error("admin purchase listing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list purchases"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"purchases": records, "count": len(records)})
}

// GetByCharge resolves a charge id to its purchase (admin refund tooling).
// GET /v1/admin/charges/:chargeId/purchase
func (h *Handler) GetByCharge(c *gin.Context) {
	chargeID := c.Param("chargeId")

	rec, err := h.store.FindByCharge(c.Request.Context(), chargeID)
	if errors.Is(err, ErrChargeNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "charge not found"})
		return
	}
	if err != nil {
		h.logger.Error("charge lookup failed", "charge_id", chargeID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	c.JSON(http.StatusOK, rec)
}

func parseLimit(c *gin.Context) int {
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return 0 // store applies its default
}

package refund

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler exposes the admin refund endpoint.
type Handler struct {
	coordinator *Coordinator
}

func NewHandler(coordinator *Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

// RegisterAdminRoutes sets up admin-only refund routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/admin/refunds", h.Create)
}

type refundRequest struct {
	ChargeID string `json:"chargeId" binding:"required"`
	Reason   string `json:"reason"`
}

// Create issues a refund for a recorded charge.
// POST /v1/admin/refunds
func (h *Handler) Create(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chargeId is required"})
		return
	}

	result, err := h.coordinator.Refund(c.Request.Context(), req.ChargeID, req.Reason)
	if errors.Is(err, ErrUnknownCharge) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no purchase found for charge"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "refund failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

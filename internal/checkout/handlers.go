package checkout

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inkpanel/panelpay/internal/validation"
)

// Handler exposes checkout session creation.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up checkout routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/checkout/sessions", h.Create)
}

type createRequest struct {
	UserID string `json:"userId" binding:"required"`
	Packs  int64  `json:"packs"`
}

// Create starts a checkout session; packs defaults to 1.
// POST /v1/checkout/sessions
func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}
	if !validation.IsValidUserID(req.UserID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid userId"})
		return
	}
	if req.Packs == 0 {
		req.Packs = 1
	}

	session, err := h.service.Create(c.Request.Context(), req.UserID, req.Packs)
	if errors.Is(err, ErrInvalidQuantity) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "packs must be between 1 and 100"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "checkout session creation failed"})
		return
	}

	c.JSON(http.StatusCreated, session)
}

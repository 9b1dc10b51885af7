package ingest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/copysentry/internal/logging"
	"github.com/mbd888/copysentry/internal/validation"
)

// Handler provides the HTTP collection endpoint for the tracking snippet.
type Handler struct {
	service *Service
}

// NewHandler creates a new ingestion handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the collection endpoint.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/collect", h.Collect)
}

// Collect ingests one visit event.
// POST /v1/collect
func (h *Handler) Collect(c *gin.Context) {
	var req CollectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must be a JSON visit event",
		})
		return
	}

	result, err := h.service.Ingest(c.Request.Context(), &req)
	if err != nil {
		var verrs validation.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_failed",
				"message": verrs.Error(),
				"fields":  verrs,
			})
			return
		}
		logging.L(c.Request.Context()).Error("visit ingestion failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "ingestion_failed",
			"message": "Failed to record visit",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":      "accepted",
		"visit_id":    result.Event.ID,
		"new_session": result.IsNewSession,
	})
}

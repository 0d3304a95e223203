package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/schooldesk/portal/internal/middleware"
	"github.com/schooldesk/portal/internal/models"
	"github.com/schooldesk/portal/internal/services"
)

// MediaHandler serves the image host signing endpoint
type MediaHandler struct {
	service services.MediaServiceInterface
}

// NewMediaHandler creates a new MediaHandler
func NewMediaHandler(service services.MediaServiceInterface) *MediaHandler {
	return &MediaHandler{service: service}
}

// Sign handles POST /api/media/signature
func (h *MediaHandler) Sign(c *gin.Context) {
	session, err := middleware.GetAccessSession(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "Unauthorized", err)
		return
	}

	var req models.MediaSignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	sig, err := h.service.Sign(c.Request.Context(), session, &req)
	if err != nil {
		respondAppError(c, err, "Failed to sign media request")
		return
	}

	c.JSON(http.StatusOK, sig)
}

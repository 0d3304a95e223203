package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	apperrors "github.com/schooldesk/portal/pkg/errors"
)

// attachError hands err to the observability middleware for the request log.
func attachError(c *gin.Context, err error) {
	if err != nil {
		_ = c.Error(err) //nolint:errcheck // returns *gin.Error, nothing to check
	}
}

func respondError(c *gin.Context, status int, message string, err error) {
	attachError(c, err)
	c.JSON(status, gin.H{"error": message})
}

// errorStatus maps the pkg/errors taxonomy to a status and a caller-safe
// message. Anything outside the taxonomy is a 500 with fallback as message.
func errorStatus(err error, fallback string) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, apperrors.ErrAccessDenied):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, apperrors.ErrTimeout):
		return http.StatusGatewayTimeout, "Upstream timed out"
	case errors.Is(err, apperrors.ErrNetwork):
		return http.StatusBadGateway, "Upstream unavailable"
	default:
		return http.StatusInternalServerError, fallback
	}
}

// respondAppError answers with the status errorStatus picks for err.
func respondAppError(c *gin.Context, err error, fallback string) {
	status, message := errorStatus(err, fallback)
	respondError(c, status, message, err)
}

// respondBindError answers a failed ShouldBindJSON: field details for
// validation failures, a generic message for unreadable bodies.
func respondBindError(c *gin.Context, err error) {
	attachError(c, err)

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": fieldErrors(validationErrs)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
}

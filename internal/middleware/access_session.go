package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/schooldesk/portal/internal/accesscookie"
	"github.com/schooldesk/portal/internal/models"
	"github.com/schooldesk/portal/pkg/jwt"
)

// AccessSessionContextKey is the key used to store the validated session in
// the gin context.
const AccessSessionContextKey = "access_session"

var (
	ErrSessionNotFound = errors.New("session not found in context")
	ErrInvalidSession  = errors.New("invalid session type")
)

// AccessSessionMiddleware protects gateway API endpoints. Unlike the route
// guard it answers with JSON 401 instead of redirecting, since API callers
// are not browsers navigating to a page. The token is taken from the access
// cookie, falling back to an Authorization bearer header.
func AccessSessionMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			_ = c.Error(fmt.Errorf("missing access token")) //nolint:errcheck
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		session, err := validator.Validate(token)
		if err != nil {
			_ = c.Error(fmt.Errorf("invalid access token: %w", err)) //nolint:errcheck

			if errors.Is(err, jwt.ErrExpiredToken) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			}
			c.Abort()
			return
		}

		if session.UserID == "" {
			_ = c.Error(fmt.Errorf("access token carries no identity")) //nolint:errcheck
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		c.Set(AccessSessionContextKey, session)
		c.Next()
	}
}

// GetAccessSession extracts the session stored by the guard or by
// AccessSessionMiddleware.
func GetAccessSession(c *gin.Context) (*models.AccessSession, error) {
	val, exists := c.Get(AccessSessionContextKey)
	if !exists {
		return nil, ErrSessionNotFound
	}

	session, ok := val.(*models.AccessSession)
	if !ok {
		return nil, ErrInvalidSession
	}

	return session, nil
}

func bearerToken(c *gin.Context) string {
	if cookie, err := c.Cookie(accesscookie.Name); err == nil && cookie != "" {
		return cookie
	}

	const prefix = "Bearer "
	header := c.GetHeader("Authorization")
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

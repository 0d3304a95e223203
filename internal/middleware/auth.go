package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/schooldesk/portal/pkg/jwt"
	"github.com/schooldesk/portal/pkg/logger"
	"go.uber.org/zap"
)

// MetricsTokenHeader carries the scrape token for the metrics endpoint.
const MetricsTokenHeader = "X-Metrics-Token" //nolint:gosec // header name, not a credential

// StaticTokenMiddleware admits requests whose header value matches one of
// validTokens. Used for operator endpoints such as metrics scraping.
func StaticTokenMiddleware(header string, log *zap.Logger, validTokens ...string) gin.HandlerFunc {
	log = logger.OrNop(log)

	return func(c *gin.Context) {
		token := c.GetHeader(header)

		if token == "" {
			log.Warn("Missing authentication token",
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
			)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing authentication token"})
			c.Abort()
			return
		}

		for _, validToken := range validTokens {
			if jwt.TimingSafeCompare(token, validToken) {
				c.Next()
				return
			}
		}

		log.Warn("Invalid authentication token",
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
		)
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid authentication token"})
		c.Abort()
	}
}

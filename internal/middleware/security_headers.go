package middleware

import (
	"github.com/gin-gonic/gin"
)

// GuardHeaders are attached to every page response the route guard forwards.
// Static assets and API calls never receive them.
var GuardHeaders = map[string]string{
	// Edge caches must not serve a page decided for another visitor
	"X-Middleware-Cache": "no-cache",

	// Prevents MIME type sniffing
	"X-Content-Type-Options": "nosniff",

	// Prevents clickjacking attacks
	"X-Frame-Options": "DENY",

	"Referrer-Policy": "strict-origin-when-cross-origin",
}

// applyGuardHeaders writes GuardHeaders to the response.
func applyGuardHeaders(c *gin.Context) {
	for name, value := range GuardHeaders {
		c.Header(name, value)
	}
}

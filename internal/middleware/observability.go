package middleware

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/schooldesk/portal/internal/routes"
	"github.com/schooldesk/portal/pkg/logger"
	"github.com/schooldesk/portal/pkg/metrics"
	"go.uber.org/zap"
)

// sensitiveQueryParams never reach the request log.
var sensitiveQueryParams = map[string]bool{
	"token": true, "access_token": true, "refresh_token": true, "reset_token": true,
	"otp": true, "code": true, "password": true, "secret": true, "key": true,
}

// ObservabilityMiddleware records request metrics and writes one log line per
// request. Proxied traffic has no gin route, so it is labelled by the route
// class of its path to keep metric cardinality bounded.
func ObservabilityMiddleware(log *zap.Logger) gin.HandlerFunc {
	log = logger.OrNop(log)

	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		active := metrics.ActiveRequests.WithLabelValues(method)
		active.Inc()
		defer active.Dec()

		c.Next()

		route := routeLabel(c)
		status := c.Writer.Status()
		duration := metrics.MeasureDuration(start)
		statusLabel := strconv.Itoa(status)

		metrics.HTTPRequestDuration.WithLabelValues(method, route, statusLabel).Observe(duration)
		metrics.HTTPRequestTotal.WithLabelValues(method, route, statusLabel).Inc()

		logger.LogHTTPRequest(log, method, c.Request.URL.Path, status, duration, requestFields(c, route, status)...)
	}
}

func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "proxy:" + string(routes.Classify(c.Request.URL.Path))
}

func requestFields(c *gin.Context, route string, status int) []zap.Field {
	fields := []zap.Field{
		zap.String("route", route),
		zap.String("client_ip", c.ClientIP()),
		zap.String("user_agent", c.Request.UserAgent()),
		zap.Int("response_size", c.Writer.Size()),
	}

	// Guard redirects carry the login target
	if status >= 300 && status < 400 {
		if location := c.Writer.Header().Get("Location"); location != "" {
			fields = append(fields, zap.String("location", location))
		}
	}

	if status >= 400 {
		if query := sanitizeQuery(c.Request.URL.Query()); len(query) > 0 {
			fields = append(fields, zap.Any("query_params", query))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.String()))
		}
	}

	return fields
}

func sanitizeQuery(query url.Values) map[string]string {
	sanitized := make(map[string]string, len(query))
	for k, v := range query {
		if len(v) > 0 && !sensitiveQueryParams[strings.ToLower(k)] {
			sanitized[k] = v[0]
		}
	}
	return sanitized
}

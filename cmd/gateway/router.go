package main

import (
	"io"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schooldesk/portal/internal/handlers"
	"github.com/schooldesk/portal/internal/middleware"
	"github.com/schooldesk/portal/internal/proxy"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// routerDeps is everything the gateway router is built from.
type routerDeps struct {
	ServiceName    string
	AllowedOrigins []string
	MetricsToken   string

	Validator    middleware.TokenValidator
	Upstreams    *proxy.Upstreams
	HealthChecks map[string]handlers.HealthCheck
	FrontendLogs io.Writer

	// Media is nil when the signing endpoint is not mounted.
	Media            *handlers.MediaHandler
	MediaRateLimiter *middleware.RateLimiter

	Log *zap.Logger
}

const (
	mediaBodyLimit = 16 * 1024
	logsBodyLimit  = 1024 * 1024
)

func newRouter(deps routerDeps) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(deps.ServiceName))
	router.Use(middleware.ObservabilityMiddleware(deps.Log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     deps.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-CSRF-Token", "traceparent", "tracestate"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true, // the access cookie rides on API calls
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.RouteGuardMiddleware(deps.Validator, deps.Log))

	api := router.Group("/api")

	api.GET("/healthcheck", handlers.NewHealthHandler(deps.HealthChecks).Healthcheck)

	metricsHandlers := []gin.HandlerFunc{}
	if deps.MetricsToken != "" {
		metricsHandlers = append(metricsHandlers, middleware.StaticTokenMiddleware(middleware.MetricsTokenHeader, deps.Log, deps.MetricsToken))
	}
	metricsHandlers = append(metricsHandlers, gin.WrapH(promhttp.Handler()))
	api.GET("/metrics", metricsHandlers...)

	if deps.FrontendLogs != nil {
		logsHandler := handlers.NewLogsHandler(deps.FrontendLogs, deps.Log)
		api.POST("/logs", middleware.BodySizeLimitMiddleware(logsBodyLimit), logsHandler.ReceiveFrontendLogs)
	}

	if deps.Media != nil {
		api.POST("/media/signature",
			deps.MediaRateLimiter.Middleware(),
			middleware.BodySizeLimitMiddleware(mediaBodyLimit),
			middleware.AccessSessionMiddleware(deps.Validator),
			deps.Media.Sign)
	}

	router.NoRoute(deps.Upstreams.Handler())

	return router
}

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/schooldesk/portal/config"
	"github.com/schooldesk/portal/internal/handlers"
	"github.com/schooldesk/portal/internal/middleware"
	"github.com/schooldesk/portal/internal/proxy"
	"github.com/schooldesk/portal/internal/repository"
	"github.com/schooldesk/portal/internal/services"
	"github.com/schooldesk/portal/pkg/db"
	"github.com/schooldesk/portal/pkg/jwt"
	"github.com/schooldesk/portal/pkg/logger"
	"github.com/schooldesk/portal/pkg/metrics"
	"github.com/schooldesk/portal/pkg/objectstore"
	"github.com/schooldesk/portal/pkg/profiling"
	"github.com/schooldesk/portal/pkg/tracing"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		LogDir:      cfg.Logging.Dir,
		Environment: cfg.Server.AppEnv,
		ServiceName: cfg.Observability.ServiceName,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync(log)

	if err := run(cfg, log); err != nil {
		log.Error("Gateway stopped with error", zap.Error(err))
		logger.Sync(log)
		os.Exit(1) //nolint:gocritic // exitAfterDefer: logger flushed above
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("Starting portal gateway",
		zap.String("version", cfg.Observability.ServiceVersion),
		zap.String("environment", cfg.Server.AppEnv),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize distributed tracing
	tracerShutdown, err := tracing.InitTracer(tracing.Options{
		ServiceName:       cfg.Observability.ServiceName,
		ServiceNamespace:  cfg.Observability.ServiceNamespace,
		ServiceVersion:    cfg.Observability.ServiceVersion,
		ServiceInstanceID: cfg.Observability.ServiceInstanceID,
		Environment:       cfg.Server.AppEnv,
		Endpoint:          cfg.Observability.ExporterEndpoint,
	}, log)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tracerShutdown(shutdownCtx); shutdownErr != nil {
			log.Error("Failed to shutdown tracer", zap.Error(shutdownErr))
		}
	}()

	stopProfiler, err := profiling.InitProfiler(cfg.Profiling, profiling.Identity{
		ServiceName: cfg.Observability.ServiceName,
		Namespace:   cfg.Observability.ServiceNamespace,
		Version:     cfg.Observability.ServiceVersion,
		InstanceID:  cfg.Observability.ServiceInstanceID,
		Environment: cfg.Server.AppEnv,
	}, log)
	if err != nil {
		return fmt.Errorf("initialize profiler: %w", err)
	}
	defer stopProfiler()

	metrics.RecordInfrastructureMetrics(ctx.Done())

	validator := tokenValidator(cfg, log)

	upstreams, err := proxy.New(cfg.Upstream.FrontendURL, cfg.Upstream.BackendURL, nil, log)
	if err != nil {
		return err
	}

	deps := routerDeps{
		ServiceName:    cfg.Observability.ServiceName,
		AllowedOrigins: allowedOrigins(cfg),
		MetricsToken:   cfg.Server.MetricsToken,
		Validator:      validator,
		Upstreams:      upstreams,
		HealthChecks:   map[string]handlers.HealthCheck{},
		Log:            log,
	}

	if cfg.Logging.Dir != "" {
		sink, err := logger.NewRotatingFile(cfg.Logging.Dir, "frontend.log")
		if err != nil {
			return err
		}
		defer sink.Close()
		deps.FrontendLogs = sink
	}

	pool, closeMedia, err := setupMedia(ctx, cfg, log, &deps)
	if err != nil {
		return err
	}
	defer closeMedia()
	if pool != nil {
		deps.HealthChecks["database"] = pool.Ping
	}

	gin.SetMode(cfg.Server.GinMode)
	router := newRouter(deps)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // SECURITY: 1 MB max header size
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server started", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server exited")
	return nil
}

// tokenValidator verifies signatures when a secret is configured and falls
// back to the presence check otherwise.
func tokenValidator(cfg *config.Config, log *zap.Logger) middleware.TokenValidator {
	if cfg.SignedTokens() {
		return middleware.NewSignedTokenValidator(jwt.NewTokenManager(cfg.AccessToken.Secret, cfg.AccessToken.Issuer, 0))
	}
	log.Warn("ACCESS_TOKEN_SECRET not set: the route guard only checks that the access cookie is present")
	return middleware.PresenceValidator{}
}

func allowedOrigins(cfg *config.Config) []string {
	origins := append([]string{}, cfg.Server.AllowedOrigins...)
	// Allow localhost in development
	if cfg.IsDevelopment() {
		origins = append(origins, "http://localhost:3000", "http://127.0.0.1:3000")
	}
	return origins
}

// setupMedia mounts the signing endpoint when the bucket, the database and
// token signatures are all configured. The returned close function is
// always safe to call.
func setupMedia(ctx context.Context, cfg *config.Config, log *zap.Logger, deps *routerDeps) (*pgxpool.Pool, func(), error) {
	noop := func() {}

	if !cfg.MediaEnabled() {
		log.Warn("Media signing disabled: image bucket or DATABASE_URL not configured")
		return nil, noop, nil
	}
	if !cfg.SignedTokens() {
		log.Warn("Media signing disabled: it needs verified identities, set ACCESS_TOKEN_SECRET")
		return nil, noop, nil
	}

	store, err := objectstore.NewStorageClient(objectstore.Config{
		AccessKeyID:     cfg.MediaStorage.AccessKeyID,
		SecretAccessKey: cfg.MediaStorage.SecretAccessKey,
		BucketName:      cfg.MediaStorage.BucketName,
		Endpoint:        cfg.MediaStorage.Endpoint,
		Region:          cfg.MediaStorage.Region,
		PublicBaseURL:   cfg.MediaStorage.PublicBaseURL,
		SignatureTTL:    cfg.MediaStorage.SignatureTTL,
	}, log)
	if err != nil {
		return nil, noop, err
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("initialize database connection pool: %w", err)
	}
	sqlDB := db.OpenDB(pool)

	// NOTE: migrations run separately via cmd/migrate
	mediaService := services.NewMediaService(repository.NewMediaRepository(sqlDB), store, log)
	deps.Media = handlers.NewMediaHandler(mediaService)
	deps.MediaRateLimiter = middleware.NewRateLimiter(ctx, rate.Limit(cfg.Server.RateLimitRPS), cfg.Server.RateLimitBurst)

	closeFn := func() {
		closeQuietly(sqlDB, log)
		db.Close(pool)
	}
	return pool, closeFn, nil
}

func closeQuietly(c io.Closer, log *zap.Logger) {
	if err := c.Close(); err != nil {
		log.Warn("Close failed", zap.Error(err))
	}
}

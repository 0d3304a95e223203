package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the gateway configuration
//
//nolint:govet // Field alignment optimization would reduce readability
type Config struct {
	Server        ServerConfig
	Upstream      UpstreamConfig
	Database      DatabaseConfig
	MediaStorage  MediaStorageConfig
	AccessToken   AccessTokenConfig
	Logging       LoggingConfig
	Observability ObservabilityConfig
	Profiling     ProfilingConfig
}

type ServerConfig struct {
	Port           string
	GinMode        string
	AppEnv         string
	AllowedOrigins []string
	MetricsToken   string
	RateLimitRPS   float64
	RateLimitBurst int
}

// UpstreamConfig points at the rendered web application and the school backend API.
type UpstreamConfig struct {
	FrontendURL string
	BackendURL  string
}

type DatabaseConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
}

// MediaStorageConfig configures the S3-compatible bucket that hosts profile images.
type MediaStorageConfig struct {
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Endpoint        string
	Region          string
	PublicBaseURL   string
	SignatureTTL    time.Duration
}

// AccessTokenConfig controls how the route guard validates the access cookie.
type AccessTokenConfig struct {
	Secret string
	Issuer string
}

type LoggingConfig struct {
	Level string
	Dir   string
}

type ObservabilityConfig struct {
	ExporterEndpoint  string
	ServiceName       string
	ServiceNamespace  string
	ServiceVersion    string
	ServiceInstanceID string
}

type ProfilingConfig struct {
	Enabled               bool
	Endpoint              string
	AppName               string
	SampleTypes           string
	UploadIntervalSeconds int
}

// Load reads gateway configuration from environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("ALLOWED_CORS_ORIGINS", "https://schooldesk.app")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DIR", "/app/logs")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("MEDIA_STORAGE_REGION", "us-east-1")
	v.SetDefault("MEDIA_SIGNATURE_TTL", "10m")
	v.SetDefault("MEDIA_RATE_LIMIT_RPS", 1)
	v.SetDefault("MEDIA_RATE_LIMIT_BURST", 5)
	v.SetDefault("ACCESS_TOKEN_ISSUER", "schooldesk-api")
	v.SetDefault("O11Y_SERVICE_NAME", "portal-gateway")
	v.SetDefault("O11Y_SERVICE_NAMESPACE", "schooldesk")
	v.SetDefault("O11Y_SERVICE_VERSION", "1.0.0")
	v.SetDefault("O11Y_PROFILING_ENABLED", false)
	v.SetDefault("O11Y_PROFILING_APP_NAME", "portal-gateway")
	v.SetDefault("O11Y_PROFILING_SAMPLE_TYPES", "cpu,alloc_space,goroutines")
	v.SetDefault("O11Y_PROFILING_UPLOAD_INTERVAL_SECONDS", 15)

	// Automatically read environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	_ = v.ReadInConfig() //nolint:errcheck // Ignore error if .env file doesn't exist

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("PORT"),
			GinMode:        v.GetString("GIN_MODE"),
			AppEnv:         v.GetString("APP_ENV"),
			AllowedOrigins: splitList(v.GetString("ALLOWED_CORS_ORIGINS")),
			MetricsToken:   v.GetString("METRICS_AUTH_TOKEN"),
			RateLimitRPS:   v.GetFloat64("MEDIA_RATE_LIMIT_RPS"),
			RateLimitBurst: v.GetInt("MEDIA_RATE_LIMIT_BURST"),
		},
		Upstream: UpstreamConfig{
			FrontendURL: v.GetString("FRONTEND_URL"),
			BackendURL:  v.GetString("BACKEND_API_URL"),
		},
		Database: DatabaseConfig{
			URL:      v.GetString("DATABASE_URL"),
			MaxConns: v.GetInt32("DB_MAX_CONNS"),
			MinConns: v.GetInt32("DB_MIN_CONNS"),
		},
		MediaStorage: MediaStorageConfig{
			AccessKeyID:     v.GetString("MEDIA_STORAGE_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("MEDIA_STORAGE_SECRET_ACCESS_KEY"),
			BucketName:      v.GetString("MEDIA_STORAGE_BUCKET_NAME"),
			Endpoint:        v.GetString("MEDIA_STORAGE_ENDPOINT"),
			Region:          v.GetString("MEDIA_STORAGE_REGION"),
			PublicBaseURL:   v.GetString("MEDIA_PUBLIC_BASE_URL"),
			SignatureTTL:    v.GetDuration("MEDIA_SIGNATURE_TTL"),
		},
		AccessToken: AccessTokenConfig{
			Secret: v.GetString("ACCESS_TOKEN_SECRET"),
			Issuer: v.GetString("ACCESS_TOKEN_ISSUER"),
		},
		Logging: LoggingConfig{
			Level: v.GetString("LOG_LEVEL"),
			Dir:   v.GetString("LOG_DIR"),
		},
		Observability: ObservabilityConfig{
			ExporterEndpoint:  v.GetString("O11Y_EXPORTER_ENDPOINT"),
			ServiceName:       v.GetString("O11Y_SERVICE_NAME"),
			ServiceNamespace:  v.GetString("O11Y_SERVICE_NAMESPACE"),
			ServiceVersion:    v.GetString("O11Y_SERVICE_VERSION"),
			ServiceInstanceID: v.GetString("SERVICE_INSTANCE_ID"),
		},
		Profiling: ProfilingConfig{
			Enabled:               v.GetBool("O11Y_PROFILING_ENABLED"),
			Endpoint:              v.GetString("O11Y_PROFILING_ENDPOINT"),
			AppName:               v.GetString("O11Y_PROFILING_APP_NAME"),
			SampleTypes:           v.GetString("O11Y_PROFILING_SAMPLE_TYPES"),
			UploadIntervalSeconds: v.GetInt("O11Y_PROFILING_UPLOAD_INTERVAL_SECONDS"),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.Upstream.FrontendURL == "" {
		return fmt.Errorf("FRONTEND_URL is required")
	}
	if c.Upstream.BackendURL == "" {
		return fmt.Errorf("BACKEND_API_URL is required")
	}
	if len(c.Server.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_CORS_ORIGINS is required")
	}
	if c.Profiling.Enabled && c.Profiling.Endpoint == "" {
		return fmt.Errorf("O11Y_PROFILING_ENDPOINT is required when profiling is enabled")
	}

	return nil
}

// MediaEnabled reports whether the media signing endpoint can be mounted.
func (c *Config) MediaEnabled() bool {
	return c.MediaStorage.BucketName != "" &&
		c.MediaStorage.AccessKeyID != "" &&
		c.MediaStorage.SecretAccessKey != "" &&
		c.Database.URL != ""
}

// SignedTokens reports whether the guard can verify access token signatures.
func (c *Config) SignedTokens() bool {
	return c.AccessToken.Secret != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.AppEnv == "development" || c.Server.GinMode == "debug"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.AppEnv == "production"
}

func splitList(s string) []string {
	out := []string{}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

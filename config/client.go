package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ClientConfig holds portalctl configuration
type ClientConfig struct {
	GatewayURL      string
	StateDir        string
	RedisURL        string
	RefreshInterval time.Duration
	RequestTimeout  time.Duration
	Upload          UploadConfig
	Logging         LoggingConfig
	AppEnv          string
}

// UploadConfig holds the image upload limits used by the client.
type UploadConfig struct {
	Timeout         time.Duration
	MaxSizeBytes    int64
	DeleteRetries   int
	DeleteBaseDelay time.Duration
}

// LoadClient reads client configuration from PORTAL_* environment variables
// and, when configFile is not empty, from that file.
func LoadClient(configFile string) (*ClientConfig, error) {
	v := viper.New()

	v.SetDefault("GATEWAY_URL", "http://localhost:8080")
	v.SetDefault("STATE_DIR", defaultStateDir())
	v.SetDefault("REFRESH_INTERVAL", "5m")
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("UPLOAD_TIMEOUT", "30s")
	v.SetDefault("UPLOAD_MAX_SIZE_BYTES", 5*1024*1024)
	v.SetDefault("DELETE_RETRIES", 3)
	v.SetDefault("DELETE_BASE_DELAY", "500ms")
	v.SetDefault("LOG_LEVEL", "warn")
	v.SetDefault("APP_ENV", "development")

	v.SetEnvPrefix("PORTAL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	cfg := &ClientConfig{
		GatewayURL:      strings.TrimRight(v.GetString("GATEWAY_URL"), "/"),
		StateDir:        v.GetString("STATE_DIR"),
		RedisURL:        v.GetString("REDIS_URL"),
		RefreshInterval: v.GetDuration("REFRESH_INTERVAL"),
		RequestTimeout:  v.GetDuration("REQUEST_TIMEOUT"),
		Upload: UploadConfig{
			Timeout:         v.GetDuration("UPLOAD_TIMEOUT"),
			MaxSizeBytes:    v.GetInt64("UPLOAD_MAX_SIZE_BYTES"),
			DeleteRetries:   v.GetInt("DELETE_RETRIES"),
			DeleteBaseDelay: v.GetDuration("DELETE_BASE_DELAY"),
		},
		Logging: LoggingConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		AppEnv: v.GetString("APP_ENV"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required client configuration values are set
func (c *ClientConfig) Validate() error {
	if c.GatewayURL == "" {
		return fmt.Errorf("PORTAL_GATEWAY_URL is required")
	}
	if c.StateDir == "" && c.RedisURL == "" {
		return fmt.Errorf("PORTAL_STATE_DIR or PORTAL_REDIS_URL is required")
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("PORTAL_REFRESH_INTERVAL must be positive")
	}
	if c.Upload.Timeout <= 0 {
		return fmt.Errorf("PORTAL_UPLOAD_TIMEOUT must be positive")
	}
	return nil
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "portalctl")
}

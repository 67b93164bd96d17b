// Package config loads registry configuration from an optional YAML file
// and the environment, with environment variables taking precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cratehub/crate/pkg/observability"
	"github.com/cratehub/crate/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Storage storage.Config `yaml:"storage"`
	Auth    AuthConfig     `yaml:"auth"`
	Webhook WebhookConfig  `yaml:"webhook"`

	Observability ObservabilityConfig `yaml:"observability"`

	// PublicBaseURL overrides the request host when building canonical
	// download URLs, for deployments behind a proxy.
	PublicBaseURL string `yaml:"public_base_url"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxUploadBytes caps the size of one uploaded archive.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// AuthConfig selects and configures the identity provider.
type AuthConfig struct {
	Provider string `yaml:"provider"` // "static" or "auth0"

	// Static provider: "user:password,user:password"
	StaticUsers string `yaml:"static_users"`

	// Auth0 provider
	Auth0Domain   string `yaml:"auth0_domain"`
	Auth0ClientID string `yaml:"auth0_client_id"`
}

// WebhookConfig configures the upload notification sink.
type WebhookConfig struct {
	URL string `yaml:"url"` // empty disables notifications
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "6096",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxUploadBytes:  128 << 20,
		},
		Storage: storage.DefaultConfig(),
		Auth: AuthConfig{
			Provider: "static",
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			MetricsEnabled: true,
		},
	}
}

// LoadConfig loads configuration: defaults, then the YAML file named by
// CRATE_CONFIG (if any), then environment overrides.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("CRATE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Host, "CRATE_HOST")
	setString(&c.Server.Port, "CRATE_PORT")
	setDuration(&c.Server.ReadTimeout, "CRATE_READ_TIMEOUT")
	setDuration(&c.Server.WriteTimeout, "CRATE_WRITE_TIMEOUT")
	setDuration(&c.Server.IdleTimeout, "CRATE_IDLE_TIMEOUT")
	setDuration(&c.Server.ShutdownTimeout, "CRATE_SHUTDOWN_TIMEOUT")
	setInt64(&c.Server.MaxUploadBytes, "CRATE_MAX_UPLOAD_BYTES")

	setString(&c.Storage.Type, "CRATE_STORAGE_TYPE")
	setString(&c.Storage.LocalRoot, "CRATE_STORAGE_ROOT")
	setString(&c.Storage.S3Bucket, "CRATE_S3_BUCKET")
	setString(&c.Storage.S3Region, "CRATE_S3_REGION")
	setString(&c.Storage.S3Endpoint, "CRATE_S3_ENDPOINT")
	setString(&c.Storage.S3PublicEndpoint, "CRATE_S3_PUBLIC_ENDPOINT")
	setString(&c.Storage.S3AccessKey, "CRATE_S3_ACCESS_KEY")
	setString(&c.Storage.S3SecretKey, "CRATE_S3_SECRET_KEY")
	setBool(&c.Storage.S3ForcePathStyle, "CRATE_S3_FORCE_PATH_STYLE")
	setBool(&c.Storage.S3AutoCreateBucket, "CRATE_S3_AUTO_CREATE_BUCKET")
	setDuration(&c.Storage.OperationTimeout, "CRATE_STORAGE_TIMEOUT")

	setString(&c.Auth.Provider, "CRATE_AUTH_PROVIDER")
	setString(&c.Auth.StaticUsers, "CRATE_AUTH_USERS")
	setString(&c.Auth.Auth0Domain, "CRATE_AUTH0_DOMAIN")
	setString(&c.Auth.Auth0ClientID, "CRATE_AUTH0_CLIENT_ID")

	setString(&c.Webhook.URL, "CRATE_WEBHOOK_URL")

	setString(&c.Observability.LogLevel, "CRATE_LOG_LEVEL")
	setBool(&c.Observability.MetricsEnabled, "CRATE_METRICS_ENABLED")

	setString(&c.PublicBaseURL, "CRATE_PUBLIC_BASE_URL")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Storage.Type {
	case "local":
		if c.Storage.LocalRoot == "" {
			return fmt.Errorf("storage root is required for local storage")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	switch c.Auth.Provider {
	case "static":
		if c.Auth.StaticUsers == "" {
			return fmt.Errorf("static users are required for static auth")
		}
	case "auth0":
		if c.Auth.Auth0Domain == "" || c.Auth.Auth0ClientID == "" {
			return fmt.Errorf("Auth0 domain and client ID are required for auth0 auth")
		}
	default:
		return fmt.Errorf("invalid auth provider: %s (must be static or auth0)", c.Auth.Provider)
	}

	return nil
}

// LogLevel parses the configured log level name.
func (c *Config) LogLevel() observability.LogLevel {
	switch strings.ToLower(c.Observability.LogLevel) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setBool(dst *bool, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = strings.ToLower(value) == "true" || value == "1"
	}
}

func setInt64(dst *int64, key string) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			*dst = parsed
		}
	}
}

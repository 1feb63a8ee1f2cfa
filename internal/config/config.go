// Package config loads configuration from environment variables. Backend
// credentials follow a dual-naming convention: a system-level name checked
// first, then the VITE_-prefixed name the bundled web UI is built with.
package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/NaveDanan/HuggingSpace/internal/logging"
)

// MissingError is returned when a required value is set under neither of
// its candidate names.
type MissingError struct {
	Primary  string
	Fallback string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing required configuration: set %s or %s", e.Primary, e.Fallback)
}

// Resolve returns the value of primary if set, else the value of fallback.
// A required value present under neither name is a configuration error.
func Resolve(primary, fallback string, required bool) (string, error) {
	if v := os.Getenv(primary); v != "" {
		logging.Debug("using environment variable", zap.String("name", primary))
		return v, nil
	}
	if v := os.Getenv(fallback); v != "" {
		logging.Info("primary environment variable unset, using fallback",
			zap.String("primary", primary),
			zap.String("fallback", fallback))
		return v, nil
	}
	if required {
		return "", &MissingError{Primary: primary, Fallback: fallback}
	}
	return "", nil
}

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Hosted platform
	PlatformURL string
	AnonKey     string

	// OAuth identity linking (optional)
	OAuthClientID     string
	OAuthClientSecret string
	OAuthIssuerURL    string
	OAuthRedirectURL  string

	// Commit store (optional; disabled when empty)
	DatabaseURL string

	// Object-store driver: "rest" (default) or "s3"
	StorageDriver string
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	S3Region      string
}

// Load reads configuration from the environment with defaults, failing
// fast when a required value is absent.
func Load() (*Config, error) {
	platformURL, err := Resolve("SUPABASE_URL", "VITE_SUPABASE_URL", true)
	if err != nil {
		return nil, err
	}
	anonKey, err := Resolve("SUPABASE_ANON_KEY", "VITE_SUPABASE_ANON_KEY", true)
	if err != nil {
		return nil, err
	}
	oauthID, _ := Resolve("OAUTH_CLIENT_ID", "VITE_OAUTH_CLIENT_ID", false)
	oauthSecret, _ := Resolve("OAUTH_CLIENT_SECRET", "VITE_OAUTH_CLIENT_SECRET", false)

	cfg := &Config{
		ListenAddr:  envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr: envOr("METRICS_ADDR", ":9090"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		LogFormat:   envOr("LOG_FORMAT", "json"),

		PlatformURL: platformURL,
		AnonKey:     anonKey,

		OAuthClientID:     oauthID,
		OAuthClientSecret: oauthSecret,
		OAuthIssuerURL:    envOr("OAUTH_ISSUER_URL", ""),
		OAuthRedirectURL:  envOr("OAUTH_REDIRECT_URL", ""),

		DatabaseURL: envOr("DATABASE_URL", ""),

		StorageDriver: envOr("STORAGE_DRIVER", "rest"),
		S3Endpoint:    envOr("S3_ENDPOINT", ""),
		S3AccessKey:   envOr("S3_ACCESS_KEY", ""),
		S3SecretKey:   envOr("S3_SECRET_KEY", ""),
		S3Region:      envOr("S3_REGION", "us-east-1"),
	}

	if cfg.StorageDriver != "rest" && cfg.StorageDriver != "s3" {
		return nil, fmt.Errorf("STORAGE_DRIVER must be \"rest\" or \"s3\", got %q", cfg.StorageDriver)
	}
	if cfg.StorageDriver == "s3" && cfg.S3Endpoint == "" {
		return nil, fmt.Errorf("S3_ENDPOINT is required when STORAGE_DRIVER=s3")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Signal provider (device/network risk enrichment)
	SignalAPIURL     string        // Base URL of the provider's server event API
	SignalAPIKey     string        // Secret key; enrichment is disabled when empty
	SignalAPITimeout time.Duration // Per-lookup timeout

	// HTTP
	AllowedOrigins []string // CORS origins for the collect + dashboard endpoints
	RateLimitRPM   int      // Collect endpoint rate limit, requests per minute per IP

	// Tracing
	OTLPEndpoint string // OTLP gRPC endpoint; tracing disabled when empty
}

// Defaults
const (
	DefaultPort          = "8080"
	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
	DefaultSignalAPIURL  = "https://api.fpjs.io"
	DefaultSignalTimeout = 3 * time.Second
	DefaultRateLimitRPM  = 600
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:      os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		SignalAPIURL:     getEnv("SIGNAL_API_URL", DefaultSignalAPIURL),
		SignalAPIKey:     os.Getenv("SIGNAL_API_KEY"), // Optional; ingestion degrades without it
		SignalAPITimeout: getEnvDuration("SIGNAL_API_TIMEOUT_MS", DefaultSignalTimeout),
		AllowedOrigins:   getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		RateLimitRPM:     int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are usable
func (c *Config) Validate() error {
	if c.SignalAPIURL == "" {
		return fmt.Errorf("SIGNAL_API_URL must not be empty")
	}
	if !strings.HasPrefix(c.SignalAPIURL, "http://") && !strings.HasPrefix(c.SignalAPIURL, "https://") {
		return fmt.Errorf("SIGNAL_API_URL must be an http(s) URL")
	}
	if c.RateLimitRPM <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must be positive")
	}
	return nil
}

// EnrichmentEnabled reports whether server-side signal lookups are configured
func (c *Config) EnrichmentEnabled() bool {
	return c.SignalAPIKey != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

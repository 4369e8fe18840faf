// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
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

	// Scoring settings
	HomeCountryCode string // Dialing prefix treated as domestic (e.g. "+91")

	// Live call sessions
	SessionIdleTimeout time.Duration // Idle window before an active session is auto-ended
	SessionSweepEvery  time.Duration // How often the idle sweeper runs

	// Voice matching
	VoiceMatchThreshold   float64 // Minimum similarity to report a match
	VoiceScammerThreshold float64 // Minimum similarity to flag a known scammer

	// Security
	WebhookSecret string // HMAC secret for signing outbound alert webhooks
	AdminSecret   string // Admin API secret
	RateLimitRPS  int

	// Tracing
	OTLPEndpoint string // OTLP gRPC endpoint (optional, tracing disabled if not set)
}

const (
	DefaultPort                  = "8080"
	DefaultEnv                   = "development"
	DefaultLogLevel              = "info"
	DefaultHomeCountryCode       = "+91"
	DefaultSessionIdleTimeout    = 120 * time.Second
	DefaultSessionSweepEvery     = 10 * time.Second
	DefaultVoiceMatchThreshold   = 0.70
	DefaultVoiceScammerThreshold = 0.80
	DefaultRateLimit             = 100
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", DefaultPort),
		Env:                   getEnv("ENV", DefaultEnv),
		LogLevel:              getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:           os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		HomeCountryCode:       getEnv("HOME_COUNTRY_CODE", DefaultHomeCountryCode),
		SessionIdleTimeout:    getEnvDuration("SESSION_IDLE_TIMEOUT", DefaultSessionIdleTimeout),
		SessionSweepEvery:     getEnvDuration("SESSION_SWEEP_EVERY", DefaultSessionSweepEvery),
		VoiceMatchThreshold:   getEnvFloat("VOICE_MATCH_THRESHOLD", DefaultVoiceMatchThreshold),
		VoiceScammerThreshold: getEnvFloat("VOICE_SCAMMER_THRESHOLD", DefaultVoiceScammerThreshold),
		WebhookSecret:         os.Getenv("WEBHOOK_SECRET"),
		AdminSecret:           os.Getenv("ADMIN_SECRET"),
		RateLimitRPS:          int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
		OTLPEndpoint:          os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are coherent
func (c *Config) Validate() error {
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive")
	}
	if c.SessionSweepEvery <= 0 {
		return fmt.Errorf("SESSION_SWEEP_EVERY must be positive")
	}
	if c.VoiceMatchThreshold <= 0 || c.VoiceMatchThreshold > 1 {
		return fmt.Errorf("VOICE_MATCH_THRESHOLD must be in (0, 1]")
	}
	if c.VoiceScammerThreshold < c.VoiceMatchThreshold || c.VoiceScammerThreshold > 1 {
		return fmt.Errorf("VOICE_SCAMMER_THRESHOLD must be in [VOICE_MATCH_THRESHOLD, 1]")
	}
	if len(c.HomeCountryCode) < 2 || c.HomeCountryCode[0] != '+' {
		return fmt.Errorf("HOME_COUNTRY_CODE must start with '+'")
	}
	return nil
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

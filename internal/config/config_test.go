package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultHomeCountryCode, cfg.HomeCountryCode)
	assert.Equal(t, DefaultSessionIdleTimeout, cfg.SessionIdleTimeout)
	assert.Equal(t, DefaultVoiceMatchThreshold, cfg.VoiceMatchThreshold)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitRPS)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "HOME_COUNTRY_CODE", "+44")
	setEnv(t, "SESSION_IDLE_TIMEOUT", "90s")
	setEnv(t, "VOICE_MATCH_THRESHOLD", "0.6")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "+44", cfg.HomeCountryCode)
	assert.Equal(t, 90*time.Second, cfg.SessionIdleTimeout)
	assert.Equal(t, 0.6, cfg.VoiceMatchThreshold)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			HomeCountryCode:       "+91",
			SessionIdleTimeout:    DefaultSessionIdleTimeout,
			SessionSweepEvery:     DefaultSessionSweepEvery,
			VoiceMatchThreshold:   0.7,
			VoiceScammerThreshold: 0.8,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid config", func(c *Config) {}, ""},
		{"zero idle timeout", func(c *Config) { c.SessionIdleTimeout = 0 }, "SESSION_IDLE_TIMEOUT"},
		{"zero sweep interval", func(c *Config) { c.SessionSweepEvery = 0 }, "SESSION_SWEEP_EVERY"},
		{"match threshold out of range", func(c *Config) { c.VoiceMatchThreshold = 1.5 }, "VOICE_MATCH_THRESHOLD"},
		{"scammer below match", func(c *Config) { c.VoiceScammerThreshold = 0.5 }, "VOICE_SCAMMER_THRESHOLD"},
		{"bad country code", func(c *Config) { c.HomeCountryCode = "91" }, "HOME_COUNTRY_CODE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvDuration(t *testing.T) {
	setEnv(t, "TEST_DUR", "45s")
	setEnv(t, "TEST_INVALID", "not_a_duration")

	assert.Equal(t, 45*time.Second, getEnvDuration("TEST_DUR", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("NONEXISTENT_VAR", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("TEST_INVALID", time.Minute)) // Falls back on parse error
}

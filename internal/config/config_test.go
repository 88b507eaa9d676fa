package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("TOKEN_TTL", "24h")
	t.Setenv("SMTP_PORT", "587")
	t.Setenv("NOTIFY_RATE_PER_MINUTE", "120")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Port, "explicitly empty values are kept")
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, 120, cfg.NotifyRatePerMinute)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TOKEN_TTL", "90m")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("NOTIFY_RATE_PER_MINUTE", "0")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 90*time.Minute, cfg.TokenTTL)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.Equal(t, 0, cfg.NotifyRatePerMinute)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad ttl", "TOKEN_TTL", "forever"},
		{"negative ttl", "TOKEN_TTL", "-1h"},
		{"bad smtp port", "SMTP_PORT", "smtp"},
		{"bad notify rate", "NOTIFY_RATE_PER_MINUTE", "lots"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TOKEN_TTL", "24h")
			t.Setenv("SMTP_PORT", "587")
			t.Setenv("NOTIFY_RATE_PER_MINUTE", "120")
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

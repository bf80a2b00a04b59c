package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TELEGRAM_BOT_TOKEN", "GEMINI_API_KEY", "LOG_LEVEL", "DEBUG", "PREFER_IPV4",
		"MEDIA_GROUP_DEBOUNCE_MS", "AUTO_RENDER_DEBOUNCE_MS", "SESSION_TTL_MINUTES",
		"MAX_CONCURRENT", "REQUEST_TIMEOUT_SECONDS", "HTTP_TIMEOUT_SECONDS",
		"GEMINI_BASE_URL", "GEMINI_API_VERSION", "GEMINI_IMAGE_MODEL",
		"GEMINI_TEXT_MODEL", "GEMINI_IMAGE_SIZE", "WEB_ADDR",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.PreferIPv4)
	assert.Equal(t, 1500*time.Millisecond, cfg.AutoRenderDebounce)
	assert.Equal(t, 60*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 4, cfg.MaxConcurrent)
	assert.Equal(t, "1K", cfg.GeminiImageSize)
	assert.Equal(t, ":8080", cfg.WebAddr)

	assert.False(t, cfg.HasCredential())
	assert.Error(t, cfg.RequireTelegram())
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", " key ")
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("AUTO_RENDER_DEBOUNCE_MS", "250")
	t.Setenv("MAX_CONCURRENT", "0")
	t.Setenv("PREFER_IPV4", "not-a-bool")
	t.Setenv("GEMINI_IMAGE_SIZE", "2k")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "key", cfg.GeminiAPIKey)
	assert.True(t, cfg.HasCredential())
	assert.NoError(t, cfg.RequireTelegram())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.AutoRenderDebounce)
	assert.Equal(t, 1, cfg.MaxConcurrent)
	assert.True(t, cfg.PreferIPv4)
	assert.Equal(t, "2K", cfg.GeminiImageSize)
}

func TestLoadRejectsImageSize(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_IMAGE_SIZE", "8K")
	_, err := Load()
	assert.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, Config{LogLevel: in}.SlogLevel(), in)
	}
}

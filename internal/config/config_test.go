package config_test

import (
	"os"
	"path/filepath"
	"strangerchat/backend/internal/config"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"LISTEN_ADDR", "JWT_SECRET", "SEARCH_TIMEOUT", "CLIENT_SEND_BUFFER", "ALLOWED_ORIGINS", "REQUIRE_TOKEN"} {
		t.Setenv(k, "")
	}

	cfg, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 72*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 256, cfg.ClientSendBuffer)
	assert.Equal(t, int64(64*1024), cfg.MaxMessageBytes)
	assert.Zero(t, cfg.SearchTimeout)
	assert.False(t, cfg.RequireToken)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Len(t, cfg.JWTSecret, 64, "a random secret is generated")
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9000")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("SEARCH_TIMEOUT", "90s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("REQUIRE_TOKEN", "true")
	t.Setenv("REDIS_DB", "3")

	cfg, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, []byte("s3cret"), cfg.JWTSecret)
	assert.Equal(t, 90*time.Second, cfg.SearchTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.RequireToken)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestFromEnvReportsEveryBadValue(t *testing.T) {
	t.Setenv("SEARCH_TIMEOUT", "soon")
	t.Setenv("CLIENT_SEND_BUFFER", "0")
	t.Setenv("REQUIRE_TOKEN", "maybe")

	_, err := config.FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEARCH_TIMEOUT")
	assert.Contains(t, err.Error(), "CLIENT_SEND_BUFFER")
	assert.Contains(t, err.Error(), "REQUIRE_TOKEN")
}

func TestLoadReadsDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("TELEGRAM_BOT_TOKEN=from-file\n"), 0o600))
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	os.Unsetenv("TELEGRAM_BOT_TOKEN")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.TelegramBotToken)
	os.Unsetenv("TELEGRAM_BOT_TOKEN")
}

func TestLoadIgnoresMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.env"))
	assert.NoError(t, err)
}

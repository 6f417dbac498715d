package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeTOML(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 1.0, cfg.Engine.MinStake)
	assert.Equal(t, 1.0, cfg.Engine.SingleLegTolerancePct)
	assert.Equal(t, 3.0, cfg.Engine.MultiLegTolerancePct)
	assert.Equal(t, 5*time.Minute, cfg.Engine.SyncInterval.Duration)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.True(t, cfg.Notify.Console)
	require.NoError(t, cfg.Validate())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeTOML(t, `
mode = "simulate"
log_level = "debug"

[engine]
min_stake = 2.5
sync_interval = "30s"

[venue]
gamma_host = "https://gamma.example.com"

[redis]
addr = "redis.internal:6380"
`))
	require.NoError(t, err)

	assert.Equal(t, "simulate", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2.5, cfg.Engine.MinStake)
	assert.Equal(t, 30*time.Second, cfg.Engine.SyncInterval.Duration)
	assert.Equal(t, "https://gamma.example.com", cfg.Venue.GammaHost)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	// Untouched sections keep their defaults.
	assert.Equal(t, 100.0, cfg.Engine.DefaultBudget)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("CONDBOT_MODE", "monitor")
	t.Setenv("CONDBOT_POSTGRES_PASSWORD", "sekrit")
	t.Setenv("CONDBOT_ENGINE_MULTI_LEG_TOLERANCE_PCT", "4.5")
	t.Setenv("CONDBOT_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(writeTOML(t, `mode = "serve"`))
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "sekrit", cfg.Postgres.Password)
	assert.Equal(t, 4.5, cfg.Engine.MultiLegTolerancePct)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "teleport"
	cfg.Engine.DefaultBudget = 0
	cfg.Server.Port = 70000
	cfg.Notify.TelegramToken = "token-without-chat-id"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "default_budget")
	assert.Contains(t, err.Error(), "port must be 1-65535")
	assert.Contains(t, err.Error(), "telegram_token and telegram_chat_id")
}

func TestValidateArchiveRequiresS3(t *testing.T) {
	cfg := Defaults()
	cfg.Archive.Enabled = true
	cfg.S3.Bucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket must not be empty")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.S3.SecretKey = "aws-secret"
	cfg.Notify.TelegramToken = "tg-token"
	cfg.Notify.TelegramChatID = "42"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	// Non-secret fields survive.
	assert.Equal(t, cfg.Venue.GammaHost, red.Venue.GammaHost)
	// Original is untouched.
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
}

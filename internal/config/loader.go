package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CONDBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CONDBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Venue ──
	setStr(&cfg.Venue.GammaHost, "CONDBOT_VENUE_GAMMA_HOST")
	setStr(&cfg.Venue.AmmHost, "CONDBOT_VENUE_AMM_HOST")
	setStr(&cfg.Venue.WsHost, "CONDBOT_VENUE_WS_HOST")
	setStr(&cfg.Venue.ApiKey, "CONDBOT_VENUE_API_KEY")

	// ── Engine ──
	setFloat64(&cfg.Engine.MinStake, "CONDBOT_ENGINE_MIN_STAKE")
	setFloat64(&cfg.Engine.DefaultBudget, "CONDBOT_ENGINE_DEFAULT_BUDGET")
	setFloat64(&cfg.Engine.SingleLegTolerancePct, "CONDBOT_ENGINE_SINGLE_LEG_TOLERANCE_PCT")
	setFloat64(&cfg.Engine.MultiLegTolerancePct, "CONDBOT_ENGINE_MULTI_LEG_TOLERANCE_PCT")
	setDuration(&cfg.Engine.SyncInterval, "CONDBOT_ENGINE_SYNC_INTERVAL")
	setInt(&cfg.Engine.MaxTrackedMarkets, "CONDBOT_ENGINE_MAX_TRACKED_MARKETS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CONDBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "CONDBOT_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "CONDBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CONDBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CONDBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CONDBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CONDBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CONDBOT_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "CONDBOT_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "CONDBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CONDBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CONDBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CONDBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CONDBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CONDBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CONDBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MinIdleConns, "CONDBOT_REDIS_MIN_IDLE_CONNS")
	setInt(&cfg.Redis.MaxRetries, "CONDBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CONDBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "CONDBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CONDBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "CONDBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CONDBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CONDBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CONDBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CONDBOT_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "CONDBOT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "CONDBOT_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "CONDBOT_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CONDBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CONDBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CONDBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CONDBOT_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CONDBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CONDBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CONDBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setBool(&cfg.Notify.Console, "CONDBOT_NOTIFY_CONSOLE")
	setStringSlice(&cfg.Notify.Events, "CONDBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CONDBOT_MODE")
	setStr(&cfg.LogLevel, "CONDBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

// Package config defines the top-level configuration for the conditional
// markets client and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CONDBOT_* environment variables.
type Config struct {
	Venue    VenueConfig    `toml:"venue"`
	Engine   EngineConfig   `toml:"engine"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// VenueConfig holds the market venue API endpoints.
type VenueConfig struct {
	GammaHost string `toml:"gamma_host"`
	AmmHost   string `toml:"amm_host"`
	WsHost    string `toml:"ws_host"`
	ApiKey    string `toml:"api_key"`
}

// EngineConfig holds simulation and reconciliation parameters.
type EngineConfig struct {
	// MinStake is the venue's per-leg currency floor. Legs priced below it
	// are flagged on the plan rather than rounded up.
	MinStake float64 `toml:"min_stake"`
	// DefaultBudget is used by the simulate mode when no budget flag is given.
	DefaultBudget float64 `toml:"default_budget"`
	// SingleLegTolerancePct / MultiLegTolerancePct are reconciliation match
	// bands in percent. Zero selects the built-in defaults.
	SingleLegTolerancePct float64 `toml:"single_leg_tolerance_pct"`
	MultiLegTolerancePct  float64 `toml:"multi_leg_tolerance_pct"`
	// SyncInterval controls how often monitor mode refreshes tracked markets.
	SyncInterval duration `toml:"sync_interval"`
	// MaxTrackedMarkets caps how many active markets monitor mode follows.
	MaxTrackedMarkets int `toml:"max_tracked_markets"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MinIdleConns int    `toml:"min_idle_conns"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds plan/report history archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey protects the API when set; empty disables authentication.
	APIKey string `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Console           bool     `toml:"console"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Venue: VenueConfig{
			GammaHost: "https://gamma-api.polymarket.com",
			AmmHost:   "https://amm-api.polymarket.com",
			WsHost:    "wss://ws-subscriptions-clob.polymarket.com",
		},
		Engine: EngineConfig{
			MinStake:              1.0,
			DefaultBudget:         100.0,
			SingleLegTolerancePct: 1.0,
			MultiLegTolerancePct:  3.0,
			SyncInterval:          duration{5 * time.Minute},
			MaxTrackedMarkets:     200,
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     20,
			MinIdleConns: 2,
			MaxRetries:   3,
			TLSEnabled:   false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "condbot-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Console: true,
			Events:  []string{"plan_built", "plan_invalid", "reconcile_failed", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":     true,
	"simulate":  true,
	"reconcile": true,
	"monitor":   true,
	"full":      true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, simulate, reconcile, monitor, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Venue endpoints
	if c.Venue.GammaHost == "" {
		errs = append(errs, "venue: gamma_host must not be empty")
	}
	if c.Venue.AmmHost == "" {
		errs = append(errs, "venue: amm_host must not be empty")
	}
	if (c.Mode == "monitor" || c.Mode == "full") && c.Venue.WsHost == "" {
		errs = append(errs, "venue: ws_host is required for mode "+c.Mode)
	}

	// Engine
	if c.Engine.MinStake < 0 {
		errs = append(errs, "engine: min_stake must be >= 0")
	}
	if c.Engine.DefaultBudget <= 0 {
		errs = append(errs, "engine: default_budget must be > 0")
	}
	if c.Engine.SingleLegTolerancePct < 0 {
		errs = append(errs, "engine: single_leg_tolerance_pct must be >= 0")
	}
	if c.Engine.MultiLegTolerancePct < 0 {
		errs = append(errs, "engine: multi_leg_tolerance_pct must be >= 0")
	}
	if c.Engine.SyncInterval.Duration <= 0 {
		errs = append(errs, "engine: sync_interval must be > 0")
	}
	if c.Engine.MaxTrackedMarkets < 1 {
		errs = append(errs, "engine: max_tracked_markets must be >= 1")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only required when archival is enabled.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Notify — token and chat ID must be set together.
	tk := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tk != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/evand/conditional-markets/internal/blob/s3"
	"github.com/evand/conditional-markets/internal/cache/redis"
	"github.com/evand/conditional-markets/internal/config"
	"github.com/evand/conditional-markets/internal/domain"
	"github.com/evand/conditional-markets/internal/notify"
	"github.com/evand/conditional-markets/internal/platform/polymarket"
	"github.com/evand/conditional-markets/internal/store/postgres"
)

// Dependencies bundles every dependency that the application modes need. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Venue clients
	Gamma    *polymarket.GammaClient
	AMM      *polymarket.AMMClient
	Provider domain.MarketDataProvider

	// Connections (exposed for health probes)
	PG    *postgres.Client
	Redis *redis.Client
	S3    *s3blob.Client

	// Stores
	MarketStore domain.MarketStore
	PlanStore   domain.PlanStore
	ReportStore domain.ReportStore

	// Caches
	MarketCache domain.MarketCache
	PoolCache   domain.PoolCache
	PriceCache  domain.PriceCache
	LockManager domain.LockManager

	// Blob storage (nil unless archival is enabled)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Venue clients ---
	deps.Gamma = polymarket.NewGammaClient(cfg.Venue.GammaHost)
	deps.AMM = polymarket.NewAMMClient(cfg.Venue.AmmHost)
	if cfg.Venue.ApiKey != "" {
		deps.AMM.WithAPIKey(cfg.Venue.ApiKey)
	}
	deps.Provider = polymarket.NewProvider(deps.Gamma, deps.AMM)

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	marketStore := postgres.NewMarketStore(pool)
	planStore := postgres.NewPlanStore(pool)
	reportStore := postgres.NewReportStore(pool)

	deps.PG = pgClient
	deps.MarketStore = marketStore
	deps.PlanStore = planStore
	deps.ReportStore = reportStore

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		TLSEnabled:   cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Redis = redisClient
	deps.MarketCache = redis.NewMarketCache(redisClient)
	deps.PoolCache = redis.NewPoolCache(redisClient)
	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)

	// --- S3 blob storage (only when archival is enabled) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.S3 = s3Client
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, planStore, reportStore, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if cfg.Notify.Console {
		senders = append(senders, notify.NewConsoleSender())
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

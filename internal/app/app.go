// Package app wires configuration into stores, clients and the orchestrator.
// Both binaries build their runtime through it.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-phoenix-scanner/internal/cache"
	"solana-phoenix-scanner/internal/config"
	"solana-phoenix-scanner/internal/dexscreener"
	"solana-phoenix-scanner/internal/discovery"
	"solana-phoenix-scanner/internal/history"
	"solana-phoenix-scanner/internal/notify"
	"solana-phoenix-scanner/internal/orchestrator"
	"solana-phoenix-scanner/internal/storage"
	chstore "solana-phoenix-scanner/internal/storage/clickhouse"
	"solana-phoenix-scanner/internal/storage/memory"
	"solana-phoenix-scanner/internal/storage/migrations"
	pgstore "solana-phoenix-scanner/internal/storage/postgres"
)

// Stores holds the persistence backends.
type Stores struct {
	Tokens  storage.TokenStore
	History storage.SnapshotHistoryStore // nil when no history backend is configured

	pool   *pgstore.Pool
	chConn *chstore.Conn
}

// Close releases database connections.
func (s *Stores) Close() {
	if s.chConn != nil {
		_ = s.chConn.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// OpenStores connects the configured backends, applying migrations when
// cfg.Migrate is set. Memory mode keeps everything in process.
func OpenStores(ctx context.Context, cfg config.StorageConfig) (*Stores, error) {
	if cfg.UseMemory {
		return &Stores{
			Tokens:  memory.NewTokenStore(),
			History: memory.NewSnapshotHistoryStore(),
		}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if cfg.Migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
	}
	s := &Stores{Tokens: pgstore.NewTokenStore(pool), pool: pool}

	if cfg.ClickHouseDSN == "" {
		return s, nil
	}
	var conn *chstore.Conn
	if cfg.Migrate {
		conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
	} else {
		conn, err = chstore.NewConn(ctx, cfg.ClickHouseDSN)
	}
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	s.chConn = conn
	s.History = chstore.NewSnapshotHistoryStore(conn)
	return s, nil
}

// Migrate applies migrations to every configured database and disconnects.
func Migrate(ctx context.Context, cfg config.StorageConfig) error {
	if cfg.UseMemory {
		return nil
	}
	cfg.Migrate = true
	s, err := OpenStores(ctx, cfg)
	if err != nil {
		return err
	}
	s.Close()
	return nil
}

// App is the assembled runtime.
type App struct {
	Config       *config.ServiceConfig
	Stores       *Stores
	Cache        cache.Cache
	Provider     *dexscreener.Client
	Hub          *notify.Hub
	Notifier     notify.Notifier
	Orchestrator *orchestrator.Orchestrator

	logger *zap.Logger
}

// Option adjusts App construction.
type Option func(*buildOptions)

type buildOptions struct {
	clock func() time.Time
}

// WithClock overrides the orchestrator clock.
func WithClock(clock func() time.Time) Option {
	return func(o *buildOptions) { o.clock = clock }
}

// New builds the runtime from cfg. The caller must Close it.
func New(ctx context.Context, cfg *config.ServiceConfig, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}

	stores, err := OpenStores(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	c, err := cache.New(ctx, cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger.Named("cache"))
	if err != nil {
		stores.Close()
		return nil, err
	}

	provider := dexscreener.New(
		dexscreener.WithBaseURL(cfg.DexScreener.BaseURL),
		dexscreener.WithTimeout(cfg.DexScreener.Timeout),
		dexscreener.WithMaxRetries(cfg.DexScreener.MaxRetries),
		dexscreener.WithRateLimit(cfg.DexScreener.RequestsPerMinute),
		dexscreener.WithLogger(logger.Named("dexscreener")),
	)

	hub := notify.NewHub(logger.Named("hub"))
	notifier, err := buildNotifier(cfg.Telegram, hub, logger)
	if err != nil {
		closeCache(c)
		stores.Close()
		return nil, err
	}

	synthetic := history.NewSynthetic(time.Now().UnixNano(), bo.clock)
	var source history.Source = synthetic
	if stores.History != nil {
		source = history.NewRecorded(stores.History, synthetic, logger.Named("history"))
	}

	orch := orchestrator.New(orchestrator.Options{
		Provider: provider,
		Discoverer: discovery.New(discovery.Options{
			Searcher:    provider,
			SearchDelay: cfg.DexScreener.SearchDelay,
			Logger:      logger.Named("discovery"),
			Now:         bo.clock,
		}),
		Store:         stores.Tokens,
		History:       stores.History,
		HistorySource: source,
		Cache:         c,
		CacheTTL:      cfg.Cache.TTL,
		Notifier:      notifier,
		Logger:        logger.Named("orchestrator"),
		Clock:         bo.clock,
		Chains:        cfg.Discovery.Chains,
		MinLiquidity:  cfg.Discovery.MinLiquidity,
		MinVolume:     cfg.Discovery.MinVolume,
		MinMarketCap:  cfg.Discovery.MinMarketCap,
	})

	return &App{
		Config:       cfg,
		Stores:       stores,
		Cache:        c,
		Provider:     provider,
		Hub:          hub,
		Notifier:     notifier,
		Orchestrator: orch,
		logger:       logger,
	}, nil
}

// Close disconnects subscribers, the cache and the stores.
func (a *App) Close() {
	a.Hub.Close()
	closeCache(a.Cache)
	a.Stores.Close()
}

// buildNotifier always logs and streams; Telegram is added when configured.
func buildNotifier(cfg config.TelegramConfig, hub *notify.Hub, logger *zap.Logger) (notify.Notifier, error) {
	notifiers := notify.Multi{notify.NewLogNotifier(logger.Named("alerts")), hub}
	if !cfg.Enabled() {
		return notifiers, nil
	}
	tg, err := notify.NewTelegram(cfg.BotToken, cfg.ChatID, notify.WithTelegramLogger(logger.Named("telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram notifier: %w", err)
	}
	return append(notifiers, tg), nil
}

func closeCache(c cache.Cache) {
	if r, ok := c.(*cache.Redis); ok {
		_ = r.Close()
	}
}

// Package logger builds the process zap logger, optionally teeing error-level
// entries to Sentry.
package logger

import (
	"sync"
	"time"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu           sync.RWMutex
	log          = zap.NewNop()
	sentryClient *sentry.Client
)

// Config holds logger configuration.
type Config struct {
	Debug           bool
	SentryDSN       string
	SentryClient    *sentry.Client // overrides SentryDSN when set
	BreadcrumbLevel zapcore.Level
	Tags            map[string]string
}

// Initialize builds the global logger. Without a Sentry DSN or client the
// logger writes to stderr only.
func Initialize(cfg Config) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Debug {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	base, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	client := cfg.SentryClient
	if client == nil && cfg.SentryDSN != "" {
		client, err = sentry.NewClient(sentry.ClientOptions{
			Dsn:   cfg.SentryDSN,
			Debug: cfg.Debug,
		})
		if err != nil {
			return nil, err
		}
	}

	built := base
	if client != nil {
		core, err := newSentryCore(cfg, client)
		if err != nil {
			return nil, err
		}
		built = zapsentry.AttachCoreToLogger(core, base)
	}

	mu.Lock()
	log = built
	sentryClient = client
	mu.Unlock()
	return built, nil
}

func newSentryCore(cfg Config, client *sentry.Client) (zapcore.Core, error) {
	breadcrumbs := cfg.BreadcrumbLevel
	if breadcrumbs == zapcore.InvalidLevel {
		breadcrumbs = zapcore.InfoLevel
	}
	return zapsentry.NewCore(zapsentry.Configuration{
		Level:             zapcore.ErrorLevel,
		EnableBreadcrumbs: true,
		BreadcrumbLevel:   breadcrumbs,
		Tags:              cfg.Tags,
	}, zapsentry.NewSentryClientFromClient(client))
}

// Default returns the global logger. Before Initialize it is a no-op logger.
func Default() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// Flush syncs the global logger and waits up to timeout for buffered Sentry events.
func Flush(timeout time.Duration) {
	mu.RLock()
	l, client := log, sentryClient
	mu.RUnlock()

	_ = l.Sync()
	if client != nil {
		client.Flush(timeout)
	}
}

// Package main runs the scanner service:
// - Discovery (scheduled): search battery, scoring, persistence, alert creation
// - Dispatch (scheduled): pending alerts to Telegram and stream subscribers
// - Retention (scheduled, optional): score and sent-alert pruning
// - API: REST, WebSocket alert stream, health, status and metrics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"solana-phoenix-scanner/internal/api"
	"solana-phoenix-scanner/internal/app"
	"solana-phoenix-scanner/internal/config"
	"solana-phoenix-scanner/internal/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configFile := flag.String("config", "", "Path to config.yaml")
	envDir := flag.String("env-dir", "", "Directory holding .env files (default config/)")
	flag.Parse()

	if err := run(*configFile, *envDir); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, envDir string) error {
	cfg, err := config.Load("server", configFile, envDir)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Tags:      map[string]string{"service": "phoenix-scanner"},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Info("scanner starting",
		zap.Bool("memory", cfg.Storage.UseMemory),
		zap.Bool("clickhouse", cfg.Storage.ClickHouseDSN != ""),
		zap.Bool("redis", cfg.Redis.Addr != ""),
		zap.Bool("telegram", cfg.Telegram.Enabled()),
		zap.Strings("chains", cfg.Discovery.Chains),
	)

	srv := api.New(api.Config{
		Debug:        cfg.Debug,
		Addr:         cfg.Server.Addr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}, api.NewHandler(a.Orchestrator, a.Hub, log.Named("api")), log.Named("api"))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	sched := newScheduler(a.Orchestrator, schedulerConfig{
		DiscoveryInterval: cfg.Discovery.Interval,
		DispatchInterval:  cfg.Alerts.DispatchInterval,
		Retention:         cfg.Retention.Window(),
		RetentionInterval: cfg.Retention.Interval,
	}, log.Named("scheduler"))
	schedDone := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(schedDone)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err = <-errCh:
		log.Error("api server failed", zap.Error(err))
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.Hub.Close()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Error("api shutdown", zap.Error(serr))
	}

	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		log.Warn("scheduler did not stop within shutdown timeout")
	}

	log.Info("shutdown complete")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

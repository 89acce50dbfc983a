package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"solana-phoenix-scanner/internal/orchestrator"
)

// jobs is the part of the orchestrator the scheduler drives.
type jobs interface {
	RunDiscoveryCycle(ctx context.Context, chains []string) (*orchestrator.CycleResult, error)
	DispatchPendingAlerts(ctx context.Context) (orchestrator.DispatchResult, error)
	Prune(ctx context.Context, retention time.Duration) (int64, int64, error)
}

type schedulerConfig struct {
	DiscoveryInterval time.Duration
	DispatchInterval  time.Duration
	Retention         time.Duration // 0 disables pruning
	RetentionInterval time.Duration
}

// scheduler runs discovery, dispatch and retention on independent tickers.
// Each job runs once at start.
type scheduler struct {
	jobs   jobs
	cfg    schedulerConfig
	logger *zap.Logger
}

func newScheduler(j jobs, cfg schedulerConfig, logger *zap.Logger) *scheduler {
	return &scheduler{jobs: j, cfg: cfg, logger: logger}
}

// Run blocks until ctx is canceled.
func (s *scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	start := func(name string, interval time.Duration, job func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.logger.Info("job scheduled", zap.String("job", name), zap.Duration("interval", interval))
			every(ctx, interval, job)
		}()
	}

	start("discovery", s.cfg.DiscoveryInterval, s.runDiscovery)
	start("dispatch", s.cfg.DispatchInterval, s.runDispatch)
	if s.cfg.Retention > 0 {
		start("retention", s.cfg.RetentionInterval, s.runRetention)
	}
	wg.Wait()
}

func every(ctx context.Context, interval time.Duration, job func(context.Context)) {
	job(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job(ctx)
		}
	}
}

func (s *scheduler) runDiscovery(ctx context.Context) {
	res, err := s.jobs.RunDiscoveryCycle(ctx, nil)
	switch {
	case errors.Is(err, orchestrator.ErrCycleInProgress):
		s.logger.Info("discovery already running, skipping")
	case errors.Is(err, context.Canceled):
	case err != nil:
		s.logger.Error("discovery cycle failed", zap.Error(err))
	default:
		s.logger.Info("discovery cycle complete",
			zap.Duration("duration", res.FinishedAt.Sub(res.StartedAt)),
			zap.Int("updated", res.Updated()),
			zap.Int("alerts", res.AlertsCreated()),
		)
	}
}

func (s *scheduler) runDispatch(ctx context.Context) {
	res, err := s.jobs.DispatchPendingAlerts(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("alert dispatch failed", zap.Error(err))
		}
		return
	}
	if res.Sent > 0 || res.Failed > 0 {
		s.logger.Info("alerts dispatched",
			zap.Int("sent", res.Sent),
			zap.Int("failed", res.Failed),
			zap.Int("dead_lettered", res.DeadLettered),
		)
	}
}

func (s *scheduler) runRetention(ctx context.Context) {
	if _, _, err := s.jobs.Prune(ctx, s.cfg.Retention); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("retention prune failed", zap.Error(err))
	}
}

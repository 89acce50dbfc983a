// Package orchestrator ties discovery, scoring and persistence together and
// serves the ranked and per-token read queries.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"solana-phoenix-scanner/internal/brs"
	"solana-phoenix-scanner/internal/cache"
	"solana-phoenix-scanner/internal/dexscreener"
	"solana-phoenix-scanner/internal/discovery"
	"solana-phoenix-scanner/internal/domain"
	"solana-phoenix-scanner/internal/history"
	"solana-phoenix-scanner/internal/notify"
	"solana-phoenix-scanner/internal/observability"
	"solana-phoenix-scanner/internal/storage"
)

// Defaults applied by New.
const (
	DefaultMinMarketCap = 500_000.0
	DefaultCacheTTL     = 2 * time.Minute
	DefaultTopLimit     = 20
	DefaultAlertsLimit  = 10
	MinRetention        = 24 * time.Hour
)

var (
	// ErrTokenNotFound is returned by per-address operations when neither the
	// provider nor the store has data for the address.
	ErrTokenNotFound = fmt.Errorf("token not found: %w", storage.ErrNotFound)

	// ErrProviderUnavailable is returned by UpdateTokenData when the provider call failed.
	ErrProviderUnavailable = errors.New("market data provider unavailable")

	// ErrCycleInProgress is returned when a discovery cycle is already running.
	ErrCycleInProgress = errors.New("discovery cycle already in progress")

	// ErrInvalidRetention is returned by Prune for windows shorter than MinRetention.
	ErrInvalidRetention = errors.New("retention must be at least 24h")
)

// Provider is the per-address part of the market data client.
type Provider interface {
	FetchByAddress(ctx context.Context, chain, address string) dexscreener.Result[dexscreener.Pair]
}

// Discoverer produces phoenix candidates for a chain.
type Discoverer interface {
	Discover(ctx context.Context, chain string, minLiquidity, minVolume float64) ([]discovery.Candidate, discovery.Stats)
}

// Options configures an Orchestrator. Provider, Discoverer and Store are required.
type Options struct {
	Provider      Provider
	Discoverer    Discoverer
	Store         storage.TokenStore
	History       storage.SnapshotHistoryStore // optional; snapshots are recorded when set
	HistorySource history.Source               // defaults to history.NewSynthetic
	Cache         cache.Cache                  // defaults to cache.NewMemory
	CacheTTL      time.Duration
	Notifier      notify.Notifier // defaults to notify.NewLogNotifier
	Logger        *zap.Logger
	Clock         func() time.Time

	Chains       []string // default chains for RunDiscoveryCycle
	MinLiquidity float64
	MinVolume    float64
	MinMarketCap float64
}

// Orchestrator coordinates the discovery pipeline.
type Orchestrator struct {
	provider   Provider
	discoverer Discoverer
	store      storage.TokenStore
	history    storage.SnapshotHistoryStore
	source     history.Source
	cache      cache.Cache
	cacheTTL   time.Duration
	notifier   notify.Notifier
	logger     *zap.Logger
	now        func() time.Time

	chains       []string
	minLiquidity float64
	minVolume    float64
	minMarketCap float64

	running    atomic.Bool
	dispatchMu sync.Mutex

	mu        sync.RWMutex
	lastCycle *CycleResult
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		provider:     opts.Provider,
		discoverer:   opts.Discoverer,
		store:        opts.Store,
		history:      opts.History,
		source:       opts.HistorySource,
		cache:        opts.Cache,
		cacheTTL:     opts.CacheTTL,
		notifier:     opts.Notifier,
		logger:       opts.Logger,
		now:          opts.Clock,
		chains:       opts.Chains,
		minLiquidity: opts.MinLiquidity,
		minVolume:    opts.MinVolume,
		minMarketCap: opts.MinMarketCap,
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.source == nil {
		o.source = history.NewSynthetic(0, o.now)
	}
	if o.cache == nil {
		o.cache = cache.NewMemory()
	}
	if o.cacheTTL <= 0 {
		o.cacheTTL = DefaultCacheTTL
	}
	if o.notifier == nil {
		o.notifier = notify.NewLogNotifier(o.logger)
	}
	if len(o.chains) == 0 {
		o.chains = []string{domain.ChainSolana}
	}
	if o.minLiquidity <= 0 {
		o.minLiquidity = discovery.DefaultMinLiquidity
	}
	if o.minVolume <= 0 {
		o.minVolume = discovery.DefaultMinVolume
	}
	if o.minMarketCap <= 0 {
		o.minMarketCap = DefaultMinMarketCap
	}
	return o
}

// ChainResult summarizes one chain of a discovery cycle.
type ChainResult struct {
	Chain          string          `json:"chain"`
	Stats          discovery.Stats `json:"stats"`
	BelowMarketCap int             `json:"below_market_cap"`
	Updated        int             `json:"updated"`
	NotFound       int             `json:"not_found"`
	Failed         int             `json:"failed"`
	AlertsCreated  int             `json:"alerts_created"`
}

// CycleResult summarizes a discovery cycle.
type CycleResult struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Chains     []ChainResult `json:"chains"`
}

// Updated returns the number of tokens updated across chains.
func (r *CycleResult) Updated() int {
	n := 0
	for _, c := range r.Chains {
		n += c.Updated
	}
	return n
}

// AlertsCreated returns the number of alerts raised across chains.
func (r *CycleResult) AlertsCreated() int {
	n := 0
	for _, c := range r.Chains {
		n += c.AlertsCreated
	}
	return n
}

// Running reports whether a discovery cycle is in progress.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// LastCycle returns the most recent completed cycle, or nil.
func (o *Orchestrator) LastCycle() *CycleResult {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastCycle
}

// RunDiscoveryCycle discovers candidates on each chain and updates every
// candidate whose market cap meets the floor. Token updates run sequentially.
// Per-token failures are counted and logged; only cancellation aborts the cycle.
func (o *Orchestrator) RunDiscoveryCycle(ctx context.Context, chains []string) (*CycleResult, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer o.running.Store(false)

	if len(chains) == 0 {
		chains = o.chains
	}

	start := time.Now()
	result := &CycleResult{StartedAt: o.now()}

	for _, chain := range chains {
		cr := ChainResult{Chain: chain}
		candidates, stats := o.discoverer.Discover(ctx, chain, o.minLiquidity, o.minVolume)
		cr.Stats = stats

		for _, c := range candidates {
			if ctx.Err() != nil {
				break
			}
			if c.Snapshot.MarketCap < o.minMarketCap {
				cr.BelowMarketCap++
				continue
			}

			res, err := o.UpdateTokenData(ctx, chain, c.Snapshot.Address)
			switch {
			case err == nil:
				cr.Updated++
				if res.AlertCreated {
					cr.AlertsCreated++
				}
			case errors.Is(err, ErrTokenNotFound):
				cr.NotFound++
			default:
				cr.Failed++
				o.logger.Warn("token update failed",
					zap.String("chain", chain),
					zap.String("address", c.Snapshot.Address),
					zap.Error(err),
				)
			}
		}
		result.Chains = append(result.Chains, cr)

		o.logger.Info("chain discovery complete",
			zap.String("chain", chain),
			zap.Int("candidates", stats.Candidates),
			zap.Int("updated", cr.Updated),
			zap.Int("failed", cr.Failed),
			zap.Int("alerts", cr.AlertsCreated),
		)
	}
	result.FinishedAt = o.now()

	if err := ctx.Err(); err != nil {
		observability.RecordDiscoveryCycle("canceled", time.Since(start).Seconds())
		return result, fmt.Errorf("discovery cycle: %w", err)
	}

	observability.RecordDiscoveryCycle("success", time.Since(start).Seconds())
	o.mu.Lock()
	o.lastCycle = result
	o.mu.Unlock()
	return result, nil
}

// UpdateResult is the outcome of UpdateTokenData.
type UpdateResult struct {
	storage.UpdateResult
	Snapshot      domain.TokenSnapshot
	ScoreFallback bool // the scorer failed and the fallback breakdown was stored
}

// UpdateTokenData fetches a fresh snapshot, scores it and records the token,
// score and any alert atomically.
func (o *Orchestrator) UpdateTokenData(ctx context.Context, chain, address string) (*UpdateResult, error) {
	if chain == "" {
		chain = domain.ChainSolana
	}
	if chain == domain.ChainSolana {
		if err := domain.ValidateSolanaAddress(address); err != nil {
			observability.RecordTokenUpdate("not_found")
			return nil, fmt.Errorf("%w: %s: %w", ErrTokenNotFound, address, err)
		}
	}

	snap, err := o.fetchSnapshot(ctx, chain, address)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			observability.RecordTokenUpdate("not_found")
		} else {
			observability.RecordTokenUpdate("provider_error")
		}
		return nil, err
	}

	eval := brs.Evaluate(snap)
	if eval.Fallback {
		o.logger.Warn("scoring failed, fallback score used",
			zap.String("address", address),
			zap.Error(eval.Err),
		)
	}
	observability.RecordScore(string(eval.Breakdown.Variant))

	now := o.now()
	rec, err := o.store.RecordUpdate(ctx, snap, eval.Breakdown, now)
	if err != nil {
		observability.RecordTokenUpdate("store_error")
		return nil, fmt.Errorf("record update %s: %w", address, err)
	}
	observability.RecordTokenUpdate("updated")
	if rec.AlertCreated {
		observability.RecordAlertCreated()
		o.logger.Info("alert created",
			zap.String("address", address),
			zap.String("symbol", snap.Symbol),
			zap.Float64("score", eval.Breakdown.BRSScore),
		)
	}

	o.storeSnapshot(ctx, snap)
	if o.history != nil {
		if err := o.history.Append(ctx, []domain.TokenSnapshot{snap}); err != nil {
			o.logger.Warn("snapshot history append failed", zap.String("address", address), zap.Error(err))
		}
	}

	return &UpdateResult{UpdateResult: *rec, Snapshot: snap, ScoreFallback: eval.Fallback}, nil
}

// fetchSnapshot always asks the provider.
func (o *Orchestrator) fetchSnapshot(ctx context.Context, chain, address string) (domain.TokenSnapshot, error) {
	res := o.provider.FetchByAddress(ctx, chain, address)
	switch res.Status {
	case dexscreener.StatusEmpty:
		return domain.TokenSnapshot{}, ErrTokenNotFound
	case dexscreener.StatusFailed:
		return domain.TokenSnapshot{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, res.Err)
	}
	if res.Value.BaseToken.Address != address {
		o.logger.Warn("provider returned a pair for another token",
			zap.String("chain", chain),
			zap.String("address", address),
			zap.String("base_token", res.Value.BaseToken.Address),
		)
		return domain.TokenSnapshot{}, ErrTokenNotFound
	}

	snap, err := dexscreener.Normalize(res.Value, o.now())
	if err != nil {
		o.logger.Warn("discarding malformed provider record",
			zap.String("chain", chain),
			zap.String("address", address),
			zap.Error(err),
		)
		return domain.TokenSnapshot{}, ErrTokenNotFound
	}
	return snap, nil
}

// cachedSnapshot serves volatile display fields, going to the provider only on a miss.
func (o *Orchestrator) cachedSnapshot(ctx context.Context, chain, address string) (domain.TokenSnapshot, bool) {
	key := cache.Key(chain, address)
	if raw, ok := o.cache.Get(ctx, key); ok {
		var snap domain.TokenSnapshot
		if err := json.Unmarshal(raw, &snap); err == nil {
			return snap, true
		}
	}

	snap, err := o.fetchSnapshot(ctx, chain, address)
	if err != nil {
		o.logger.Debug("fresh snapshot unavailable",
			zap.String("chain", chain),
			zap.String("address", address),
			zap.Error(err),
		)
		return domain.TokenSnapshot{}, false
	}
	o.storeSnapshot(ctx, snap)
	return snap, true
}

func (o *Orchestrator) storeSnapshot(ctx context.Context, snap domain.TokenSnapshot) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	o.cache.Set(ctx, cache.Key(snap.Chain, snap.Address), raw, o.cacheTTL)
}

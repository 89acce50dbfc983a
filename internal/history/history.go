// Package history produces the volume series and whale activity shown in token analysis.
//
// The market data provider exposes neither daily volume history nor individual
// trades, so both are either derived from recorded snapshots or generated. Every
// generated value carries Simulated=true and must never be presented as on-chain data.
package history

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"solana-phoenix-scanner/internal/domain"
	"solana-phoenix-scanner/internal/storage"
)

// Generator parameters.
const (
	DefaultDays         = 30
	LargeBuyMinUSD      = 3000.0
	LargeBuyLimit       = 20
	minWhaleTxs         = 15
	maxWhaleTxs         = 40
	whaleMinUSD         = 2000.0
	whaleMaxUSD         = 100000.0
	whaleBuyProbability = 0.75
	minRecordedDays     = 2
)

// Series is a daily volume history.
type Series struct {
	Points    []domain.VolumePoint `json:"points"`
	Simulated bool                 `json:"simulated"`
}

// Source supplies historical views of a token.
type Source interface {
	VolumeHistory(ctx context.Context, snap domain.TokenSnapshot, days int) (Series, error)
	WhaleTransactions(ctx context.Context, snap domain.TokenSnapshot) ([]domain.WhaleTransaction, error)
}

// Synthetic generates plausible but fabricated history from the current snapshot.
type Synthetic struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewSynthetic creates a generator. A zero seed uses the current time.
func NewSynthetic(seed int64, now func() time.Time) *Synthetic {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if now == nil {
		now = time.Now
	}
	return &Synthetic{rng: rand.New(rand.NewSource(seed)), now: now}
}

var _ Source = (*Synthetic)(nil)

// VolumeHistory returns days points ending yesterday, oldest first, drifting
// upward toward the current 24h volume.
func (s *Synthetic) VolumeHistory(_ context.Context, snap domain.TokenSnapshot, days int) (Series, error) {
	if days <= 0 {
		days = DefaultDays
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base := snap.Volume24h * 0.7
	today := s.now().UTC().Truncate(24 * time.Hour)
	points := make([]domain.VolumePoint, 0, days)
	for i := days; i > 0; i-- {
		variance := uniform(s.rng, 0.5, 1.8)
		trend := 1 + float64(days-i)/float64(days)*0.3
		points = append(points, domain.VolumePoint{
			Date:      today.AddDate(0, 0, -i),
			Volume:    round(base*variance*trend, 2),
			Simulated: true,
		})
	}
	return Series{Points: points, Simulated: true}, nil
}

// WhaleTransactions returns 15 to 40 trades within the last 30 days, newest first.
// A token without a price yields none.
func (s *Synthetic) WhaleTransactions(_ context.Context, snap domain.TokenSnapshot) ([]domain.WhaleTransaction, error) {
	if snap.PriceUSD <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	n := minWhaleTxs + s.rng.Intn(maxWhaleTxs-minWhaleTxs+1)
	txs := make([]domain.WhaleTransaction, 0, n)
	for i := 0; i < n; i++ {
		daysAgo := uniform(s.rng, 0, DefaultDays)
		usd := uniform(s.rng, whaleMinUSD, whaleMaxUSD)
		kind := "sell"
		if s.rng.Float64() < whaleBuyProbability {
			kind = "buy"
		}
		txs = append(txs, domain.WhaleTransaction{
			Timestamp: now.Add(-time.Duration(daysAgo * float64(24*time.Hour))),
			Type:      kind,
			AmountUSD: round(usd, 2),
			Amount:    round(usd/snap.PriceUSD, 2),
			Price:     round(snap.PriceUSD*uniform(s.rng, 0.95, 1.05), 8),
			Simulated: true,
		})
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].Timestamp.After(txs[j].Timestamp) })
	return txs, nil
}

// Recorded serves volume history from stored snapshots and falls back to
// Synthetic when too little has been recorded. Whale activity is always synthetic.
type Recorded struct {
	store    storage.SnapshotHistoryStore
	fallback *Synthetic
	logger   *zap.Logger
}

// NewRecorded creates a Recorded source.
func NewRecorded(store storage.SnapshotHistoryStore, fallback *Synthetic, logger *zap.Logger) *Recorded {
	if fallback == nil {
		fallback = NewSynthetic(0, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorded{store: store, fallback: fallback, logger: logger}
}

var _ Source = (*Recorded)(nil)

// VolumeHistory returns recorded daily maxima when at least two days exist.
func (r *Recorded) VolumeHistory(ctx context.Context, snap domain.TokenSnapshot, days int) (Series, error) {
	if days <= 0 {
		days = DefaultDays
	}
	since := r.fallback.now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -days)

	points, err := r.store.DailyVolume(ctx, snap.Address, since)
	if err != nil {
		r.logger.Warn("recorded volume history unavailable",
			zap.String("address", snap.Address),
			zap.Error(err),
		)
		return r.fallback.VolumeHistory(ctx, snap, days)
	}
	if len(points) < minRecordedDays {
		return r.fallback.VolumeHistory(ctx, snap, days)
	}
	return Series{Points: points}, nil
}

// WhaleTransactions delegates to the synthetic generator.
func (r *Recorded) WhaleTransactions(ctx context.Context, snap domain.TokenSnapshot) ([]domain.WhaleTransaction, error) {
	return r.fallback.WhaleTransactions(ctx, snap)
}

// LargeBuySummary aggregates buys at or above the large-buy threshold.
type LargeBuySummary struct {
	TotalCount   int                       `json:"total_count"`
	TotalVolume  float64                   `json:"total_volume"`
	Transactions []domain.WhaleTransaction `json:"transactions"`
}

// LargeBuys keeps buys of at least minUSD. Totals cover every match while
// Transactions holds the first limit of them in input order.
func LargeBuys(txs []domain.WhaleTransaction, minUSD float64, limit int) LargeBuySummary {
	out := LargeBuySummary{Transactions: []domain.WhaleTransaction{}}
	for _, tx := range txs {
		if tx.Type != "buy" || tx.AmountUSD < minUSD {
			continue
		}
		out.TotalCount++
		out.TotalVolume += tx.AmountUSD
		if limit <= 0 || len(out.Transactions) < limit {
			out.Transactions = append(out.Transactions, tx)
		}
	}
	out.TotalVolume = round(out.TotalVolume, 2)
	return out
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

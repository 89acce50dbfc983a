// Package discovery finds phoenix candidates through a fixed battery of provider searches.
package discovery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"solana-phoenix-scanner/internal/brs"
	"solana-phoenix-scanner/internal/dexscreener"
	"solana-phoenix-scanner/internal/domain"
	"solana-phoenix-scanner/internal/observability"
)

// Default discovery thresholds.
const (
	DefaultMinLiquidity = 5000.0
	DefaultMinVolume    = 50000.0
	DefaultSearchDelay  = 200 * time.Millisecond
)

// DefaultSearchTerms covers popular Solana symbols plus generic meme keywords.
var DefaultSearchTerms = []string{
	"SOL", "BONK", "WIF", "BOME", "MEW", "POPCAT",
	"MYRO", "WEN", "SAMO", "FOXY", "COPE", "SLERF",
	"HARAMBE", "GIGA", "PONKE", "SMOLE", "ANALOS",
	"meme", "pepe", "doge", "cat",
}

// Searcher is the keyword-search part of the market data client.
type Searcher interface {
	Search(ctx context.Context, keyword string) dexscreener.Result[[]dexscreener.Pair]
}

// Candidate is a pair that passed the phoenix predicate.
type Candidate struct {
	Snapshot          domain.TokenSnapshot
	QuickScore        float64
	DiscoveryCategory string
}

// Stats counts what happened during one Discover call.
type Stats struct {
	TermsQueried int `json:"terms_queried"`
	TermsFailed  int `json:"terms_failed"`
	PairsSeen    int `json:"pairs_seen"`
	WrongChain   int `json:"wrong_chain"`
	Duplicates   int `json:"duplicates"`
	Malformed    int `json:"malformed"`
	Rejected     int `json:"rejected"`
	Candidates   int `json:"candidates"`
}

// Options configures a Discoverer.
type Options struct {
	Searcher    Searcher
	SearchTerms []string      // defaults to DefaultSearchTerms
	SearchDelay time.Duration // pause between consecutive searches; negative disables
	Logger      *zap.Logger
	Now         func() time.Time
}

// Discoverer runs the search battery.
type Discoverer struct {
	searcher Searcher
	terms    []string
	delay    time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a Discoverer.
func New(opts Options) *Discoverer {
	d := &Discoverer{
		searcher: opts.Searcher,
		terms:    opts.SearchTerms,
		delay:    opts.SearchDelay,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if len(d.terms) == 0 {
		d.terms = DefaultSearchTerms
	}
	if d.delay == 0 {
		d.delay = DefaultSearchDelay
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Discover searches every term sequentially, keeps the first pair seen per token
// address on the target chain, and returns those passing IsPotentialPhoenix.
// Provider failures skip the term; cancellation stops the battery early.
func (d *Discoverer) Discover(ctx context.Context, chain string, minLiquidity, minVolume float64) ([]Candidate, Stats) {
	var stats Stats
	seen := make(map[string]struct{})
	var pool []domain.TokenSnapshot

	for i, term := range d.terms {
		if i > 0 && !d.pause(ctx) {
			break
		}
		if ctx.Err() != nil {
			break
		}

		stats.TermsQueried++
		res := d.searcher.Search(ctx, term)
		if res.Failed() {
			stats.TermsFailed++
			continue
		}

		fetchedAt := d.now()
		onChain := 0
		for _, pair := range res.Value {
			stats.PairsSeen++
			if pair.ChainID != chain {
				stats.WrongChain++
				continue
			}
			onChain++

			snap, err := dexscreener.Normalize(pair, fetchedAt)
			if err != nil {
				stats.Malformed++
				d.logger.Debug("discarding malformed pair",
					zap.String("term", term),
					zap.String("pair", pair.PairAddress),
					zap.Error(err),
				)
				continue
			}
			if _, dup := seen[snap.Address]; dup {
				stats.Duplicates++
				continue
			}
			seen[snap.Address] = struct{}{}
			pool = append(pool, snap)
		}
		d.logger.Debug("search term done", zap.String("term", term), zap.Int("pairs_on_chain", onChain))
	}

	var out []Candidate
	for _, snap := range pool {
		if !IsPotentialPhoenix(snap, minLiquidity, minVolume) {
			stats.Rejected++
			continue
		}
		score := brs.Score(snap).BRSScore
		out = append(out, Candidate{
			Snapshot:          snap,
			QuickScore:        score,
			DiscoveryCategory: brs.DiscoveryCategory(score),
		})
	}
	stats.Candidates = len(out)

	observability.RecordCandidatesFound(chain, len(out))
	d.logger.Info("discovery finished",
		zap.String("chain", chain),
		zap.Int("terms", stats.TermsQueried),
		zap.Int("terms_failed", stats.TermsFailed),
		zap.Int("unique_tokens", len(pool)),
		zap.Int("candidates", stats.Candidates),
	)
	return out, stats
}

func (d *Discoverer) pause(ctx context.Context) bool {
	if d.delay <= 0 {
		return true
	}
	timer := time.NewTimer(d.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// IsPotentialPhoenix reports whether a snapshot meets the liquidity and volume floors
// and shows at least one decline or volume signal.
func IsPotentialPhoenix(s domain.TokenSnapshot, minLiquidity, minVolume float64) bool {
	if s.LiquidityUSD < minLiquidity || s.Volume24h < minVolume {
		return false
	}

	ch24 := s.PriceChange24h
	ch6 := s.PriceChange6h
	vol := s.Volume24h

	switch {
	case ch24 <= -5:
		return true
	case ch24 <= -3 && ch6 <= -2:
		return true
	case ch24 <= -1 && vol > minVolume*1.5:
		return true
	case ch24 < 0 && vol > minVolume:
		return true
	case vol > minVolume*3:
		return true
	default:
		return false
	}
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-phoenix-scanner/internal/cache"
	"solana-phoenix-scanner/internal/dexscreener"
	"solana-phoenix-scanner/internal/discovery"
	"solana-phoenix-scanner/internal/domain"
	"solana-phoenix-scanner/internal/history"
	"solana-phoenix-scanner/internal/notify"
	"solana-phoenix-scanner/internal/storage"
	"solana-phoenix-scanner/internal/storage/memory"
)

const (
	addrA = "So11111111111111111111111111111111111111112"
	addrB = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	addrC = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	addrD = "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// recoveringPair scores 83.7 with the transaction-count variant.
func recoveringPair(address, symbol string) dexscreener.Pair {
	return dexscreener.Pair{
		ChainID:     domain.ChainSolana,
		PairAddress: "pair-" + symbol,
		BaseToken:   dexscreener.PairToken{Address: address, Symbol: symbol, Name: symbol + " Token"},
		PriceUSD:    0.05,
		Liquidity:   dexscreener.Liquidity{USD: 100000},
		Volume:      dexscreener.Windows{H24: 600000},
		MarketCap:   400000,
		PriceChange: dexscreener.Windows{H24: 12, H6: 3},
		Txns:        dexscreener.Txns{H24: dexscreener.TxnCount{Buys: 500, Sells: 300}},
	}
}

type fakeProvider struct {
	mu      sync.Mutex
	results map[string]dexscreener.Result[dexscreener.Pair]
	calls   map[string]int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		results: make(map[string]dexscreener.Result[dexscreener.Pair]),
		calls:   make(map[string]int),
	}
}

func (f *fakeProvider) set(address string, r dexscreener.Result[dexscreener.Pair]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[address] = r
}

func (f *fakeProvider) FetchByAddress(_ context.Context, _, address string) dexscreener.Result[dexscreener.Pair] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[address]++
	if r, ok := f.results[address]; ok {
		return r
	}
	return dexscreener.Result[dexscreener.Pair]{Status: dexscreener.StatusEmpty}
}

func (f *fakeProvider) callCount(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[address]
}

func okPair(p dexscreener.Pair) dexscreener.Result[dexscreener.Pair] {
	return dexscreener.Result[dexscreener.Pair]{Value: p, Status: dexscreener.StatusOK}
}

func failedPair() dexscreener.Result[dexscreener.Pair] {
	return dexscreener.Result[dexscreener.Pair]{Status: dexscreener.StatusFailed, Err: errors.New("timeout")}
}

type fakeDiscoverer struct {
	candidates []discovery.Candidate
	block      chan struct{}
	entered    chan struct{}
}

func (f *fakeDiscoverer) Discover(ctx context.Context, chain string, _, _ float64) ([]discovery.Candidate, discovery.Stats) {
	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	return f.candidates, discovery.Stats{Candidates: len(f.candidates)}
}

func candidate(address string, marketCap float64) discovery.Candidate {
	return discovery.Candidate{Snapshot: domain.TokenSnapshot{Address: address, Symbol: "X", MarketCap: marketCap}}
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.AlertMessage
	err  error
	// deliverOnly, when set, rejects messages for every other address.
	deliverOnly string
}

func (r *recordingNotifier) Notify(_ context.Context, msg notify.AlertMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.deliverOnly != "" && msg.Address != r.deliverOnly {
		return errors.New("chat not found")
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

type fixture struct {
	orch     *Orchestrator
	provider *fakeProvider
	store    *memory.TokenStore
	history  *memory.SnapshotHistoryStore
	notifier *recordingNotifier
	now      time.Time
}

func newFixture(t *testing.T, disc Discoverer) *fixture {
	t.Helper()
	f := &fixture{
		provider: newFakeProvider(),
		store:    memory.NewTokenStore(),
		history:  memory.NewSnapshotHistoryStore(),
		notifier: &recordingNotifier{},
		now:      baseTime,
	}
	if disc == nil {
		disc = &fakeDiscoverer{}
	}
	clock := func() time.Time { return f.now }
	f.orch = New(Options{
		Provider:      f.provider,
		Discoverer:    disc,
		Store:         f.store,
		History:       f.history,
		HistorySource: history.NewSynthetic(1, clock),
		Notifier:      f.notifier,
		Clock:         clock,
		MinMarketCap:  300_000,
	})
	return f
}

func TestUpdateTokenData(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.provider.set(addrA, okPair(recoveringPair(addrA, "AAA")))

	res, err := f.orch.UpdateTokenData(ctx, domain.ChainSolana, addrA)
	require.NoError(t, err)

	assert.False(t, res.ScoreFallback)
	assert.InDelta(t, 83.7, res.Score.BRSScore, 0.001)
	assert.Equal(t, domain.VariantTransactions, res.Score.Variant)
	require.True(t, res.AlertCreated)
	assert.Equal(t, "phoenix_rising", res.Alert.AlertType)
	assert.Equal(t, 0.05, res.Token.CurrentPrice)
	assert.Equal(t, 0.0, res.Token.CrashPercentage)

	stored, err := f.store.GetToken(ctx, addrA)
	require.NoError(t, err)
	assert.Equal(t, "AAA", stored.Symbol)

	points, err := f.history.DailyVolume(ctx, addrA, baseTime.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 600000.0, points[0].Volume)

	_, cached := f.orch.cache.Get(ctx, cache.Key(domain.ChainSolana, addrA))
	assert.True(t, cached)
}

func TestUpdateTokenDataTracksATH(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	pair := recoveringPair(addrA, "AAA")
	f.provider.set(addrA, okPair(pair))
	_, err := f.orch.UpdateTokenData(ctx, domain.ChainSolana, addrA)
	require.NoError(t, err)

	pair.PriceUSD = 0.01
	f.provider.set(addrA, okPair(pair))
	f.now = baseTime.Add(time.Hour)
	res, err := f.orch.UpdateTokenData(ctx, domain.ChainSolana, addrA)
	require.NoError(t, err)

	require.NotNil(t, res.Token.ATHPrice)
	assert.Equal(t, 0.05, *res.Token.ATHPrice)
	assert.InDelta(t, 80.0, res.Token.CrashPercentage, 1e-9)
	assert.False(t, res.AlertCreated, "second alert inside 24h window")
}

func TestUpdateTokenDataNotFound(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.orch.UpdateTokenData(context.Background(), domain.ChainSolana, addrB)
	assert.ErrorIs(t, err, ErrTokenNotFound)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateTokenDataRejectsInvalidSolanaAddress(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.orch.UpdateTokenData(context.Background(), domain.ChainSolana, "not-a-mint")
	assert.ErrorIs(t, err, ErrTokenNotFound)
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
	assert.Zero(t, f.provider.callCount("not-a-mint"))
}

func TestUpdateTokenDataRejectsPairForAnotherToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.provider.set(addrB, okPair(recoveringPair(addrA, "SOL")))

	_, err := f.orch.UpdateTokenData(ctx, domain.ChainSolana, addrB)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	_, err = f.store.GetToken(ctx, addrA)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.store.GetToken(ctx, addrB)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateTokenDataMalformedRecord(t *testing.T) {
	f := newFixture(t, nil)
	pair := recoveringPair(addrB, "")
	f.provider.set(addrB, okPair(pair))

	_, err := f.orch.UpdateTokenData(context.Background(), domain.ChainSolana, addrB)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestUpdateTokenDataProviderFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.provider.set(addrB, failedPair())

	_, err := f.orch.UpdateTokenData(context.Background(), domain.ChainSolana, addrB)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.NotErrorIs(t, err, ErrTokenNotFound)
}

func TestRunDiscoveryCycle(t *testing.T) {
	disc := &fakeDiscoverer{candidates: []discovery.Candidate{
		candidate(addrA, 400_000),
		candidate(addrB, 100_000),
		candidate(addrC, 900_000),
		candidate(addrD, 900_000),
	}}
	f := newFixture(t, disc)
	f.provider.set(addrA, okPair(recoveringPair(addrA, "AAA")))
	f.provider.set(addrB, okPair(recoveringPair(addrB, "BBB")))
	f.provider.set(addrD, failedPair())

	res, err := f.orch.RunDiscoveryCycle(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, res.Chains, 1)
	cr := res.Chains[0]
	assert.Equal(t, domain.ChainSolana, cr.Chain)
	assert.Equal(t, 1, cr.Updated)
	assert.Equal(t, 1, cr.BelowMarketCap)
	assert.Equal(t, 1, cr.NotFound)
	assert.Equal(t, 1, cr.Failed)
	assert.Equal(t, 1, res.AlertsCreated())
	assert.Equal(t, 0, f.provider.callCount(addrB), "below the market cap floor")

	assert.Same(t, res, f.orch.LastCycle())
	assert.False(t, f.orch.Running())
}

func TestRunDiscoveryCycleRejectsOverlap(t *testing.T) {
	disc := &fakeDiscoverer{block: make(chan struct{}), entered: make(chan struct{})}
	f := newFixture(t, disc)

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.RunDiscoveryCycle(context.Background(), []string{domain.ChainSolana})
		done <- err
	}()

	<-disc.entered
	assert.True(t, f.orch.Running())
	_, err := f.orch.RunDiscoveryCycle(context.Background(), nil)
	assert.ErrorIs(t, err, ErrCycleInProgress)

	close(disc.block)
	require.NoError(t, <-done)
}

func TestRunDiscoveryCycleCanceled(t *testing.T) {
	disc := &fakeDiscoverer{candidates: []discovery.Candidate{candidate(addrA, 400_000)}}
	f := newFixture(t, disc)
	f.provider.set(addrA, okPair(recoveringPair(addrA, "AAA")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.RunDiscoveryCycle(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, f.orch.LastCycle())
	assert.Equal(t, 0, f.provider.callCount(addrA))
}

func TestGetTopPhoenixes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.provider.set(addrA, okPair(recoveringPair(addrA, "AAA")))
	_, err := f.orch.UpdateTokenData(ctx, domain.ChainSolana, addrA)
	require.NoError(t, err)

	rows, err := f.orch.GetTopPhoenixes(ctx, TopQuery{Chain: "all"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.True(t, row.Fresh)
	assert.Equal(t, 12.0, row.PriceChange24h)
	assert.Equal(t, "Phoenix Rising", row.Category)
	assert.InDelta(t, 83.7, row.BRSScore, 0.001)
	assert.Equal(t, 1, f.provider.callCount(addrA), "served from cache")

	rows, err = f.orch.GetTopPhoenixes(ctx, TopQuery{MinScore: 90})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestGetTopPhoenixesSurvivesProviderFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.provider.set(addrA, okPair(recoveringPair(addrA, "AAA")))
	_, err := f.orch.UpdateTokenData(ctx, domain.ChainSolana, addrA)
	require.NoError(t, err)

	cold := New(Options{
		Provider:   f.provider,
		Discoverer: &fakeDiscoverer{},
		Store:      f.store,
		Clock:      func() time.Time { return baseTime.Add(48 * time.Hour) },
	})
	f.provider.set(addrA, failedPair())

	rows, err := cold.GetTopPhoenixes(ctx, TopQuery{Limit: 5})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Fresh)
	assert.Equal(t, 0.0, rows[0].PriceChange24h)
	assert.Equal(t, rows[0].MarketCap, rows[0].FDV)
	assert.Equal(t, 2, rows[0].TokenAgeDays)
}

func TestGetTokenAnalysis(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.orch.GetTokenAnalysis(ctx, addrA)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	f.provider.set(addrA, okPair(recoveringPair(addrA, "AAA")))
	_, err = f.orch.UpdateTokenData(ctx, domain.ChainSolana, addrA)
	require.NoError(t, err)

	a, err := f.orch.GetTokenAnalysis(ctx, addrA)
	require.NoError(t, err)

	assert.True(t, a.Fresh)
	assert.True(t, a.Simulated)
	assert.Equal(t, "https://dexscreener.com/solana/"+addrA, a.TokenInfo.DexScreenerURL)
	assert.InDelta(t, 25.0, a.MarketMetrics.LiquidityToMcapRatio, 1e-9)
	assert.InDelta(t, 150.0, a.MarketMetrics.VolumeToMcapRatio, 1e-9)
	assert.Equal(t, int64(500), a.PhoenixIndicators.Buys24h)
	assert.Equal(t, 3.0, a.PhoenixIndicators.PriceChange6h)
	assert.Equal(t, "Phoenix Rising", a.BRSAnalysis.Category)
	assert.Len(t, a.BRSAnalysis.Components, 6)
	assert.Len(t, a.VolumeHistory.Points, history.DefaultDays)
	assert.GreaterOrEqual(t, len(a.WhaleActivity), 15)
	assert.LessOrEqual(t, len(a.LargeTransactions.Transactions), history.LargeBuyLimit)

	assert.Contains(t, a.SelectionReasons, "24h volume of $600,000 exceeds minimum requirement")
	assert.Contains(t, a.SelectionReasons, "Buy/sell ratio of 1.67 shows accumulation")
	assert.Contains(t, a.SelectionReasons, "Recent price recovery of 3.0% in 6h")
	assert.Contains(t, a.SelectionReasons, "BRS score of 83.7 indicates strong phoenix potential")
	assert.Equal(t, []string{"No historical ATH data - crash percentage unknown"}, a.RiskFactors)
}

func TestGetTokenAnalysisWithoutProvider(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.provider.set(addrA, okPair(recoveringPair(addrA, "AAA")))
	_, err := f.orch.UpdateTokenData(ctx, domain.ChainSolana, addrA)
	require.NoError(t, err)

	cold := New(Options{Provider: f.provider, Discoverer: &fakeDiscoverer{}, Store: f.store})
	f.provider.set(addrA, failedPair())

	a, err := cold.GetTokenAnalysis(ctx, addrA)
	require.NoError(t, err)
	assert.False(t, a.Fresh)
	assert.Nil(t, a.TokenInfo.PairCreatedAt)
	assert.Equal(t, 400000.0, a.MarketMetrics.MarketCap)
}

func TestSelectionReasonsAndRisks(t *testing.T) {
	tok := domain.Token{CrashPercentage: 85, Volume24h: 40_000, MarketCap: 2_000_000, LiquidityUSD: 50_000}
	score := domain.BRSScore{ScoreBreakdown: domain.ScoreBreakdown{BRSScore: 45, BuySellRatio: 0.5}}
	snap := domain.TokenSnapshot{PriceChange24h: -40, PriceChange6h: -1}

	reasons := SelectionReasons(tok, score, snap)
	assert.Equal(t, []string{
		"Crashed 85.0% from ATH - meets phoenix crash criteria",
		"Market cap of $2,000,000 meets minimum size requirement",
	}, reasons)

	risks := RiskFactors(tok, score, snap)
	assert.Equal(t, []string{
		"Low liquidity ratio of 2.5% - high slippage risk",
		"Severe 24h decline of -40.0% - may continue falling",
		"Low buy/sell ratio of 0.50 - selling pressure remains",
		"Volume of $40,000 is below optimal levels",
	}, risks)
}

func TestAddToWatchlist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	w, added, err := f.orch.AddToWatchlist(ctx, addrA, "", 0)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, domain.DefaultAlertThreshold, w.AlertThreshold)

	_, added, err = f.orch.AddToWatchlist(ctx, addrA, domain.DefaultUserID, 90)
	require.NoError(t, err)
	assert.False(t, added)

	list, err := f.store.ListWatchlist(ctx, domain.DefaultUserID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, _, err = f.orch.AddToWatchlist(ctx, "  ", "", 0)
	assert.ErrorIs(t, err, domain.ErrEmptyAddress)
}

func TestRecentAlerts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	alerts, err := f.orch.RecentAlerts(ctx, 0)
	require.NoError(t, err)
	assert.NotNil(t, alerts)
	assert.Empty(t, alerts)

	f.provider.set(addrA, okPair(recoveringPair(addrA, "AAA")))
	_, err = f.orch.UpdateTokenData(ctx, domain.ChainSolana, addrA)
	require.NoError(t, err)

	alerts, err = f.orch.RecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "AAA", alerts[0].Symbol)
}

func TestDispatchPendingAlerts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.provider.set(addrA, okPair(recoveringPair(addrA, "AAA")))
	_, err := f.orch.UpdateTokenData(ctx, domain.ChainSolana, addrA)
	require.NoError(t, err)

	f.notifier.err = errors.New("telegram down")
	res, err := f.orch.DispatchPendingAlerts(ctx)
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{Failed: 1}, res)

	f.notifier.err = nil
	res, err = f.orch.DispatchPendingAlerts(ctx)
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{Sent: 1}, res)

	require.Len(t, f.notifier.msgs, 1)
	msg := f.notifier.msgs[0]
	assert.Equal(t, "AAA", msg.Symbol)
	assert.Equal(t, domain.ChainSolana, msg.Chain)
	assert.Equal(t, 12.0, msg.PriceChange24h)
	assert.Equal(t, 600000.0, msg.Volume24h)
	assert.Equal(t, "Phoenix Rising", msg.Category)

	res, err = f.orch.DispatchPendingAlerts(ctx)
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{}, res)
}

func TestDispatchPendingAlertsDeadLettersUndeliverable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	for i := 0; i < dispatchBatch; i++ {
		tok := &domain.Token{Address: fmt.Sprintf("stuck-%02d", i), Symbol: "STK"}
		_, created, err := f.store.MaybeCreateAlert(ctx, tok, 70, baseTime.Add(-time.Hour))
		require.NoError(t, err)
		require.True(t, created)
	}
	f.provider.set(addrA, okPair(recoveringPair(addrA, "AAA")))
	_, err := f.orch.UpdateTokenData(ctx, domain.ChainSolana, addrA)
	require.NoError(t, err)
	f.notifier.deliverOnly = addrA

	for attempt := 1; attempt < domain.MaxDeliveryAttempts; attempt++ {
		res, err := f.orch.DispatchPendingAlerts(ctx)
		require.NoError(t, err)
		assert.Equal(t, DispatchResult{Failed: dispatchBatch}, res, "attempt %d", attempt)
	}

	res, err := f.orch.DispatchPendingAlerts(ctx)
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{Failed: dispatchBatch, DeadLettered: dispatchBatch}, res)

	res, err = f.orch.DispatchPendingAlerts(ctx)
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{Sent: 1}, res)
	require.Len(t, f.notifier.msgs, 1)
	assert.Equal(t, addrA, f.notifier.msgs[0].Address)

	pending, err := f.store.PendingAlerts(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, _, err := f.orch.Prune(ctx, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidRetention)

	f.provider.set(addrA, okPair(recoveringPair(addrA, "AAA")))
	_, err = f.orch.UpdateTokenData(ctx, domain.ChainSolana, addrA)
	require.NoError(t, err)
	f.now = baseTime.Add(time.Hour)
	_, err = f.orch.UpdateTokenData(ctx, domain.ChainSolana, addrA)
	require.NoError(t, err)

	f.now = baseTime.Add(10 * 24 * time.Hour)
	scores, alerts, err := f.orch.Prune(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), scores)
	assert.Equal(t, int64(0), alerts, "unsent alerts are kept")
}

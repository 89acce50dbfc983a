package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"solana-phoenix-scanner/internal/brs"
	"solana-phoenix-scanner/internal/domain"
	"solana-phoenix-scanner/internal/history"
	"solana-phoenix-scanner/internal/notify"
	"solana-phoenix-scanner/internal/storage"
)

var printer = message.NewPrinter(language.English)

// TopQuery filters GetTopPhoenixes. Chain "" or "all" matches every chain.
type TopQuery struct {
	Chain        string
	MinLiquidity float64
	MinScore     float64
	MinMarketCap float64
	MinVolume    float64
	Limit        int
}

// PhoenixView is one ranked row with volatile fields refreshed from the provider.
type PhoenixView struct {
	Address            string       `json:"address"`
	Symbol             string       `json:"symbol"`
	Name               string       `json:"name"`
	Chain              string       `json:"chain"`
	CurrentPrice       float64      `json:"current_price"`
	CrashPercentage    float64      `json:"crash_percentage"`
	LiquidityUSD       float64      `json:"liquidity_usd"`
	Volume24h          float64      `json:"volume_24h"`
	MarketCap          float64      `json:"market_cap"`
	FDV                float64      `json:"fdv"`
	PriceChange24h     float64      `json:"price_change_24h"`
	BRSScore           float64      `json:"brs_score"`
	Category           string       `json:"category"`
	Description        string       `json:"description"`
	HolderResilience   float64      `json:"holder_resilience_score"`
	VolumeFloor        float64      `json:"volume_floor_score"`
	PriceRecovery      float64      `json:"price_recovery_score"`
	DistributionHealth float64      `json:"distribution_health_score"`
	RevivalMomentum    float64      `json:"revival_momentum_score"`
	SmartAccumulation  float64      `json:"smart_accumulation_score"`
	BuySellRatio       float64      `json:"buy_sell_ratio"`
	VolumeTrend        domain.Trend `json:"volume_trend"`
	PriceTrend         domain.Trend `json:"price_trend"`
	LastUpdated        time.Time    `json:"last_updated"`
	FirstSeenDate      time.Time    `json:"first_seen_date"`
	TokenAgeDays       int          `json:"token_age_days"`
	Fresh              bool         `json:"fresh"` // volatile fields came from the provider
}

// GetTopPhoenixes returns the best-scored tokens. Provider failures never fail
// the query; rows whose refresh failed carry persisted values only.
func (o *Orchestrator) GetTopPhoenixes(ctx context.Context, q TopQuery) ([]PhoenixView, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultTopLimit
	}
	chain := q.Chain
	if strings.EqualFold(chain, "all") {
		chain = ""
	}

	rows, err := o.store.QueryTopPhoenixes(ctx, storage.TopFilter{
		Limit:        q.Limit,
		MinScore:     q.MinScore,
		Chain:        chain,
		MinMarketCap: q.MinMarketCap,
		MinVolume:    q.MinVolume,
		MinLiquidity: q.MinLiquidity,
	})
	if err != nil {
		return nil, fmt.Errorf("query top phoenixes: %w", err)
	}

	now := o.now()
	out := make([]PhoenixView, 0, len(rows))
	for _, row := range rows {
		t, s := row.Token, row.Score
		interp := brs.Interpret(s.BRSScore)
		v := PhoenixView{
			Address:            t.Address,
			Symbol:             t.Symbol,
			Name:               t.Name,
			Chain:              t.Chain,
			CurrentPrice:       t.CurrentPrice,
			CrashPercentage:    t.CrashPercentage,
			LiquidityUSD:       t.LiquidityUSD,
			Volume24h:          t.Volume24h,
			MarketCap:          t.MarketCap,
			FDV:                t.MarketCap,
			BRSScore:           s.BRSScore,
			Category:           interp.Category,
			Description:        interp.Description,
			HolderResilience:   s.HolderResilience,
			VolumeFloor:        s.VolumeFloor,
			PriceRecovery:      s.PriceRecovery,
			DistributionHealth: s.DistributionHealth,
			RevivalMomentum:    s.RevivalMomentum,
			SmartAccumulation:  s.SmartAccumulation,
			BuySellRatio:       s.BuySellRatio,
			VolumeTrend:        s.VolumeTrend,
			PriceTrend:         s.PriceTrend,
			LastUpdated:        t.LastUpdated,
			FirstSeenDate:      t.FirstSeenDate,
			TokenAgeDays:       daysBetween(t.FirstSeenDate, now),
		}
		if fresh, ok := o.cachedSnapshot(ctx, t.Chain, t.Address); ok {
			v.PriceChange24h = fresh.PriceChange24h
			v.FDV = fresh.FDV
			v.Fresh = true
		}
		out = append(out, v)
	}
	return out, nil
}

// TokenInfo identifies the analysed token.
type TokenInfo struct {
	Symbol         string     `json:"symbol"`
	Name           string     `json:"name"`
	Address        string     `json:"address"`
	Chain          string     `json:"chain"`
	TokenAgeDays   int        `json:"token_age_days"`
	PairCreatedAt  *time.Time `json:"first_seen"` // nil when the provider did not report it
	DexScreenerURL string     `json:"dexscreener_url"`
}

// MarketMetrics are size and activity figures.
type MarketMetrics struct {
	CurrentPrice         float64 `json:"current_price"`
	MarketCap            float64 `json:"market_cap"`
	FDV                  float64 `json:"fdv"`
	LiquidityUSD         float64 `json:"liquidity_usd"`
	Volume24h            float64 `json:"volume_24h"`
	LiquidityToMcapRatio float64 `json:"liquidity_to_mcap_ratio"`
	VolumeToMcapRatio    float64 `json:"volume_to_mcap_ratio"`
}

// PhoenixIndicators are the decline and recovery signals.
type PhoenixIndicators struct {
	CrashFromATH   float64 `json:"crash_from_ath"`
	PriceChange24h float64 `json:"price_change_24h"`
	PriceChange6h  float64 `json:"price_change_6h"`
	PriceChange1h  float64 `json:"price_change_1h"`
	BuySellRatio   float64 `json:"buy_sell_ratio"`
	Buys24h        int64   `json:"buys_24h"`
	Sells24h       int64   `json:"sells_24h"`
}

// BRSAnalysis explains the latest score.
type BRSAnalysis struct {
	TotalScore     float64             `json:"total_score"`
	Category       string              `json:"category"`
	Interpretation string              `json:"interpretation"`
	Variant        domain.ScoreVariant `json:"variant"`
	Components     []brs.Component     `json:"score_breakdown"`
	ScoredAt       time.Time           `json:"scored_at"`
}

// Analysis is the per-token deep dive. VolumeHistory, WhaleActivity and
// LargeTransactions may be generated rather than observed; Simulated says so.
type Analysis struct {
	TokenInfo         TokenInfo                 `json:"token_info"`
	MarketMetrics     MarketMetrics             `json:"market_metrics"`
	PhoenixIndicators PhoenixIndicators         `json:"phoenix_indicators"`
	BRSAnalysis       BRSAnalysis               `json:"brs_analysis"`
	VolumeHistory     history.Series            `json:"volume_history"`
	WhaleActivity     []domain.WhaleTransaction `json:"whale_activity"`
	LargeTransactions history.LargeBuySummary   `json:"large_transactions"`
	SelectionReasons  []string                  `json:"selection_reasons"`
	RiskFactors       []string                  `json:"risk_factors"`
	Fresh             bool                      `json:"fresh"`
	Simulated         bool                      `json:"simulated"`
	Timestamp         time.Time                 `json:"timestamp"`
}

// GetTokenAnalysis combines the stored token, its latest score and a fresh
// snapshot. Returns ErrTokenNotFound when the token has no score history.
// A provider failure degrades to stored values.
func (o *Orchestrator) GetTokenAnalysis(ctx context.Context, address string) (*Analysis, error) {
	st, err := o.store.QueryTokenAnalysis(ctx, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("query token analysis: %w", err)
	}
	t, s := st.Token, st.Score
	now := o.now()

	snap, fresh := o.cachedSnapshot(ctx, t.Chain, t.Address)
	if !fresh {
		snap = domain.TokenSnapshot{
			Address:      t.Address,
			Symbol:       t.Symbol,
			Name:         t.Name,
			Chain:        t.Chain,
			PriceUSD:     t.CurrentPrice,
			LiquidityUSD: t.LiquidityUSD,
			Volume24h:    t.Volume24h,
			MarketCap:    t.MarketCap,
			FDV:          t.MarketCap,
		}
	}

	info := TokenInfo{
		Symbol:         t.Symbol,
		Name:           t.Name,
		Address:        t.Address,
		Chain:          t.Chain,
		DexScreenerURL: notify.DexScreenerURL(t.Chain, t.Address),
	}
	if !snap.PairCreatedAt.IsZero() {
		created := snap.PairCreatedAt
		info.PairCreatedAt = &created
		info.TokenAgeDays = daysBetween(created, now)
	}

	metrics := MarketMetrics{
		CurrentPrice: t.CurrentPrice,
		MarketCap:    snap.MarketCap,
		FDV:          snap.FDV,
		LiquidityUSD: t.LiquidityUSD,
		Volume24h:    t.Volume24h,
	}
	if t.MarketCap > 0 {
		metrics.LiquidityToMcapRatio = t.LiquidityUSD / t.MarketCap * 100
		metrics.VolumeToMcapRatio = t.Volume24h / t.MarketCap * 100
	}

	interp := brs.Interpret(s.BRSScore)
	a := &Analysis{
		TokenInfo:     info,
		MarketMetrics: metrics,
		PhoenixIndicators: PhoenixIndicators{
			CrashFromATH:   t.CrashPercentage,
			PriceChange24h: snap.PriceChange24h,
			PriceChange6h:  snap.PriceChange6h,
			PriceChange1h:  snap.PriceChange1h,
			BuySellRatio:   s.BuySellRatio,
			Buys24h:        snap.Buys24h,
			Sells24h:       snap.Sells24h,
		},
		BRSAnalysis: BRSAnalysis{
			TotalScore:     s.BRSScore,
			Category:       interp.Category,
			Interpretation: interp.Description,
			Variant:        s.Variant,
			Components:     brs.Explain(s.ScoreBreakdown, snap),
			ScoredAt:       s.Timestamp,
		},
		SelectionReasons: SelectionReasons(t, s, snap),
		RiskFactors:      RiskFactors(t, s, snap),
		Fresh:            fresh,
		Timestamp:        now,
	}

	volumeSnap := snap
	volumeSnap.Volume24h = t.Volume24h
	series, err := o.source.VolumeHistory(ctx, volumeSnap, history.DefaultDays)
	if err != nil {
		o.logger.Warn("volume history unavailable", zap.String("address", address), zap.Error(err))
	}
	a.VolumeHistory = series

	whaleSnap := snap
	whaleSnap.PriceUSD = t.CurrentPrice
	txs, err := o.source.WhaleTransactions(ctx, whaleSnap)
	if err != nil {
		o.logger.Warn("whale activity unavailable", zap.String("address", address), zap.Error(err))
	}
	if txs == nil {
		txs = []domain.WhaleTransaction{}
	}
	a.WhaleActivity = txs
	a.LargeTransactions = history.LargeBuys(txs, history.LargeBuyMinUSD, history.LargeBuyLimit)

	a.Simulated = series.Simulated
	for _, tx := range txs {
		if tx.Simulated {
			a.Simulated = true
			break
		}
	}
	return a, nil
}

// SelectionReasons lists the criteria a token satisfies.
func SelectionReasons(t domain.Token, s domain.BRSScore, snap domain.TokenSnapshot) []string {
	reasons := []string{}
	if t.CrashPercentage >= 70 {
		reasons = append(reasons, printer.Sprintf("Crashed %.1f%% from ATH - meets phoenix crash criteria", t.CrashPercentage))
	}
	if t.Volume24h >= 50_000 {
		reasons = append(reasons, printer.Sprintf("24h volume of $%.0f exceeds minimum requirement", t.Volume24h))
	}
	if t.MarketCap >= 500_000 {
		reasons = append(reasons, printer.Sprintf("Market cap of $%.0f meets minimum size requirement", t.MarketCap))
	}
	if s.BuySellRatio > 1 {
		reasons = append(reasons, fmt.Sprintf("Buy/sell ratio of %.2f shows accumulation", s.BuySellRatio))
	}
	if snap.PriceChange6h > 0 {
		reasons = append(reasons, fmt.Sprintf("Recent price recovery of %.1f%% in 6h", snap.PriceChange6h))
	}
	if s.BRSScore >= domain.AlertMinScore {
		reasons = append(reasons, fmt.Sprintf("BRS score of %.1f indicates strong phoenix potential", s.BRSScore))
	}
	return reasons
}

// RiskFactors lists warning signs.
func RiskFactors(t domain.Token, s domain.BRSScore, snap domain.TokenSnapshot) []string {
	risks := []string{}
	var liqRatio float64
	if t.MarketCap > 0 {
		liqRatio = t.LiquidityUSD / t.MarketCap * 100
	}
	if liqRatio < 5 {
		risks = append(risks, fmt.Sprintf("Low liquidity ratio of %.1f%% - high slippage risk", liqRatio))
	}
	if snap.PriceChange24h < -30 {
		risks = append(risks, fmt.Sprintf("Severe 24h decline of %.1f%% - may continue falling", snap.PriceChange24h))
	}
	if s.BuySellRatio < 0.8 {
		risks = append(risks, fmt.Sprintf("Low buy/sell ratio of %.2f - selling pressure remains", s.BuySellRatio))
	}
	if t.Volume24h < 100_000 {
		risks = append(risks, printer.Sprintf("Volume of $%.0f is below optimal levels", t.Volume24h))
	}
	if t.CrashPercentage == 0 {
		risks = append(risks, "No historical ATH data - crash percentage unknown")
	}
	return risks
}

// AddToWatchlist subscribes userID to address. added is false when an active
// subscription already exists; that is not an error.
func (o *Orchestrator) AddToWatchlist(ctx context.Context, address, userID string, threshold float64) (*domain.Watchlist, bool, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, false, domain.ErrEmptyAddress
	}
	w, added, err := o.store.AddWatchlist(ctx, address, userID, threshold, o.now())
	if err != nil {
		return nil, false, fmt.Errorf("add watchlist: %w", err)
	}
	return w, added, nil
}

// RecentAlerts returns the newest alerts.
func (o *Orchestrator) RecentAlerts(ctx context.Context, limit int) ([]domain.AlertView, error) {
	if limit <= 0 {
		limit = DefaultAlertsLimit
	}
	alerts, err := o.store.RecentAlerts(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent alerts: %w", err)
	}
	if alerts == nil {
		alerts = []domain.AlertView{}
	}
	return alerts, nil
}

func daysBetween(from, to time.Time) int {
	if from.IsZero() || to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}

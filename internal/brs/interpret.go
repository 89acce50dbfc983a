package brs

import (
	"fmt"
	"math"

	"solana-phoenix-scanner/internal/domain"
)

// Category labels.
const (
	CategoryPhoenixRising = "Phoenix Rising"
	CategoryShowingLife   = "Showing Life"
	CategoryStillDormant  = "Still Dormant"
	CategoryDeadToken     = "Dead Token"
	CategoryDeepBottom    = "Deep Bottom"
)

// Interpretation is the general label for a score.
type Interpretation struct {
	Category    string `json:"category"`
	Description string `json:"description"`
}

// Interpret maps a score to the general interpretation table used for display and alerts.
func Interpret(score float64) Interpretation {
	switch {
	case score >= 80:
		return Interpretation{CategoryPhoenixRising, "Strong buy signal - high recovery potential"}
	case score >= 60:
		return Interpretation{CategoryShowingLife, "Add to watchlist - monitoring recommended"}
	case score >= 40:
		return Interpretation{CategoryStillDormant, "Monitor only - not ready yet"}
	default:
		return Interpretation{CategoryDeadToken, "Avoid - low recovery probability"}
	}
}

// DiscoveryCategory is the stricter mapping used when labelling fresh candidates.
func DiscoveryCategory(score float64) string {
	switch {
	case score >= 75:
		return CategoryPhoenixRising
	case score >= 60:
		return CategoryShowingLife
	default:
		return CategoryDeepBottom
	}
}

// Component is one scored component with its explanation.
type Component struct {
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	Weight      float64 `json:"weight"`
	Weighted    float64 `json:"weighted"`
	Explanation string  `json:"explanation"`
}

// Explain returns the six components of b in weight-table order with explanations.
func Explain(b domain.ScoreBreakdown, snap domain.TokenSnapshot) []Component {
	comps := []Component{
		{Name: "holder_resilience", Score: b.HolderResilience, Weight: WeightHolderResilience,
			Explanation: explainHolder(b, snap)},
		{Name: "volume_floor", Score: b.VolumeFloor, Weight: WeightVolumeFloor,
			Explanation: explainVolume(snap)},
		{Name: "price_recovery", Score: b.PriceRecovery, Weight: WeightPriceRecovery,
			Explanation: fmt.Sprintf("24h price change of %.2f%%", snap.PriceChange24h)},
		{Name: "distribution_health", Score: b.DistributionHealth, Weight: WeightDistributionHealth,
			Explanation: fmt.Sprintf("Liquidity of $%.0f", snap.LiquidityUSD)},
		{Name: "revival_momentum", Score: b.RevivalMomentum, Weight: WeightRevivalMomentum,
			Explanation: fmt.Sprintf("Volume $%.0f with %.2f%% 24h move", snap.Volume24h, snap.PriceChange24h)},
		{Name: "smart_accumulation", Score: b.SmartAccumulation, Weight: WeightSmartAccumulation,
			Explanation: explainAccumulation(b, snap)},
	}
	for i := range comps {
		comps[i].Weighted = math.Round(comps[i].Score*comps[i].Weight*100) / 100
	}
	return comps
}

func explainHolder(b domain.ScoreBreakdown, snap domain.TokenSnapshot) string {
	if b.Variant == domain.VariantTransactions {
		return fmt.Sprintf("%d buys vs %d sells (ratio %.2f)", snap.Buys24h, snap.Sells24h, b.BuySellRatio)
	}
	if snap.LiquidityUSD > 0 {
		return fmt.Sprintf("Volume/liquidity ratio of %.2f", snap.Volume24h/snap.LiquidityUSD)
	}
	return "No liquidity data, default applied"
}

func explainVolume(snap domain.TokenSnapshot) string {
	if snap.MarketCap > 0 {
		return fmt.Sprintf("24h volume is %.1f%% of market cap", snap.Volume24h/snap.MarketCap*100)
	}
	return fmt.Sprintf("Absolute 24h volume of $%.0f", snap.Volume24h)
}

func explainAccumulation(b domain.ScoreBreakdown, snap domain.TokenSnapshot) string {
	if b.Variant == domain.VariantTransactions {
		return fmt.Sprintf("Buy/sell skew %.2f on $%.0f volume", b.BuySellRatio, snap.Volume24h)
	}
	return fmt.Sprintf("Liquidity $%.0f and volume $%.0f", snap.LiquidityUSD, snap.Volume24h)
}

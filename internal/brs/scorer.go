// Package brs computes the Bottom Resilience Score for a token snapshot.
package brs

import (
	"fmt"
	"math"

	"solana-phoenix-scanner/internal/domain"
)

// Component weights of the composite score.
const (
	WeightHolderResilience   = 0.23
	WeightVolumeFloor        = 0.24
	WeightPriceRecovery      = 0.22
	WeightDistributionHealth = 0.11
	WeightRevivalMomentum    = 0.13
	WeightSmartAccumulation  = 0.15
)

// Composite bounds.
const (
	MinScore      = 20.0
	MaxScore      = 95.0
	FallbackScore = 30.0
)

// Result is the tagged outcome of scoring.
// Fallback is set when scoring failed and Breakdown holds the fixed fallback score.
type Result struct {
	Breakdown domain.ScoreBreakdown
	Fallback  bool
	Err       error
}

// Score computes the breakdown for snap. It never fails; see Evaluate for the tagged form.
func Score(snap domain.TokenSnapshot) domain.ScoreBreakdown {
	return Evaluate(snap).Breakdown
}

// Evaluate scores snap and reports whether the fallback score was used.
func Evaluate(snap domain.TokenSnapshot) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{
				Breakdown: FallbackBreakdown(),
				Fallback:  true,
				Err:       fmt.Errorf("brs: scoring panicked: %v", r),
			}
		}
	}()

	if err := checkFinite(snap); err != nil {
		return Result{Breakdown: FallbackBreakdown(), Fallback: true, Err: err}
	}

	return Result{Breakdown: compute(snap)}
}

// FallbackBreakdown is the fixed score used when scoring fails.
func FallbackBreakdown() domain.ScoreBreakdown {
	return domain.ScoreBreakdown{
		BRSScore:    FallbackScore,
		VolumeTrend: domain.TrendUnknown,
		PriceTrend:  domain.TrendUnknown,
		Variant:     domain.VariantFallback,
	}
}

func compute(s domain.TokenSnapshot) domain.ScoreBreakdown {
	b := domain.ScoreBreakdown{
		VolumeFloor:        volumeFloor(s),
		PriceRecovery:      priceRecovery(s),
		DistributionHealth: distributionHealth(s),
		RevivalMomentum:    revivalMomentum(s),
		BuySellRatio:       BuySellRatio(s.Buys24h, s.Sells24h),
		VolumeTrend:        VolumeTrend(s.Volume24h),
		PriceTrend:         PriceTrend(s.PriceChange24h, s.PriceChange6h),
	}

	if s.HasTxnCounts() {
		b.Variant = domain.VariantTransactions
		b.HolderResilience = holderResilienceTxns(s)
		b.SmartAccumulation = smartAccumulationTxns(s)
	} else {
		b.Variant = domain.VariantVolume
		b.HolderResilience = holderResilience(s)
		b.SmartAccumulation = smartAccumulation(s)
	}

	composite := b.HolderResilience*WeightHolderResilience +
		b.VolumeFloor*WeightVolumeFloor +
		b.PriceRecovery*WeightPriceRecovery +
		b.DistributionHealth*WeightDistributionHealth +
		b.RevivalMomentum*WeightRevivalMomentum +
		b.SmartAccumulation*WeightSmartAccumulation

	b.BRSScore = clamp(round1(composite), MinScore, MaxScore)
	b.HolderResilience = round1(b.HolderResilience)
	b.VolumeFloor = round1(b.VolumeFloor)
	b.PriceRecovery = round1(b.PriceRecovery)
	b.DistributionHealth = round1(b.DistributionHealth)
	b.RevivalMomentum = round1(b.RevivalMomentum)
	b.SmartAccumulation = round1(b.SmartAccumulation)
	return b
}

func holderResilience(s domain.TokenSnapshot) float64 {
	if s.LiquidityUSD > 0 && s.Volume24h > 0 {
		return clamp(s.Volume24h/s.LiquidityUSD*50, 20, 80)
	}
	return 30
}

// holderResilienceTxns buckets the buy/sell ratio into tiers 5..20 and
// rescales them onto the volume variant's 20..80 range.
func holderResilienceTxns(s domain.TokenSnapshot) float64 {
	return holderTier(s.Buys24h, s.Sells24h) * 4
}

func holderTier(buys, sells int64) float64 {
	if sells == 0 {
		return 20
	}
	ratio := float64(buys) / float64(sells)
	switch {
	case ratio > 1.2:
		return 20
	case ratio > 1.0:
		return 15
	case ratio > 0.8:
		return 10
	default:
		return 5
	}
}

func volumeFloor(s domain.TokenSnapshot) float64 {
	if s.MarketCap > 0 {
		volRatio := s.Volume24h / s.MarketCap * 100
		return clamp(30+volRatio*3, 20, 90)
	}
	if s.Volume24h > 50000 {
		return 65
	}
	return 25
}

func priceRecovery(s domain.TokenSnapshot) float64 {
	score := 40.0
	ch := s.PriceChange24h
	if ch > 0 {
		score += math.Min(40, ch*2)
	}
	if ch < -10 {
		score -= math.Abs(ch)
	}
	return clamp(score, 15, 85)
}

func distributionHealth(s domain.TokenSnapshot) float64 {
	switch {
	case s.LiquidityUSD > 100000:
		return 75
	case s.LiquidityUSD > 50000:
		return 60
	case s.LiquidityUSD > 10000:
		return 45
	default:
		return 30
	}
}

func revivalMomentum(s domain.TokenSnapshot) float64 {
	score := 40.0
	if s.Volume24h > 100000 {
		score += 20
	}
	if s.PriceChange24h > 5 {
		score += 25
	} else if s.PriceChange24h > 0 {
		score += 10
	}
	return clamp(score, 20, 85)
}

func smartAccumulation(s domain.TokenSnapshot) float64 {
	score := 35.0
	if s.LiquidityUSD > 50000 {
		score += 15
	}
	if s.Volume24h > 50000 {
		score += 20
	}
	return clamp(score, 25, 80)
}

// smartAccumulationTxns buckets buy pressure into tiers 5..15 and rescales
// them onto the volume variant's 25..80 range.
func smartAccumulationTxns(s domain.TokenSnapshot) float64 {
	return 25 + (accumulationTier(s)-5)*5.5
}

func accumulationTier(s domain.TokenSnapshot) float64 {
	buys := float64(s.Buys24h)
	sells := float64(s.Sells24h)
	switch {
	case buys > sells*1.5 && s.Volume24h > 100000:
		return 15
	case buys > sells*1.2 && s.Volume24h > 50000:
		return 13
	case buys > sells && s.Volume24h > 50000:
		return 11
	case s.PriceChange5m > 0 && buys > sells*0.8:
		return 8
	default:
		return 5
	}
}

// BuySellRatio returns buys/sells rounded to 2 decimals; zero sells count as one.
func BuySellRatio(buys, sells int64) float64 {
	if sells == 0 {
		sells = 1
	}
	return math.Round(float64(buys)/float64(sells)*100) / 100
}

// VolumeTrend tags 24h volume for display.
func VolumeTrend(volume float64) domain.Trend {
	switch {
	case volume > 250000:
		return domain.TrendUp
	case volume > 100000:
		return domain.TrendStable
	case volume > 0:
		return domain.TrendDown
	default:
		return domain.TrendUnknown
	}
}

// PriceTrend tags the multi-horizon price pattern for display.
func PriceTrend(change24h, change6h float64) domain.Trend {
	switch {
	case change6h > 5 || (change24h > 0 && change6h > 0):
		return domain.TrendUp
	case change24h < -10 && change6h < -5:
		return domain.TrendDown
	default:
		return domain.TrendStable
	}
}

func checkFinite(s domain.TokenSnapshot) error {
	fields := map[string]float64{
		"price":      s.PriceUSD,
		"liquidity":  s.LiquidityUSD,
		"volume":     s.Volume24h,
		"market_cap": s.MarketCap,
		"change_5m":  s.PriceChange5m,
		"change_6h":  s.PriceChange6h,
		"change_24h": s.PriceChange24h,
	}
	for name, v := range fields {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("brs: non-finite %s", name)
		}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

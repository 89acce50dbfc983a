package domain

import "time"

// Trend is a display-only direction tag.
type Trend string

const (
	TrendUp      Trend = "up"
	TrendDown    Trend = "down"
	TrendStable  Trend = "stable"
	TrendUnknown Trend = "unknown"
)

// ScoreVariant identifies which input shape produced a breakdown.
type ScoreVariant string

const (
	VariantVolume       ScoreVariant = "volume"
	VariantTransactions ScoreVariant = "transactions"
	VariantFallback     ScoreVariant = "fallback"
)

// ScoreBreakdown is the output of the BRS scorer: six components plus composite.
type ScoreBreakdown struct {
	BRSScore           float64
	HolderResilience   float64
	VolumeFloor        float64
	PriceRecovery      float64
	DistributionHealth float64
	RevivalMomentum    float64
	SmartAccumulation  float64
	BuySellRatio       float64
	VolumeTrend        Trend
	PriceTrend         Trend
	Variant            ScoreVariant
}

// BRSScore is one append-only row of a token's score history.
// Corresponds to brs_scores table in PostgreSQL.
type BRSScore struct {
	ID           string // PRIMARY KEY, deterministic hash
	TokenAddress string
	Timestamp    time.Time // creation time, never mutated
	ScoreBreakdown
}

// ScoredToken joins a token with its most recent score.
type ScoredToken struct {
	Token Token
	Score BRSScore
}

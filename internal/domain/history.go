package domain

import "time"

// VolumePoint is one daily volume observation.
type VolumePoint struct {
	Date      time.Time `json:"date"`
	Volume    float64   `json:"volume"`
	Simulated bool      `json:"simulated"`
}

// WhaleTransaction is a large trade shown in token analysis.
// Values produced by the synthetic history source are not on-chain data.
type WhaleTransaction struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"` // buy | sell
	AmountUSD float64   `json:"amount_usd"`
	Amount    float64   `json:"token_amount"`
	Price     float64   `json:"price"`
	Simulated bool      `json:"simulated"`
}

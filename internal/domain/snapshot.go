package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/mr-tron/base58"
)

// ChainSolana is the provider chain tag for Solana.
const ChainSolana = "solana"

// Validation errors for provider-supplied records.
var (
	ErrEmptyAddress   = errors.New("token address is empty")
	ErrEmptySymbol    = errors.New("token symbol is empty")
	ErrInvalidAddress = errors.New("invalid solana address")
)

// TokenSnapshot is a single point-in-time read of a token's market stats.
// Produced fresh on every fetch and never persisted as-is.
type TokenSnapshot struct {
	Address     string
	Symbol      string
	Name        string
	Chain       string
	DexID       string
	PairAddress string
	URL         string

	PriceUSD     float64
	LiquidityUSD float64
	Volume24h    float64
	MarketCap    float64
	FDV          float64

	PriceChange5m  float64
	PriceChange1h  float64
	PriceChange6h  float64
	PriceChange24h float64

	Buys24h  int64
	Sells24h int64

	PairCreatedAt time.Time // zero when the provider omits it
	FetchedAt     time.Time
}

// NewTokenSnapshot validates the required identity fields and returns the snapshot.
// Address and symbol are trimmed; both must be non-empty.
func NewTokenSnapshot(s TokenSnapshot) (TokenSnapshot, error) {
	s.Address = strings.TrimSpace(s.Address)
	s.Symbol = strings.TrimSpace(s.Symbol)
	if s.Address == "" {
		return TokenSnapshot{}, ErrEmptyAddress
	}
	if s.Symbol == "" {
		return TokenSnapshot{}, ErrEmptySymbol
	}
	if s.Chain == "" {
		s.Chain = ChainSolana
	}
	return s, nil
}

// HasTxnCounts reports whether buy/sell transaction counts are present.
func (s TokenSnapshot) HasTxnCounts() bool {
	return s.Buys24h+s.Sells24h > 0
}

// ValidateSolanaAddress checks that addr decodes from base58 into a 32-byte public key.
func ValidateSolanaAddress(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return ErrEmptyAddress
	}
	raw, err := base58.Decode(addr)
	if err != nil || len(raw) != 32 {
		return ErrInvalidAddress
	}
	return nil
}

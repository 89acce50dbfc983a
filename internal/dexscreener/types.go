package dexscreener

import (
	"bytes"
	"strings"

	"github.com/shopspring/decimal"
)

// Pair is a trading pair as reported by the provider.
type Pair struct {
	ChainID       string      `json:"chainId"`
	DexID         string      `json:"dexId"`
	URL           string      `json:"url"`
	PairAddress   string      `json:"pairAddress"`
	BaseToken     PairToken   `json:"baseToken"`
	QuoteToken    PairToken   `json:"quoteToken"`
	PriceNative   Number      `json:"priceNative"`
	PriceUSD      Number      `json:"priceUsd"`
	Txns          Txns        `json:"txns"`
	Volume        Windows     `json:"volume"`
	PriceChange   Windows     `json:"priceChange"`
	Liquidity     Liquidity   `json:"liquidity"`
	FDV           Number      `json:"fdv"`
	MarketCap     Number      `json:"marketCap"`
	PairCreatedAt Number      `json:"pairCreatedAt"`
	Info          *PairInfo   `json:"info,omitempty"`
	Boosts        *PairBoosts `json:"boosts,omitempty"`
}

// PairToken identifies one side of a pair.
type PairToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// Txns holds buy/sell counts per window.
type Txns struct {
	M5  TxnCount `json:"m5"`
	H1  TxnCount `json:"h1"`
	H6  TxnCount `json:"h6"`
	H24 TxnCount `json:"h24"`
}

// TxnCount is the buy/sell count of one window.
type TxnCount struct {
	Buys  Number `json:"buys"`
	Sells Number `json:"sells"`
}

// Windows holds a value per time window (volume or price change percent).
type Windows struct {
	M5  Number `json:"m5"`
	H1  Number `json:"h1"`
	H6  Number `json:"h6"`
	H24 Number `json:"h24"`
}

// Liquidity of a pair.
type Liquidity struct {
	USD   Number `json:"usd"`
	Base  Number `json:"base"`
	Quote Number `json:"quote"`
}

// PairInfo carries optional presentation metadata.
type PairInfo struct {
	ImageURL string `json:"imageUrl"`
	Websites []struct {
		URL string `json:"url"`
	} `json:"websites"`
	Socials []struct {
		Platform string `json:"platform"`
		Handle   string `json:"handle"`
	} `json:"socials"`
}

// PairBoosts carries the provider's paid-promotion counter.
type PairBoosts struct {
	Active int `json:"active"`
}

// searchResponse is the body of /latest/dex/search.
type searchResponse struct {
	SchemaVersion string `json:"schemaVersion"`
	Pairs         []Pair `json:"pairs"`
}

// Number decodes provider numerics that arrive as JSON numbers or strings.
// Absent, null, empty or unparsable values decode as 0.
type Number float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		*n = 0
		return nil
	}
	f, _ := d.Float64()
	*n = Number(f)
	return nil
}

// Float64 returns the value as float64.
func (n Number) Float64() float64 {
	return float64(n)
}

// Int64 returns the value truncated to int64.
func (n Number) Int64() int64 {
	return int64(n)
}

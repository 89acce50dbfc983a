package dexscreener

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-phoenix-scanner/internal/domain"
)

func TestNormalize_FullPair(t *testing.T) {
	var body searchResponse
	require.NoError(t, json.Unmarshal([]byte(searchBody), &body))
	now := time.Unix(1700001000, 0)

	snap, err := Normalize(body.Pairs[0], now)
	require.NoError(t, err)

	assert.Equal(t, "MintA", snap.Address)
	assert.Equal(t, "ALPHA", snap.Symbol)
	assert.Equal(t, "solana", snap.Chain)
	assert.Equal(t, 1200000.0, snap.MarketCap, "max of fdv and market cap")
	assert.Equal(t, 1200000.0, snap.FDV)
	assert.Equal(t, int64(300), snap.Sells24h)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), snap.PairCreatedAt)
	assert.Equal(t, now, snap.FetchedAt)
}

func TestNormalize_MarketCapEstimate(t *testing.T) {
	p := Pair{
		BaseToken: PairToken{Address: "MintB", Symbol: "B"},
		PriceUSD:  0.5,
		Liquidity: Liquidity{USD: 20000},
	}

	snap, err := Normalize(p, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 200000.0, snap.MarketCap)

	p.PriceUSD = 0
	snap, err = Normalize(p, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.MarketCap, "no estimate without a price")
}

func TestNormalize_MissingIdentity(t *testing.T) {
	_, err := Normalize(Pair{BaseToken: PairToken{Symbol: "X"}}, time.Now())
	assert.ErrorIs(t, err, domain.ErrEmptyAddress)

	_, err = Normalize(Pair{BaseToken: PairToken{Address: "A"}}, time.Now())
	assert.ErrorIs(t, err, domain.ErrEmptySymbol)
}

func TestNumber_Decoding(t *testing.T) {
	var v struct {
		A Number `json:"a"`
		B Number `json:"b"`
		C Number `json:"c"`
		D Number `json:"d"`
		E Number `json:"e"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"1.25","b":3,"c":null,"d":"","e":"n/a"}`), &v))

	assert.Equal(t, 1.25, v.A.Float64())
	assert.Equal(t, 3.0, v.B.Float64())
	assert.Zero(t, v.C)
	assert.Zero(t, v.D)
	assert.Zero(t, v.E)
}

func TestSelectCanonical_TieKeepsFirst(t *testing.T) {
	pairs := []Pair{
		{PairAddress: "first", BaseToken: PairToken{Address: "MintA"}, Liquidity: Liquidity{USD: 10}},
		{PairAddress: "second", BaseToken: PairToken{Address: "MintA"}, Liquidity: Liquidity{USD: 10}},
	}
	best, ok := SelectCanonical(pairs, "MintA")
	require.True(t, ok)
	assert.Equal(t, "first", best.PairAddress)

	_, ok = SelectCanonical(nil, "MintA")
	assert.False(t, ok)
}

func TestSelectCanonical_SkipsPairsQuotingTheToken(t *testing.T) {
	pairs := []Pair{
		{
			PairAddress: "sol-quoted",
			BaseToken:   PairToken{Address: "SolMint", Symbol: "SOL"},
			QuoteToken:  PairToken{Address: "MintB", Symbol: "BBB"},
			Liquidity:   Liquidity{USD: 900000},
		},
		{
			PairAddress: "own-pool",
			BaseToken:   PairToken{Address: "MintB", Symbol: "BBB"},
			QuoteToken:  PairToken{Address: "SolMint", Symbol: "SOL"},
			Liquidity:   Liquidity{USD: 50000},
		},
	}

	best, ok := SelectCanonical(pairs, "MintB")
	require.True(t, ok)
	assert.Equal(t, "own-pool", best.PairAddress)

	_, ok = SelectCanonical(pairs[:1], "MintB")
	assert.False(t, ok, "only quoted, never based")

	_, ok = SelectCanonical(pairs, "mintb")
	assert.False(t, ok, "addresses are case-sensitive")
}

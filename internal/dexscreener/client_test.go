package dexscreener

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchBody = `{
  "schemaVersion": "1.0.0",
  "pairs": [
    {
      "chainId": "solana",
      "dexId": "raydium",
      "url": "https://dexscreener.com/solana/pair1",
      "pairAddress": "pair1",
      "baseToken": {"address": "MintA", "name": "Alpha", "symbol": "ALPHA"},
      "quoteToken": {"address": "So11111111111111111111111111111111111111112", "name": "Wrapped SOL", "symbol": "SOL"},
      "priceUsd": "0.00123",
      "txns": {"h24": {"buys": 420, "sells": 300}},
      "volume": {"h24": 150000.5},
      "priceChange": {"m5": 0.5, "h1": -1, "h6": -3.2, "h24": -12.4},
      "liquidity": {"usd": 80000},
      "fdv": 1200000,
      "marketCap": 900000,
      "pairCreatedAt": 1700000000000
    }
  ]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(
		WithBaseURL(server.URL),
		WithRateLimit(0),
		WithMaxRetries(0),
		WithTimeout(2*time.Second),
	)
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func TestClient_Search(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/dex/search", r.URL.Path)
		assert.Equal(t, "BONK", r.URL.Query().Get("q"))
		writeJSON(w, searchBody)
	})

	res := client.Search(context.Background(), "BONK")

	require.Equal(t, StatusOK, res.Status)
	require.Len(t, res.Value, 1)
	p := res.Value[0]
	assert.Equal(t, "MintA", p.BaseToken.Address)
	assert.InDelta(t, 0.00123, p.PriceUSD.Float64(), 1e-12)
	assert.Equal(t, int64(420), p.Txns.H24.Buys.Int64())
	assert.InDelta(t, -12.4, p.PriceChange.H24.Float64(), 1e-9)
}

func TestClient_SearchFailureIsTagged(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	res := client.Search(context.Background(), "WIF")

	assert.True(t, res.Failed())
	assert.Error(t, res.Err)
	assert.Empty(t, res.Value)
}

func TestClient_SearchMalformedPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"pairs": [`)
	})

	res := client.Search(context.Background(), "WIF")

	assert.Equal(t, StatusFailed, res.Status)
	assert.Empty(t, res.Value)
}

func TestClient_SearchEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"schemaVersion":"1.0.0","pairs":null}`)
	})

	res := client.Search(context.Background(), "nothing")

	assert.Equal(t, StatusEmpty, res.Status)
	assert.NoError(t, res.Err)
}

func TestClient_FetchByAddressPicksMostLiquid(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token-pairs/v1/solana/MintA", r.URL.Path)
		writeJSON(w, `[
			{"pairAddress":"low","baseToken":{"address":"MintA","symbol":"A"},"liquidity":{"usd":100}},
			{"pairAddress":"high","baseToken":{"address":"MintA","symbol":"A"},"liquidity":{"usd":"90000.5"}},
			{"pairAddress":"mid","baseToken":{"address":"MintA","symbol":"A"},"liquidity":{"usd":5000}}
		]`)
	})

	res := client.FetchByAddress(context.Background(), "solana", "MintA")

	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "high", res.Value.PairAddress)
}

func TestClient_FetchByAddressIgnoresQuotedPairs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `[
			{"pairAddress":"sol-bbb","baseToken":{"address":"SolMint","symbol":"SOL"},"quoteToken":{"address":"MintB","symbol":"BBB"},"liquidity":{"usd":900000}},
			{"pairAddress":"bbb-sol","baseToken":{"address":"MintB","symbol":"BBB"},"quoteToken":{"address":"SolMint","symbol":"SOL"},"liquidity":{"usd":50000}}
		]`)
	})

	res := client.FetchByAddress(context.Background(), "solana", "MintB")

	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "bbb-sol", res.Value.PairAddress)
	assert.Equal(t, "BBB", res.Value.BaseToken.Symbol)
}

func TestClient_FetchByAddressOnlyQuotedIsEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `[
			{"pairAddress":"sol-bbb","baseToken":{"address":"SolMint","symbol":"SOL"},"quoteToken":{"address":"MintB","symbol":"BBB"},"liquidity":{"usd":900000}}
		]`)
	})

	res := client.FetchByAddress(context.Background(), "solana", "MintB")

	assert.Equal(t, StatusEmpty, res.Status)
}

func TestClient_FetchByAddressNoData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `[]`)
	})

	res := client.FetchByAddress(context.Background(), "solana", "Unknown")

	assert.Equal(t, StatusEmpty, res.Status)
}

func TestClient_FetchByAddressNotFoundStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	res := client.FetchByAddress(context.Background(), "solana", "Unknown")

	assert.Equal(t, StatusEmpty, res.Status)
}

func TestClient_FetchManyRejectsOversizedBatch(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, `[]`)
	})

	addrs := make([]string, 31)
	for i := range addrs {
		addrs[i] = "addr"
	}
	res := client.FetchMany(context.Background(), "solana", addrs)

	assert.ErrorIs(t, res.Err, ErrTooManyAddresses)
	assert.Equal(t, int32(0), calls.Load())
}

func TestClient_FetchManyChunked(t *testing.T) {
	var sizes []int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/tokens/v1/solana/"), ",")
		sizes = append(sizes, len(parts))
		writeJSON(w, `[{"baseToken":{"address":"`+parts[0]+`","symbol":"X"}}]`)
	})

	addrs := make([]string, 65)
	for i := range addrs {
		addrs[i] = "a" + strings.Repeat("x", i%3)
	}
	res := client.FetchManyChunked(context.Background(), "solana", addrs)

	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, []int{30, 30, 5}, sizes)
	assert.Len(t, res.Value, 3)
}

func TestClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < breakerFailures+3; i++ {
		res := client.Search(context.Background(), "SOL")
		assert.True(t, res.Failed())
	}

	assert.Equal(t, int32(breakerFailures), calls.Load(), "open breaker must short-circuit")
}

func TestClient_CancelledContextFails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, searchBody)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := client.Search(ctx, "SOL")

	assert.True(t, res.Failed())
}

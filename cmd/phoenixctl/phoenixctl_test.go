package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-phoenix-scanner/internal/orchestrator"
)

const bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

const alphaPair = `{
  "chainId": "solana",
  "dexId": "raydium",
  "url": "https://dexscreener.com/solana/pair1",
  "pairAddress": "pair1",
  "baseToken": {"address": "` + bonkMint + `", "name": "Alpha", "symbol": "ALPHA"},
  "quoteToken": {"address": "So11111111111111111111111111111111111111112", "name": "Wrapped SOL", "symbol": "SOL"},
  "priceUsd": "0.00123",
  "txns": {"h24": {"buys": 420, "sells": 300}},
  "volume": {"h24": 150000.5},
  "priceChange": {"h6": -3.2, "h24": -12.4},
  "liquidity": {"usd": 80000},
  "fdv": 1200000,
  "marketCap": 900000,
  "pairCreatedAt": 1700000000000
}`

// fakeDexScreener serves ALPHA for every search and for its token-pairs lookup.
func fakeDexScreener(t *testing.T) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/latest/dex/search":
			_, _ = w.Write([]byte(`{"schemaVersion":"1.0.0","pairs":[` + alphaPair + `]}`))
		case r.URL.Path == "/token-pairs/v1/solana/"+bonkMint:
			_, _ = w.Write([]byte(`[` + alphaPair + `]`))
		case strings.HasPrefix(r.URL.Path, "/token-pairs/v1/"):
			_, _ = w.Write([]byte(`[]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	t.Setenv("PHOENIX_DEXSCREENER_BASE_URL", server.URL)
	t.Setenv("PHOENIX_DEXSCREENER_REQUESTS_PER_MINUTE", "0")
	t.Setenv("PHOENIX_DEXSCREENER_MAX_RETRIES", "0")
	t.Setenv("PHOENIX_DEXSCREENER_SEARCH_DELAY", "-1ms")
	t.Setenv("PHOENIX_REDIS_ADDR", "")
	t.Setenv("PHOENIX_SENTRY_DSN", "")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(append([]string{"--memory", "--env-dir", t.TempDir()}, args...))
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	return out.String(), err
}

func TestDiscoverCommand(t *testing.T) {
	fakeDexScreener(t)

	out, err := execute(t, "discover", "--chain", "solana", "--json")
	require.NoError(t, err)

	var res orchestrator.CycleResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Chains, 1)
	cr := res.Chains[0]
	assert.Equal(t, "solana", cr.Chain)
	assert.Equal(t, 1, cr.Stats.Candidates)
	assert.Equal(t, 1, cr.Updated)
	assert.Zero(t, cr.Failed)
}

func TestDiscoverCommandTable(t *testing.T) {
	fakeDexScreener(t)

	out, err := execute(t, "discover")
	require.NoError(t, err)
	assert.Contains(t, out, "CHAIN")
	assert.Contains(t, out, "solana")
}

func TestUpdateCommand(t *testing.T) {
	fakeDexScreener(t)

	out, err := execute(t, "update", bonkMint)
	require.NoError(t, err)
	assert.Contains(t, out, "ALPHA ("+bonkMint+")")
	assert.Contains(t, out, "score=")
}

func TestUpdateCommandNotFound(t *testing.T) {
	fakeDexScreener(t)

	_, err := execute(t, "update", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	require.Error(t, err)
	assert.ErrorIs(t, err, orchestrator.ErrTokenNotFound)
}

func TestAnalyzeCommandUnknownToken(t *testing.T) {
	fakeDexScreener(t)

	_, err := execute(t, "analyze", bonkMint)
	require.Error(t, err)
	assert.ErrorIs(t, err, orchestrator.ErrTokenNotFound)
}

func TestTopCommandEmptyStore(t *testing.T) {
	fakeDexScreener(t)

	out, err := execute(t, "top", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestAlertsCommandEmptyStore(t *testing.T) {
	fakeDexScreener(t)

	out, err := execute(t, "alerts")
	require.NoError(t, err)
	assert.Contains(t, out, "SYMBOL")
}

func TestWatchCommand(t *testing.T) {
	fakeDexScreener(t)

	out, err := execute(t, "watch", bonkMint, "--user", "alice", "--threshold", "70")
	require.NoError(t, err)
	assert.Equal(t, "added: "+bonkMint+" for alice (threshold 70)\n", out)
}

func TestDispatchCommand(t *testing.T) {
	fakeDexScreener(t)

	out, err := execute(t, "dispatch")
	require.NoError(t, err)
	assert.Equal(t, "sent=0 failed=0 dead_lettered=0\n", out)
}

func TestMigrateCommandMemory(t *testing.T) {
	fakeDexScreener(t)

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to migrate")
}

func TestPruneCommand(t *testing.T) {
	fakeDexScreener(t)

	_, err := execute(t, "prune", "--days", "0")
	require.Error(t, err)

	out, err := execute(t, "prune", "--days", "7")
	require.NoError(t, err)
	assert.Equal(t, "pruned 0 scores and 0 alerts\n", out)
}

func TestInvalidConfigFailsSetup(t *testing.T) {
	fakeDexScreener(t)
	t.Setenv("PHOENIX_DISCOVERY_INTERVAL", "0s")

	_, err := execute(t, "dispatch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discovery.interval")
}

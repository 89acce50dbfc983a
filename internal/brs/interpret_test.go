package brs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"solana-phoenix-scanner/internal/domain"
)

func TestInterpret_Boundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{95, CategoryPhoenixRising},
		{80.0, CategoryPhoenixRising},
		{79.99, CategoryShowingLife},
		{60, CategoryShowingLife},
		{59.99, CategoryStillDormant},
		{40, CategoryStillDormant},
		{39.99, CategoryDeadToken},
		{20, CategoryDeadToken},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Interpret(tt.score).Category, "score %v", tt.score)
	}
}

func TestDiscoveryCategory(t *testing.T) {
	assert.Equal(t, CategoryPhoenixRising, DiscoveryCategory(75))
	assert.Equal(t, CategoryShowingLife, DiscoveryCategory(74.9))
	assert.Equal(t, CategoryShowingLife, DiscoveryCategory(60))
	assert.Equal(t, CategoryDeepBottom, DiscoveryCategory(59.9))
}

func TestExplain_ReturnsSixWeightedComponents(t *testing.T) {
	snap := domain.TokenSnapshot{Address: "X", Symbol: "X", LiquidityUSD: 80000, Volume24h: 200000, Buys24h: 30, Sells24h: 10}
	b := Score(snap)

	comps := Explain(b, snap)

	assert.Len(t, comps, 6)
	var weights float64
	for _, c := range comps {
		weights += c.Weight
		assert.NotEmpty(t, c.Explanation)
	}
	assert.InDelta(t, 1.08, weights, 1e-9)
	assert.Contains(t, comps[0].Explanation, "30 buys vs 10 sells")
}

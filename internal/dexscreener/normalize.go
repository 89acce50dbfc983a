package dexscreener

import (
	"math"
	"time"

	"solana-phoenix-scanner/internal/domain"
)

// Normalize maps a provider pair into a TokenSnapshot.
// Missing numerics default to 0. Market cap is max(fdv, marketCap); when both
// are zero and the price is positive it is estimated as liquidity x 10.
func Normalize(p Pair, fetchedAt time.Time) (domain.TokenSnapshot, error) {
	price := p.PriceUSD.Float64()
	liquidity := p.Liquidity.USD.Float64()
	fdv := p.FDV.Float64()

	marketCap := math.Max(fdv, p.MarketCap.Float64())
	if marketCap == 0 && price > 0 {
		// order-of-magnitude estimate only
		marketCap = liquidity * 10
	}

	var createdAt time.Time
	if ms := p.PairCreatedAt.Int64(); ms > 0 {
		createdAt = time.UnixMilli(ms).UTC()
	}

	return domain.NewTokenSnapshot(domain.TokenSnapshot{
		Address:        p.BaseToken.Address,
		Symbol:         p.BaseToken.Symbol,
		Name:           p.BaseToken.Name,
		Chain:          p.ChainID,
		DexID:          p.DexID,
		PairAddress:    p.PairAddress,
		URL:            p.URL,
		PriceUSD:       price,
		LiquidityUSD:   liquidity,
		Volume24h:      p.Volume.H24.Float64(),
		MarketCap:      marketCap,
		FDV:            fdv,
		PriceChange5m:  p.PriceChange.M5.Float64(),
		PriceChange1h:  p.PriceChange.H1.Float64(),
		PriceChange6h:  p.PriceChange.H6.Float64(),
		PriceChange24h: p.PriceChange.H24.Float64(),
		Buys24h:        p.Txns.H24.Buys.Int64(),
		Sells24h:       p.Txns.H24.Sells.Int64(),
		PairCreatedAt:  createdAt,
		FetchedAt:      fetchedAt,
	})
}

// SelectCanonical returns the most liquid pair whose base token is address.
// Pairs that quote the token are skipped. Ties keep the earliest pair.
// Returns false when no pair has address as its base token.
func SelectCanonical(pairs []Pair, address string) (Pair, bool) {
	var (
		best  Pair
		found bool
	)
	for _, p := range pairs {
		if p.BaseToken.Address != address {
			continue
		}
		if !found || p.Liquidity.USD > best.Liquidity.USD {
			best, found = p, true
		}
	}
	return best, found
}

// PairURL returns the provider's web page for a token.
func PairURL(chain, address string) string {
	return "https://dexscreener.com/" + chain + "/" + address
}

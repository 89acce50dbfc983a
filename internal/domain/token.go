package domain

import "time"

// CrashPlaceholder is the crash percentage assumed when no ATH has been observed.
const CrashPlaceholder = 75.0

// Token is the latest known state of a token.
// Corresponds to tokens table in PostgreSQL.
type Token struct {
	Address         string // PRIMARY KEY, immutable
	Symbol          string
	Name            string
	Chain           string
	CurrentPrice    float64
	ATHPrice        *float64   // highest price observed by this system (nullable)
	ATHDate         *time.Time // when ATHPrice was observed (nullable)
	CrashPercentage float64
	LiquidityUSD    float64
	Volume24h       float64
	MarketCap       float64
	FirstSeenDate   time.Time // write-once
	LastUpdated     time.Time
}

// ApplySnapshot merges a fresh snapshot into the stored token.
// existing may be nil for an address seen for the first time.
//
// ATH is monotonically non-decreasing: a price strictly above the stored ATH
// (or any positive price when no ATH exists) becomes the new ATH and resets the
// crash percentage to 0. Otherwise crash is recomputed from the stored ATH, or
// set to CrashPlaceholder when there is none.
func ApplySnapshot(existing *Token, snap TokenSnapshot, now time.Time) Token {
	var t Token
	if existing != nil {
		t = *existing
		t.ATHPrice = copyFloat(existing.ATHPrice)
		t.ATHDate = copyTime(existing.ATHDate)
	} else {
		t = Token{
			Address:       snap.Address,
			Chain:         snap.Chain,
			FirstSeenDate: now,
		}
	}

	if snap.Symbol != "" {
		t.Symbol = snap.Symbol
	}
	if snap.Name != "" {
		t.Name = snap.Name
	}
	if t.Chain == "" {
		t.Chain = snap.Chain
	}
	t.CurrentPrice = snap.PriceUSD
	t.LiquidityUSD = snap.LiquidityUSD
	t.Volume24h = snap.Volume24h
	t.MarketCap = snap.MarketCap
	t.LastUpdated = now

	switch {
	case snap.PriceUSD > 0 && (t.ATHPrice == nil || snap.PriceUSD > *t.ATHPrice):
		price := snap.PriceUSD
		at := now
		t.ATHPrice = &price
		t.ATHDate = &at
		t.CrashPercentage = 0
	case t.ATHPrice != nil && *t.ATHPrice > 0:
		t.CrashPercentage = (*t.ATHPrice - snap.PriceUSD) / *t.ATHPrice * 100
	default:
		t.CrashPercentage = CrashPlaceholder
	}

	return t
}

// HasATH reports whether an ATH has been recorded.
func (t *Token) HasATH() bool {
	return t.ATHPrice != nil && *t.ATHPrice > 0
}

// Clone returns a deep copy.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	c := *t
	c.ATHPrice = copyFloat(t.ATHPrice)
	c.ATHDate = copyTime(t.ATHDate)
	return &c
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

package postgres

import (
	"strings"

	"github.com/jackc/pgx/v5"

	"solana-phoenix-scanner/internal/domain"
)

// prefixed qualifies a comma-separated column list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func scanToken(row pgx.Row) (*domain.Token, error) {
	var t domain.Token
	err := row.Scan(tokenDest(&t)...)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func tokenDest(t *domain.Token) []any {
	return []any{
		&t.Address,
		&t.Symbol,
		&t.Name,
		&t.Chain,
		&t.CurrentPrice,
		&t.ATHPrice,
		&t.ATHDate,
		&t.CrashPercentage,
		&t.LiquidityUSD,
		&t.Volume24h,
		&t.MarketCap,
		&t.FirstSeenDate,
		&t.LastUpdated,
	}
}

type scoreScan struct {
	volumeTrend string
	priceTrend  string
	variant     string
}

func scoreDest(s *domain.BRSScore, aux *scoreScan) []any {
	return []any{
		&s.ID,
		&s.TokenAddress,
		&s.Timestamp,
		&s.BRSScore,
		&s.HolderResilience,
		&s.VolumeFloor,
		&s.PriceRecovery,
		&s.DistributionHealth,
		&s.RevivalMomentum,
		&s.SmartAccumulation,
		&s.BuySellRatio,
		&aux.volumeTrend,
		&aux.priceTrend,
		&aux.variant,
	}
}

func (aux scoreScan) apply(s *domain.BRSScore) {
	s.VolumeTrend = domain.Trend(aux.volumeTrend)
	s.PriceTrend = domain.Trend(aux.priceTrend)
	s.Variant = domain.ScoreVariant(aux.variant)
}

func scanScore(row pgx.Row) (*domain.BRSScore, error) {
	var (
		s   domain.BRSScore
		aux scoreScan
	)
	if err := row.Scan(scoreDest(&s, &aux)...); err != nil {
		return nil, err
	}
	aux.apply(&s)
	return &s, nil
}

func scanScoredToken(row pgx.Row) (*domain.ScoredToken, error) {
	var (
		st  domain.ScoredToken
		aux scoreScan
	)
	dest := append(tokenDest(&st.Token), scoreDest(&st.Score, &aux)...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	aux.apply(&st.Score)
	return &st, nil
}

func scanWatchlist(row pgx.Row) (*domain.Watchlist, error) {
	var w domain.Watchlist
	err := row.Scan(&w.ID, &w.TokenAddress, &w.UserID, &w.AddedDate, &w.AlertThreshold, &w.Active)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-phoenix-scanner/internal/domain"
	"solana-phoenix-scanner/internal/observability"
	"solana-phoenix-scanner/internal/storage"
)

// SnapshotHistoryStore implements storage.SnapshotHistoryStore using ClickHouse.
type SnapshotHistoryStore struct {
	conn *Conn
}

// NewSnapshotHistoryStore creates a new SnapshotHistoryStore.
func NewSnapshotHistoryStore(conn *Conn) *SnapshotHistoryStore {
	return &SnapshotHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotHistoryStore = (*SnapshotHistoryStore)(nil)

// Append writes snapshots in a single batch.
func (s *SnapshotHistoryStore) Append(ctx context.Context, snaps []domain.TokenSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	for _, sn := range snaps {
		if sn.Address == "" || sn.FetchedAt.IsZero() {
			return storage.ErrInvalidInput
		}
	}

	start := time.Now()
	err := s.appendBatch(ctx, snaps)
	observability.RecordDBQuery("clickhouse", "append_snapshots", time.Since(start).Seconds(), err)
	return err
}

func (s *SnapshotHistoryStore) appendBatch(ctx context.Context, snaps []domain.TokenSnapshot) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO token_snapshots (
			address, chain, symbol, fetched_at, price_usd, liquidity_usd, volume_24h, market_cap, fdv,
			price_change_5m, price_change_1h, price_change_6h, price_change_24h, buys_24h, sells_24h
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, sn := range snaps {
		err = batch.Append(
			sn.Address, sn.Chain, sn.Symbol, sn.FetchedAt.UTC(),
			sn.PriceUSD, sn.LiquidityUSD, sn.Volume24h, sn.MarketCap, sn.FDV,
			sn.PriceChange5m, sn.PriceChange1h, sn.PriceChange6h, sn.PriceChange24h,
			sn.Buys24h, sn.Sells24h,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// DailyVolume returns the highest 24h volume observed per UTC day, oldest first.
func (s *SnapshotHistoryStore) DailyVolume(ctx context.Context, address string, since time.Time) ([]domain.VolumePoint, error) {
	query := `
		SELECT toStartOfDay(fetched_at, 'UTC') AS day, max(volume_24h) AS volume
		FROM token_snapshots
		WHERE address = ? AND fetched_at >= ?
		GROUP BY day
		ORDER BY day ASC
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, address, since.UTC())
	if err != nil {
		observability.RecordDBQuery("clickhouse", "daily_volume", time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("query daily volume: %w", err)
	}
	defer rows.Close()

	var points []domain.VolumePoint
	for rows.Next() {
		var (
			day    time.Time
			volume float64
		)
		if err := rows.Scan(&day, &volume); err != nil {
			return nil, fmt.Errorf("scan daily volume row: %w", err)
		}
		points = append(points, domain.VolumePoint{Date: day.UTC(), Volume: volume})
	}

	err = rows.Err()
	observability.RecordDBQuery("clickhouse", "daily_volume", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("iterate daily volume rows: %w", err)
	}
	return points, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"

	"solana-phoenix-scanner/internal/domain"
	"solana-phoenix-scanner/internal/observability"
	"solana-phoenix-scanner/internal/storage"
)

// maxWriteAttempts bounds retries of a conflicting write transaction.
const maxWriteAttempts = 5

// TokenStore implements storage.TokenStore using PostgreSQL.
//
// Every write runs in a transaction that first takes a transaction-scoped
// advisory lock keyed by the token address, so writers of the same address
// are serialized while different addresses proceed in parallel.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

const tokenColumns = `address, symbol, name, chain, current_price, ath_price, ath_date, crash_percentage,
	liquidity_usd, volume_24h, market_cap, first_seen_date, last_updated`

const scoreColumns = `id, token_address, timestamp, brs_score, holder_resilience, volume_floor,
	price_recovery, distribution_health, revival_momentum, smart_accumulation,
	buy_sell_ratio, volume_trend, price_trend, variant`

// withAddressTx runs fn in a transaction holding the advisory lock for address.
// Serialization failures and deadlocks are retried with exponential backoff.
func (s *TokenStore) withAddressTx(ctx context.Context, operation, address string, fn func(pgx.Tx) error) error {
	start := time.Now()
	attempt := 0

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond
	b := backoff.WithContext(backoff.WithMaxRetries(policy, maxWriteAttempts-1), ctx)

	err := backoff.Retry(func() error {
		attempt++
		if attempt > 1 {
			observability.RecordDBRetry(operation)
		}
		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, address); err != nil {
				return fmt.Errorf("lock %s: %w", address, err)
			}
			return fn(tx)
		})
		if err != nil && !isRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)

	observe(operation, start, err)
	if err != nil && isRetryableError(err) {
		return fmt.Errorf("%s %s: %w", operation, address, storage.ErrConflict)
	}
	return err
}

// UpsertToken creates or updates a token.
func (s *TokenStore) UpsertToken(ctx context.Context, snap domain.TokenSnapshot, now time.Time) (*domain.Token, error) {
	if snap.Address == "" {
		return nil, storage.ErrInvalidInput
	}

	var out *domain.Token
	err := s.withAddressTx(ctx, "upsert_token", snap.Address, func(tx pgx.Tx) error {
		var err error
		out, err = upsertToken(ctx, tx, snap, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func upsertToken(ctx context.Context, tx pgx.Tx, snap domain.TokenSnapshot, now time.Time) (*domain.Token, error) {
	row := tx.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE address = $1 FOR UPDATE`, snap.Address)
	existing, err := scanToken(row)
	if err != nil {
		if !isNotFoundError(err) {
			return nil, fmt.Errorf("select token: %w", err)
		}
		existing = nil
	}

	next := domain.ApplySnapshot(existing, snap, now)

	query := `
		INSERT INTO tokens (` + tokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (address) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			name = EXCLUDED.name,
			current_price = EXCLUDED.current_price,
			ath_price = EXCLUDED.ath_price,
			ath_date = EXCLUDED.ath_date,
			crash_percentage = EXCLUDED.crash_percentage,
			liquidity_usd = EXCLUDED.liquidity_usd,
			volume_24h = EXCLUDED.volume_24h,
			market_cap = EXCLUDED.market_cap,
			last_updated = EXCLUDED.last_updated
	`
	_, err = tx.Exec(ctx, query,
		next.Address,
		next.Symbol,
		next.Name,
		next.Chain,
		next.CurrentPrice,
		next.ATHPrice,
		next.ATHDate,
		next.CrashPercentage,
		next.LiquidityUSD,
		next.Volume24h,
		next.MarketCap,
		next.FirstSeenDate,
		next.LastUpdated,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert token: %w", err)
	}
	return &next, nil
}

// GetToken retrieves a token by address.
func (s *TokenStore) GetToken(ctx context.Context, address string) (*domain.Token, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE address = $1`, address)
	t, err := scanToken(row)
	observe("get_token", start, ignoreNoRows(err))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return t, nil
}

// AppendScore inserts a new score row.
func (s *TokenStore) AppendScore(ctx context.Context, address string, b domain.ScoreBreakdown, now time.Time) (*domain.BRSScore, error) {
	if address == "" {
		return nil, storage.ErrInvalidInput
	}

	var out *domain.BRSScore
	err := s.withAddressTx(ctx, "append_score", address, func(tx pgx.Tx) error {
		var err error
		out, err = appendScore(ctx, tx, address, b, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func appendScore(ctx context.Context, tx pgx.Tx, address string, b domain.ScoreBreakdown, now time.Time) (*domain.BRSScore, error) {
	row := storage.NewScore(address, b, now)
	query := `
		INSERT INTO brs_scores (` + scoreColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := tx.Exec(ctx, query,
		row.ID,
		row.TokenAddress,
		row.Timestamp,
		row.BRSScore,
		row.HolderResilience,
		row.VolumeFloor,
		row.PriceRecovery,
		row.DistributionHealth,
		row.RevivalMomentum,
		row.SmartAccumulation,
		row.BuySellRatio,
		string(row.VolumeTrend),
		string(row.PriceTrend),
		string(row.Variant),
	)
	if err != nil {
		switch {
		case isDuplicateKeyError(err):
			return nil, storage.ErrDuplicateKey
		case isForeignKeyError(err):
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("insert score: %w", err)
	}
	return &row, nil
}

// MaybeCreateAlert inserts an alert unless one exists within the dedup window.
func (s *TokenStore) MaybeCreateAlert(ctx context.Context, token *domain.Token, score float64, now time.Time) (*domain.Alert, bool, error) {
	if token == nil || token.Address == "" {
		return nil, false, storage.ErrInvalidInput
	}
	if !storage.AlertEligible(score) {
		return nil, false, nil
	}

	var (
		out     *domain.Alert
		created bool
	)
	err := s.withAddressTx(ctx, "maybe_create_alert", token.Address, func(tx pgx.Tx) error {
		var err error
		out, created, err = maybeCreateAlert(ctx, tx, token, score, now)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

func maybeCreateAlert(ctx context.Context, tx pgx.Tx, token *domain.Token, score float64, now time.Time) (*domain.Alert, bool, error) {
	if !storage.AlertEligible(score) {
		return nil, false, nil
	}

	var recent bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM alerts WHERE token_address = $1 AND timestamp > $2)`,
		token.Address, storage.AlertDedupCutoff(now),
	).Scan(&recent)
	if err != nil {
		return nil, false, fmt.Errorf("check recent alert: %w", err)
	}
	if recent {
		return nil, false, nil
	}

	alert := storage.BuildAlert(token, score, now)
	_, err = tx.Exec(ctx, `
		INSERT INTO alerts (id, token_address, alert_type, timestamp, message, score_at_alert, sent_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		alert.ID,
		alert.TokenAddress,
		alert.AlertType,
		alert.Timestamp,
		alert.Message,
		alert.ScoreAtAlert,
		alert.SentStatus,
	)
	if err != nil {
		switch {
		case isDuplicateKeyError(err):
			return nil, false, storage.ErrDuplicateKey
		case isForeignKeyError(err):
			return nil, false, storage.ErrNotFound
		}
		return nil, false, fmt.Errorf("insert alert: %w", err)
	}
	return &alert, true, nil
}

// RecordUpdate upserts the token, appends the score and checks the alert in one transaction.
func (s *TokenStore) RecordUpdate(ctx context.Context, snap domain.TokenSnapshot, b domain.ScoreBreakdown, now time.Time) (*storage.UpdateResult, error) {
	if snap.Address == "" {
		return nil, storage.ErrInvalidInput
	}

	var res *storage.UpdateResult
	err := s.withAddressTx(ctx, "record_update", snap.Address, func(tx pgx.Tx) error {
		token, err := upsertToken(ctx, tx, snap, now)
		if err != nil {
			return err
		}
		score, err := appendScore(ctx, tx, snap.Address, b, now)
		if err != nil {
			return err
		}
		alert, created, err := maybeCreateAlert(ctx, tx, token, b.BRSScore, now)
		if err != nil {
			return err
		}
		res = &storage.UpdateResult{Token: token, Score: score, Alert: alert, AlertCreated: created}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// QueryTopPhoenixes returns tokens joined to their latest score, best first.
func (s *TokenStore) QueryTopPhoenixes(ctx context.Context, f storage.TopFilter) ([]domain.ScoredToken, error) {
	if f.Limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT ` + prefixed("t", tokenColumns) + `, ` + prefixed("s", scoreColumns) + `
		FROM tokens t
		JOIN (
			SELECT DISTINCT ON (token_address) ` + scoreColumns + `
			FROM brs_scores
			ORDER BY token_address, timestamp DESC, id DESC
		) s ON s.token_address = t.address
		WHERE ($1 = '' OR lower(t.chain) = lower($1))
		  AND t.market_cap >= $2
		  AND t.volume_24h >= $3
		  AND t.liquidity_usd >= $4
		  AND s.brs_score >= $5
		ORDER BY s.brs_score DESC, t.address ASC
		LIMIT $6
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, f.Chain, f.MinMarketCap, f.MinVolume, f.MinLiquidity, f.MinScore, f.Limit)
	if err != nil {
		observe("query_top", start, err)
		return nil, fmt.Errorf("query top phoenixes: %w", err)
	}
	defer rows.Close()

	var out []domain.ScoredToken
	for rows.Next() {
		st, err := scanScoredToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan top phoenix: %w", err)
		}
		out = append(out, *st)
	}
	err = rows.Err()
	observe("query_top", start, err)
	if err != nil {
		return nil, fmt.Errorf("iterate top phoenixes: %w", err)
	}
	return out, nil
}

// QueryTokenAnalysis returns the token with its latest score.
func (s *TokenStore) QueryTokenAnalysis(ctx context.Context, address string) (*domain.ScoredToken, error) {
	query := `
		SELECT ` + prefixed("t", tokenColumns) + `, ` + prefixed("s", scoreColumns) + `
		FROM tokens t
		JOIN brs_scores s ON s.token_address = t.address
		WHERE t.address = $1
		ORDER BY s.timestamp DESC, s.id DESC
		LIMIT 1
	`

	start := time.Now()
	st, err := scanScoredToken(s.pool.QueryRow(ctx, query, address))
	observe("query_analysis", start, ignoreNoRows(err))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query token analysis: %w", err)
	}
	return st, nil
}

// ScoreHistory returns scores newest first.
func (s *TokenStore) ScoreHistory(ctx context.Context, address string, limit int) ([]domain.BRSScore, error) {
	query := `SELECT ` + scoreColumns + ` FROM brs_scores WHERE token_address = $1 ORDER BY timestamp DESC, id DESC`
	args := []any{address}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query score history: %w", err)
	}
	defer rows.Close()

	var out []domain.BRSScore
	for rows.Next() {
		sc, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

// AddWatchlist inserts an active watchlist row unless one exists.
func (s *TokenStore) AddWatchlist(ctx context.Context, address, userID string, threshold float64, now time.Time) (*domain.Watchlist, bool, error) {
	if address == "" {
		return nil, false, storage.ErrInvalidInput
	}
	if userID == "" {
		userID = domain.DefaultUserID
	}
	if threshold <= 0 {
		threshold = domain.DefaultAlertThreshold
	}

	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO watchlist (token_address, user_id, added_date, alert_threshold, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (token_address, user_id) WHERE active DO NOTHING
		RETURNING id, token_address, user_id, added_date, alert_threshold, active
	`, address, userID, now, threshold)
	w, err := scanWatchlist(row)
	observe("add_watchlist", start, ignoreNoRows(err))
	if err == nil {
		return w, true, nil
	}
	if !isNotFoundError(err) {
		return nil, false, fmt.Errorf("insert watchlist: %w", err)
	}

	existing, err := scanWatchlist(s.pool.QueryRow(ctx, `
		SELECT id, token_address, user_id, added_date, alert_threshold, active
		FROM watchlist
		WHERE token_address = $1 AND user_id = $2 AND active
	`, address, userID))
	if err != nil {
		return nil, false, fmt.Errorf("select existing watchlist: %w", err)
	}
	return existing, false, nil
}

// ListWatchlist returns active rows for userID.
func (s *TokenStore) ListWatchlist(ctx context.Context, userID string) ([]domain.Watchlist, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, token_address, user_id, added_date, alert_threshold, active
		FROM watchlist
		WHERE user_id = $1 AND active
		ORDER BY added_date ASC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query watchlist: %w", err)
	}
	defer rows.Close()

	var out []domain.Watchlist
	for rows.Next() {
		w, err := scanWatchlist(rows)
		if err != nil {
			return nil, fmt.Errorf("scan watchlist: %w", err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// RecentAlerts returns the newest alerts first.
func (s *TokenStore) RecentAlerts(ctx context.Context, limit int) ([]domain.AlertView, error) {
	return s.queryAlerts(ctx, "recent_alerts", `TRUE`, `a.timestamp DESC, a.id DESC`, limit)
}

// PendingAlerts returns unsent alerts that are not dead-lettered, oldest first.
func (s *TokenStore) PendingAlerts(ctx context.Context, limit int) ([]domain.AlertView, error) {
	return s.queryAlerts(ctx, "pending_alerts", pendingAlertsWhere, `a.timestamp ASC, a.id ASC`, limit)
}

var pendingAlertsWhere = fmt.Sprintf(`NOT a.sent_status AND a.delivery_attempts < %d`, domain.MaxDeliveryAttempts)

func (s *TokenStore) queryAlerts(ctx context.Context, operation, where, order string, limit int) ([]domain.AlertView, error) {
	query := `
		SELECT a.id, a.token_address, a.alert_type, a.timestamp, a.message, a.score_at_alert, a.sent_status,
			a.delivery_attempts, COALESCE(t.symbol, '')
		FROM alerts a
		LEFT JOIN tokens t ON t.address = a.token_address
		WHERE ` + where + `
		ORDER BY ` + order
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		observe(operation, start, err)
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer rows.Close()

	var out []domain.AlertView
	for rows.Next() {
		var v domain.AlertView
		if err := rows.Scan(
			&v.ID, &v.TokenAddress, &v.AlertType, &v.Timestamp, &v.Message, &v.ScoreAtAlert, &v.SentStatus,
			&v.DeliveryAttempts, &v.Symbol,
		); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, v)
	}
	err = rows.Err()
	observe(operation, start, err)
	return out, err
}

// MarkAlertSent flags an alert as delivered.
func (s *TokenStore) MarkAlertSent(ctx context.Context, alertID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE alerts SET sent_status = TRUE WHERE id = $1`, alertID)
	if err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RecordAlertFailure increments the failed delivery count.
func (s *TokenStore) RecordAlertFailure(ctx context.Context, alertID string) (int, error) {
	var attempts int
	err := s.pool.QueryRow(ctx, `
		UPDATE alerts SET delivery_attempts = delivery_attempts + 1
		WHERE id = $1
		RETURNING delivery_attempts
	`, alertID).Scan(&attempts)
	if isNotFoundError(err) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("record alert failure: %w", err)
	}
	return attempts, nil
}

// Prune removes old scores (keeping each token's latest) and old sent or
// dead-lettered alerts.
func (s *TokenStore) Prune(ctx context.Context, before time.Time) (int64, int64, error) {
	start := time.Now()
	scoreTag, err := s.pool.Exec(ctx, `
		DELETE FROM brs_scores s
		WHERE s.timestamp < $1
		  AND s.id <> (
			SELECT l.id FROM brs_scores l
			WHERE l.token_address = s.token_address
			ORDER BY l.timestamp DESC, l.id DESC
			LIMIT 1
		  )
	`, before)
	if err != nil {
		observe("prune", start, err)
		return 0, 0, fmt.Errorf("prune scores: %w", err)
	}

	alertTag, err := s.pool.Exec(ctx, `
		DELETE FROM alerts
		WHERE (sent_status OR delivery_attempts >= $2) AND timestamp < $1
	`, before, domain.MaxDeliveryAttempts)
	observe("prune", start, err)
	if err != nil {
		return scoreTag.RowsAffected(), 0, fmt.Errorf("prune alerts: %w", err)
	}
	return scoreTag.RowsAffected(), alertTag.RowsAffected(), nil
}

func ignoreNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}

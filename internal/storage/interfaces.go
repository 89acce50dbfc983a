package storage

import (
	"context"
	"time"

	"solana-phoenix-scanner/internal/domain"
)

// TopFilter selects rows for QueryTopPhoenixes. Zero values disable a filter,
// except Limit which must be positive.
type TopFilter struct {
	Limit        int
	MinScore     float64
	Chain        string
	MinMarketCap float64
	MinVolume    float64
	MinLiquidity float64
}

// UpdateResult is the outcome of one atomic token update.
type UpdateResult struct {
	Token        *domain.Token
	Score        *domain.BRSScore
	Alert        *domain.Alert // nil when no alert was raised
	AlertCreated bool
}

// TokenStore persists tokens, their score history, alerts and watchlists.
//
// Writes for one address are serialized: RecordUpdate performs upsert, score
// append and alert check as one unit relative to other writers of that address.
type TokenStore interface {
	// UpsertToken creates or updates the token for snap.Address applying
	// domain.ApplySnapshot rules.
	UpsertToken(ctx context.Context, snap domain.TokenSnapshot, now time.Time) (*domain.Token, error)

	// GetToken returns ErrNotFound if the token has never been stored.
	GetToken(ctx context.Context, address string) (*domain.Token, error)

	// AppendScore inserts a new score row timestamped now.
	AppendScore(ctx context.Context, address string, b domain.ScoreBreakdown, now time.Time) (*domain.BRSScore, error)

	// MaybeCreateAlert inserts an alert when score >= domain.AlertMinScore and no
	// alert exists for the token within domain.AlertDedupWindow before now.
	// Returns the alert and true when one was created.
	MaybeCreateAlert(ctx context.Context, token *domain.Token, score float64, now time.Time) (*domain.Alert, bool, error)

	// RecordUpdate runs UpsertToken, AppendScore and MaybeCreateAlert atomically.
	RecordUpdate(ctx context.Context, snap domain.TokenSnapshot, b domain.ScoreBreakdown, now time.Time) (*UpdateResult, error)

	// QueryTopPhoenixes joins tokens to their latest score, filters and orders by score descending.
	QueryTopPhoenixes(ctx context.Context, f TopFilter) ([]domain.ScoredToken, error)

	// QueryTokenAnalysis returns the token with its latest score.
	// Returns ErrNotFound if no score history exists.
	QueryTokenAnalysis(ctx context.Context, address string) (*domain.ScoredToken, error)

	// ScoreHistory returns up to limit scores for address, newest first.
	ScoreHistory(ctx context.Context, address string, limit int) ([]domain.BRSScore, error)

	// AddWatchlist inserts an active row. Returns added=false with the existing
	// row when an active entry for (address, userID) already exists.
	AddWatchlist(ctx context.Context, address, userID string, threshold float64, now time.Time) (*domain.Watchlist, bool, error)

	// ListWatchlist returns active rows for userID ordered by added date.
	ListWatchlist(ctx context.Context, userID string) ([]domain.Watchlist, error)

	// RecentAlerts returns the newest alerts joined to the token symbol.
	RecentAlerts(ctx context.Context, limit int) ([]domain.AlertView, error)

	// PendingAlerts returns unsent alerts that are not dead-lettered, oldest first.
	PendingAlerts(ctx context.Context, limit int) ([]domain.AlertView, error)

	// MarkAlertSent flags an alert as delivered. Returns ErrNotFound for unknown IDs.
	MarkAlertSent(ctx context.Context, alertID string) error

	// RecordAlertFailure increments an alert's failed delivery count and returns
	// the new count. Returns ErrNotFound for unknown IDs.
	RecordAlertFailure(ctx context.Context, alertID string) (int, error)

	// Prune deletes scores older than before, keeping each token's latest score,
	// and sent alerts older than before. Returns the number of deleted rows.
	Prune(ctx context.Context, before time.Time) (scores int64, alerts int64, err error)
}

// SnapshotHistoryStore records fetched snapshots as a time series.
type SnapshotHistoryStore interface {
	// Append stores snapshots. Empty input is a no-op.
	Append(ctx context.Context, snaps []domain.TokenSnapshot) error

	// DailyVolume returns one point per day since the given time, oldest first.
	DailyVolume(ctx context.Context, address string, since time.Time) ([]domain.VolumePoint, error)
}

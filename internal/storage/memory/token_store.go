package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"solana-phoenix-scanner/internal/domain"
	"solana-phoenix-scanner/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
// A single RWMutex serializes writes, which makes RecordUpdate atomic per address.
type TokenStore struct {
	mu        sync.RWMutex
	tokens    map[string]*domain.Token
	scores    map[string][]domain.BRSScore // by token address, append order
	scoreIDs  map[string]bool
	alerts    []domain.Alert
	watchlist []domain.Watchlist
	nextWatch int64
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens:   make(map[string]*domain.Token),
		scores:   make(map[string][]domain.BRSScore),
		scoreIDs: make(map[string]bool),
	}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// UpsertToken creates or updates a token.
func (s *TokenStore) UpsertToken(_ context.Context, snap domain.TokenSnapshot, now time.Time) (*domain.Token, error) {
	if snap.Address == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.upsertLocked(snap, now), nil
}

func (s *TokenStore) upsertLocked(snap domain.TokenSnapshot, now time.Time) *domain.Token {
	next := domain.ApplySnapshot(s.tokens[snap.Address], snap, now)
	s.tokens[snap.Address] = &next
	return next.Clone()
}

// GetToken retrieves a token by address.
func (s *TokenStore) GetToken(_ context.Context, address string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return t.Clone(), nil
}

// AppendScore inserts a new score row.
func (s *TokenStore) AppendScore(_ context.Context, address string, b domain.ScoreBreakdown, now time.Time) (*domain.BRSScore, error) {
	if address == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendScoreLocked(address, b, now)
}

func (s *TokenStore) appendScoreLocked(address string, b domain.ScoreBreakdown, now time.Time) (*domain.BRSScore, error) {
	if _, ok := s.tokens[address]; !ok {
		return nil, storage.ErrNotFound
	}
	row := storage.NewScore(address, b, now)
	if s.scoreIDs[row.ID] {
		return nil, storage.ErrDuplicateKey
	}
	s.scoreIDs[row.ID] = true
	s.scores[address] = append(s.scores[address], row)
	out := row
	return &out, nil
}

// MaybeCreateAlert inserts an alert unless one exists within the dedup window.
func (s *TokenStore) MaybeCreateAlert(_ context.Context, token *domain.Token, score float64, now time.Time) (*domain.Alert, bool, error) {
	if token == nil || token.Address == "" {
		return nil, false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.maybeAlertLocked(token, score, now)
}

func (s *TokenStore) maybeAlertLocked(token *domain.Token, score float64, now time.Time) (*domain.Alert, bool, error) {
	if !storage.AlertEligible(score) {
		return nil, false, nil
	}
	cutoff := storage.AlertDedupCutoff(now)
	for _, a := range s.alerts {
		if a.TokenAddress == token.Address && a.Timestamp.After(cutoff) {
			return nil, false, nil
		}
	}
	alert := storage.BuildAlert(token, score, now)
	s.alerts = append(s.alerts, alert)
	out := alert
	return &out, true, nil
}

// RecordUpdate upserts the token, appends the score and checks the alert under one lock.
// Nothing is written unless the score row can be inserted.
func (s *TokenStore) RecordUpdate(_ context.Context, snap domain.TokenSnapshot, b domain.ScoreBreakdown, now time.Time) (*storage.UpdateResult, error) {
	if snap.Address == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := domain.ApplySnapshot(s.tokens[snap.Address], snap, now)
	row := storage.NewScore(snap.Address, b, now)
	if s.scoreIDs[row.ID] {
		return nil, storage.ErrDuplicateKey
	}

	s.tokens[snap.Address] = &next
	s.scoreIDs[row.ID] = true
	s.scores[snap.Address] = append(s.scores[snap.Address], row)

	token := next.Clone()
	alert, created, err := s.maybeAlertLocked(token, b.BRSScore, now)
	if err != nil {
		return nil, err
	}
	score := row
	return &storage.UpdateResult{Token: token, Score: &score, Alert: alert, AlertCreated: created}, nil
}

// latestLocked returns the score with the greatest timestamp for address.
func (s *TokenStore) latestLocked(address string) (domain.BRSScore, bool) {
	rows := s.scores[address]
	if len(rows) == 0 {
		return domain.BRSScore{}, false
	}
	best := rows[0]
	for _, r := range rows[1:] {
		if !r.Timestamp.Before(best.Timestamp) {
			best = r
		}
	}
	return best, true
}

// QueryTopPhoenixes returns tokens joined to their latest score, best first.
func (s *TokenStore) QueryTopPhoenixes(_ context.Context, f storage.TopFilter) ([]domain.ScoredToken, error) {
	if f.Limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ScoredToken
	for addr, t := range s.tokens {
		latest, ok := s.latestLocked(addr)
		if !ok {
			continue
		}
		if f.Chain != "" && !strings.EqualFold(t.Chain, f.Chain) {
			continue
		}
		if t.MarketCap < f.MinMarketCap || t.Volume24h < f.MinVolume || t.LiquidityUSD < f.MinLiquidity {
			continue
		}
		if latest.BRSScore < f.MinScore {
			continue
		}
		out = append(out, domain.ScoredToken{Token: *t.Clone(), Score: latest})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score.BRSScore != out[j].Score.BRSScore {
			return out[i].Score.BRSScore > out[j].Score.BRSScore
		}
		return out[i].Token.Address < out[j].Token.Address
	})
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// QueryTokenAnalysis returns the token with its latest score.
func (s *TokenStore) QueryTokenAnalysis(_ context.Context, address string) (*domain.ScoredToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	latest, ok := s.latestLocked(address)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &domain.ScoredToken{Token: *t.Clone(), Score: latest}, nil
}

// ScoreHistory returns scores newest first.
func (s *TokenStore) ScoreHistory(_ context.Context, address string, limit int) ([]domain.BRSScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.BRSScore, len(s.scores[address]))
	copy(rows, s.scores[address])
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.After(rows[j].Timestamp)
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// AddWatchlist inserts an active watchlist row unless one exists.
func (s *TokenStore) AddWatchlist(_ context.Context, address, userID string, threshold float64, now time.Time) (*domain.Watchlist, bool, error) {
	if address == "" {
		return nil, false, storage.ErrInvalidInput
	}
	if userID == "" {
		userID = domain.DefaultUserID
	}
	if threshold <= 0 {
		threshold = domain.DefaultAlertThreshold
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.watchlist {
		if w.Active && w.TokenAddress == address && w.UserID == userID {
			existing := w
			return &existing, false, nil
		}
	}

	s.nextWatch++
	w := domain.Watchlist{
		ID:             s.nextWatch,
		TokenAddress:   address,
		UserID:         userID,
		AddedDate:      now,
		AlertThreshold: threshold,
		Active:         true,
	}
	s.watchlist = append(s.watchlist, w)
	return &w, true, nil
}

// ListWatchlist returns active rows for userID.
func (s *TokenStore) ListWatchlist(_ context.Context, userID string) ([]domain.Watchlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Watchlist
	for _, w := range s.watchlist {
		if w.Active && w.UserID == userID {
			out = append(out, w)
		}
	}
	return out, nil
}

// RecentAlerts returns the newest alerts first.
func (s *TokenStore) RecentAlerts(_ context.Context, limit int) ([]domain.AlertView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := s.viewsLocked(func(domain.Alert) bool { return true })
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Timestamp.After(views[j].Timestamp)
	})
	if limit > 0 && len(views) > limit {
		views = views[:limit]
	}
	return views, nil
}

// PendingAlerts returns unsent alerts that are not dead-lettered, oldest first.
func (s *TokenStore) PendingAlerts(_ context.Context, limit int) ([]domain.AlertView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := s.viewsLocked(func(a domain.Alert) bool { return !a.SentStatus && !a.DeadLettered() })
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Timestamp.Before(views[j].Timestamp)
	})
	if limit > 0 && len(views) > limit {
		views = views[:limit]
	}
	return views, nil
}

func (s *TokenStore) viewsLocked(keep func(domain.Alert) bool) []domain.AlertView {
	var views []domain.AlertView
	for _, a := range s.alerts {
		if !keep(a) {
			continue
		}
		v := domain.AlertView{Alert: a}
		if t, ok := s.tokens[a.TokenAddress]; ok {
			v.Symbol = t.Symbol
		}
		views = append(views, v)
	}
	return views
}

// MarkAlertSent flags an alert as delivered.
func (s *TokenStore) MarkAlertSent(_ context.Context, alertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.alerts {
		if s.alerts[i].ID == alertID {
			s.alerts[i].SentStatus = true
			return nil
		}
	}
	return storage.ErrNotFound
}

// RecordAlertFailure increments the failed delivery count.
func (s *TokenStore) RecordAlertFailure(_ context.Context, alertID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.alerts {
		if s.alerts[i].ID == alertID {
			s.alerts[i].DeliveryAttempts++
			return s.alerts[i].DeliveryAttempts, nil
		}
	}
	return 0, storage.ErrNotFound
}

// Prune removes old scores (keeping each token's latest) and old sent or
// dead-lettered alerts.
func (s *TokenStore) Prune(_ context.Context, before time.Time) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var scoresDeleted int64
	for addr, rows := range s.scores {
		latest, ok := s.latestLocked(addr)
		if !ok {
			continue
		}
		kept := rows[:0]
		for _, r := range rows {
			if r.Timestamp.Before(before) && r.ID != latest.ID {
				delete(s.scoreIDs, r.ID)
				scoresDeleted++
				continue
			}
			kept = append(kept, r)
		}
		s.scores[addr] = kept
	}

	var alertsDeleted int64
	keptAlerts := s.alerts[:0]
	for _, a := range s.alerts {
		if (a.SentStatus || a.DeadLettered()) && a.Timestamp.Before(before) {
			alertsDeleted++
			continue
		}
		keptAlerts = append(keptAlerts, a)
	}
	s.alerts = keptAlerts

	return scoresDeleted, alertsDeleted, nil
}

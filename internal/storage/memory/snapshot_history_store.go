package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-phoenix-scanner/internal/domain"
	"solana-phoenix-scanner/internal/storage"
)

// SnapshotHistoryStore is an in-memory implementation of storage.SnapshotHistoryStore.
type SnapshotHistoryStore struct {
	mu    sync.RWMutex
	snaps map[string][]domain.TokenSnapshot
}

// NewSnapshotHistoryStore creates a new in-memory snapshot history store.
func NewSnapshotHistoryStore() *SnapshotHistoryStore {
	return &SnapshotHistoryStore{snaps: make(map[string][]domain.TokenSnapshot)}
}

// Compile-time interface check.
var _ storage.SnapshotHistoryStore = (*SnapshotHistoryStore)(nil)

// Append stores snapshots.
func (s *SnapshotHistoryStore) Append(_ context.Context, snaps []domain.TokenSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	for _, sn := range snaps {
		if sn.Address == "" || sn.FetchedAt.IsZero() {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sn := range snaps {
		s.snaps[sn.Address] = append(s.snaps[sn.Address], sn)
	}
	return nil
}

// DailyVolume returns the highest 24h volume observed per UTC day, oldest first.
func (s *SnapshotHistoryStore) DailyVolume(_ context.Context, address string, since time.Time) ([]domain.VolumePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDay := make(map[time.Time]float64)
	for _, sn := range s.snaps[address] {
		if sn.FetchedAt.Before(since) {
			continue
		}
		day := sn.FetchedAt.UTC().Truncate(24 * time.Hour)
		if v, ok := byDay[day]; !ok || sn.Volume24h > v {
			byDay[day] = sn.Volume24h
		}
	}

	out := make([]domain.VolumePoint, 0, len(byDay))
	for day, v := range byDay {
		out = append(out, domain.VolumePoint{Date: day, Volume: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/domain"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.Snapshot // keyed by region, ordered by CollectedAt
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		data: make(map[string][]*domain.Snapshot),
	}
}

// Insert adds a snapshot. Returns ErrDuplicateKey if (region, collected_at) exists.
func (s *SnapshotStore) Insert(_ context.Context, snap *domain.Snapshot) error {
	if snap == nil {
		return storage.ErrInvalidInput
	}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hist := s.data[snap.Region]
	for _, existing := range hist {
		if existing.CollectedAt.Equal(snap.CollectedAt) {
			return storage.ErrDuplicateKey
		}
	}

	hist = append(hist, snap.Clone())
	sort.Slice(hist, func(i, j int) bool {
		return hist[i].CollectedAt.Before(hist[j].CollectedAt)
	})
	s.data[snap.Region] = hist
	return nil
}

// GetByRegion retrieves all snapshots for a region, ordered by collected_at ASC.
func (s *SnapshotStore) GetByRegion(_ context.Context, region string) ([]*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hist := s.data[region]
	result := make([]*domain.Snapshot, 0, len(hist))
	for _, snap := range hist {
		result = append(result, snap.Clone())
	}
	return result, nil
}

// ListRegions returns every region with at least one snapshot, sorted.
func (s *SnapshotStore) ListRegions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	regions := make([]string, 0, len(s.data))
	for region, hist := range s.data {
		if len(hist) > 0 {
			regions = append(regions, region)
		}
	}
	sort.Strings(regions)
	return regions, nil
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)

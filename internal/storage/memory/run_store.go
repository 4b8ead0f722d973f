package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/domain"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/storage"
)

// RunStore is an in-memory implementation of storage.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Run // keyed by run_id
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		data: make(map[string]*domain.Run),
	}
}

// Insert adds a run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(_ context.Context, r *domain.Run) error {
	if r == nil || r.RunID == "" || r.Region == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[r.RunID] = copyRun(r, true)
	return nil
}

// GetByID retrieves a run with its county rows. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(_ context.Context, runID string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyRun(r, true), nil
}

// GetByRegion retrieves all runs for a region without county rows,
// ordered by cur_collected_at ASC, run_id ASC.
func (s *RunStore) GetByRegion(_ context.Context, region string) ([]*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Run
	for _, r := range s.data {
		if r.Region == region {
			result = append(result, copyRun(r, false))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CurCollectedAt.Equal(result[j].CurCollectedAt) {
			return result[i].CurCollectedAt.Before(result[j].CurCollectedAt)
		}
		return result[i].RunID < result[j].RunID
	})
	return result, nil
}

func copyRun(r *domain.Run, withCounties bool) *domain.Run {
	runCopy := *r
	runCopy.Counties = nil
	runCopy.Unestimated = nil
	if withCounties && len(r.Counties) > 0 {
		runCopy.Counties = make([]domain.CountyEstimate, len(r.Counties))
		for i, c := range r.Counties {
			c.Vector = copyVector(c.Vector)
			c.Counted = copyVector(c.Counted)
			c.Intervals = append([]domain.ProbabilityInterval(nil), c.Intervals...)
			runCopy.Counties[i] = c
		}
	}
	return &runCopy
}

func copyVector(v domain.VoteCountVector) domain.VoteCountVector {
	return domain.VoteCountVector{
		Candidates: append([]string(nil), v.Candidates...),
		Counts:     append([]int64(nil), v.Counts...),
	}
}

var _ storage.RunStore = (*RunStore)(nil)

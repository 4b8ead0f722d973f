// Package snapshot holds the caller-owned, per-region ordered history of
// vote-count snapshots. Snapshots are addressed by integer index.
package snapshot

import (
	"errors"
	"fmt"
	"sort"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/domain"
)

// Errors returned by Repository.
var (
	// ErrEmptyHistory is returned when a region has no snapshots.
	ErrEmptyHistory = errors.New("empty snapshot history")

	// ErrIndexOutOfRange is returned when an index does not address a snapshot.
	ErrIndexOutOfRange = errors.New("snapshot index out of range")

	// ErrStaleSnapshot is returned by Append when the snapshot is not newer
	// than the most recent one already held for the region.
	ErrStaleSnapshot = errors.New("snapshot is not newer than latest")
)

// Repository is an append-only, per-region list of snapshots.
// Not safe for concurrent mutation; reads after construction are safe.
type Repository struct {
	history map[string][]*domain.Snapshot
}

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{history: make(map[string][]*domain.Snapshot)}
}

// Append validates s and adds a deep copy of it to the end of its region's
// history, so later changes to s never reach the repository.
// A snapshot whose CollectedAt equals or precedes the latest one is rejected
// with ErrStaleSnapshot.
func (r *Repository) Append(s *domain.Snapshot) error {
	if s == nil {
		return fmt.Errorf("%w: nil snapshot", domain.ErrInvalidSnapshot)
	}
	s = s.Clone()
	if err := s.Validate(); err != nil {
		return err
	}

	hist := r.history[s.Region]
	if n := len(hist); n > 0 && !s.CollectedAt.After(hist[n-1].CollectedAt) {
		return fmt.Errorf("%w: region %s at %s", ErrStaleSnapshot, s.Region, s.CollectedAt)
	}
	r.history[s.Region] = append(hist, s)
	return nil
}

// AppendAll appends snapshots in order, skipping ones that are stale.
// Returns the number appended.
func (r *Repository) AppendAll(snaps []*domain.Snapshot) (int, error) {
	added := 0
	for _, s := range snaps {
		err := r.Append(s)
		if errors.Is(err, ErrStaleSnapshot) {
			continue
		}
		if err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

// Len returns the number of snapshots held for region.
func (r *Repository) Len(region string) int {
	return len(r.history[region])
}

// Regions returns regions with at least one snapshot, sorted.
func (r *Repository) Regions() []string {
	out := make([]string, 0, len(r.history))
	for region, hist := range r.history {
		if len(hist) > 0 {
			out = append(out, region)
		}
	}
	sort.Strings(out)
	return out
}

// Resolve maps a possibly negative index to an absolute one.
// -1 is the most recent snapshot, 0 the earliest.
func (r *Repository) Resolve(region string, index int) (int, error) {
	n := len(r.history[region])
	if n == 0 {
		return 0, fmt.Errorf("%w: region %q", ErrEmptyHistory, region)
	}
	abs := index
	if abs < 0 {
		abs += n
	}
	if abs < 0 || abs >= n {
		return 0, fmt.Errorf("%w: region %q index %d (have %d)", ErrIndexOutOfRange, region, index, n)
	}
	return abs, nil
}

// At returns the snapshot at index for region. Negative indices count from the end.
// The returned snapshot is the repository's own copy and must be treated as read-only.
func (r *Repository) At(region string, index int) (*domain.Snapshot, error) {
	abs, err := r.Resolve(region, index)
	if err != nil {
		return nil, err
	}
	return r.history[region][abs], nil
}

package storage

import (
	"context"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/domain"
)

// SnapshotStore persists the per-region snapshot history handed over by the
// data collector. Snapshots are append-only.
type SnapshotStore interface {
	// Insert adds a snapshot. Returns ErrDuplicateKey if (region, collected_at) exists.
	Insert(ctx context.Context, s *domain.Snapshot) error

	// GetByRegion retrieves all snapshots for a region, ordered by collected_at ASC.
	GetByRegion(ctx context.Context, region string) ([]*domain.Snapshot, error)

	// ListRegions returns every region with at least one snapshot, sorted.
	ListRegions(ctx context.Context) ([]string, error)
}

// RunStore persists estimation runs: the margin interval plus the county table.
type RunStore interface {
	// Insert adds a run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.Run) error

	// GetByID retrieves a run with its county rows. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.Run, error)

	// GetByRegion retrieves all runs for a region ordered by cur_collected_at ASC,
	// run_id ASC. County rows are not loaded.
	GetByRegion(ctx context.Context, region string) ([]*domain.Run, error)
}

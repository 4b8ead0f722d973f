package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/domain"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Insert stores a snapshot with its counties and votes in one transaction.
// Returns ErrDuplicateKey if (region, collected_at) exists.
func (s *SnapshotStore) Insert(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil {
		return storage.ErrInvalidInput
	}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	collectedAt := snap.CollectedAt.UTC()

	_, err = tx.Exec(ctx, `
		INSERT INTO snapshots (region, collected_at, candidates)
		VALUES ($1, $2, $3)
	`, snap.Region, collectedAt, snap.Candidates)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}

	counties := snap.Counties()
	countyRows := make([][]any, 0, len(counties))
	var voteRows [][]any
	for _, name := range counties {
		row := snap.Rows[name]
		countyRows = append(countyRows, []any{
			snap.Region, collectedAt, name, row.TotalExpected, row.MailVotes != nil,
		})
		for _, cand := range snap.Candidates {
			votes, hasVotes := row.Votes[cand]
			mail, hasMail := row.MailVotes[cand]
			if !hasVotes && !hasMail {
				continue
			}
			var mailVal *int64
			if hasMail {
				mailVal = &mail
			}
			voteRows = append(voteRows, []any{snap.Region, collectedAt, name, cand, votes, mailVal})
		}
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"snapshot_counties"},
		[]string{"region", "collected_at", "county", "total_expected", "has_mail"},
		pgx.CopyFromRows(countyRows),
	)
	if err != nil {
		return fmt.Errorf("copy snapshot counties: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"snapshot_votes"},
		[]string{"region", "collected_at", "county", "candidate", "votes", "mail_votes"},
		pgx.CopyFromRows(voteRows),
	)
	if err != nil {
		return fmt.Errorf("copy snapshot votes: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// GetByRegion retrieves all snapshots for a region, ordered by collected_at ASC.
func (s *SnapshotStore) GetByRegion(ctx context.Context, region string) ([]*domain.Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT collected_at, candidates
		FROM snapshots
		WHERE region = $1
		ORDER BY collected_at ASC
	`, region)
	if err != nil {
		return nil, fmt.Errorf("get snapshots by region: %w", err)
	}

	var snaps []*domain.Snapshot
	byTime := make(map[time.Time]*domain.Snapshot)
	for rows.Next() {
		snap := &domain.Snapshot{Region: region, Rows: make(map[string]*domain.CountyRow)}
		if err := rows.Scan(&snap.CollectedAt, &snap.Candidates); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snap.CollectedAt = snap.CollectedAt.UTC()
		snaps = append(snaps, snap)
		byTime[snap.CollectedAt] = snap
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	if len(snaps) == 0 {
		return nil, nil
	}

	if err := s.loadCounties(ctx, region, byTime); err != nil {
		return nil, err
	}
	if err := s.loadVotes(ctx, region, byTime); err != nil {
		return nil, err
	}
	return snaps, nil
}

// ListRegions returns every region with at least one snapshot, sorted.
func (s *SnapshotStore) ListRegions(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT region FROM snapshots`)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	defer rows.Close()

	var regions []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scan region row: %w", err)
		}
		regions = append(regions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate region rows: %w", err)
	}
	sort.Strings(regions)
	return regions, nil
}

func (s *SnapshotStore) loadCounties(ctx context.Context, region string, byTime map[time.Time]*domain.Snapshot) error {
	rows, err := s.pool.Query(ctx, `
		SELECT collected_at, county, total_expected, has_mail
		FROM snapshot_counties
		WHERE region = $1
	`, region)
	if err != nil {
		return fmt.Errorf("get snapshot counties: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			at      time.Time
			row     domain.CountyRow
			hasMail bool
		)
		if err := rows.Scan(&at, &row.County, &row.TotalExpected, &hasMail); err != nil {
			return fmt.Errorf("scan snapshot county row: %w", err)
		}
		snap, ok := byTime[at.UTC()]
		if !ok {
			continue
		}
		row.Votes = make(map[string]int64)
		if hasMail {
			row.MailVotes = make(map[string]int64)
		}
		snap.Rows[row.County] = &row
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate snapshot county rows: %w", err)
	}
	return nil
}

func (s *SnapshotStore) loadVotes(ctx context.Context, region string, byTime map[time.Time]*domain.Snapshot) error {
	rows, err := s.pool.Query(ctx, `
		SELECT collected_at, county, candidate, votes, mail_votes
		FROM snapshot_votes
		WHERE region = $1
	`, region)
	if err != nil {
		return fmt.Errorf("get snapshot votes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			at           time.Time
			county, cand string
			votes        int64
			mail         *int64
		)
		if err := rows.Scan(&at, &county, &cand, &votes, &mail); err != nil {
			return fmt.Errorf("scan snapshot vote row: %w", err)
		}
		snap, ok := byTime[at.UTC()]
		if !ok {
			continue
		}
		row := snap.Rows[county]
		if row == nil {
			continue
		}
		row.Votes[cand] = votes
		if mail != nil && row.MailVotes != nil {
			row.MailVotes[cand] = *mail
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate snapshot vote rows: %w", err)
	}
	return nil
}

package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/domain"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/storage"
)

// RunStore implements storage.RunStore using ClickHouse.
type RunStore struct {
	conn *Conn
	now  func() time.Time
}

// NewRunStore creates a new RunStore.
func NewRunStore(conn *Conn) *RunStore {
	return &RunStore{conn: conn, now: func() time.Time { return time.Now().UTC() }}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

const runColumns = `
	run_id, region, ref_index, cur_index, ref_collected_at, cur_collected_at,
	alpha, method, candidate_a, candidate_b,
	remaining_a_low, remaining_a_high, remaining_b_low, remaining_b_high,
	margin_low, margin_high, current_diff, created_at`

const countyColumns = `
	run_id, county, source, remaining, clamped_entries,
	candidates, vector_counts, counted, prob_low, prob_point, prob_high`

// Insert adds a run and its county rows. Returns ErrDuplicateKey if run_id exists.
// County rows are sent before the estimate_runs header, which acts as the
// commit marker: a run is visible (and counts as stored) only once its header
// exists. Re-sent county rows collapse under ReplacingMergeTree.
func (s *RunStore) Insert(ctx context.Context, r *domain.Run) error {
	if r == nil || r.RunID == "" || r.Region == "" {
		return storage.ErrInvalidInput
	}

	// ReplacingMergeTree would silently replace; keep append-only semantics.
	exists, err := s.exists(ctx, r.RunID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	if err := s.insertCounties(ctx, r); err != nil {
		return err
	}

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	err = s.conn.Exec(ctx, `INSERT INTO estimate_runs (`+runColumns+`) VALUES (
			?, ?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?
		)`,
		r.RunID, r.Region, int64(r.RefIndex), int64(r.CurIndex), r.RefCollectedAt, r.CurCollectedAt,
		r.Alpha, r.Method, r.CandidateA, r.CandidateB,
		r.RemainingA.Low, r.RemainingA.High, r.RemainingB.Low, r.RemainingB.High,
		r.Margin.Low, r.Margin.High, r.Margin.CurrentDiff, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert estimate run: %w", err)
	}
	return nil
}

// insertCounties batches the run's county rows into county_estimates.
func (s *RunStore) insertCounties(ctx context.Context, r *domain.Run) error {
	if len(r.Counties) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO county_estimates (`+countyColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range r.Counties {
		low := make([]float64, len(c.Intervals))
		point := make([]float64, len(c.Intervals))
		high := make([]float64, len(c.Intervals))
		for i, pi := range c.Intervals {
			low[i], point[i], high[i] = pi.Low, pi.Point, pi.High
		}

		err = batch.Append(
			r.RunID, c.County, string(c.Source), c.Remaining, int64(c.ClampedEntries),
			c.Vector.Candidates, c.Vector.Counts, countedInOrder(c),
			low, point, high,
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByID retrieves a run with its county rows. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(ctx context.Context, runID string) (*domain.Run, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+runColumns+` FROM estimate_runs FINAL WHERE run_id = ? LIMIT 1`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run by id: %w", err)
	}
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, storage.ErrNotFound
	}
	run := runs[0]

	countyRows, err := s.conn.Query(ctx, `SELECT `+countyColumns+` FROM county_estimates FINAL WHERE run_id = ? ORDER BY county ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query county estimates: %w", err)
	}
	defer countyRows.Close()

	for countyRows.Next() {
		var (
			id, source       string
			c                domain.CountyEstimate
			clamped          int64
			candidates       []string
			vector, counted  []int64
			low, point, high []float64
		)
		if err := countyRows.Scan(&id, &c.County, &source, &c.Remaining, &clamped,
			&candidates, &vector, &counted, &low, &point, &high); err != nil {
			return nil, fmt.Errorf("scan county estimate row: %w", err)
		}
		c.Source = domain.Source(source)
		if !c.Source.IsValid() {
			return nil, fmt.Errorf("run %s county %s: unknown source %q", runID, c.County, source)
		}
		c.ClampedEntries = int(clamped)
		c.Vector = domain.VoteCountVector{Candidates: candidates, Counts: vector}
		c.Counted = domain.VoteCountVector{Candidates: append([]string(nil), candidates...), Counts: counted}
		c.Intervals = make([]domain.ProbabilityInterval, len(candidates))
		for i, cand := range candidates {
			c.Intervals[i] = domain.ProbabilityInterval{Candidate: cand, Low: low[i], Point: point[i], High: high[i]}
		}
		run.Counties = append(run.Counties, c)
	}
	if err := countyRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate county estimate rows: %w", err)
	}

	return run, nil
}

// GetByRegion retrieves all runs for a region, ordered by cur_collected_at ASC, run_id ASC.
func (s *RunStore) GetByRegion(ctx context.Context, region string) ([]*domain.Run, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+runColumns+` FROM estimate_runs FINAL
		WHERE region = ?
		ORDER BY cur_collected_at ASC, run_id ASC`, region)
	if err != nil {
		return nil, fmt.Errorf("query runs by region: %w", err)
	}
	return scanRuns(rows)
}

// exists checks if a run_id is already stored.
func (s *RunStore) exists(ctx context.Context, runID string) (bool, error) {
	var count uint64
	row := s.conn.QueryRow(ctx, `SELECT count() FROM estimate_runs WHERE run_id = ?`, runID)
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanRuns scans estimate_runs rows and closes them.
func scanRuns(rows driver.Rows) ([]*domain.Run, error) {
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		var (
			r                  domain.Run
			refIndex, curIndex int64
		)
		err := rows.Scan(
			&r.RunID, &r.Region, &refIndex, &curIndex, &r.RefCollectedAt, &r.CurCollectedAt,
			&r.Alpha, &r.Method, &r.CandidateA, &r.CandidateB,
			&r.RemainingA.Low, &r.RemainingA.High, &r.RemainingB.Low, &r.RemainingB.High,
			&r.Margin.Low, &r.Margin.High, &r.Margin.CurrentDiff, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan estimate run row: %w", err)
		}
		r.RefIndex, r.CurIndex = int(refIndex), int(curIndex)
		r.RefCollectedAt = r.RefCollectedAt.UTC()
		r.CurCollectedAt = r.CurCollectedAt.UTC()
		r.CreatedAt = r.CreatedAt.UTC()
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate estimate run rows: %w", err)
	}
	return runs, nil
}

// countedInOrder lines counted votes up with the estimator vector's candidate order.
func countedInOrder(c domain.CountyEstimate) []int64 {
	out := make([]int64, len(c.Vector.Candidates))
	for i, cand := range c.Vector.Candidates {
		out[i] = c.Counted.Get(cand)
	}
	return out
}

// Package pipeline runs estimations over stored snapshot history and
// persists, measures and publishes the results.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/domain"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/estimate"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/idhash"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/observability"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/projection"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/snapshot"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/storage"
)

// Params selects the snapshots and margin candidates of a run.
type Params struct {
	Alpha      float64
	RefIndex   int
	CurIndex   int // negative counts from the end
	CandidateA string
	CandidateB string
}

// Validate checks alpha and the margin candidates.
func (p Params) Validate() error {
	if err := estimate.ValidateAlpha(p.Alpha); err != nil {
		return fmt.Errorf("%w: got %v", err, p.Alpha)
	}
	if p.CandidateA == "" || p.CandidateB == "" || p.CandidateA == p.CandidateB {
		return fmt.Errorf("%w: need two distinct margin candidates, got %q and %q",
			estimate.ErrUnknownCandidate, p.CandidateA, p.CandidateB)
	}
	return nil
}

// Publisher receives every completed run.
type Publisher interface {
	Publish(run *domain.Run) error
}

// Estimator orchestrates load, estimate, project, persist.
type Estimator struct {
	snapshots storage.SnapshotStore
	runs      storage.RunStore // optional
	builder   *estimate.Builder
	params    Params
	metrics   *observability.Metrics
	publisher Publisher // optional
	log       zerolog.Logger
	clock     func() time.Time
}

// NewEstimator creates a new estimator reading snapshots from store.
func NewEstimator(snapshots storage.SnapshotStore, builder *estimate.Builder, params Params) *Estimator {
	return &Estimator{
		snapshots: snapshots,
		builder:   builder,
		params:    params,
		metrics:   observability.DefaultMetrics,
		log:       zerolog.Nop(),
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// WithRunStore persists every run to store.
func (e *Estimator) WithRunStore(store storage.RunStore) *Estimator {
	e.runs = store
	return e
}

// WithMetrics sets the metrics sink.
func (e *Estimator) WithMetrics(m *observability.Metrics) *Estimator {
	e.metrics = m
	return e
}

// WithPublisher sends each Run result to p.
func (e *Estimator) WithPublisher(p Publisher) *Estimator {
	e.publisher = p
	return e
}

// WithLogger sets the logger.
func (e *Estimator) WithLogger(log zerolog.Logger) *Estimator {
	e.log = log
	return e
}

// WithClock sets a custom clock function for deterministic output.
func (e *Estimator) WithClock(clock func() time.Time) *Estimator {
	e.clock = clock
	return e
}

// Params returns the run parameters.
func (e *Estimator) Params() Params {
	return e.params
}

// Evaluate builds the county table and margin for one ref/cur pair.
// It has no side effects.
func Evaluate(builder *estimate.Builder, repo *snapshot.Repository, region string, p Params, createdAt time.Time) (*domain.Run, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	table, err := builder.Build(repo, region, p.RefIndex, p.CurIndex, p.Alpha)
	if err != nil {
		return nil, err
	}

	res, err := projection.Project(table.Counties, p.Alpha, p.CandidateA, p.CandidateB)
	if err != nil {
		return nil, err
	}

	method := string(builder.Method())
	return &domain.Run{
		RunID: idhash.ComputeRunID(region, table.Ref.CollectedAt, table.Cur.CollectedAt,
			p.Alpha, method, p.CandidateA, p.CandidateB),
		Region:         region,
		RefIndex:       table.RefIndex,
		CurIndex:       table.CurIndex,
		RefCollectedAt: table.Ref.CollectedAt,
		CurCollectedAt: table.Cur.CollectedAt,
		Alpha:          p.Alpha,
		Method:         method,
		CandidateA:     p.CandidateA,
		CandidateB:     p.CandidateB,
		RemainingA:     res.Remaining[p.CandidateA],
		RemainingB:     res.Remaining[p.CandidateB],
		Margin:         res.Margin,
		Counties:       table.Counties,
		CreatedAt:      createdAt,
		Unestimated:    table.Missing(),
	}, nil
}

// Load reads a region's snapshot history into a repository.
func (e *Estimator) Load(ctx context.Context, region string) (*snapshot.Repository, error) {
	start := time.Now()
	snaps, err := e.snapshots.GetByRegion(ctx, region)
	e.metrics.RecordDBQuery("snapshots", "get_by_region", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("load snapshots for %s: %w", region, err)
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("%w: region %s", snapshot.ErrEmptyHistory, region)
	}

	repo := snapshot.NewRepository()
	added, err := repo.AppendAll(snaps)
	if err != nil {
		return nil, fmt.Errorf("load snapshots for %s: %w", region, err)
	}
	if skipped := len(snaps) - added; skipped > 0 {
		e.log.Warn().Str("region", region).Int("skipped", skipped).Msg("dropped snapshots with repeated timestamps")
	}
	e.metrics.SnapshotsLoaded.WithLabelValues(region).Set(float64(added))
	return repo, nil
}

// Run estimates the configured ref/cur pair for region, then persists,
// records and publishes the result.
func (e *Estimator) Run(ctx context.Context, region string) (*domain.Run, error) {
	start := time.Now()
	run, err := e.run(ctx, region)
	status := "success"
	if err != nil {
		status = "error"
	}
	e.metrics.RecordPipelineRun(region, status, time.Since(start).Seconds())
	if err != nil {
		e.log.Error().Err(err).Str("region", region).Msg("estimation run failed")
		return nil, err
	}

	e.recordRun(run)
	if e.publisher != nil {
		if err := e.publisher.Publish(run); err != nil {
			e.log.Warn().Err(err).Str("run_id", run.RunID).Msg("publish run")
		}
	}
	return run, nil
}

func (e *Estimator) run(ctx context.Context, region string) (*domain.Run, error) {
	repo, err := e.Load(ctx, region)
	if err != nil {
		return nil, err
	}
	run, err := Evaluate(e.builder, repo, region, e.params, e.clock())
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", region, err)
	}
	if err := e.persist(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// RunAll runs every region, or every stored region when regions is empty.
// A failing region does not stop the others; failures are joined.
func (e *Estimator) RunAll(ctx context.Context, regions []string) ([]*domain.Run, error) {
	if len(regions) == 0 {
		var err error
		regions, err = e.snapshots.ListRegions(ctx)
		if err != nil {
			return nil, fmt.Errorf("list regions: %w", err)
		}
	}

	var (
		runs []*domain.Run
		errs []error
	)
	for _, region := range regions {
		if err := ctx.Err(); err != nil {
			return runs, err
		}
		run, err := e.Run(ctx, region)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		runs = append(runs, run)
	}
	return runs, errors.Join(errs...)
}

// Backfill evaluates every snapshot after the reference as the current one,
// oldest first, giving the margin's history over the night.
func (e *Estimator) Backfill(ctx context.Context, region string) ([]*domain.Run, error) {
	repo, err := e.Load(ctx, region)
	if err != nil {
		return nil, err
	}
	refAbs, err := repo.Resolve(region, e.params.RefIndex)
	if err != nil {
		return nil, fmt.Errorf("resolve reference snapshot: %w", err)
	}

	var runs []*domain.Run
	for cur := refAbs + 1; cur < repo.Len(region); cur++ {
		if err := ctx.Err(); err != nil {
			return runs, err
		}
		p := e.params
		p.CurIndex = cur
		run, err := Evaluate(e.builder, repo, region, p, e.clock())
		if err != nil {
			return runs, fmt.Errorf("evaluate %s at %d: %w", region, cur, err)
		}
		if err := e.persist(ctx, run); err != nil {
			return runs, err
		}
		runs = append(runs, run)
	}

	e.log.Info().Str("region", region).Int("ref_index", refAbs).Int("runs", len(runs)).Msg("backfill complete")
	return runs, nil
}

// Import stores snapshots, skipping ones already stored.
func (e *Estimator) Import(ctx context.Context, snaps []*domain.Snapshot) (inserted, skipped int, err error) {
	for _, s := range snaps {
		start := time.Now()
		err := e.snapshots.Insert(ctx, s)
		e.metrics.RecordDBQuery("snapshots", "insert", time.Since(start).Seconds(), err)
		switch {
		case errors.Is(err, storage.ErrDuplicateKey):
			skipped++
		case err != nil:
			return inserted, skipped, fmt.Errorf("insert snapshot %s@%s: %w", s.Region, s.CollectedAt.Format(time.RFC3339), err)
		default:
			inserted++
		}
	}
	return inserted, skipped, nil
}

// persist stores run when a run store is set. Identical runs share a run_id,
// so a duplicate means the result is already stored.
func (e *Estimator) persist(ctx context.Context, run *domain.Run) error {
	if e.runs == nil {
		return nil
	}
	start := time.Now()
	err := e.runs.Insert(ctx, run)
	if errors.Is(err, storage.ErrDuplicateKey) {
		err = nil
		e.log.Debug().Str("run_id", run.RunID).Msg("run already stored")
	} else if err == nil {
		e.metrics.RunsPersisted.Inc()
	}
	e.metrics.RecordDBQuery("runs", "insert", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("persist run %s: %w", run.RunID, err)
	}
	return nil
}

func (e *Estimator) recordRun(run *domain.Run) {
	bySource := make(map[string]int, len(domain.SourcePriority))
	for _, s := range domain.SourcePriority {
		bySource[string(s)] = 0
	}
	clamped := 0
	for _, c := range run.Counties {
		bySource[string(c.Source)]++
		clamped += c.ClampedEntries
	}
	e.metrics.RecordCounties(run.Region, bySource, clamped)
	e.metrics.RecordMargin(run.Region, run.Margin.Low, run.Margin.High, run.Margin.CurrentDiff,
		float64(run.CreatedAt.Unix()))

	e.log.Info().
		Str("region", run.Region).
		Str("run_id", run.RunID).
		Int("ref_index", run.RefIndex).
		Int("cur_index", run.CurIndex).
		Float64("alpha", run.Alpha).
		Int("differential", bySource[string(domain.SourceDifferential)]).
		Int("mail", bySource[string(domain.SourceMail)]).
		Int("total", bySource[string(domain.SourceTotal)]).
		Int("clamped", clamped).
		Strs("unestimated", run.Unestimated).
		Float64("margin_low", run.Margin.Low).
		Float64("margin_high", run.Margin.High).
		Msg("estimation run complete")
}

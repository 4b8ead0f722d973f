// Package reporting renders estimation runs as Markdown and CSV.
package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/domain"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/storage"
)

// Generator produces reports from stored runs.
type Generator struct {
	runStore storage.RunStore
	now      func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(runStore storage.RunStore) *Generator {
	return &Generator{
		runStore: runStore,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate loads a stored run and lays it out.
func (g *Generator) Generate(ctx context.Context, runID string) (*Report, error) {
	run, err := g.runStore.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	return g.FromRun(run), nil
}

// GenerateHistory loads every stored run of a region for the given margin
// candidates, oldest first.
func (g *Generator) GenerateHistory(ctx context.Context, region, candidateA, candidateB string) (*History, error) {
	runs, err := g.runStore.GetByRegion(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("load runs for %s: %w", region, err)
	}

	var selected []*domain.Run
	for _, r := range runs {
		if r.CandidateA == candidateA && r.CandidateB == candidateB {
			selected = append(selected, r)
		}
	}
	return g.FromRuns(region, candidateA, candidateB, selected), nil
}

// FromRun lays out a run without touching storage.
func (g *Generator) FromRun(run *domain.Run) *Report {
	r := &Report{
		GeneratedAt: g.now(),
		Run: RunSummary{
			RunID:          run.RunID,
			Region:         run.Region,
			RefIndex:       run.RefIndex,
			CurIndex:       run.CurIndex,
			RefCollectedAt: run.RefCollectedAt,
			CurCollectedAt: run.CurCollectedAt,
			Alpha:          run.Alpha,
			Method:         run.Method,
			CandidateA:     run.CandidateA,
			CandidateB:     run.CandidateB,
			RemainingA:     run.RemainingA,
			RemainingB:     run.RemainingB,
			Margin:         run.Margin,
		},
	}

	counts := run.SourceCounts()
	for _, s := range domain.SourcePriority {
		r.Sources = append(r.Sources, SourceCountRow{Source: s, Counties: counts[s]})
	}

	if len(run.Counties) > 0 {
		r.Candidates = append([]string(nil), run.Counties[0].Vector.Candidates...)
	}
	for _, c := range run.Counties {
		row := CountyRow{
			County:         c.County,
			Source:         c.Source,
			Remaining:      c.Remaining,
			ClampedEntries: c.ClampedEntries,
		}
		for _, cand := range r.Candidates {
			pi, _ := c.Interval(cand)
			row.Cells = append(row.Cells, CandidateCell{
				Candidate: cand,
				Counted:   c.Counted.Get(cand),
				Input:     c.Vector.Get(cand),
				Low:       pi.Low,
				Point:     pi.Point,
				High:      pi.High,
			})
		}
		r.Counties = append(r.Counties, row)
	}
	sort.Slice(r.Counties, func(i, j int) bool { return r.Counties[i].County < r.Counties[j].County })
	return r
}

// FromRuns lays out a margin history without touching storage.
func (g *Generator) FromRuns(region, candidateA, candidateB string, runs []*domain.Run) *History {
	h := &History{
		GeneratedAt: g.now(),
		Region:      region,
		CandidateA:  candidateA,
		CandidateB:  candidateB,
	}
	for _, r := range runs {
		h.Rows = append(h.Rows, HistoryRow{
			RunID:          r.RunID,
			CurIndex:       r.CurIndex,
			CurCollectedAt: r.CurCollectedAt,
			Margin:         r.Margin,
			RemainingA:     r.RemainingA,
			RemainingB:     r.RemainingB,
		})
	}
	sort.SliceStable(h.Rows, func(i, j int) bool {
		if !h.Rows[i].CurCollectedAt.Equal(h.Rows[j].CurCollectedAt) {
			return h.Rows[i].CurCollectedAt.Before(h.Rows[j].CurCollectedAt)
		}
		return h.Rows[i].RunID < h.Rows[j].RunID
	})
	return h
}

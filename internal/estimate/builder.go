// Package estimate builds per-county probability intervals from a region's
// snapshot history, choosing the most informative usable source per county.
package estimate

import (
	"fmt"
	"sort"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/domain"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/multinomial"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/snapshot"
)

// Table is the merged per-county result of one Build call.
type Table struct {
	Region     string
	Candidates []string
	RefIndex   int // absolute index of the reference snapshot
	CurIndex   int // absolute index of the current snapshot
	Ref        *domain.Snapshot
	Cur        *domain.Snapshot
	Counties   []domain.CountyEstimate // sorted by county name
}

// Get returns the estimate for a county.
func (t *Table) Get(county string) (*domain.CountyEstimate, bool) {
	i := sort.Search(len(t.Counties), func(i int) bool { return t.Counties[i].County >= county })
	if i < len(t.Counties) && t.Counties[i].County == county {
		return &t.Counties[i], true
	}
	return nil, false
}

// Missing returns counties in the current snapshot that no source could estimate.
func (t *Table) Missing() []string {
	var out []string
	for _, name := range t.Cur.Counties() {
		if _, ok := t.Get(name); !ok {
			out = append(out, name)
		}
	}
	return out
}

// Builder computes CountyEstimates. Safe for concurrent use.
type Builder struct {
	method multinomial.Method
}

// NewBuilder creates a builder using the given interval method.
func NewBuilder(method multinomial.Method) *Builder {
	if method == "" {
		method = multinomial.MethodGoodman
	}
	return &Builder{method: method}
}

// Method returns the interval method in use.
func (b *Builder) Method() multinomial.Method {
	return b.method
}

// tierInput is one county's candidate vector from one source.
type tierInput struct {
	vector  domain.VoteCountVector
	clamped int
}

// Build estimates every county of region's snapshot at curIndex.
// Sources are tried per county in domain.SourcePriority order; the first
// usable one wins. Counties with no usable source are omitted.
// Negative indices count from the end (-1 = most recent).
func (b *Builder) Build(repo *snapshot.Repository, region string, refIndex, curIndex int, alpha float64) (*Table, error) {
	if err := ValidateAlpha(alpha); err != nil {
		return nil, fmt.Errorf("%w: got %v", err, alpha)
	}

	refAbs, err := repo.Resolve(region, refIndex)
	if err != nil {
		return nil, fmt.Errorf("resolve reference snapshot: %w", err)
	}
	curAbs, err := repo.Resolve(region, curIndex)
	if err != nil {
		return nil, fmt.Errorf("resolve current snapshot: %w", err)
	}
	ref, _ := repo.At(region, refAbs)
	cur, _ := repo.At(region, curAbs)

	table := &Table{
		Region:     region,
		Candidates: append([]string(nil), cur.Candidates...),
		RefIndex:   refAbs,
		CurIndex:   curAbs,
		Ref:        ref,
		Cur:        cur,
	}

	chosen := make(map[string]domain.CountyEstimate)
	for _, source := range domain.SourcePriority {
		rows, err := b.estimateTier(source, ref, cur, alpha)
		if err != nil {
			return nil, fmt.Errorf("estimate %s tier: %w", source, err)
		}
		for county, est := range rows {
			if _, taken := chosen[county]; taken {
				continue
			}
			chosen[county] = est
		}
	}

	table.Counties = make([]domain.CountyEstimate, 0, len(chosen))
	for _, est := range chosen {
		table.Counties = append(table.Counties, est)
	}
	sort.Slice(table.Counties, func(i, j int) bool {
		return table.Counties[i].County < table.Counties[j].County
	})
	return table, nil
}

// estimateTier runs the interval estimator over every county the source can serve.
func (b *Builder) estimateTier(source domain.Source, ref, cur *domain.Snapshot, alpha float64) (map[string]domain.CountyEstimate, error) {
	inputs := tierInputs(source, ref, cur)
	out := make(map[string]domain.CountyEstimate, len(inputs))

	for county, in := range inputs {
		bounds, err := multinomial.Estimate(in.vector.Counts, alpha, b.method)
		if err != nil {
			return nil, fmt.Errorf("county %s: %w", county, err)
		}

		row := cur.Row(county)
		counted := domain.NewVoteCountVector(cur.Candidates, row.Votes)
		est := domain.CountyEstimate{
			County:         county,
			Source:         source,
			Vector:         in.vector,
			Counted:        counted,
			Remaining:      Remaining(row.TotalExpected, row.Counted()),
			Intervals:      make([]domain.ProbabilityInterval, len(bounds)),
			ClampedEntries: in.clamped,
		}
		for i, bound := range bounds {
			est.Intervals[i] = domain.ProbabilityInterval{
				Candidate: in.vector.Candidates[i],
				Low:       bound.Low,
				Point:     bound.Point,
				High:      bound.High,
			}
		}
		out[county] = est
	}
	return out, nil
}

// tierInputs collects the usable vectors for one source. A county is
// unusable when its reference-column count is zero (or nothing was counted),
// since the interval is undefined for an all-zero vector.
func tierInputs(source domain.Source, ref, cur *domain.Snapshot) map[string]tierInput {
	out := make(map[string]tierInput)
	for county, row := range cur.Rows {
		var in tierInput
		switch source {
		case domain.SourceDifferential:
			prev := ref.Row(county)
			if prev == nil {
				continue
			}
			now := domain.NewVoteCountVector(cur.Candidates, row.Votes)
			then := domain.NewVoteCountVector(cur.Candidates, prev.Votes)
			in.vector, in.clamped = ClampNegative(now.Sub(then))
		case domain.SourceMail:
			if row.MailVotes == nil {
				continue
			}
			in.vector = domain.NewVoteCountVector(cur.Candidates, row.MailVotes)
		case domain.SourceTotal:
			in.vector = domain.NewVoteCountVector(cur.Candidates, row.Votes)
		default:
			continue
		}
		if in.vector.Leading() <= 0 || in.vector.Total() <= 0 {
			continue
		}
		out[county] = in
	}
	return out
}

// Package projection turns per-county probability intervals into
// normal-approximation prediction intervals on remaining votes and a final
// margin interval between two candidates.
package projection

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/domain"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/estimate"
)

// countTerm is one side of the prediction interval for n remaining votes at
// share p: n*p + z*sqrt(n*p*(1-p)).
func countTerm(n int64, p, z float64) float64 {
	nf := float64(n)
	return nf*p + z*math.Sqrt(nf*p*(1-p))
}

// CountyRange returns the pessimistic/optimistic bound on the number of
// remaining votes in one county going to the candidate with interval pi.
// z is the standard-normal quantile at alpha/2 (negative).
// A degenerate county (n == 0, either probability bound outside (0, 1), or a
// non-finite side) contributes (0, 0) as a whole.
func CountyRange(remaining int64, pi domain.ProbabilityInterval, z float64) domain.VoteRange {
	if remaining <= 0 || !inOpenUnit(pi.Low) || !inOpenUnit(pi.High) {
		return domain.VoteRange{}
	}
	r := domain.VoteRange{
		Low:  countTerm(remaining, pi.Low, z),
		High: countTerm(remaining, pi.High, -z),
	}
	if !finite(r.Low) || !finite(r.High) {
		return domain.VoteRange{}
	}
	return r
}

func inOpenUnit(p float64) bool {
	return p > 0 && p < 1
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Quantile returns the standard-normal quantile z(alpha/2).
func Quantile(alpha float64) (float64, error) {
	if err := estimate.ValidateAlpha(alpha); err != nil {
		return 0, fmt.Errorf("%w: got %v", err, alpha)
	}
	return distuv.UnitNormal.Quantile(alpha / 2), nil
}

// Aggregate sums per-county remaining-vote prediction intervals for every
// candidate across all counties in the estimate list.
func Aggregate(counties []domain.CountyEstimate, alpha float64) (map[string]domain.VoteRange, error) {
	z, err := Quantile(alpha)
	if err != nil {
		return nil, err
	}

	out := make(map[string]domain.VoteRange)
	for _, c := range counties {
		for _, pi := range c.Intervals {
			r := CountyRange(c.Remaining, pi, z)
			acc := out[pi.Candidate]
			acc.Low += r.Low
			acc.High += r.High
			out[pi.Candidate] = acc
		}
	}
	return out, nil
}

// CurrentDiff returns A's counted votes minus B's over the estimated counties.
func CurrentDiff(counties []domain.CountyEstimate, a, b string) int64 {
	var diff int64
	for _, c := range counties {
		diff += c.Counted.Get(a) - c.Counted.Get(b)
	}
	return diff
}

// FinalMargin pairs A's worst case with B's best case and vice versa.
func FinalMargin(currentDiff int64, remA, remB domain.VoteRange) domain.MarginInterval {
	d := float64(currentDiff)
	return domain.MarginInterval{
		Low:         d + remA.Low - remB.High,
		High:        d + remA.High - remB.Low,
		CurrentDiff: currentDiff,
	}
}

// Result is the outcome of Project.
type Result struct {
	Remaining map[string]domain.VoteRange
	Margin    domain.MarginInterval
}

// Project aggregates counties and computes the margin of a over b.
func Project(counties []domain.CountyEstimate, alpha float64, a, b string) (*Result, error) {
	if a == b {
		return nil, fmt.Errorf("%w: margin candidates must differ (%q)", estimate.ErrUnknownCandidate, a)
	}
	remaining, err := Aggregate(counties, alpha)
	if err != nil {
		return nil, err
	}
	if len(counties) > 0 {
		if _, ok := remaining[a]; !ok {
			return nil, fmt.Errorf("%w: %q", estimate.ErrUnknownCandidate, a)
		}
		if _, ok := remaining[b]; !ok {
			return nil, fmt.Errorf("%w: %q", estimate.ErrUnknownCandidate, b)
		}
	}

	return &Result{
		Remaining: remaining,
		Margin:    FinalMargin(CurrentDiff(counties, a, b), remaining[a], remaining[b]),
	}, nil
}

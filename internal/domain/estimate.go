package domain

import "time"

// ProbabilityInterval is a simultaneous confidence bound on one candidate's
// vote share in one county. 0 <= Low <= Point <= High <= 1.
type ProbabilityInterval struct {
	Candidate string
	Low       float64
	Point     float64
	High      float64
}

// CountyEstimate is the per-county result of one estimation run.
type CountyEstimate struct {
	County    string
	Source    Source          // which tier produced Intervals
	Vector    VoteCountVector // the clamped vector handed to the estimator
	Counted   VoteCountVector // current-snapshot counted votes
	Remaining int64           // votes not yet counted, >= 0
	Intervals []ProbabilityInterval

	// ClampedEntries counts differential entries that were negative before
	// clamping (downward data revisions). Always zero for non-differential sources.
	ClampedEntries int
}

// Interval returns the interval for a candidate.
func (e *CountyEstimate) Interval(candidate string) (ProbabilityInterval, bool) {
	for _, pi := range e.Intervals {
		if pi.Candidate == candidate {
			return pi, true
		}
	}
	return ProbabilityInterval{}, false
}

// VoteRange is an aggregate low/high bound on remaining votes for a candidate.
type VoteRange struct {
	Low  float64
	High float64
}

// MarginInterval bounds candidate A's final total minus candidate B's.
type MarginInterval struct {
	Low         float64
	High        float64
	CurrentDiff int64 // A counted - B counted over estimated counties
}

// Run is one persisted estimation run for a region.
type Run struct {
	RunID          string
	Region         string
	RefIndex       int
	CurIndex       int
	RefCollectedAt time.Time
	CurCollectedAt time.Time
	Alpha          float64
	Method         string
	CandidateA     string
	CandidateB     string
	RemainingA     VoteRange
	RemainingB     VoteRange
	Margin         MarginInterval
	Counties       []CountyEstimate // sorted by county name
	CreatedAt      time.Time

	// Unestimated lists current-snapshot counties that no source could
	// estimate. Not persisted.
	Unestimated []string
}

// SourceCounts tallies how many counties each source produced.
func (r *Run) SourceCounts() map[Source]int {
	out := make(map[Source]int, len(SourcePriority))
	for _, c := range r.Counties {
		out[c.Source]++
	}
	return out
}

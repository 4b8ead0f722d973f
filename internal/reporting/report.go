package reporting

import (
	"time"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/domain"
)

// Report is one estimation run laid out for rendering.
type Report struct {
	GeneratedAt time.Time
	Run         RunSummary
	Sources     []SourceCountRow
	Candidates  []string    // column order of the county table
	Counties    []CountyRow // sorted by county name
}

// RunSummary holds the run-level figures.
type RunSummary struct {
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
	RemainingA     domain.VoteRange
	RemainingB     domain.VoteRange
	Margin         domain.MarginInterval
}

// SourceCountRow counts counties per source tier.
type SourceCountRow struct {
	Source   domain.Source
	Counties int
}

// CountyRow is one line of the county table.
type CountyRow struct {
	County         string
	Source         domain.Source
	Remaining      int64
	ClampedEntries int
	Cells          []CandidateCell // same order as Report.Candidates
}

// CandidateCell is one candidate's figures within a county.
type CandidateCell struct {
	Candidate string
	Counted   int64
	Input     int64 // count handed to the estimator
	Low       float64
	Point     float64
	High      float64
}

// HistoryRow is one point of a region's margin history.
type HistoryRow struct {
	RunID          string
	CurIndex       int
	CurCollectedAt time.Time
	Margin         domain.MarginInterval
	RemainingA     domain.VoteRange
	RemainingB     domain.VoteRange
}

// History is a region's margin over successive snapshots.
type History struct {
	GeneratedAt time.Time
	Region      string
	CandidateA  string
	CandidateB  string
	Rows        []HistoryRow // sorted by CurCollectedAt
}

package domain

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"time"
)

// ErrInvalidSnapshot is returned when a snapshot fails boundary validation.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// CountyRow holds one county's counts at one point in time.
type CountyRow struct {
	County        string
	Votes         map[string]int64 // candidate -> votes counted so far
	MailVotes     map[string]int64 // candidate -> mail-ballot votes; nil when not reported
	TotalExpected int64            // expected total votes for the county
}

// Counted returns the number of votes counted so far across all candidates.
func (r *CountyRow) Counted() int64 {
	var sum int64
	for _, v := range r.Votes {
		sum += v
	}
	return sum
}

// Snapshot is a point-in-time vote-count table for one region.
// Immutable once inserted into a repository.
type Snapshot struct {
	Region      string
	CollectedAt time.Time
	Candidates  []string // column order; the first candidate is the reference column
	Rows        map[string]*CountyRow
}

// Counties returns county names sorted ascending.
func (s *Snapshot) Counties() []string {
	names := make([]string, 0, len(s.Rows))
	for name := range s.Rows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Row returns the row for a county, or nil.
func (s *Snapshot) Row(county string) *CountyRow {
	return s.Rows[county]
}

// Clone returns a deep copy that shares no maps or slices with s.
func (s *Snapshot) Clone() *Snapshot {
	dst := &Snapshot{
		Region:      s.Region,
		CollectedAt: s.CollectedAt,
		Candidates:  append([]string(nil), s.Candidates...),
		Rows:        make(map[string]*CountyRow, len(s.Rows)),
	}
	for name, r := range s.Rows {
		if r == nil {
			dst.Rows[name] = nil
			continue
		}
		dst.Rows[name] = &CountyRow{
			County:        r.County,
			Votes:         maps.Clone(r.Votes),
			MailVotes:     maps.Clone(r.MailVotes),
			TotalExpected: r.TotalExpected,
		}
	}
	return dst
}

// Validate rejects malformed snapshots before they reach the estimator.
func (s *Snapshot) Validate() error {
	if s.Region == "" {
		return fmt.Errorf("%w: empty region", ErrInvalidSnapshot)
	}
	if s.CollectedAt.IsZero() {
		return fmt.Errorf("%w: missing collection time", ErrInvalidSnapshot)
	}
	if len(s.Candidates) == 0 {
		return fmt.Errorf("%w: no candidates", ErrInvalidSnapshot)
	}
	seen := make(map[string]struct{}, len(s.Candidates))
	for _, c := range s.Candidates {
		if c == "" {
			return fmt.Errorf("%w: empty candidate name", ErrInvalidSnapshot)
		}
		if _, ok := seen[c]; ok {
			return fmt.Errorf("%w: duplicate candidate %q", ErrInvalidSnapshot, c)
		}
		seen[c] = struct{}{}
	}
	for name, row := range s.Rows {
		if name == "" || row == nil || row.County != name {
			return fmt.Errorf("%w: bad county row %q", ErrInvalidSnapshot, name)
		}
		if row.TotalExpected < 0 {
			return fmt.Errorf("%w: county %q has negative expected total", ErrInvalidSnapshot, name)
		}
		for c, v := range row.Votes {
			if _, ok := seen[c]; !ok {
				return fmt.Errorf("%w: county %q reports unknown candidate %q", ErrInvalidSnapshot, name, c)
			}
			if v < 0 {
				return fmt.Errorf("%w: county %q has negative votes for %q", ErrInvalidSnapshot, name, c)
			}
		}
		for c, v := range row.MailVotes {
			if _, ok := seen[c]; !ok {
				return fmt.Errorf("%w: county %q reports unknown mail candidate %q", ErrInvalidSnapshot, name, c)
			}
			if v < 0 {
				return fmt.Errorf("%w: county %q has negative mail votes for %q", ErrInvalidSnapshot, name, c)
			}
		}
	}
	return nil
}

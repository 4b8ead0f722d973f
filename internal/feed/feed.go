// Package feed decodes snapshot history files produced by the results collector.
//
// File layout:
//
//	{
//	  "regions": [{
//	    "region": "GA",
//	    "candidates": ["Biden", "Trump", "Jorgensen"],
//	    "snapshots": [{
//	      "collected_at": "2020-11-04T06:00:00Z",
//	      "counties": [{
//	        "county": "Cobb",
//	        "votes": {"Biden": 1000, "Trump": 800},
//	        "mail_votes": {"Biden": 400, "Trump": 150},
//	        "total_expected": 2500
//	      }]
//	    }]
//	  }]
//	}
//
// mail_votes is optional per county.
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/domain"
)

// ErrMalformedFeed is returned when the file cannot be decoded.
var ErrMalformedFeed = errors.New("malformed snapshot feed")

type fileJSON struct {
	Regions []regionJSON `json:"regions"`
}

type regionJSON struct {
	Region     string         `json:"region"`
	Candidates []string       `json:"candidates"`
	Snapshots  []snapshotJSON `json:"snapshots"`
}

type snapshotJSON struct {
	CollectedAt time.Time    `json:"collected_at"`
	Counties    []countyJSON `json:"counties"`
}

type countyJSON struct {
	County        string           `json:"county"`
	Votes         map[string]int64 `json:"votes"`
	MailVotes     map[string]int64 `json:"mail_votes,omitempty"`
	TotalExpected int64            `json:"total_expected"`
}

// Decode reads a feed and returns validated snapshots ordered by region
// then collection time.
func Decode(r io.Reader) ([]*domain.Snapshot, error) {
	var f fileJSON
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}

	var out []*domain.Snapshot
	for _, reg := range f.Regions {
		snaps := make([]*domain.Snapshot, 0, len(reg.Snapshots))
		for i, sj := range reg.Snapshots {
			snap, err := toSnapshot(reg, sj)
			if err != nil {
				return nil, fmt.Errorf("region %q snapshot %d: %w", reg.Region, i, err)
			}
			snaps = append(snaps, snap)
		}
		sort.SliceStable(snaps, func(i, j int) bool {
			return snaps[i].CollectedAt.Before(snaps[j].CollectedAt)
		})
		out = append(out, snaps...)
	}
	return out, nil
}

// Encode writes snapshots in the feed layout. Snapshots of one region must
// share a candidate list; the first one seen wins.
func Encode(w io.Writer, snaps []*domain.Snapshot) error {
	var f fileJSON
	index := make(map[string]int)
	for _, s := range snaps {
		i, ok := index[s.Region]
		if !ok {
			i = len(f.Regions)
			index[s.Region] = i
			f.Regions = append(f.Regions, regionJSON{Region: s.Region, Candidates: s.Candidates})
		}
		sj := snapshotJSON{CollectedAt: s.CollectedAt.UTC()}
		for _, name := range s.Counties() {
			row := s.Rows[name]
			sj.Counties = append(sj.Counties, countyJSON{
				County:        row.County,
				Votes:         row.Votes,
				MailVotes:     row.MailVotes,
				TotalExpected: row.TotalExpected,
			})
		}
		f.Regions[i].Snapshots = append(f.Regions[i].Snapshots, sj)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(f)
}

// LoadFile decodes the feed at path.
func LoadFile(path string) ([]*domain.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feed %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

func toSnapshot(reg regionJSON, sj snapshotJSON) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{
		Region:      reg.Region,
		CollectedAt: sj.CollectedAt.UTC(),
		Candidates:  append([]string(nil), reg.Candidates...),
		Rows:        make(map[string]*domain.CountyRow, len(sj.Counties)),
	}
	for _, c := range sj.Counties {
		if c.County == "" {
			return nil, fmt.Errorf("%w: county without a name", domain.ErrInvalidSnapshot)
		}
		if _, dup := snap.Rows[c.County]; dup {
			return nil, fmt.Errorf("%w: county %q listed twice", domain.ErrInvalidSnapshot, c.County)
		}
		votes := c.Votes
		if votes == nil {
			votes = make(map[string]int64)
		}
		snap.Rows[c.County] = &domain.CountyRow{
			County:        c.County,
			Votes:         votes,
			MailVotes:     c.MailVotes,
			TotalExpected: c.TotalExpected,
		}
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

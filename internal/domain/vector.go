package domain

// VoteCountVector is an ordered candidate -> count mapping for one county
// from one source. Counts may be negative only before ClampNegative is applied.
type VoteCountVector struct {
	Candidates []string
	Counts     []int64
}

// NewVoteCountVector builds a vector in candidate order, reading missing entries as zero.
func NewVoteCountVector(candidates []string, counts map[string]int64) VoteCountVector {
	v := VoteCountVector{
		Candidates: append([]string(nil), candidates...),
		Counts:     make([]int64, len(candidates)),
	}
	for i, c := range candidates {
		v.Counts[i] = counts[c]
	}
	return v
}

// Get returns the count for a candidate, zero if absent.
func (v VoteCountVector) Get(candidate string) int64 {
	for i, c := range v.Candidates {
		if c == candidate {
			return v.Counts[i]
		}
	}
	return 0
}

// Total sums all counts.
func (v VoteCountVector) Total() int64 {
	var sum int64
	for _, c := range v.Counts {
		sum += c
	}
	return sum
}

// Leading returns the reference (first) column count.
func (v VoteCountVector) Leading() int64 {
	if len(v.Counts) == 0 {
		return 0
	}
	return v.Counts[0]
}

// Sub returns v - other, candidate by candidate, without clamping.
func (v VoteCountVector) Sub(other VoteCountVector) VoteCountVector {
	out := VoteCountVector{
		Candidates: append([]string(nil), v.Candidates...),
		Counts:     make([]int64, len(v.Counts)),
	}
	for i, c := range v.Candidates {
		out.Counts[i] = v.Counts[i] - other.Get(c)
	}
	return out
}

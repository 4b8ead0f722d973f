package estimate

import "github.com/zhongzachary/MultinomialCIProject2020/internal/domain"

// Remaining returns the votes not yet counted: max(0, totalExpected - counted).
// totalExpected is taken as authoritative even if it moved between snapshots.
func Remaining(totalExpected, counted int64) int64 {
	if r := totalExpected - counted; r > 0 {
		return r
	}
	return 0
}

// ClampNegative is the downward-revision policy for differentials: any
// negative entry is read as zero votes. It returns the clamped vector and how
// many entries were negative so callers can flag revised counties.
func ClampNegative(v domain.VoteCountVector) (domain.VoteCountVector, int) {
	out := domain.VoteCountVector{
		Candidates: append([]string(nil), v.Candidates...),
		Counts:     make([]int64, len(v.Counts)),
	}
	clamped := 0
	for i, c := range v.Counts {
		if c < 0 {
			clamped++
			continue
		}
		out.Counts[i] = c
	}
	return out, clamped
}

// Package multinomial computes simultaneous confidence intervals for the
// category probabilities of a multinomial distribution.
package multinomial

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Errors returned by Estimate.
var (
	ErrInvalidAlpha  = errors.New("alpha must be in (0, 1)")
	ErrEmptyVector   = errors.New("count vector has no observations")
	ErrUnknownMethod = errors.New("unknown confidence interval method")
)

// Method selects the simultaneous-coverage procedure.
type Method string

const (
	// MethodGoodman uses a Bonferroni split: chi-square(1) at 1-alpha/k.
	MethodGoodman Method = "goodman"
	// MethodQuesenberryHurst uses chi-square(k-1) at 1-alpha.
	MethodQuesenberryHurst Method = "quesenberry-hurst"
)

// ParseMethod maps a config string to a Method. Empty means goodman.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case "", MethodGoodman:
		return MethodGoodman, nil
	case MethodQuesenberryHurst:
		return MethodQuesenberryHurst, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

// Interval is the bound for one category.
type Interval struct {
	Low   float64
	Point float64
	High  float64
}

// Estimate returns simultaneous (1-alpha) bounds for each category of counts,
// in input order. Negative counts are read as zero.
func Estimate(counts []int64, alpha float64, method Method) ([]Interval, error) {
	if !(alpha > 0 && alpha < 1) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidAlpha, alpha)
	}

	k := len(counts)
	var n float64
	for _, c := range counts {
		if c > 0 {
			n += float64(c)
		}
	}
	if k == 0 || n == 0 {
		return nil, ErrEmptyVector
	}

	chi2, err := criticalValue(method, k, alpha)
	if err != nil {
		return nil, err
	}

	out := make([]Interval, k)
	for i, c := range counts {
		x := float64(max(c, 0))
		out[i] = wilsonBound(x, n, chi2)
	}
	return out, nil
}

// criticalValue returns the chi-square quantile used as the squared z-score.
func criticalValue(method Method, k int, alpha float64) (float64, error) {
	switch method {
	case "", MethodGoodman:
		return distuv.ChiSquared{K: 1}.Quantile(1 - alpha/float64(k)), nil
	case MethodQuesenberryHurst:
		df := float64(k - 1)
		if df < 1 {
			df = 1
		}
		return distuv.ChiSquared{K: df}.Quantile(1 - alpha), nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

// wilsonBound solves n(p-x/n)^2 = chi2 p(1-p) for p.
func wilsonBound(x, n, chi2 float64) Interval {
	p := x / n
	delta := chi2 * (chi2 + 4*n*p*(1-p))
	root := math.Sqrt(delta)
	denom := 2 * (chi2 + n)

	lo := (2*n*p + chi2 - root) / denom
	hi := (2*n*p + chi2 + root) / denom

	// Rounding can push the bounds a hair past p or [0, 1].
	lo = math.Max(0, math.Min(lo, p))
	hi = math.Min(1, math.Max(hi, p))

	return Interval{Low: lo, Point: p, High: hi}
}

// Package series provides the shared primitives for glider sample series:
// the invalid-value marker, valid-subset masking, timestamp deduplication,
// irregular-spacing numerical gradients, pairwise-complete correlation and
// linear interpolation with end-slope extrapolation.
//
// A sample series is a pair of equal-length float64 slices (timestamp,
// value). Invalid entries are NaN and are propagated positionally: every
// operation returns slices of the original length with NaN at positions it
// could not compute. Timestamps at or below zero mark not-yet-valid records
// from the start of a segment and are excluded alongside NaN entries.
package series

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ErrInconsistent reports duplicate timestamps carrying different values.
// Interpolation over such a series is ambiguous, and the condition points at
// upstream data corruption, so it is always surfaced rather than resolved by
// picking one of the values.
var ErrInconsistent = errors.New("series: duplicate timestamp with conflicting values")

// Invalid returns the marker used for missing or uncomputable values.
func Invalid() float64 { return math.NaN() }

// IsValid reports whether v is an actual measurement (not the marker).
func IsValid(v float64) bool { return !math.IsNaN(v) }

// AllInvalid returns a length-n slice filled with the invalid marker.
func AllInvalid(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// ValidMask returns a mask that is true where the timestamp is valid and
// positive and every supplied channel holds a valid value at that position.
// All channels must have the same length as t.
func ValidMask(t []float64, channels ...[]float64) ([]bool, error) {
	for _, ch := range channels {
		if len(ch) != len(t) {
			return nil, fmt.Errorf("series: channel length %d does not match timestamp length %d", len(ch), len(t))
		}
	}
	mask := make([]bool, len(t))
	for i, ti := range t {
		if !IsValid(ti) || ti <= 0 {
			continue
		}
		ok := true
		for _, ch := range channels {
			if !IsValid(ch[i]) {
				ok = false
				break
			}
		}
		mask[i] = ok
	}
	return mask, nil
}

// Compress returns the values of v at the true positions of mask.
func Compress(v []float64, mask []bool) []float64 {
	out := make([]float64, 0, len(v))
	for i, keep := range mask {
		if keep {
			out = append(out, v[i])
		}
	}
	return out
}

// Scatter writes the compact values back into a full-length slice at the
// true positions of mask, leaving the invalid marker everywhere else.
func Scatter(compact []float64, mask []bool) []float64 {
	out := AllInvalid(len(mask))
	j := 0
	for i, keep := range mask {
		if keep {
			out[i] = compact[j]
			j++
		}
	}
	return out
}

// Unique sorts the (t, v) pairs by timestamp and collapses repeated
// timestamps. Repeats carrying the same value are benign (a known artifact
// of record boundaries); repeats with different values fail with
// ErrInconsistent. The inputs are not modified.
func Unique(t, v []float64) ([]float64, []float64, error) {
	if len(t) != len(v) {
		return nil, nil, fmt.Errorf("series: timestamp length %d does not match value length %d", len(t), len(v))
	}
	idx := make([]int, len(t))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return t[idx[a]] < t[idx[b]] })

	tu := make([]float64, 0, len(t))
	vu := make([]float64, 0, len(v))
	for _, i := range idx {
		if n := len(tu); n > 0 && t[i] == tu[n-1] {
			if v[i] != vu[n-1] {
				return nil, nil, fmt.Errorf("%w: t=%g has values %g and %g", ErrInconsistent, t[i], vu[n-1], v[i])
			}
			continue
		}
		tu = append(tu, t[i])
		vu = append(vu, v[i])
	}
	return tu, vu, nil
}

// Gradient computes a numerical derivative of v with respect to t, tolerant
// of irregular spacing. Interior points blend the backward and forward simple
// differences, each weighted by the duration of the other interval; the first
// and last points use the adjacent simple difference. Positions whose
// neighbourhood contains an invalid value or a non-increasing timestamp come
// back invalid.
func Gradient(t, v []float64) []float64 {
	n := len(t)
	out := AllInvalid(n)
	if n < 2 || len(v) != n {
		return out
	}
	diff := func(i, j int) float64 {
		dt := t[j] - t[i]
		if !IsValid(t[i]) || !IsValid(t[j]) || dt <= 0 {
			return math.NaN()
		}
		return (v[j] - v[i]) / dt
	}
	out[0] = diff(0, 1)
	out[n-1] = diff(n-2, n-1)
	for i := 1; i < n-1; i++ {
		db := t[i] - t[i-1]
		df := t[i+1] - t[i]
		if db <= 0 || df <= 0 {
			continue
		}
		// Weight each one-sided difference by the other interval's length so
		// the estimate stays centered under uneven sampling.
		out[i] = (df*diff(i-1, i) + db*diff(i, i+1)) / (db + df)
	}
	return out
}

// Correlation returns the Pearson correlation of x and y over the positions
// where both are valid (pairwise-complete). Fewer than two complete pairs,
// or a zero-variance channel, yields the invalid marker.
func Correlation(x, y []float64) float64 {
	if len(x) != len(y) {
		return math.NaN()
	}
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for i := range x {
		if IsValid(x[i]) && IsValid(y[i]) {
			xs = append(xs, x[i])
			ys = append(ys, y[i])
		}
	}
	if len(xs) < 2 {
		return math.NaN()
	}
	return stat.Correlation(xs, ys, nil)
}

// Interp evaluates the piecewise-linear interpolant through (t, v) at each
// query point. t must be strictly increasing with at least two samples.
// Queries outside [t[0], t[len-1]] extrapolate along the end segments, the
// behaviour the lag correctors rely on when shifting past the series edge.
func Interp(t, v, tq []float64) ([]float64, error) {
	n := len(t)
	if n < 2 || len(v) != n {
		return nil, fmt.Errorf("series: interpolation needs at least 2 samples, got %d", n)
	}
	for i := 1; i < n; i++ {
		if !(t[i] > t[i-1]) {
			return nil, fmt.Errorf("series: interpolation timestamps must be strictly increasing at index %d", i)
		}
	}
	out := make([]float64, len(tq))
	for qi, x := range tq {
		if !IsValid(x) {
			out[qi] = math.NaN()
			continue
		}
		// Index of the segment [t[i], t[i+1]] containing x, clamped to the
		// end segments for extrapolation.
		i := sort.SearchFloat64s(t, x) - 1
		if i < 0 {
			i = 0
		} else if i > n-2 {
			i = n - 2
		}
		slope := (v[i+1] - v[i]) / (t[i+1] - t[i])
		out[qi] = v[i] + slope*(x-t[i])
	}
	return out, nil
}

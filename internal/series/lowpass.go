package series

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"
)

// DefaultTimeConstant is the low-pass time constant used by
// DefaultLowPassOptions, in timestamp units.
const DefaultTimeConstant = 4.0

// LowPassOptions configures LowPass.
type LowPassOptions struct {
	// TimeConstant is the single-pole filter time constant, in the same
	// units as the timestamps. Must be positive.
	TimeConstant float64
}

// DefaultLowPassOptions returns the standard pressure-smoothing setup.
func DefaultLowPassOptions() LowPassOptions {
	return LowPassOptions{TimeConstant: DefaultTimeConstant}
}

func (o LowPassOptions) validate() error {
	if o.TimeConstant <= 0 || math.IsNaN(o.TimeConstant) {
		return fmt.Errorf("series: time constant must be positive, got %g", o.TimeConstant)
	}
	return nil
}

// LowPass regularizes an irregularly-sampled channel and smooths it with a
// causal single-pole low-pass filter. The series is resampled onto a
// unit-spaced grid spanning the valid timestamp range, filtered there, and
// resampled back onto the original timestamps, so the filter response does
// not depend on the raw sampling cadence. Used chiefly to condition the
// pressure channel before cast segmentation.
//
// Positions that were invalid (or had non-positive timestamps) on input are
// invalid on output; all other positions take the filtered value. Duplicate
// timestamps with conflicting values fail with ErrInconsistent. Fewer than
// two unique valid samples produce an all-invalid result with no error.
func LowPass(t, v []float64, opts LowPassOptions) ([]float64, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	mask, err := ValidMask(t, v)
	if err != nil {
		return nil, err
	}
	tu, vu, err := Unique(Compress(t, mask), Compress(v, mask))
	if err != nil {
		return nil, err
	}
	if len(tu) < 2 {
		return AllInvalid(len(t)), nil
	}

	// Unit-spaced grid covering the valid range.
	t0, t1 := tu[0], tu[len(tu)-1]
	steps := int(math.Floor(t1 - t0))
	grid := make([]float64, steps+1)
	for k := range grid {
		grid[k] = t0 + float64(k)
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(tu, vu); err != nil {
		return nil, fmt.Errorf("series: resampling onto regular grid: %w", err)
	}
	regular := make([]float64, len(grid))
	for k, g := range grid {
		regular[k] = pl.Predict(g)
	}

	// Exponential smoothing at unit spacing.
	a := math.Exp(-1 / opts.TimeConstant)
	filtered := make([]float64, len(regular))
	filtered[0] = regular[0]
	for k := 1; k < len(regular); k++ {
		filtered[k] = a*filtered[k-1] + (1-a)*regular[k]
	}

	// Back onto the original valid timestamps. Single grid point means the
	// valid span is shorter than one unit; fall through with the raw values.
	smoothed := Compress(t, mask)
	if len(filtered) >= 2 {
		smoothed, err = Interp(grid, filtered, smoothed)
		if err != nil {
			return nil, err
		}
	} else {
		smoothed = Compress(v, mask)
	}
	return Scatter(smoothed, mask), nil
}

// Package flow estimates the speed of water through the CTD conductivity
// cell from the glider's vertical motion. The estimate drives the
// flow-dependent variants of the lag correctors: both the cell transit time
// and the thermal-inertia coefficients scale with how fast water flushes
// the cell.
package flow

import (
	"fmt"
	"math"

	"github.com/oceanids/gliderproc/internal/series"
)

type pitchKind int

const (
	pitchNone pitchKind = iota
	pitchConstant
	pitchSeries
)

// Pitch carries the glider pitch used to project vertical velocity onto the
// along-body axis: absent, a constant attitude, or a per-sample series in
// radians.
type Pitch struct {
	kind   pitchKind
	value  float64
	values []float64
}

// NoPitch disables the pitch projection; surge speed is then the absolute
// vertical velocity.
func NoPitch() Pitch { return Pitch{} }

// ConstantPitch uses a fixed pitch angle in radians for every sample.
func ConstantPitch(rad float64) Pitch { return Pitch{kind: pitchConstant, value: rad} }

// PitchSeries uses a per-sample pitch series in radians, aligned with the
// timestamp series.
func PitchSeries(rad []float64) Pitch { return Pitch{kind: pitchSeries, values: rad} }

// Options configures Speed.
type Options struct {
	// FactorPolynomial maps surge speed to flow speed, coefficients ordered
	// by ascending degree. Nil leaves the surge speed unscaled.
	FactorPolynomial []float64

	// MinVelocity marks samples with |vertical velocity| below it invalid:
	// near the cast turn the vertical motion is too small to constrain the
	// through-cell flow. Non-negative, in depth units per time unit.
	MinVelocity float64

	// MinPitch marks samples with |pitch| below it invalid, radians.
	MinPitch float64
}

// DefaultOptions returns the standard pumped-cell calibration: flow speed
// 1.15 + 0.03·surge, no low-signal cutoffs.
func DefaultOptions() Options {
	return Options{FactorPolynomial: []float64{1.15, 0.03}}
}

func (o Options) validate() error {
	if o.MinVelocity < 0 || math.IsNaN(o.MinVelocity) {
		return fmt.Errorf("flow: minimum velocity must be non-negative, got %g", o.MinVelocity)
	}
	if o.MinPitch < 0 || math.IsNaN(o.MinPitch) {
		return fmt.Errorf("flow: minimum pitch must be non-negative, got %g", o.MinPitch)
	}
	return nil
}

// Speed estimates the through-cell flow speed for every sample. The result
// is aligned with the inputs: positions excluded from the valid subset, or
// falling in the low-signal regime, carry the invalid marker; all returned
// values are non-negative.
func Speed(t, depth []float64, pitch Pitch, opts Options) ([]float64, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	channels := [][]float64{depth}
	if pitch.kind == pitchSeries {
		if len(pitch.values) != len(t) {
			return nil, fmt.Errorf("flow: pitch series length %d does not match timestamp length %d", len(pitch.values), len(t))
		}
		channels = append(channels, pitch.values)
	}
	mask, err := series.ValidMask(t, channels...)
	if err != nil {
		return nil, err
	}

	tc := series.Compress(t, mask)
	dc := series.Compress(depth, mask)
	if len(tc) < 2 {
		return series.AllInvalid(len(t)), nil
	}
	var pc []float64
	if pitch.kind == pitchSeries {
		pc = series.Compress(pitch.values, mask)
	}

	w := series.Gradient(tc, dc) // vertical velocity
	speed := make([]float64, len(tc))
	for i := range speed {
		rad, projected := pitchAt(pitch, pc, i)
		speed[i] = surge(w[i], rad, projected, opts)
		if series.IsValid(speed[i]) && opts.FactorPolynomial != nil {
			speed[i] = polyval(opts.FactorPolynomial, speed[i])
		}
		if speed[i] < 0 {
			speed[i] = series.Invalid()
		}
	}
	return series.Scatter(speed, mask), nil
}

func pitchAt(p Pitch, compressed []float64, i int) (rad float64, ok bool) {
	switch p.kind {
	case pitchConstant:
		return p.value, true
	case pitchSeries:
		return compressed[i], true
	}
	return 0, false
}

func surge(w float64, pitch float64, havePitch bool, opts Options) float64 {
	if !series.IsValid(w) || math.Abs(w) < opts.MinVelocity {
		return series.Invalid()
	}
	if !havePitch {
		return math.Abs(w)
	}
	if math.Abs(pitch) < opts.MinPitch || math.Sin(pitch) == 0 {
		return series.Invalid()
	}
	return math.Abs(w / math.Sin(pitch))
}

// polyval evaluates the polynomial with ascending-degree coefficients at x.
func polyval(coeffs []float64, x float64) float64 {
	y := 0.0
	for i := len(coeffs) - 1; i >= 0; i-- {
		y = y*x + coeffs[i]
	}
	return y
}

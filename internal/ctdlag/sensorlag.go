// Package ctdlag corrects the two response artifacts of a glider CTD: the
// sensor time lag (transit and response delay between the true signal and
// the measured one) and the conductivity-cell thermal lag (heat exchange
// between the cell wall and the flowing water, which corrupts temperature
// and conductivity jointly).
//
// Both correctors take their coefficients as a tagged parameter value:
// either a constant set, or a flow-dependent set evaluated per sample
// against an estimated through-cell flow-speed series. The tag, not the
// presence of optional arguments, selects the behaviour, and a corrector
// called with a flow series and constant parameters (or the reverse) fails
// before touching the data.
package ctdlag

import (
	"fmt"

	"github.com/oceanids/gliderproc/internal/series"
)

// SensorLag holds sensor time-lag parameters. Constant parameters apply a
// fixed delay tau; flow-dependent parameters evaluate tau = offset +
// slope/flow per sample.
type SensorLag struct {
	tau           float64
	offset, slope float64
	flowDependent bool
}

// ConstantSensorLag returns parameters applying the fixed delay tau, in
// timestamp units.
func ConstantSensorLag(tau float64) SensorLag { return SensorLag{tau: tau} }

// FlowSensorLag returns flow-dependent parameters: the per-sample delay is
// offset + slope/flow.
func FlowSensorLag(offset, slope float64) SensorLag {
	return SensorLag{offset: offset, slope: slope, flowDependent: true}
}

// FlowDependent reports which variant the parameters are.
func (p SensorLag) FlowDependent() bool { return p.flowDependent }

// Coefficients returns the parameter vector: [tau] for the constant variant,
// [offset, slope] for the flow-dependent one.
func (p SensorLag) Coefficients() []float64 {
	if p.flowDependent {
		return []float64{p.offset, p.slope}
	}
	return []float64{p.tau}
}

// CorrectSensorLag advances the raw series in time to undo the sensor delay:
// the corrected value at time t is the measured signal interpolated at
// t + tau. Interpolation runs over the valid, deduplicated, positive-time
// subset of the series and extrapolates along the end segments where the
// shift passes the series edge.
//
// flowSpeed must be non-nil exactly when p is flow-dependent; samples with
// invalid or non-positive flow are excluded from the valid subset. Duplicate
// timestamps with conflicting raw values fail with series.ErrInconsistent.
// Fewer than two unique valid samples produce an all-invalid result.
func CorrectSensorLag(t, raw []float64, p SensorLag, flowSpeed []float64) ([]float64, error) {
	if err := checkFlowArg(p.flowDependent, flowSpeed, len(t)); err != nil {
		return nil, err
	}
	mask, err := validWithFlow(t, flowSpeed, raw)
	if err != nil {
		return nil, err
	}
	tc := series.Compress(t, mask)
	vc := series.Compress(raw, mask)
	tu, vu, err := series.Unique(tc, vc)
	if err != nil {
		return nil, err
	}
	if len(tu) < 2 {
		return series.AllInvalid(len(t)), nil
	}

	tq := make([]float64, len(tc))
	if p.flowDependent {
		fc := series.Compress(flowSpeed, mask)
		for i := range tq {
			tq[i] = tc[i] + p.offset + p.slope/fc[i]
		}
	} else {
		for i := range tq {
			tq[i] = tc[i] + p.tau
		}
	}
	cor, err := series.Interp(tu, vu, tq)
	if err != nil {
		return nil, err
	}
	return series.Scatter(cor, mask), nil
}

func checkFlowArg(flowDependent bool, flowSpeed []float64, n int) error {
	if flowDependent && flowSpeed == nil {
		return fmt.Errorf("ctdlag: flow-dependent parameters need a flow-speed series")
	}
	if !flowDependent && flowSpeed != nil {
		return fmt.Errorf("ctdlag: constant parameters do not take a flow-speed series")
	}
	if flowSpeed != nil && len(flowSpeed) != n {
		return fmt.Errorf("ctdlag: flow-speed length %d does not match timestamp length %d", len(flowSpeed), n)
	}
	return nil
}

// validWithFlow builds the valid-subset mask over the timestamps and
// channels, additionally requiring positive flow when a flow series is in
// play.
func validWithFlow(t, flowSpeed []float64, channels ...[]float64) ([]bool, error) {
	mask, err := series.ValidMask(t, channels...)
	if err != nil {
		return nil, err
	}
	if flowSpeed != nil {
		for i := range mask {
			if mask[i] && !(series.IsValid(flowSpeed[i]) && flowSpeed[i] > 0) {
				mask[i] = false
			}
		}
	}
	return mask, nil
}

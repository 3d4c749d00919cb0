package ctdlag

import (
	"math"

	"github.com/oceanids/gliderproc/internal/series"
)

// ThermalLag holds conductivity-cell thermal-lag parameters. The constant
// variant carries the error magnitude alpha and time constant tau directly;
// the flow-dependent variant evaluates them per sample following Morison et
// al. (1994):
//
//	alpha = alphaOffset + alphaSlope/flow
//	tau   = tauOffset + tauSlope/sqrt(flow)
type ThermalLag struct {
	alpha, tau                                   float64
	alphaOffset, alphaSlope, tauOffset, tauSlope float64
	flowDependent                                bool
}

// ConstantThermalLag returns constant thermal-lag parameters.
func ConstantThermalLag(alpha, tau float64) ThermalLag {
	return ThermalLag{alpha: alpha, tau: tau}
}

// FlowThermalLag returns flow-dependent thermal-lag parameters.
func FlowThermalLag(alphaOffset, alphaSlope, tauOffset, tauSlope float64) ThermalLag {
	return ThermalLag{
		alphaOffset: alphaOffset, alphaSlope: alphaSlope,
		tauOffset: tauOffset, tauSlope: tauSlope,
		flowDependent: true,
	}
}

// FlowDependent reports which variant the parameters are.
func (p ThermalLag) FlowDependent() bool { return p.flowDependent }

// Coefficients returns the parameter vector: [alpha, tau] for the constant
// variant, [alphaOffset, alphaSlope, tauOffset, tauSlope] otherwise.
func (p ThermalLag) Coefficients() []float64 {
	if p.flowDependent {
		return []float64{p.alphaOffset, p.alphaSlope, p.tauOffset, p.tauSlope}
	}
	return []float64{p.alpha, p.tau}
}

func (p ThermalLag) at(flow float64) (alpha, tau float64) {
	if !p.flowDependent {
		return p.alpha, p.tau
	}
	return p.alphaOffset + p.alphaSlope/flow, p.tauOffset + p.tauSlope/math.Sqrt(flow)
}

// thermalState is the two-field recursion state: the running conductivity
// and temperature corrections. It resets to zero at the start of each valid
// run, and the recursion that advances it is order-dependent, so it must be
// folded sequentially within a cast (independent casts may run in parallel).
type thermalState struct {
	cond, temp float64
}

func (s thermalState) next(coefA, coefB, dCdT, dTemp float64) thermalState {
	return thermalState{
		cond: -coefB*s.cond + coefA*dCdT*dTemp,
		temp: -coefB*s.temp + coefA*dTemp,
	}
}

// CorrectThermalLag separates the true outside conductivity and the inside
// temperature from the thermal-inertia-corrupted pair measured by the CTD:
// conductivity sampled inside the cell and temperature sampled outside it.
// It returns temperatureInside = temperatureOutside - tempCorrection and
// conductivityOutside = conductivityInside + condCorrection, both aligned
// with the inputs and invalid outside the valid run.
//
// flowSpeed must be non-nil exactly when p is flow-dependent. Fewer than two
// usable samples produce all-invalid results with no error.
func CorrectThermalLag(t, condInside, tempOutside []float64, p ThermalLag, flowSpeed []float64) (tempInside, condOutside []float64, err error) {
	if err := checkFlowArg(p.flowDependent, flowSpeed, len(t)); err != nil {
		return nil, nil, err
	}
	mask, err := validWithFlow(t, flowSpeed, condInside, tempOutside)
	if err != nil {
		return nil, nil, err
	}
	tc := series.Compress(t, mask)
	cond := series.Compress(condInside, mask)
	temp := series.Compress(tempOutside, mask)
	m := len(tc)
	if m < 2 {
		return series.AllInvalid(len(t)), series.AllInvalid(len(t)), nil
	}
	var fc []float64
	if p.flowDependent {
		fc = series.Compress(flowSpeed, mask)
	}

	condCorr := make([]float64, m)
	tempCorr := make([]float64, m)
	state := thermalState{}
	for n := 0; n < m-1; n++ {
		flow := 0.0
		if fc != nil {
			flow = fc[n]
		}
		alpha, tau := p.at(flow)
		dt := tc[n+1] - tc[n]
		den := 2 + dt/tau
		coefA := 2 * alpha / den
		coefB := 1 - 4/den
		// Sensitivity of conductivity to temperature, S/m per degree C,
		// linearized around the outside temperature.
		dCdT := 0.088 + 0.0006*temp[n]
		state = state.next(coefA, coefB, dCdT, temp[n+1]-temp[n])
		condCorr[n+1] = state.cond
		tempCorr[n+1] = state.temp
	}

	ti := make([]float64, m)
	co := make([]float64, m)
	for n := 0; n < m; n++ {
		ti[n] = temp[n] - tempCorr[n]
		co[n] = cond[n] + condCorr[n]
	}
	return series.Scatter(ti, mask), series.Scatter(co, mask), nil
}

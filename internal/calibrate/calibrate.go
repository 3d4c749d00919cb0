// Package calibrate fits CTD lag parameters from data. Given two
// time-aligned channels it searches the lag-parameter box for the vector
// that maximizes the Pearson correlation between the gradient of the
// reference channel and the gradient of the corrected channel: a properly
// de-lagged channel changes in step with its reference, while residual lag
// decorrelates their gradients.
//
// The search is a bounded Nelder-Mead run from gonum's optimize package.
// gonum has no native box constraints, so the parameter box maps onto an
// unconstrained vector through a sigmoid change of variables; the iterates
// never leave the open box and the mapping is exact at the optimum.
// Non-convergence is a status, not an error: the best-found parameters and
// their residual are always returned.
package calibrate

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/oceanids/gliderproc/internal/ctdlag"
	"github.com/oceanids/gliderproc/internal/series"
)

// badObjective stands in for an uncomputable correlation (degenerate
// overlap, zero variance). It sits above the worst possible real objective
// (+1, perfect anticorrelation) so the optimizer walks away from such
// regions.
const badObjective = 2.0

// Observer is invoked once per optimizer major iteration with the current
// parameters (in corrector units, not optimizer coordinates) and objective
// value. It is diagnostic only: correctness never depends on it.
type Observer func(iteration int, params []float64, objective float64)

// Config bounds and seeds a fit. Zero-value fields take the mode-dependent
// defaults from DefaultSensorConfig or DefaultThermalConfig.
type Config struct {
	InitialGuess []float64
	LowerBound   []float64
	UpperBound   []float64

	// Tolerance is the absolute objective-change convergence threshold.
	Tolerance float64
	// MaxIterations caps the optimizer's major iterations.
	MaxIterations int

	Observer Observer
}

// DefaultSensorConfig returns the sensor-lag fitting defaults: a half-second
// constant delay seed, or the usual offset/slope seed for flow-dependent
// cells.
func DefaultSensorConfig(flowDependent bool) Config {
	if flowDependent {
		return Config{
			InitialGuess:  []float64{0.3568, 0.07},
			LowerBound:    []float64{0, 0},
			UpperBound:    []float64{16, 4},
			Tolerance:     1e-6,
			MaxIterations: 200,
		}
	}
	return Config{
		InitialGuess:  []float64{0.5},
		LowerBound:    []float64{0},
		UpperBound:    []float64{60},
		Tolerance:     1e-6,
		MaxIterations: 200,
	}
}

// DefaultThermalConfig returns the thermal-lag fitting defaults. The
// flow-dependent seed is the Morison et al. (1994) coefficient set for an
// unpumped SBE-41 cell.
func DefaultThermalConfig(flowDependent bool) Config {
	if flowDependent {
		return Config{
			InitialGuess:  []float64{0.0135, 0.0264, 7.1499, 2.7858},
			LowerBound:    []float64{0, 0, 0, 0},
			UpperBound:    []float64{2, 2, 60, 60},
			Tolerance:     1e-6,
			MaxIterations: 400,
		}
	}
	return Config{
		InitialGuess:  []float64{0.0677, 11.1431},
		LowerBound:    []float64{0, 0},
		UpperBound:    []float64{1, 100},
		Tolerance:     1e-6,
		MaxIterations: 400,
	}
}

func (c Config) merged(def Config) Config {
	if c.InitialGuess == nil {
		c.InitialGuess = def.InitialGuess
	}
	if c.LowerBound == nil {
		c.LowerBound = def.LowerBound
	}
	if c.UpperBound == nil {
		c.UpperBound = def.UpperBound
	}
	if c.Tolerance == 0 {
		c.Tolerance = def.Tolerance
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = def.MaxIterations
	}
	return c
}

func (c Config) validate(arity int) error {
	if len(c.InitialGuess) != arity || len(c.LowerBound) != arity || len(c.UpperBound) != arity {
		return fmt.Errorf("calibrate: config wants %d parameters, got guess/lower/upper of %d/%d/%d",
			arity, len(c.InitialGuess), len(c.LowerBound), len(c.UpperBound))
	}
	for i := range c.LowerBound {
		if !(c.LowerBound[i] < c.UpperBound[i]) {
			return fmt.Errorf("calibrate: empty bound interval [%g, %g] for parameter %d",
				c.LowerBound[i], c.UpperBound[i], i)
		}
		if c.InitialGuess[i] < c.LowerBound[i] || c.InitialGuess[i] > c.UpperBound[i] {
			return fmt.Errorf("calibrate: initial guess %g outside bounds [%g, %g] for parameter %d",
				c.InitialGuess[i], c.LowerBound[i], c.UpperBound[i], i)
		}
	}
	if c.Tolerance <= 0 || math.IsNaN(c.Tolerance) {
		return fmt.Errorf("calibrate: tolerance must be positive, got %g", c.Tolerance)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("calibrate: iteration limit must be positive, got %d", c.MaxIterations)
	}
	return nil
}

// Result reports a finished fit.
type Result struct {
	// Params is the best-found parameter vector, in corrector units.
	Params []float64
	// Residual is the objective at Params: the negated gradient
	// correlation, so -1 is a perfect fit.
	Residual float64
	// Converged is false when the optimizer stopped on its iteration or
	// evaluation budget instead of the tolerance. The caller decides
	// whether to retry, fall back, or use the parameters anyway.
	Converged  bool
	Iterations int
}

// FitSensorLag fits sensor-lag parameters so that lagged, corrected with
// them, tracks reference. Supplying flowSpeed selects the flow-dependent
// two-parameter variant; nil selects the constant single-parameter one.
func FitSensorLag(t, reference, lagged, flowSpeed []float64, cfg Config) (Result, error) {
	flowDependent := flowSpeed != nil
	cfg = cfg.merged(DefaultSensorConfig(flowDependent))
	arity := 1
	if flowDependent {
		arity = 2
	}
	if err := cfg.validate(arity); err != nil {
		return Result{}, err
	}

	params := func(p []float64) ctdlag.SensorLag {
		if flowDependent {
			return ctdlag.FlowSensorLag(p[0], p[1])
		}
		return ctdlag.ConstantSensorLag(p[0])
	}
	// Surface data-inconsistency failures before the search starts; inside
	// the loop they would be indistinguishable from bad parameter regions.
	if _, err := ctdlag.CorrectSensorLag(t, lagged, params(cfg.InitialGuess), flowSpeed); err != nil {
		return Result{}, err
	}

	refGrad := series.Gradient(t, reference)
	return minimize(cfg, func(p []float64) float64 {
		cor, err := ctdlag.CorrectSensorLag(t, lagged, params(p), flowSpeed)
		if err != nil {
			return badObjective
		}
		return negCorrelation(refGrad, series.Gradient(t, cor))
	})
}

// FitThermalLag fits thermal-lag parameters for the (conductivity inside,
// temperature outside) pair. The objective aligns the gradients of the two
// corrected outputs against each other: temperature and conductivity track
// the same water masses, and residual thermal lag is what decorrelates
// them. Supplying flowSpeed selects the four-parameter flow-dependent
// variant; nil selects the constant two-parameter one.
func FitThermalLag(t, condInside, tempOutside, flowSpeed []float64, cfg Config) (Result, error) {
	flowDependent := flowSpeed != nil
	cfg = cfg.merged(DefaultThermalConfig(flowDependent))
	arity := 2
	if flowDependent {
		arity = 4
	}
	if err := cfg.validate(arity); err != nil {
		return Result{}, err
	}

	params := func(p []float64) ctdlag.ThermalLag {
		if flowDependent {
			return ctdlag.FlowThermalLag(p[0], p[1], p[2], p[3])
		}
		return ctdlag.ConstantThermalLag(p[0], p[1])
	}
	if _, _, err := ctdlag.CorrectThermalLag(t, condInside, tempOutside, params(cfg.InitialGuess), flowSpeed); err != nil {
		return Result{}, err
	}

	return minimize(cfg, func(p []float64) float64 {
		tempIn, condOut, err := ctdlag.CorrectThermalLag(t, condInside, tempOutside, params(p), flowSpeed)
		if err != nil {
			return badObjective
		}
		return negCorrelation(series.Gradient(t, tempIn), series.Gradient(t, condOut))
	})
}

func negCorrelation(a, b []float64) float64 {
	c := series.Correlation(a, b)
	if !series.IsValid(c) {
		return badObjective
	}
	return -c
}

// minimize runs Nelder-Mead over the sigmoid-mapped parameter box.
func minimize(cfg Config, objective func(p []float64) float64) (Result, error) {
	box := boxTransform{lo: cfg.LowerBound, hi: cfg.UpperBound}
	problem := optimize.Problem{
		Func: func(z []float64) float64 { return objective(box.fromUnbounded(z)) },
	}
	settings := &optimize.Settings{
		Converger: &optimize.FunctionConverge{
			Absolute:   cfg.Tolerance,
			Iterations: 20,
		},
		MajorIterations: cfg.MaxIterations,
	}
	if cfg.Observer != nil {
		settings.Recorder = &observerRecorder{box: box, observe: cfg.Observer}
	}

	z0 := box.toUnbounded(cfg.InitialGuess)
	res, err := optimize.Minimize(problem, z0, settings, &optimize.NelderMead{})
	if res == nil {
		// The method could not take a single step; report the seed as the
		// best-found point rather than failing the whole batch.
		if err != nil {
			return Result{
				Params:   append([]float64(nil), cfg.InitialGuess...),
				Residual: objective(cfg.InitialGuess),
			}, nil
		}
		return Result{}, fmt.Errorf("calibrate: optimizer returned no result")
	}
	out := Result{
		Params:     box.fromUnbounded(res.X),
		Residual:   res.F,
		Iterations: res.Stats.MajorIterations,
	}
	switch res.Status {
	case optimize.Success, optimize.FunctionConvergence, optimize.StepConvergence,
		optimize.FunctionThreshold, optimize.GradientThreshold, optimize.MethodConverge:
		out.Converged = err == nil
	}
	return out, nil
}

// boxTransform maps between the bounded parameter box and the optimizer's
// unconstrained coordinates through a per-component sigmoid.
type boxTransform struct {
	lo, hi []float64
}

func (b boxTransform) fromUnbounded(z []float64) []float64 {
	p := make([]float64, len(z))
	for i, zi := range z {
		p[i] = b.lo[i] + (b.hi[i]-b.lo[i])/(1+math.Exp(-zi))
	}
	return p
}

func (b boxTransform) toUnbounded(p []float64) []float64 {
	z := make([]float64, len(p))
	for i, pi := range p {
		// Keep the seed strictly inside the open box; the logit is
		// undefined on the faces.
		u := (pi - b.lo[i]) / (b.hi[i] - b.lo[i])
		u = math.Min(math.Max(u, 1e-6), 1-1e-6)
		z[i] = math.Log(u / (1 - u))
	}
	return z
}

// observerRecorder adapts an Observer to gonum's optimize.Recorder,
// forwarding only major iterations and translating the optimizer
// coordinates back to corrector units.
type observerRecorder struct {
	box     boxTransform
	observe Observer
}

func (r *observerRecorder) Init() error { return nil }

func (r *observerRecorder) Record(loc *optimize.Location, op optimize.Operation, stats *optimize.Stats) error {
	if op != optimize.MajorIteration {
		return nil
	}
	r.observe(stats.MajorIterations, r.box.fromUnbounded(loc.X), loc.F)
	return nil
}

// MedianParams is the per-deployment fitting policy: the component-wise
// median of the per-cast fitted vectors, taken over the casts whose fits
// converged (over all casts when none did). Nil when results is empty.
func MedianParams(results []Result) []float64 {
	pool := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Converged && len(r.Params) > 0 {
			pool = append(pool, r)
		}
	}
	if len(pool) == 0 {
		for _, r := range results {
			if len(r.Params) > 0 {
				pool = append(pool, r)
			}
		}
	}
	if len(pool) == 0 {
		return nil
	}
	arity := len(pool[0].Params)
	med := make([]float64, arity)
	for i := 0; i < arity; i++ {
		col := make([]float64, 0, len(pool))
		for _, r := range pool {
			if len(r.Params) == arity {
				col = append(col, r.Params[i])
			}
		}
		sort.Float64s(col)
		med[i] = stat.Quantile(0.5, stat.Empirical, col, nil)
	}
	return med
}

// Package monitor provides the diagnostic observer for lag-parameter fits.
// It records the optimizer's trajectory during a fit and renders plots
// after the run, replacing the interactive plotting of older processing
// chains with file output that can ship with a deployment report.
package monitor

import (
	"fmt"
	"image/color"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/oceanids/gliderproc/internal/series"
)

// FitSample is one recorded optimizer iteration.
type FitSample struct {
	Iteration int
	Params    []float64
	Objective float64
}

// FitRecorder accumulates FitSamples over one or more fits. Its Observe
// method matches calibrate.Observer, so it plugs straight into a fit
// config. Safe for use from parallel per-cast fits.
type FitRecorder struct {
	mu      sync.Mutex
	name    string
	samples []FitSample
}

// NewFitRecorder creates a recorder; name labels the rendered plots
// (typically the cast or deployment identifier).
func NewFitRecorder(name string) *FitRecorder {
	return &FitRecorder{name: name}
}

// Observe records one optimizer iteration.
func (r *FitRecorder) Observe(iteration int, params []float64, objective float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, FitSample{
		Iteration: iteration,
		Params:    append([]float64(nil), params...),
		Objective: objective,
	})
}

// Samples returns a copy of everything recorded so far.
func (r *FitRecorder) Samples() []FitSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]FitSample(nil), r.samples...)
}

// Reset discards the recorded samples so the recorder can serve a new fit.
func (r *FitRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = nil
}

// RenderConvergence writes a PNG of objective value against iteration.
func (r *FitRecorder) RenderConvergence(path string) error {
	samples := r.Samples()
	if len(samples) == 0 {
		return fmt.Errorf("monitor: no fit samples recorded for %q", r.name)
	}
	pts := make(plotter.XYs, len(samples))
	for i, s := range samples {
		pts[i].X = float64(s.Iteration)
		pts[i].Y = s.Objective
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Lag fit convergence — %s", r.name)
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "objective (−correlation)"
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("monitor: building convergence line: %w", err)
	}
	line.Color = color.RGBA{R: 0xd6, G: 0x3a, B: 0x3a, A: 0xff}
	p.Add(line, plotter.NewGrid())

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("monitor: saving convergence plot: %w", err)
	}
	return nil
}

// RenderProfile writes a PNG comparing a raw and a corrected channel
// against depth, the usual before/after view of a lag correction. Invalid
// samples are skipped.
func RenderProfile(path, title, channelLabel string, depth, raw, corrected []float64) error {
	rawPts := profilePoints(depth, raw)
	corPts := profilePoints(depth, corrected)
	if len(rawPts) == 0 && len(corPts) == 0 {
		return fmt.Errorf("monitor: no valid samples to plot for %q", title)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = channelLabel
	p.Y.Label.Text = "depth"
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}

	rawLine, err := plotter.NewLine(rawPts)
	if err != nil {
		return fmt.Errorf("monitor: building raw profile line: %w", err)
	}
	rawLine.Color = color.RGBA{R: 0x88, G: 0x88, B: 0x88, A: 0xff}
	corLine, err := plotter.NewLine(corPts)
	if err != nil {
		return fmt.Errorf("monitor: building corrected profile line: %w", err)
	}
	corLine.Color = color.RGBA{B: 0xc0, A: 0xff}
	p.Add(rawLine, corLine, plotter.NewGrid())
	p.Legend.Add("raw", rawLine)
	p.Legend.Add("corrected", corLine)

	if err := p.Save(5*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("monitor: saving profile plot: %w", err)
	}
	return nil
}

func profilePoints(depth, value []float64) plotter.XYs {
	var pts plotter.XYs
	for i := range depth {
		if i < len(value) && series.IsValid(depth[i]) && series.IsValid(value[i]) {
			pts = append(pts, plotter.XY{X: value[i], Y: depth[i]})
		}
	}
	return pts
}

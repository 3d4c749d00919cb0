// Command glider-calibrate runs the CTD sensor-response pipeline over one
// deployment: it smooths the pressure channel, segments the trajectory into
// casts, estimates through-cell flow speed, fits thermal-lag parameters per
// cast, applies the deployment-median fit, and writes the corrected series
// back out. Fitted parameters can be stored in a sqlite calibration
// database and fit diagnostics rendered as PNG plots.
//
// The input CSV needs a header and the columns time, depth, pitch,
// temperature, conductivity. Empty fields and "NaN" mark missing values.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/oceanids/gliderproc/internal/calibdb"
	"github.com/oceanids/gliderproc/internal/calibrate"
	"github.com/oceanids/gliderproc/internal/ctdlag"
	"github.com/oceanids/gliderproc/internal/flow"
	"github.com/oceanids/gliderproc/internal/monitor"
	"github.com/oceanids/gliderproc/internal/profiles"
	"github.com/oceanids/gliderproc/internal/series"
)

// Config holds the run configuration parsed from flags.
type Config struct {
	InputFile     string
	OutputFile    string
	DBPath        string
	Deployment    string
	Platform      string
	PlotsDir      string
	MinRange      float64
	TimeConstant  float64
	FlowDependent bool
	MinCast       int
}

type trajectory struct {
	time, depth, pitch, temp, cond []float64
}

func main() {
	cfg := parseFlags()
	if cfg.InputFile == "" || cfg.OutputFile == "" {
		log.Fatal("both -input and -output are required")
	}
	if cfg.PlotsDir != "" {
		if err := os.MkdirAll(cfg.PlotsDir, 0755); err != nil {
			log.Fatalf("creating plots directory: %v", err)
		}
	}

	traj, err := readTrajectory(cfg.InputFile)
	if err != nil {
		log.Fatalf("reading %s: %v", cfg.InputFile, err)
	}
	log.Printf("loaded %d samples from %s", len(traj.time), cfg.InputFile)

	// Pressure conditioning, then cast segmentation on the smoothed depth.
	smoothDepth, err := series.LowPass(traj.time, traj.depth, series.LowPassOptions{TimeConstant: cfg.TimeConstant})
	if err != nil {
		log.Fatalf("low-pass filtering depth: %v", err)
	}
	direction, index, err := profiles.Segment(smoothDepth, profiles.Options{MinRange: cfg.MinRange})
	if err != nil {
		log.Fatalf("segmenting casts: %v", err)
	}
	casts := profiles.Casts(index, smoothDepth)
	log.Printf("found %d casts (min depth range %g)", len(casts), cfg.MinRange)

	var flowSpeed []float64
	if cfg.FlowDependent {
		flowSpeed, err = flow.Speed(traj.time, smoothDepth, flow.PitchSeries(traj.pitch), flow.DefaultOptions())
		if err != nil {
			log.Fatalf("estimating flow speed: %v", err)
		}
	}

	results, median := fitCasts(cfg, traj, flowSpeed, casts)
	if median == nil {
		log.Fatal("no cast produced a usable thermal-lag fit")
	}
	log.Printf("deployment-median thermal-lag parameters: %v", median)

	tempInside, condOutside := applyFit(traj, flowSpeed, casts, median, cfg.FlowDependent)
	if err := writeTrajectory(cfg.OutputFile, traj, direction, index, flowSpeed, tempInside, condOutside); err != nil {
		log.Fatalf("writing %s: %v", cfg.OutputFile, err)
	}
	log.Printf("wrote corrected series to %s", cfg.OutputFile)

	if cfg.DBPath != "" {
		if err := storeFits(cfg, results, median); err != nil {
			log.Fatalf("storing fits: %v", err)
		}
	}
	if cfg.PlotsDir != "" {
		if err := monitor.RenderProfile(
			filepath.Join(cfg.PlotsDir, "temperature_profile.png"),
			fmt.Sprintf("Thermal-lag correction, %s", cfg.Deployment),
			"temperature", smoothDepth, traj.temp, tempInside,
		); err != nil {
			log.Printf("warning: profile plot: %v", err)
		}
	}
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.InputFile, "input", "", "input trajectory CSV (time,depth,pitch,temperature,conductivity)")
	flag.StringVar(&cfg.OutputFile, "output", "", "output CSV for corrected series")
	flag.StringVar(&cfg.DBPath, "db", "", "optional sqlite calibration database path")
	flag.StringVar(&cfg.Deployment, "deployment", "deployment", "deployment name for storage and plots")
	flag.StringVar(&cfg.Platform, "platform", "", "glider platform identifier")
	flag.StringVar(&cfg.PlotsDir, "plots", "", "optional directory for diagnostic plots")
	flag.Float64Var(&cfg.MinRange, "min-range", 10, "minimum depth range for a cast to be numbered")
	flag.Float64Var(&cfg.TimeConstant, "time-constant", series.DefaultTimeConstant, "pressure low-pass time constant")
	flag.BoolVar(&cfg.FlowDependent, "flow-dependent", false, "fit flow-dependent thermal-lag parameters")
	flag.IntVar(&cfg.MinCast, "min-cast-samples", 10, "skip casts with fewer samples than this")
	flag.Parse()
	return cfg
}

// castFit pairs a fit result with the cast it came from, since casts below
// the sample cutoff are skipped.
type castFit struct {
	Number int
	Result calibrate.Result
}

// fitCasts fits thermal-lag parameters cast by cast and reduces them to the
// deployment median.
func fitCasts(cfg Config, traj trajectory, flowSpeed []float64, casts []profiles.Cast) ([]castFit, []float64) {
	var results []castFit
	for _, c := range casts {
		n := c.End - c.Start + 1
		if n < cfg.MinCast {
			continue
		}
		var castFlow []float64
		if flowSpeed != nil {
			castFlow = flowSpeed[c.Start : c.End+1]
		}
		fitCfg := calibrate.Config{}
		var rec *monitor.FitRecorder
		if cfg.PlotsDir != "" {
			rec = monitor.NewFitRecorder(fmt.Sprintf("%s cast %d", cfg.Deployment, c.Number))
			fitCfg.Observer = rec.Observe
		}
		res, err := calibrate.FitThermalLag(
			traj.time[c.Start:c.End+1],
			traj.cond[c.Start:c.End+1],
			traj.temp[c.Start:c.End+1],
			castFlow, fitCfg,
		)
		if err != nil {
			log.Printf("cast %d: fit failed: %v", c.Number, err)
			continue
		}
		if !res.Converged {
			log.Printf("cast %d: fit did not converge after %d iterations (residual %.4f)", c.Number, res.Iterations, res.Residual)
		} else {
			log.Printf("cast %d: fitted %v (residual %.4f, %d iterations)", c.Number, res.Params, res.Residual, res.Iterations)
		}
		results = append(results, castFit{Number: c.Number, Result: res})
		if rec != nil {
			path := filepath.Join(cfg.PlotsDir, fmt.Sprintf("fit_cast_%03d.png", c.Number))
			if err := rec.RenderConvergence(path); err != nil {
				log.Printf("cast %d: convergence plot: %v", c.Number, err)
			}
		}
	}
	fitted := make([]calibrate.Result, len(results))
	for i, cf := range results {
		fitted[i] = cf.Result
	}
	return results, calibrate.MedianParams(fitted)
}

// applyFit runs the thermal-lag corrector cast by cast with the fitted
// parameters, assembling full-length corrected channels. Samples outside any
// confirmed cast stay invalid.
func applyFit(traj trajectory, flowSpeed []float64, casts []profiles.Cast, params []float64, flowDependent bool) (tempInside, condOutside []float64) {
	tempInside = series.AllInvalid(len(traj.time))
	condOutside = series.AllInvalid(len(traj.time))

	var p ctdlag.ThermalLag
	if flowDependent {
		p = ctdlag.FlowThermalLag(params[0], params[1], params[2], params[3])
	} else {
		p = ctdlag.ConstantThermalLag(params[0], params[1])
	}
	for _, c := range casts {
		var castFlow []float64
		if flowSpeed != nil {
			castFlow = flowSpeed[c.Start : c.End+1]
		}
		ti, co, err := ctdlag.CorrectThermalLag(
			traj.time[c.Start:c.End+1],
			traj.cond[c.Start:c.End+1],
			traj.temp[c.Start:c.End+1],
			p, castFlow,
		)
		if err != nil {
			log.Printf("cast %d: applying correction: %v", c.Number, err)
			continue
		}
		copy(tempInside[c.Start:c.End+1], ti)
		copy(condOutside[c.Start:c.End+1], co)
	}
	return tempInside, condOutside
}

func storeFits(cfg Config, results []castFit, median []float64) error {
	db, err := calibdb.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	dep, err := db.CreateDeployment(cfg.Deployment, cfg.Platform)
	if err != nil {
		return err
	}
	for _, cf := range results {
		rec := calibdb.FitRecord{
			DeploymentID:  dep.ID,
			CastNumber:    cf.Number,
			Corrector:     calibdb.CorrectorThermal,
			FlowDependent: cfg.FlowDependent,
			Params:        cf.Result.Params,
			Residual:      cf.Result.Residual,
			Converged:     cf.Result.Converged,
		}
		if err := db.SaveFit(rec); err != nil {
			return err
		}
	}
	if err := db.SaveFit(calibdb.FitRecord{
		DeploymentID:  dep.ID,
		CastNumber:    0,
		Corrector:     calibdb.CorrectorThermal,
		FlowDependent: cfg.FlowDependent,
		Params:        median,
		Converged:     true,
	}); err != nil {
		return err
	}
	log.Printf("stored %d cast fits under deployment %s", len(results), dep.ID)
	return nil
}

func readTrajectory(path string) (trajectory, error) {
	var traj trajectory
	f, err := os.Open(path)
	if err != nil {
		return traj, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return traj, err
	}
	if len(records) < 2 {
		return traj, fmt.Errorf("no data rows")
	}
	cols := map[string]int{}
	for i, name := range records[0] {
		cols[name] = i
	}
	for _, name := range []string{"time", "depth", "pitch", "temperature", "conductivity"} {
		if _, ok := cols[name]; !ok {
			return traj, fmt.Errorf("missing column %q", name)
		}
	}
	for _, row := range records[1:] {
		traj.time = append(traj.time, parseField(row, cols["time"]))
		traj.depth = append(traj.depth, parseField(row, cols["depth"]))
		traj.pitch = append(traj.pitch, parseField(row, cols["pitch"]))
		traj.temp = append(traj.temp, parseField(row, cols["temperature"]))
		traj.cond = append(traj.cond, parseField(row, cols["conductivity"]))
	}
	return traj, nil
}

func parseField(row []string, i int) float64 {
	if i >= len(row) || row[i] == "" {
		return series.Invalid()
	}
	v, err := strconv.ParseFloat(row[i], 64)
	if err != nil {
		return series.Invalid()
	}
	return v
}

func writeTrajectory(path string, traj trajectory, direction, index, flowSpeed, tempInside, condOutside []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"time", "depth", "pitch", "temperature", "conductivity",
		"direction", "profile_index", "flow_speed",
		"temperature_inside", "conductivity_outside",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for i := range traj.time {
		fs := series.Invalid()
		if flowSpeed != nil {
			fs = flowSpeed[i]
		}
		row := []string{
			formatField(traj.time[i]), formatField(traj.depth[i]), formatField(traj.pitch[i]),
			formatField(traj.temp[i]), formatField(traj.cond[i]),
			formatField(direction[i]), formatField(index[i]), formatField(fs),
			formatField(tempInside[i]), formatField(condOutside[i]),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatField(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

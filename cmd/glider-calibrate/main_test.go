package main

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oceanids/gliderproc/internal/series"
)

func TestReadTrajectory(t *testing.T) {
	csv := strings.Join([]string{
		"time,depth,pitch,temperature,conductivity",
		"1,0.5,0.4,18.2,4.1",
		"2,,0.4,18.1,4.1",
		"3,1.5,NaN,18.0,",
		"4,2.0,0.4,17.9,4.0",
	}, "\n")
	path := filepath.Join(t.TempDir(), "traj.csv")
	if err := os.WriteFile(path, []byte(csv), 0644); err != nil {
		t.Fatal(err)
	}

	traj, err := readTrajectory(path)
	if err != nil {
		t.Fatalf("readTrajectory error: %v", err)
	}
	if len(traj.time) != 4 {
		t.Fatalf("got %d samples, want 4", len(traj.time))
	}
	if traj.depth[0] != 0.5 || traj.temp[3] != 17.9 {
		t.Errorf("values misparsed: depth[0]=%g temp[3]=%g", traj.depth[0], traj.temp[3])
	}
	if series.IsValid(traj.depth[1]) {
		t.Error("empty field should parse as invalid")
	}
	if series.IsValid(traj.pitch[2]) {
		t.Error("NaN field should parse as invalid")
	}
	if series.IsValid(traj.cond[2]) {
		t.Error("empty conductivity should parse as invalid")
	}
}

func TestReadTrajectoryMissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("time,depth\n1,2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := readTrajectory(path); err == nil {
		t.Fatal("expected error for missing columns")
	}
}

func TestWriteTrajectoryRoundTrip(t *testing.T) {
	traj := trajectory{
		time:  []float64{1, 2},
		depth: []float64{0.5, 1.5},
		pitch: []float64{0.4, 0.4},
		temp:  []float64{18, 17.5},
		cond:  []float64{4.1, 4.05},
	}
	direction := []float64{1, 1}
	index := []float64{1, 1}
	tempIn := []float64{17.9, math.NaN()}
	condOut := []float64{4.11, 4.06}

	path := filepath.Join(t.TempDir(), "out.csv")
	if err := writeTrajectory(path, traj, direction, index, nil, tempIn, condOut); err != nil {
		t.Fatalf("writeTrajectory error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows", len(lines))
	}
	if !strings.HasPrefix(lines[0], "time,depth,pitch") {
		t.Errorf("unexpected header: %s", lines[0])
	}
	// Invalid values serialize as empty fields, matching the input format.
	if !strings.Contains(lines[2], ",,") {
		t.Errorf("invalid tempIn should be empty in row: %s", lines[2])
	}
}

func TestFormatFieldInvertsParseField(t *testing.T) {
	for _, v := range []float64{0, 1.25, -3.5e-4, math.NaN()} {
		row := []string{formatField(v)}
		got := parseField(row, 0)
		if math.IsNaN(v) != math.IsNaN(got) || (!math.IsNaN(v) && got != v) {
			t.Errorf("round trip of %g gave %g", v, got)
		}
	}
}

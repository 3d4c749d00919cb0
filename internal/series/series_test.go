package series

import (
	"errors"
	"math"
	"testing"
)

func TestUnique(t *testing.T) {
	t.Run("sorts and collapses benign duplicates", func(t *testing.T) {
		tu, vu, err := Unique([]float64{3, 1, 2, 2}, []float64{30, 10, 20, 20})
		if err != nil {
			t.Fatalf("Unique error: %v", err)
		}
		wantT := []float64{1, 2, 3}
		wantV := []float64{10, 20, 30}
		if len(tu) != 3 {
			t.Fatalf("got %d unique samples, want 3", len(tu))
		}
		for i := range wantT {
			if tu[i] != wantT[i] || vu[i] != wantV[i] {
				t.Errorf("sample %d = (%g, %g), want (%g, %g)", i, tu[i], vu[i], wantT[i], wantV[i])
			}
		}
	})

	t.Run("conflicting duplicates fail", func(t *testing.T) {
		_, _, err := Unique([]float64{1, 2, 2}, []float64{10, 20, 21})
		if !errors.Is(err, ErrInconsistent) {
			t.Fatalf("got %v, want ErrInconsistent", err)
		}
	})

	t.Run("length mismatch", func(t *testing.T) {
		if _, _, err := Unique([]float64{1, 2}, []float64{1}); err == nil {
			t.Fatal("expected error for mismatched lengths")
		}
	})
}

func TestValidMask(t *testing.T) {
	nan := math.NaN()
	mask, err := ValidMask(
		[]float64{-1, 0, 1, 2, nan, 4},
		[]float64{1, 1, 1, nan, 1, 1},
	)
	if err != nil {
		t.Fatalf("ValidMask error: %v", err)
	}
	want := []bool{false, false, true, false, false, true}
	for i := range want {
		if mask[i] != want[i] {
			t.Errorf("mask[%d] = %v, want %v", i, mask[i], want[i])
		}
	}
}

func TestScatterCompressRoundTrip(t *testing.T) {
	nan := math.NaN()
	v := []float64{1, nan, 3, nan, 5}
	mask := []bool{true, false, true, false, true}
	out := Scatter(Compress(v, mask), mask)
	for i := range v {
		switch {
		case mask[i] && out[i] != v[i]:
			t.Errorf("out[%d] = %g, want %g", i, out[i], v[i])
		case !mask[i] && IsValid(out[i]):
			t.Errorf("out[%d] = %g, want invalid", i, out[i])
		}
	}
}

func TestGradient(t *testing.T) {
	t.Run("linear signal has constant gradient", func(t *testing.T) {
		tt := []float64{0, 1, 3, 4, 7}
		v := make([]float64, len(tt))
		for i, ti := range tt {
			v[i] = 2*ti + 1
		}
		g := Gradient(tt, v)
		for i, gi := range g {
			if math.Abs(gi-2) > 1e-12 {
				t.Errorf("g[%d] = %g, want 2", i, gi)
			}
		}
	})

	t.Run("irregular spacing blends one-sided differences", func(t *testing.T) {
		// Quadratic v = t^2 on t = {0, 1, 3}: backward diff at t=1 is 1,
		// forward is 4; weights are the other interval's duration.
		g := Gradient([]float64{0, 1, 3}, []float64{0, 1, 9})
		want := (2.0*1 + 1.0*4) / 3.0
		if math.Abs(g[1]-want) > 1e-12 {
			t.Errorf("g[1] = %g, want %g", g[1], want)
		}
	})

	t.Run("invalid neighbours propagate", func(t *testing.T) {
		g := Gradient([]float64{0, 1, 2}, []float64{0, math.NaN(), 2})
		for i := range g {
			if IsValid(g[i]) {
				t.Errorf("g[%d] = %g, want invalid", i, g[i])
			}
		}
	})

	t.Run("short input all invalid", func(t *testing.T) {
		g := Gradient([]float64{1}, []float64{1})
		if len(g) != 1 || IsValid(g[0]) {
			t.Errorf("got %v, want single invalid", g)
		}
	})
}

func TestCorrelation(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name string
		x, y []float64
		want float64
	}{
		{"perfect", []float64{1, 2, 3, 4}, []float64{2, 4, 6, 8}, 1},
		{"perfect inverse", []float64{1, 2, 3, 4}, []float64{8, 6, 4, 2}, -1},
		{"pairwise complete ignores invalid", []float64{1, nan, 2, 3}, []float64{2, 5, 4, nan}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Correlation(tt.x, tt.y)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Correlation = %g, want %g", got, tt.want)
			}
		})
	}

	t.Run("too few pairs invalid", func(t *testing.T) {
		if c := Correlation([]float64{1, nan}, []float64{2, 3}); IsValid(c) {
			t.Errorf("got %g, want invalid", c)
		}
	})
}

func TestInterp(t *testing.T) {
	knots := []float64{0, 1, 2}
	vals := []float64{0, 10, 40}

	tests := []struct {
		name string
		q    float64
		want float64
	}{
		{"at knot", 1, 10},
		{"interior", 0.5, 5},
		{"interior second segment", 1.5, 25},
		{"extrapolates below with first slope", -1, -10},
		{"extrapolates above with last slope", 3, 70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Interp(knots, vals, []float64{tt.q})
			if err != nil {
				t.Fatalf("Interp error: %v", err)
			}
			if math.Abs(got[0]-tt.want) > 1e-12 {
				t.Errorf("Interp(%g) = %g, want %g", tt.q, got[0], tt.want)
			}
		})
	}

	t.Run("rejects non-increasing knots", func(t *testing.T) {
		if _, err := Interp([]float64{0, 0, 1}, []float64{1, 2, 3}, []float64{0.5}); err == nil {
			t.Fatal("expected error for repeated knots")
		}
	})

	t.Run("invalid query stays invalid", func(t *testing.T) {
		got, err := Interp(knots, vals, []float64{math.NaN()})
		if err != nil {
			t.Fatalf("Interp error: %v", err)
		}
		if IsValid(got[0]) {
			t.Errorf("got %g, want invalid", got[0])
		}
	})
}

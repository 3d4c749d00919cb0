package profiles

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSegmentYoyoTrajectory(t *testing.T) {
	depth := []float64{3, 2, 1, 2, 3, 3, 4, 5, 5, 5, 4, 3, 3, 4, 2, 1, 1, 0, 3, 3}

	t.Run("all casts accepted", func(t *testing.T) {
		direction, index, err := Segment(depth, DefaultOptions())
		if err != nil {
			t.Fatalf("Segment error: %v", err)
		}
		wantDir := []float64{-1, -1, 1, 1, 0, 1, 1, 0, 0, -1, -1, 0, 1, -1, -1, 0, -1, 1, 0, 0}
		wantIdx := []float64{1, 1, 1, 2, 2, 2, 2, 2, 2, 2, 3, 3, 3, 4, 5, 5, 5, 5, 6, 6}
		if diff := cmp.Diff(wantDir, direction); diff != "" {
			t.Errorf("direction mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(wantIdx, index); diff != "" {
			t.Errorf("index mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("sub-threshold bump merged", func(t *testing.T) {
		_, index, err := Segment(depth, Options{MinRange: 2})
		if err != nil {
			t.Fatalf("Segment error: %v", err)
		}
		// The 3→4→2 bump at samples 12..14 no longer earns its own cast.
		wantIdx := []float64{1, 1, 1, 2, 2, 2, 2, 2, 2, 2, 3, 3, 3, 4, 4, 4, 4, 4, 5, 5}
		if diff := cmp.Diff(wantIdx, index); diff != "" {
			t.Errorf("index mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestSegmentMonotonic(t *testing.T) {
	tests := []struct {
		name    string
		depth   []float64
		wantDir float64
	}{
		{"descending", []float64{1, 2, 3, 4, 5}, 1},
		{"ascending", []float64{5, 4, 3, 2, 1}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			direction, index, err := Segment(tt.depth, DefaultOptions())
			if err != nil {
				t.Fatalf("Segment error: %v", err)
			}
			for i := range tt.depth {
				if index[i] != 1 {
					t.Errorf("index[%d] = %g, want single cast 1", i, index[i])
				}
				if direction[i] != tt.wantDir {
					t.Errorf("direction[%d] = %g, want %g", i, direction[i], tt.wantDir)
				}
			}
		})
	}
}

func TestSegmentSparse(t *testing.T) {
	t.Run("fewer than two valid samples", func(t *testing.T) {
		nan := math.NaN()
		direction, index, err := Segment([]float64{nan, 3, nan}, DefaultOptions())
		if err != nil {
			t.Fatalf("Segment error: %v", err)
		}
		for i := range index {
			if index[i] != 1 || direction[i] != 0 {
				t.Errorf("sample %d = (dir %g, idx %g), want (0, 1)", i, direction[i], index[i])
			}
		}
	})

	t.Run("invalid samples around a cast are transitional", func(t *testing.T) {
		nan := math.NaN()
		direction, index, err := Segment([]float64{nan, 1, 2, nan, 3}, DefaultOptions())
		if err != nil {
			t.Fatalf("Segment error: %v", err)
		}
		wantIdx := []float64{0.5, 1, 1, 1, 1}
		wantDir := []float64{0, 1, 1, 0, 1}
		if diff := cmp.Diff(wantIdx, index); diff != "" {
			t.Errorf("index mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(wantDir, direction); diff != "" {
			t.Errorf("direction mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestSegmentRejectsBadOptions(t *testing.T) {
	if _, _, err := Segment([]float64{1, 2}, Options{MinRange: -1}); err == nil {
		t.Fatal("expected error for negative minimum range")
	}
}

func TestCasts(t *testing.T) {
	depth := []float64{3, 2, 1, 2, 3, 4, 5}
	_, index, err := Segment(depth, DefaultOptions())
	if err != nil {
		t.Fatalf("Segment error: %v", err)
	}
	casts := Casts(index, depth)
	if len(casts) != 2 {
		t.Fatalf("got %d casts, want 2", len(casts))
	}
	first, second := casts[0], casts[1]
	if first.Number != 1 || first.Start != 0 || first.End != 2 || first.Direction != -1 || first.Range != 2 {
		t.Errorf("unexpected first cast: %+v", first)
	}
	if second.Number != 2 || second.Start != 3 || second.End != 6 || second.Direction != 1 || second.Range != 3 {
		t.Errorf("unexpected second cast: %+v", second)
	}
}

func TestTransects(t *testing.T) {
	nan := math.NaN()
	lat := []float64{39.5, 39.5, nan, 39.5, 40.0, 40.0, 40.0}
	lon := []float64{2.1, 2.1, 2.1, 2.1, 2.1, nan, 2.6}
	got, err := Transects(lat, lon)
	if err != nil {
		t.Fatalf("Transects error: %v", err)
	}
	want := []int{1, 1, 1, 1, 2, 2, 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("transect index mismatch (-want +got):\n%s", diff)
	}

	if _, err := Transects([]float64{1}, []float64{1, 2}); err == nil {
		t.Fatal("expected error for mismatched lengths")
	}
}

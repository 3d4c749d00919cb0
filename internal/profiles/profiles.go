// Package profiles partitions a glider trajectory into monotonic depth
// casts and waypoint-to-waypoint transect legs.
//
// Casts are detected from the depth channel alone: the sign of consecutive
// depth differences over the valid samples gives a per-sample direction, and
// a sign flip between consecutive non-flat differences marks a depth peak.
// Each span between confirmed peaks is one cast, numbered from 1. Samples
// that fall between confirmed casts (direction reversals that do not clear
// the minimum depth range, or records outside the valid span) carry a
// half-offset index: index k.5 means "after cast k, before cast k+1".
package profiles

import (
	"fmt"
	"math"

	"github.com/oceanids/gliderproc/internal/series"
)

// Options configures cast detection.
type Options struct {
	// MinRange is the minimum depth span, in depth units, a candidate cast
	// must cover to be numbered. Candidates below it are merged into the
	// surrounding transitional region. Zero accepts every candidate.
	MinRange float64
}

// DefaultOptions accepts all casts regardless of depth span.
func DefaultOptions() Options { return Options{} }

func (o Options) validate() error {
	if o.MinRange < 0 || math.IsNaN(o.MinRange) {
		return fmt.Errorf("profiles: minimum depth range must be non-negative, got %g", o.MinRange)
	}
	return nil
}

// Segment computes the per-sample cast direction and profile index for a
// depth series given in sample order. Direction is +1 while depth increases
// (descending), -1 while it decreases (ascending) and 0 on flat spans and at
// invalid samples. The profile index is integer inside cast number k and
// k+0.5 on transitional samples.
//
// Fewer than two valid depth samples yield a single cast covering the whole
// range with direction 0 everywhere.
func Segment(depth []float64, opts Options) (direction, index []float64, err error) {
	if err := opts.validate(); err != nil {
		return nil, nil, err
	}
	n := len(depth)
	direction = make([]float64, n)
	index = make([]float64, n)

	valid := make([]int, 0, n)
	for i, d := range depth {
		if series.IsValid(d) {
			valid = append(valid, i)
		}
	}
	if len(valid) < 2 {
		for i := range index {
			index[i] = 1
		}
		return direction, index, nil
	}

	// Forward-difference signs over the valid subset. Each valid sample
	// takes the sign of the difference to the next valid sample; the last
	// one inherits its predecessor's.
	m := len(valid)
	sdy := make([]float64, m-1)
	for j := 0; j < m-1; j++ {
		sdy[j] = sign(depth[valid[j+1]] - depth[valid[j]])
		direction[valid[j]] = sdy[j]
	}
	direction[valid[m-1]] = sdy[m-2]

	// Depth peaks: sign flips across consecutive non-flat differences. The
	// flat run between two such differences belongs to the earlier cast, so
	// the peak sits at the first sample of the later difference.
	peaks := make([]int, 0, m/2)
	prev := -1 // index into sdy of the last non-flat difference
	for j, s := range sdy {
		if s == 0 {
			continue
		}
		if prev >= 0 && s*sdy[prev] < 0 {
			peaks = append(peaks, valid[j])
		}
		prev = j
	}

	bounds := make([]int, 0, len(peaks)+2)
	bounds = append(bounds, valid[0])
	bounds = append(bounds, peaks...)
	bounds = append(bounds, valid[m-1])

	cast := 0
	pos := 0
	for k := 0; k+1 < len(bounds); k++ {
		b0, b1 := bounds[k], bounds[k+1]
		if math.Abs(depth[b1]-depth[b0]) < opts.MinRange {
			continue
		}
		for ; pos < b0; pos++ {
			index[pos] = float64(cast) + 0.5
		}
		cast++
		for ; pos <= b1; pos++ {
			index[pos] = float64(cast)
		}
	}
	for ; pos < n; pos++ {
		index[pos] = float64(cast) + 0.5
	}
	return direction, index, nil
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// Cast summarizes one confirmed profile for per-cast processing.
type Cast struct {
	Number    int // profile number, 1-based
	Start     int // first sample index, inclusive
	End       int // last sample index, inclusive
	Direction float64
	Range     float64 // absolute depth span over the cast's valid samples
}

// Casts extracts per-cast metadata from a profile index array and the depth
// series it was derived from. Transitional (half-index) samples are skipped.
func Casts(index, depth []float64) []Cast {
	var out []Cast
	for i := 0; i < len(index); {
		v := index[i]
		if v != math.Trunc(v) || v == 0 {
			i++
			continue
		}
		j := i
		for j+1 < len(index) && index[j+1] == v {
			j++
		}
		c := Cast{Number: int(v), Start: i, End: j}
		first, last := math.NaN(), math.NaN()
		for k := i; k <= j; k++ {
			if series.IsValid(depth[k]) {
				if !series.IsValid(first) {
					first = depth[k]
				}
				last = depth[k]
			}
		}
		if series.IsValid(first) {
			c.Direction = sign(last - first)
			c.Range = math.Abs(last - first)
		}
		out = append(out, c)
		i = j + 1
	}
	return out
}

// Transects assigns a transect leg number to every sample from the target
// waypoint coordinates. The index starts at 1 and increments whenever either
// coordinate changes relative to the last valid waypoint; invalid entries
// keep the current leg. Depth plays no part here.
func Transects(lat, lon []float64) ([]int, error) {
	if len(lat) != len(lon) {
		return nil, fmt.Errorf("profiles: waypoint series lengths differ, %d vs %d", len(lat), len(lon))
	}
	out := make([]int, len(lat))
	leg := 1
	lastLat, lastLon := math.NaN(), math.NaN()
	for i := range lat {
		changed := false
		if series.IsValid(lat[i]) {
			if series.IsValid(lastLat) && lat[i] != lastLat {
				changed = true
			}
			lastLat = lat[i]
		}
		if series.IsValid(lon[i]) {
			if series.IsValid(lastLon) && lon[i] != lastLon {
				changed = true
			}
			lastLon = lon[i]
		}
		if changed {
			leg++
		}
		out[i] = leg
	}
	return out, nil
}

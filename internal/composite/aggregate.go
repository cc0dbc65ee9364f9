package composite

import (
	"fmt"
	"sort"

	"github.com/aibps/aibps/internal/timeseries"
)

// EmptyCompositeError is fatal: after all fallbacks, zero pillars or zero
// grid points remain. Aggregation fails explicitly rather than emitting an
// all-missing series.
type EmptyCompositeError struct {
	Reason string
}

func (e *EmptyCompositeError) Error() string {
	return fmt.Sprintf("empty composite: %s", e.Reason)
}

// SmoothWindow is the trailing span of the composite rolling average.
const SmoothWindow = 3

// Aggregate combines normalized pillar series into one composite on grid.
// Pillars with no defined values are excluded before weights are
// renormalized. At each timestamp the composite is the weighted sum over
// the pillars defined there; weights are not re-renormalized per
// timestamp, so a pillar missing at t simply contributes nothing. The
// composite is defined at t iff at least one pillar is.
//
// The renormalized weight vector actually applied is returned alongside
// the composite.
func Aggregate(grid timeseries.Grid, pillars map[string]*timeseries.Series, weights WeightVector) (*timeseries.Series, WeightVector, error) {
	if len(grid) == 0 {
		return nil, nil, &EmptyCompositeError{Reason: "zero grid points"}
	}

	present := make([]string, 0, len(pillars))
	aligned := make(map[string]*timeseries.Series, len(pillars))
	for name, s := range pillars {
		if s == nil || s.CountValid() == 0 {
			continue
		}
		present = append(present, name)
		aligned[name] = s.Reindex(grid)
	}
	sort.Strings(present)
	if len(present) == 0 {
		return nil, nil, &EmptyCompositeError{Reason: "no pillars present"}
	}

	applied, err := Renormalize(weights, present)
	if err != nil {
		return nil, nil, err
	}

	values := make([]float64, len(grid))
	anyDefined := false
	for i := range grid {
		var sum float64
		n := 0
		for _, name := range present {
			_, v := aligned[name].At(i)
			if timeseries.IsMissing(v) {
				continue
			}
			sum += applied[name] * v
			n++
		}
		if n == 0 {
			values[i] = timeseries.Missing()
			continue
		}
		values[i] = sum
		anyDefined = true
	}
	if !anyDefined {
		return nil, nil, &EmptyCompositeError{Reason: "no grid point has a defined pillar"}
	}

	out, err := timeseries.New(grid, values)
	if err != nil {
		return nil, nil, err
	}
	return out, applied, nil
}

// Smooth applies the trailing 3-period rolling mean with a min-period
// floor of 1. Pure and stateless: output[0] = input[0], output[1] is the
// mean of the first two, and so on.
func Smooth(s *timeseries.Series) *timeseries.Series {
	return s.RollingMean(SmoothWindow, 1)
}

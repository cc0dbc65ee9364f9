// Package combine merges the raw sources feeding one pillar into a single
// series on the canonical grid, then applies the pillar's gap-fill policy.
package combine

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/aibps/aibps/internal/timeseries"
)

// Mode selects how multiple sources collapse into one pillar series.
type Mode string

const (
	// ModeMeanOfSources takes the NaN-skipping cross-source mean at each
	// grid point.
	ModeMeanOfSources Mode = "mean_of_sources"
	// ModeRebaseAverage rebases each leveled source to 100 at its first
	// valid observation before averaging.
	ModeRebaseAverage Mode = "rebase_average"
)

// FillMode selects the post-combination gap-fill behaviour.
type FillMode string

const (
	FillNone        FillMode = "none"
	FillForward     FillMode = "ffill"
	FillInterpolate FillMode = "interpolate"
)

// ClipRange bounds combined values, suppressing boundary artifacts from
// percentile ties.
type ClipRange struct {
	Low  float64
	High float64
}

// FillPolicy bounds how far gaps are filled after combination. Filling is
// never unbounded for FillForward unless Limit is zero.
type FillPolicy struct {
	Mode FillMode
	// Limit caps consecutive forward-filled months; 0 means unlimited.
	Limit int
	Clip  *ClipRange
}

// Source is one named raw input contributing to a pillar.
type Source struct {
	Name   string
	Series *timeseries.Series
}

// Combine reindexes every source onto grid, merges them under mode and
// applies fill. Sources that cannot be rebased are dropped with a warning;
// a grid point with no contributing value stays missing.
func Combine(grid timeseries.Grid, sources []Source, mode Mode, fill FillPolicy) (*timeseries.Series, error) {
	if len(grid) == 0 {
		return nil, timeseries.ErrNoSourceData
	}

	aligned := make([]*timeseries.Series, 0, len(sources))
	for _, src := range sources {
		if src.Series == nil || src.Series.Len() == 0 {
			continue
		}
		s := src.Series.Reindex(grid)
		if mode == ModeRebaseAverage {
			rebased, ok := rebase(s)
			if !ok {
				log.Warn().Str("source", src.Name).
					Msg("Rebase failed: first valid observation is zero or non-finite, dropping source")
				continue
			}
			s = rebased
		}
		aligned = append(aligned, s)
	}

	merged := crossMean(grid, aligned)

	switch fill.Mode {
	case FillForward:
		merged = merged.ForwardFill(fill.Limit)
	case FillInterpolate:
		merged = merged.Interpolate()
	case FillNone, "":
	default:
		return nil, fmt.Errorf("unknown fill mode %q", fill.Mode)
	}

	if fill.Clip != nil {
		merged = merged.Clip(fill.Clip.Low, fill.Clip.High)
	}
	return merged, nil
}

// rebase scales a leveled series so its first valid observation equals
// 100. It fails when that observation is zero or non-finite.
func rebase(s *timeseries.Series) (*timeseries.Series, bool) {
	first := s.FirstValid()
	if first < 0 {
		return nil, false
	}
	_, base := s.At(first)
	if base == 0 || timeseries.IsMissing(base) {
		return nil, false
	}

	values := s.Values()
	for i, v := range values {
		if timeseries.IsMissing(v) {
			continue
		}
		values[i] = v / base * 100.0
	}
	out, err := timeseries.New(s.Times(), values)
	if err != nil {
		return nil, false
	}
	return out, true
}

// crossMean takes the NaN-skipping mean across series at each grid point.
func crossMean(grid timeseries.Grid, series []*timeseries.Series) *timeseries.Series {
	values := make([]float64, len(grid))
	for i := range grid {
		var sum float64
		n := 0
		for _, s := range series {
			_, v := s.At(i)
			if timeseries.IsMissing(v) {
				continue
			}
			sum += v
			n++
		}
		if n == 0 {
			values[i] = timeseries.Missing()
			continue
		}
		values[i] = sum / float64(n)
	}
	out, _ := timeseries.New(grid, values)
	return out
}

// Package normalize maps raw pillar series onto a comparable 0-100 heat
// scale. Two interchangeable methods are provided: rolling z-score through
// a sigmoid, and rolling/expanding percentile rank.
package normalize

import (
	"fmt"

	"github.com/aibps/aibps/internal/timeseries"
)

// Method selects a normalization variant.
type Method string

const (
	MethodZSigmoid       Method = "z_sigmoid"
	MethodPercentileRank Method = "percentile_rank"
)

// Params carries the per-pillar tuning for a normalizer. Zero fields take
// the method's defaults.
type Params struct {
	// Window is the trailing window length in months.
	Window int
	// MinPeriods is the minimum observation floor before a point is
	// defined. Zero picks the method default.
	MinPeriods int
	// ZClip bounds the z-score for MethodZSigmoid. Zero means 4.0.
	ZClip float64
}

const (
	defaultWindow = 120
	defaultZClip  = 4.0

	// expandingCutoff is the series length below which percentile-rank
	// normalization uses an expanding window instead of a rolling one.
	expandingCutoff = 24
)

// Normalizer converts a raw series into a bounded heat score series.
// Missing input points are dropped before computing window statistics and
// reinserted as missing at the same timestamps in the output.
type Normalizer interface {
	Normalize(s *timeseries.Series) *timeseries.Series
	Method() Method
}

// ForMethod builds the normalizer for a configured method.
func ForMethod(m Method, p Params) (Normalizer, error) {
	switch m {
	case MethodZSigmoid:
		return NewZSigmoid(p), nil
	case MethodPercentileRank:
		return NewPercentileRank(p), nil
	default:
		return nil, fmt.Errorf("unknown normalization method %q", m)
	}
}

// compact splits a series into its observed values plus the index of each
// observation within the original series.
func compact(s *timeseries.Series) (obs []float64, idx []int) {
	for i := 0; i < s.Len(); i++ {
		_, v := s.At(i)
		if timeseries.IsMissing(v) {
			continue
		}
		obs = append(obs, v)
		idx = append(idx, i)
	}
	return obs, idx
}

// scatter rebuilds a full-length series from per-observation outputs,
// leaving missing slots missing.
func scatter(s *timeseries.Series, idx []int, out []float64) *timeseries.Series {
	values := make([]float64, s.Len())
	for i := range values {
		values[i] = timeseries.Missing()
	}
	for k, i := range idx {
		values[i] = out[k]
	}
	res, _ := timeseries.New(s.Times(), values)
	return res
}

package normalize

import (
	"github.com/aibps/aibps/internal/timeseries"
)

// PercentileRank normalizes each observation to its rank percentile among
// trailing history, scaled to 0-100. Short histories (< 24 observations)
// use an expanding window: each point is ranked among all points up to and
// including itself. Longer histories use a trailing rolling window.
// Ties use rank-average semantics.
type PercentileRank struct {
	window     int
	minPeriods int
}

// NewPercentileRank builds a percentile-rank normalizer. The rolling
// min-periods floor defaults to max(24, window/4).
func NewPercentileRank(p Params) *PercentileRank {
	window := p.Window
	if window <= 0 {
		window = defaultWindow
	}
	minPeriods := p.MinPeriods
	if minPeriods <= 0 {
		minPeriods = window / 4
		if minPeriods < expandingCutoff {
			minPeriods = expandingCutoff
		}
	}
	return &PercentileRank{window: window, minPeriods: minPeriods}
}

func (p *PercentileRank) Method() Method { return MethodPercentileRank }

func (p *PercentileRank) Normalize(s *timeseries.Series) *timeseries.Series {
	obs, idx := compact(s)
	out := make([]float64, len(obs))

	if len(obs) < expandingCutoff {
		for i := range obs {
			out[i] = rankPercentile(obs[:i+1], obs[i]) * 100.0
		}
		return scatter(s, idx, out)
	}

	for i := range obs {
		lo := i - p.window + 1
		if lo < 0 {
			lo = 0
		}
		if i-lo+1 < p.minPeriods {
			out[i] = timeseries.Missing()
			continue
		}
		out[i] = rankPercentile(obs[lo:i+1], obs[i]) * 100.0
	}
	return scatter(s, idx, out)
}

// rankPercentile returns x's average-rank percentile within window, in
// (0, 1]. Matches pandas rank(pct=True) for the last element.
func rankPercentile(window []float64, x float64) float64 {
	below, equal := 0, 0
	for _, v := range window {
		switch {
		case v < x:
			below++
		case v == x:
			equal++
		}
	}
	avgRank := float64(below) + (float64(equal)+1.0)/2.0
	return avgRank / float64(len(window))
}

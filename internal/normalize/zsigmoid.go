package normalize

import (
	"math"

	"github.com/aibps/aibps/internal/timeseries"
)

// ZSigmoid normalizes via a trailing z-score squashed through a sigmoid:
// z = (x - mean(window)) / std(window), clipped to ±zClip, output
// 100 * sigmoid(z). A neutral observation (z = 0) scores 50.
type ZSigmoid struct {
	window     int
	minPeriods int
	zClip      float64
}

// NewZSigmoid builds a z-sigmoid normalizer. The min-periods floor
// defaults to max(12, window/4) capped at the window, so early points are
// defined from partial-window statistics rather than left undefined.
func NewZSigmoid(p Params) *ZSigmoid {
	window := p.Window
	if window <= 0 {
		window = defaultWindow
	}
	minPeriods := p.MinPeriods
	if minPeriods <= 0 {
		minPeriods = window / 4
		if minPeriods < 12 {
			minPeriods = 12
		}
	}
	if minPeriods > window {
		minPeriods = window
	}
	zClip := p.ZClip
	if zClip <= 0 {
		zClip = defaultZClip
	}
	return &ZSigmoid{window: window, minPeriods: minPeriods, zClip: zClip}
}

func (z *ZSigmoid) Method() Method { return MethodZSigmoid }

func (z *ZSigmoid) Normalize(s *timeseries.Series) *timeseries.Series {
	obs, idx := compact(s)
	out := make([]float64, len(obs))

	for i := range obs {
		lo := i - z.window + 1
		if lo < 0 {
			lo = 0
		}
		n := i - lo + 1
		if n < z.minPeriods {
			out[i] = timeseries.Missing()
			continue
		}
		mean, std := meanStd(obs[lo : i+1])
		score := 0.0
		if std > 0 && !math.IsNaN(std) {
			score = (obs[i] - mean) / std
		}
		if score > z.zClip {
			score = z.zClip
		} else if score < -z.zClip {
			score = -z.zClip
		}
		out[i] = 100.0 / (1.0 + math.Exp(-score))
	}
	return scatter(s, idx, out)
}

// meanStd returns the mean and sample standard deviation of xs. Std is
// NaN for fewer than two observations.
func meanStd(xs []float64) (mean, std float64) {
	n := float64(len(xs))
	if n == 0 {
		return math.NaN(), math.NaN()
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean = sum / n
	if n < 2 {
		return mean, math.NaN()
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / (n - 1))
}

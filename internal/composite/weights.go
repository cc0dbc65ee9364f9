// Package composite folds normalized pillar scores into the single
// pressure composite under a renormalized weight vector, and smooths it.
package composite

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"
)

// WeightSumTolerance is the acceptable deviation of a renormalized weight
// vector from 1.0.
const WeightSumTolerance = 1e-9

// WeightVector maps pillar name to a non-negative weight.
type WeightVector map[string]float64

// Validate rejects negative weights. A zero sum is not an error here; it
// triggers the uniform fallback during renormalization.
func (w WeightVector) Validate() error {
	for pillar, weight := range w {
		if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
			return fmt.Errorf("invalid weight for pillar %s: %v", pillar, weight)
		}
	}
	return nil
}

// Sum returns the total raw weight.
func (w WeightVector) Sum() float64 {
	var sum float64
	for _, weight := range w {
		sum += weight
	}
	return sum
}

// Renormalize rescales the weights to sum to 1 over exactly the present
// pillars. Absent pillars get neither weight nor value: their share is
// deliberately redistributed. A zero raw sum over present pillars falls
// back to uniform 1/N weights, reported but not fatal.
func Renormalize(w WeightVector, present []string) (WeightVector, error) {
	if len(present) == 0 {
		return nil, &EmptyCompositeError{Reason: "no pillars present"}
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	var sum float64
	for _, pillar := range present {
		sum += w[pillar]
	}

	out := make(WeightVector, len(present))
	if sum <= 0 {
		log.Warn().Int("pillars", len(present)).
			Msg("Weight sum over present pillars is zero, substituting uniform weights")
		uniform := 1.0 / float64(len(present))
		for _, pillar := range present {
			out[pillar] = uniform
		}
		return out, nil
	}

	for _, pillar := range present {
		out[pillar] = w[pillar] / sum
	}
	return out, nil
}

// Pillars returns the weighted pillar names in sorted order.
func (w WeightVector) Pillars() []string {
	names := make([]string, 0, len(w))
	for pillar := range w {
		names = append(names, pillar)
	}
	sort.Strings(names)
	return names
}

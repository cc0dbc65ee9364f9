// Package timeseries provides the monthly series primitives the pressure
// engine is built on: a NaN-aware value series pinned to month-end
// timestamps, plus the canonical grid used to align heterogeneous sources.
package timeseries

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Missing marks an absent observation. Missing is never treated as zero.
func Missing() float64 { return math.NaN() }

// IsMissing reports whether v is an absent or unusable observation.
func IsMissing(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }

// MonthEnd snaps t to the last calendar day of its month, midnight UTC.
func MonthEnd(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// Series is an ordered month-end time series. Values use NaN for missing
// observations. Timestamps are strictly increasing after construction.
type Series struct {
	times  []time.Time
	values []float64
}

// New builds a Series from parallel slices. Timestamps are snapped to
// month end and sorted; duplicate months keep the last value seen.
func New(times []time.Time, values []float64) (*Series, error) {
	if len(times) != len(values) {
		return nil, fmt.Errorf("times and values must have same length: %d vs %d", len(times), len(values))
	}

	type obs struct {
		t time.Time
		v float64
	}
	byMonth := make(map[time.Time]obs, len(times))
	for i := range times {
		me := MonthEnd(times[i])
		byMonth[me] = obs{t: me, v: values[i]}
	}

	out := &Series{
		times:  make([]time.Time, 0, len(byMonth)),
		values: make([]float64, 0, len(byMonth)),
	}
	for t := range byMonth {
		out.times = append(out.times, t)
	}
	sort.Slice(out.times, func(i, j int) bool { return out.times[i].Before(out.times[j]) })
	for _, t := range out.times {
		out.values = append(out.values, byMonth[t].v)
	}
	return out, nil
}

// Empty returns a series with no observations.
func Empty() *Series { return &Series{} }

func (s *Series) Len() int { return len(s.times) }

// At returns the i-th timestamp and value.
func (s *Series) At(i int) (time.Time, float64) { return s.times[i], s.values[i] }

// Times returns a copy of the timestamps.
func (s *Series) Times() []time.Time {
	return append([]time.Time(nil), s.times...)
}

// Values returns a copy of the values.
func (s *Series) Values() []float64 {
	return append([]float64(nil), s.values...)
}

// Value returns the value at month-end timestamp t.
func (s *Series) Value(t time.Time) (float64, bool) {
	me := MonthEnd(t)
	i := sort.Search(len(s.times), func(i int) bool { return !s.times[i].Before(me) })
	if i < len(s.times) && s.times[i].Equal(me) {
		return s.values[i], true
	}
	return Missing(), false
}

// CountValid returns the number of non-missing observations.
func (s *Series) CountValid() int {
	n := 0
	for _, v := range s.values {
		if !IsMissing(v) {
			n++
		}
	}
	return n
}

// FirstValid returns the index of the first non-missing observation, or -1.
func (s *Series) FirstValid() int {
	for i, v := range s.values {
		if !IsMissing(v) {
			return i
		}
	}
	return -1
}

// ValidBounds returns the first and last timestamps carrying a value.
func (s *Series) ValidBounds() (start, end time.Time, ok bool) {
	first := s.FirstValid()
	if first < 0 {
		return time.Time{}, time.Time{}, false
	}
	last := first
	for i := len(s.values) - 1; i >= first; i-- {
		if !IsMissing(s.values[i]) {
			last = i
			break
		}
	}
	return s.times[first], s.times[last], true
}

// Reindex maps the series onto grid. Months absent from the source are
// missing in the result.
func (s *Series) Reindex(grid Grid) *Series {
	out := &Series{
		times:  append([]time.Time(nil), grid...),
		values: make([]float64, len(grid)),
	}
	for i, t := range grid {
		v, ok := s.Value(t)
		if !ok {
			v = Missing()
		}
		out.values[i] = v
	}
	return out
}

// ForwardFill propagates the last seen value into subsequent missing
// slots. limit bounds the number of consecutive months filled from one
// observation; limit <= 0 means unlimited. Leading missing values stay
// missing.
func (s *Series) ForwardFill(limit int) *Series {
	out := s.clone()
	last := Missing()
	run := 0
	for i, v := range out.values {
		if !IsMissing(v) {
			last = v
			run = 0
			continue
		}
		if IsMissing(last) {
			continue
		}
		run++
		if limit > 0 && run > limit {
			continue
		}
		out.values[i] = last
	}
	return out
}

// Interpolate fills interior gaps linearly between neighbouring
// observations. It never extrapolates beyond the first or last value.
func (s *Series) Interpolate() *Series {
	out := s.clone()
	prev := -1
	for i, v := range out.values {
		if IsMissing(v) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			step := (v - out.values[prev]) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				out.values[j] = out.values[prev] + step*float64(j-prev)
			}
		}
		prev = i
	}
	return out
}

// Clip bounds every observation to [lo, hi].
func (s *Series) Clip(lo, hi float64) *Series {
	out := s.clone()
	for i, v := range out.values {
		if IsMissing(v) {
			continue
		}
		if v < lo {
			out.values[i] = lo
		} else if v > hi {
			out.values[i] = hi
		}
	}
	return out
}

// RollingMean computes a trailing mean over up to window observations.
// Missing values inside the window are skipped; a point is defined when at
// least minPeriods non-missing values are present.
func (s *Series) RollingMean(window, minPeriods int) *Series {
	out := s.clone()
	if minPeriods < 1 {
		minPeriods = 1
	}
	for i := range s.values {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		var sum float64
		n := 0
		for j := lo; j <= i; j++ {
			if IsMissing(s.values[j]) {
				continue
			}
			sum += s.values[j]
			n++
		}
		if n < minPeriods {
			out.values[i] = Missing()
			continue
		}
		out.values[i] = sum / float64(n)
	}
	return out
}

func (s *Series) clone() *Series {
	return &Series{
		times:  append([]time.Time(nil), s.times...),
		values: append([]float64(nil), s.values...),
	}
}

package timeseries

import (
	"errors"
	"time"
)

// ErrNoSourceData is returned when a grid is requested over zero usable
// series. An empty grid is never produced silently.
var ErrNoSourceData = errors.New("no usable source data")

// Grid is the canonical monthly index: strictly increasing month-end
// timestamps with one entry per month and no gaps.
type Grid []time.Time

// BuildGrid spans the earliest to the latest coverage across all series,
// one month-end per month. Series without any observation are ignored.
func BuildGrid(series ...*Series) (Grid, error) {
	var start, end time.Time
	found := false
	for _, s := range series {
		if s == nil {
			continue
		}
		s0, s1, ok := s.ValidBounds()
		if !ok {
			continue
		}
		if !found || s0.Before(start) {
			start = s0
		}
		if !found || s1.After(end) {
			end = s1
		}
		found = true
	}
	if !found {
		return nil, ErrNoSourceData
	}
	return SpanGrid(start, end), nil
}

// SpanGrid returns the month-end grid from start's month through end's
// month inclusive.
func SpanGrid(start, end time.Time) Grid {
	var grid Grid
	y, m, _ := start.UTC().Date()
	cur := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	last := MonthEnd(end)
	for {
		me := MonthEnd(cur)
		grid = append(grid, me)
		if !me.Before(last) {
			break
		}
		cur = cur.AddDate(0, 1, 0)
	}
	return grid
}

package timeseries

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSeries(t *testing.T, start time.Time, values ...float64) *Series {
	t.Helper()
	times := make([]time.Time, len(values))
	for i := range values {
		times[i] = MonthEnd(start.AddDate(0, i, 0))
	}
	s, err := New(times, values)
	require.NoError(t, err)
	return s
}

func jan(year int) time.Time {
	return time.Date(year, time.January, 15, 0, 0, 0, 0, time.UTC)
}

func TestMonthEnd(t *testing.T) {
	cases := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC), time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC), time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 12, 5, 0, 0, 0, 0, time.UTC), time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, MonthEnd(c.in))
	}
}

func TestNew_SortsAndSnaps(t *testing.T) {
	times := []time.Time{
		time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC),
	}
	s, err := New(times, []float64{3, 1, 2})
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())

	ts0, v0 := s.At(0)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), ts0)
	assert.Equal(t, 1.0, v0)
	_, v2 := s.At(2)
	assert.Equal(t, 3.0, v2)
}

func TestNew_LengthMismatch(t *testing.T) {
	_, err := New([]time.Time{jan(2024)}, []float64{1, 2})
	require.Error(t, err)
}

func TestBuildGrid_SpansAllSources(t *testing.T) {
	a := mustSeries(t, jan(2020), 1, 2, 3)
	b := mustSeries(t, jan(2020).AddDate(0, 5, 0), 4, 5)

	grid, err := BuildGrid(a, b)
	require.NoError(t, err)
	require.Len(t, grid, 7) // Jan 2020 .. Jul 2020

	assert.Equal(t, time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC), grid[0])
	assert.Equal(t, time.Date(2020, 7, 31, 0, 0, 0, 0, time.UTC), grid[len(grid)-1])
}

func TestBuildGrid_IgnoresAllMissingSeries(t *testing.T) {
	a := mustSeries(t, jan(2020), 1, 2)
	empty := mustSeries(t, jan(2010), math.NaN(), math.NaN())

	grid, err := BuildGrid(a, empty)
	require.NoError(t, err)
	assert.Len(t, grid, 2)
}

func TestBuildGrid_NoSources(t *testing.T) {
	_, err := BuildGrid()
	assert.ErrorIs(t, err, ErrNoSourceData)

	_, err = BuildGrid(Empty())
	assert.ErrorIs(t, err, ErrNoSourceData)
}

func TestReindex(t *testing.T) {
	s := mustSeries(t, jan(2020), 1, 2)
	grid := SpanGrid(jan(2019).AddDate(0, 11, 0), jan(2020).AddDate(0, 2, 0))
	require.Len(t, grid, 4) // Dec 2019 .. Mar 2020

	r := s.Reindex(grid)
	_, v0 := r.At(0)
	assert.True(t, IsMissing(v0))
	_, v1 := r.At(1)
	assert.Equal(t, 1.0, v1)
	_, v3 := r.At(3)
	assert.True(t, IsMissing(v3))
}

func TestForwardFill_Bounded(t *testing.T) {
	s := mustSeries(t, jan(2020), math.NaN(), 5, math.NaN(), math.NaN(), math.NaN(), 7)

	filled := s.ForwardFill(2)
	got := filled.Values()
	assert.True(t, IsMissing(got[0]), "leading gap never filled")
	assert.Equal(t, 5.0, got[1])
	assert.Equal(t, 5.0, got[2])
	assert.Equal(t, 5.0, got[3])
	assert.True(t, IsMissing(got[4]), "fill stops at limit")
	assert.Equal(t, 7.0, got[5])
}

func TestForwardFill_Unlimited(t *testing.T) {
	s := mustSeries(t, jan(2020), 5, math.NaN(), math.NaN(), math.NaN())
	got := s.ForwardFill(0).Values()
	for _, v := range got {
		assert.Equal(t, 5.0, v)
	}
}

func TestInterpolate(t *testing.T) {
	s := mustSeries(t, jan(2020), math.NaN(), 10, math.NaN(), math.NaN(), 40, math.NaN())
	got := s.Interpolate().Values()

	assert.True(t, IsMissing(got[0]), "no backward extrapolation")
	assert.Equal(t, 10.0, got[1])
	assert.InDelta(t, 20.0, got[2], 1e-12)
	assert.InDelta(t, 30.0, got[3], 1e-12)
	assert.Equal(t, 40.0, got[4])
	assert.True(t, IsMissing(got[5]), "no forward extrapolation")
}

func TestClip(t *testing.T) {
	s := mustSeries(t, jan(2020), 0.2, 50, 99.9, math.NaN())
	got := s.Clip(1, 99).Values()
	assert.Equal(t, 1.0, got[0])
	assert.Equal(t, 50.0, got[1])
	assert.Equal(t, 99.0, got[2])
	assert.True(t, IsMissing(got[3]))
}

func TestRollingMean_TrailingWithMinPeriods(t *testing.T) {
	s := mustSeries(t, jan(2020), 1, 2, 3, 4)
	got := s.RollingMean(3, 1).Values()

	assert.Equal(t, 1.0, got[0])
	assert.Equal(t, 1.5, got[1])
	assert.Equal(t, 2.0, got[2])
	assert.Equal(t, 3.0, got[3])
}

func TestRollingMean_SkipsMissing(t *testing.T) {
	s := mustSeries(t, jan(2020), 1, math.NaN(), 3)
	got := s.RollingMean(3, 1).Values()

	assert.Equal(t, 1.0, got[0])
	assert.Equal(t, 1.0, got[1])
	assert.Equal(t, 2.0, got[2])

	strict := s.RollingMean(3, 3).Values()
	for _, v := range strict {
		assert.True(t, IsMissing(v))
	}
}

func TestValidBounds(t *testing.T) {
	s := mustSeries(t, jan(2020), math.NaN(), 2, 3, math.NaN())
	start, end, ok := s.ValidBounds()
	require.True(t, ok)
	assert.Equal(t, time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2020, 3, 31, 0, 0, 0, 0, time.UTC), end)
}

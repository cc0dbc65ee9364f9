package combine

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibps/aibps/internal/timeseries"
)

func monthly(t *testing.T, values ...float64) *timeseries.Series {
	t.Helper()
	start := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	times := make([]time.Time, len(values))
	for i := range values {
		times[i] = start.AddDate(0, i, 0)
	}
	s, err := timeseries.New(times, values)
	require.NoError(t, err)
	return s
}

func gridOf(t *testing.T, months int) timeseries.Grid {
	t.Helper()
	start := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	return timeseries.SpanGrid(start, start.AddDate(0, months-1, 0))
}

func TestCombine_MeanOfSources(t *testing.T) {
	grid := gridOf(t, 4)
	sources := []Source{
		{Name: "manual", Series: monthly(t, 10, 20, math.NaN(), math.NaN())},
		{Name: "macro", Series: monthly(t, 30, math.NaN(), 50, math.NaN())},
	}

	got, err := Combine(grid, sources, ModeMeanOfSources, FillPolicy{})
	require.NoError(t, err)

	values := got.Values()
	assert.Equal(t, 20.0, values[0], "mean where both present")
	assert.Equal(t, 20.0, values[1], "single contributor passes through")
	assert.Equal(t, 50.0, values[2])
	assert.True(t, timeseries.IsMissing(values[3]), "no contributors stays missing")
}

func TestCombine_RebaseAverage(t *testing.T) {
	grid := gridOf(t, 3)
	sources := []Source{
		{Name: "a", Series: monthly(t, 50, 100, 150)},
		{Name: "b", Series: monthly(t, 200, 200, 100)},
	}

	got, err := Combine(grid, sources, ModeRebaseAverage, FillPolicy{})
	require.NoError(t, err)

	// a rebases to [100, 200, 300]; b rebases to [100, 100, 50].
	values := got.Values()
	assert.InDelta(t, 100.0, values[0], 1e-9)
	assert.InDelta(t, 150.0, values[1], 1e-9)
	assert.InDelta(t, 175.0, values[2], 1e-9)
}

func TestCombine_RebaseFailsOnZeroBase(t *testing.T) {
	grid := gridOf(t, 3)
	sources := []Source{
		{Name: "zero-base", Series: monthly(t, 0, 10, 20)},
		{Name: "good", Series: monthly(t, 100, 110, 120)},
	}

	got, err := Combine(grid, sources, ModeRebaseAverage, FillPolicy{})
	require.NoError(t, err)

	// The zero-base source is dropped wholesale, not treated as zeros.
	values := got.Values()
	assert.InDelta(t, 100.0, values[0], 1e-9)
	assert.InDelta(t, 110.0, values[1], 1e-9)
	assert.InDelta(t, 120.0, values[2], 1e-9)
}

func TestCombine_RebaseSkipsLeadingMissing(t *testing.T) {
	grid := gridOf(t, 3)
	sources := []Source{
		{Name: "late", Series: monthly(t, math.NaN(), 50, 75)},
	}

	got, err := Combine(grid, sources, ModeRebaseAverage, FillPolicy{})
	require.NoError(t, err)

	values := got.Values()
	assert.True(t, timeseries.IsMissing(values[0]))
	assert.InDelta(t, 100.0, values[1], 1e-9)
	assert.InDelta(t, 150.0, values[2], 1e-9)
}

func TestCombine_BoundedForwardFill(t *testing.T) {
	grid := gridOf(t, 6)
	sources := []Source{
		{Name: "sparse", Series: monthly(t, 40, math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN())},
	}

	got, err := Combine(grid, sources, ModeMeanOfSources, FillPolicy{Mode: FillForward, Limit: 3})
	require.NoError(t, err)

	values := got.Values()
	assert.Equal(t, 40.0, values[3], "filled within limit")
	assert.True(t, timeseries.IsMissing(values[4]), "fill bounded at limit")
	assert.True(t, timeseries.IsMissing(values[5]))
}

func TestCombine_InterpolateAndClip(t *testing.T) {
	grid := gridOf(t, 5)
	sources := []Source{
		{Name: "dense", Series: monthly(t, 0.5, math.NaN(), math.NaN(), 99.5, math.NaN())},
	}

	got, err := Combine(grid, sources, ModeMeanOfSources, FillPolicy{
		Mode: FillInterpolate,
		Clip: &ClipRange{Low: 1, High: 99},
	})
	require.NoError(t, err)

	values := got.Values()
	assert.Equal(t, 1.0, values[0], "clipped to safety floor")
	assert.InDelta(t, 33.5, values[1], 1e-9)
	assert.InDelta(t, 66.5, values[2], 1e-9)
	assert.Equal(t, 99.0, values[3], "clipped to safety ceiling")
	assert.True(t, timeseries.IsMissing(values[4]), "interpolation never extrapolates")
}

func TestCombine_EmptyGrid(t *testing.T) {
	_, err := Combine(nil, nil, ModeMeanOfSources, FillPolicy{})
	assert.ErrorIs(t, err, timeseries.ErrNoSourceData)
}

func TestCombine_UnknownFillMode(t *testing.T) {
	grid := gridOf(t, 2)
	_, err := Combine(grid, []Source{{Name: "x", Series: monthly(t, 1, 2)}}, ModeMeanOfSources, FillPolicy{Mode: "bogus"})
	require.Error(t, err)
}

package composite

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
	start := time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC)
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
	start := time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC)
	return timeseries.SpanGrid(start, start.AddDate(0, months-1, 0))
}

func TestRenormalize_SumsToOne(t *testing.T) {
	w := WeightVector{"Market": 2, "Credit": 1, "Infra": 1}
	got, err := Renormalize(w, []string{"Market", "Credit", "Infra"})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, got.Sum(), WeightSumTolerance)
	assert.InDelta(t, 0.5, got["Market"], WeightSumTolerance)
	assert.InDelta(t, 0.25, got["Credit"], WeightSumTolerance)
}

func TestRenormalize_RedistributesAbsentPillars(t *testing.T) {
	w := WeightVector{"Market": 0.5, "Credit": 0.3, "Sentiment": 0.2}
	got, err := Renormalize(w, []string{"Market", "Credit"})
	require.NoError(t, err)

	assert.InDelta(t, 0.625, got["Market"], WeightSumTolerance)
	assert.InDelta(t, 0.375, got["Credit"], WeightSumTolerance)
	_, hasSentiment := got["Sentiment"]
	assert.False(t, hasSentiment)
}

func TestRenormalize_ZeroSumUniformFallback(t *testing.T) {
	got, err := Renormalize(WeightVector{}, []string{"A", "B", "C", "D"})
	require.NoError(t, err)

	for _, pillar := range []string{"A", "B", "C", "D"} {
		assert.InDelta(t, 0.25, got[pillar], WeightSumTolerance)
	}
}

func TestRenormalize_NegativeWeightRejected(t *testing.T) {
	_, err := Renormalize(WeightVector{"Market": -1}, []string{"Market"})
	require.Error(t, err)
}

func TestRenormalize_NoPresentPillars(t *testing.T) {
	_, err := Renormalize(WeightVector{"Market": 1}, nil)
	var empty *EmptyCompositeError
	require.ErrorAs(t, err, &empty)
}

func TestAggregate_NoPerTimestampRenormalization(t *testing.T) {
	grid := gridOf(t, 5)
	pillars := map[string]*timeseries.Series{
		"Market": monthly(t, 10, 20, 30, math.NaN(), 50),
		"Credit": monthly(t, 90, 80, 70, 60, math.NaN()),
	}
	weights := WeightVector{"Market": 0.5, "Credit": 0.5}

	got, applied, err := Aggregate(grid, pillars, weights)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, applied.Sum(), WeightSumTolerance)

	values := got.Values()
	assert.InDelta(t, 50.0, values[0], 1e-9)
	assert.InDelta(t, 50.0, values[1], 1e-9)
	assert.InDelta(t, 50.0, values[2], 1e-9)
	// Market missing at t=3: its weight contributes nothing and Credit's
	// 0.5 is NOT scaled back up, so 0.5*60 = 30, not 60.
	assert.InDelta(t, 30.0, values[3], 1e-9)
	assert.InDelta(t, 25.0, values[4], 1e-9)
}

func TestAggregate_DefinedIffAnyPillarDefined(t *testing.T) {
	grid := gridOf(t, 3)
	pillars := map[string]*timeseries.Series{
		"Market": monthly(t, 40, math.NaN(), math.NaN()),
		"Credit": monthly(t, math.NaN(), 60, math.NaN()),
	}

	got, _, err := Aggregate(grid, pillars, WeightVector{"Market": 0.5, "Credit": 0.5})
	require.NoError(t, err)

	values := got.Values()
	assert.False(t, timeseries.IsMissing(values[0]))
	assert.False(t, timeseries.IsMissing(values[1]))
	assert.True(t, timeseries.IsMissing(values[2]), "no pillar defined leaves composite missing, never zero")
}

func TestAggregate_DropsEmptyPillarsAndRedistributes(t *testing.T) {
	grid := gridOf(t, 2)
	pillars := map[string]*timeseries.Series{
		"Market":    monthly(t, 80, 80),
		"Sentiment": monthly(t, math.NaN(), math.NaN()),
	}

	got, applied, err := Aggregate(grid, pillars, WeightVector{"Market": 0.5, "Sentiment": 0.5})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, applied["Market"], WeightSumTolerance)
	assert.InDelta(t, 80.0, got.Values()[0], 1e-9)
}

func TestAggregate_EmptyIsFatal(t *testing.T) {
	grid := gridOf(t, 2)

	var empty *EmptyCompositeError
	_, _, err := Aggregate(grid, nil, WeightVector{})
	require.ErrorAs(t, err, &empty)

	_, _, err = Aggregate(nil, map[string]*timeseries.Series{"Market": monthly(t, 1, 2)}, WeightVector{})
	require.ErrorAs(t, err, &empty)

	allMissing := map[string]*timeseries.Series{"Market": monthly(t, math.NaN(), math.NaN())}
	_, _, err = Aggregate(grid, allMissing, WeightVector{"Market": 1})
	require.ErrorAs(t, err, &empty)
}

func TestSmooth_TrailingMeanMinPeriodOne(t *testing.T) {
	s := monthly(t, 10, 20, 30, 40)
	got := Smooth(s).Values()

	assert.InDelta(t, 10.0, got[0], 1e-9)
	assert.InDelta(t, 15.0, got[1], 1e-9)
	assert.InDelta(t, 20.0, got[2], 1e-9)
	assert.InDelta(t, 30.0, got[3], 1e-9)
}

func TestSmooth_Deterministic(t *testing.T) {
	s := monthly(t, 5, 15, 25)
	a := Smooth(s).Values()
	b := Smooth(s).Values()
	assert.Equal(t, a, b)
}

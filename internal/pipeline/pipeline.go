// Package pipeline orchestrates one full pressure-score computation:
// fetch raw sources, align them onto the canonical monthly grid, combine
// per-pillar sources, normalize each pillar on an independent worker, then
// aggregate and smooth the composite.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/aibps/aibps/internal/combine"
	"github.com/aibps/aibps/internal/composite"
	"github.com/aibps/aibps/internal/config"
	"github.com/aibps/aibps/internal/fetch"
	"github.com/aibps/aibps/internal/normalize"
	"github.com/aibps/aibps/internal/telemetry"
	"github.com/aibps/aibps/internal/timeseries"
)

// Result is the output of one run. Every run recomputes everything from
// its inputs; identical inputs and weights yield identical results.
type Result struct {
	RunID     string
	Grid      timeseries.Grid
	Pillars   map[string]*timeseries.Series
	Composite *timeseries.Series
	Smoothed  *timeseries.Series
	Weights   composite.WeightVector
	Skipped   []string
}

// Runner executes the pipeline for a fixed configuration and fetcher.
type Runner struct {
	cfg     *config.Config
	fetcher fetch.Fetcher
	metrics *telemetry.Metrics
}

// Option tunes a Runner.
type Option func(*Runner)

// WithMetrics attaches a telemetry registry to the runner.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner builds a pipeline runner.
func NewRunner(cfg *config.Config, fetcher fetch.Fetcher, opts ...Option) *Runner {
	r := &Runner{cfg: cfg, fetcher: fetcher}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the full pipeline. Per-pillar failures degrade the pillar
// set and redistribute weight; the run fails only when no usable data or
// no pillars remain.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	started := time.Now()
	log.Info().Str("run_id", runID).Msg("Starting pressure-score pipeline")

	raw, skipped, err := r.fetchAll(ctx)
	if err != nil {
		r.countError()
		return nil, err
	}

	grid, err := r.align(raw)
	if err != nil {
		r.countError()
		return nil, err
	}

	pillarRaw, err := r.combineAll(grid, raw)
	if err != nil {
		r.countError()
		return nil, err
	}

	normalized, err := r.normalizeAll(pillarRaw)
	if err != nil {
		r.countError()
		return nil, err
	}

	compositeSeries, smoothed, applied, err := r.aggregate(grid, normalized)
	if err != nil {
		r.countError()
		return nil, err
	}

	r.recordRun(normalized, compositeSeries)
	log.Info().
		Str("run_id", runID).
		Int("grid_points", len(grid)).
		Int("pillars", len(normalized)).
		Strs("skipped", skipped).
		Dur("elapsed", time.Since(started)).
		Msg("Pipeline completed")

	return &Result{
		RunID:     runID,
		Grid:      grid,
		Pillars:   normalized,
		Composite: compositeSeries,
		Smoothed:  smoothed,
		Weights:   applied,
		Skipped:   skipped,
	}, nil
}

// fetchAll loads raw sources for every configured pillar. Missing pillars
// are dropped with a warning; any other fetch error aborts the run.
func (r *Runner) fetchAll(ctx context.Context) (map[string][]fetch.Source, []string, error) {
	defer r.observe("fetch", time.Now())

	raw := make(map[string][]fetch.Source)
	var skipped []string
	for _, pillar := range config.PillarNames {
		if _, configured := r.cfg.Pillars[pillar]; !configured {
			continue
		}
		sources, err := r.fetcher.Fetch(ctx, pillar)
		if err != nil {
			if errors.Is(err, fetch.ErrMissingSource) {
				log.Warn().Str("pillar", pillar).Msg("No raw series for pillar, skipping")
				skipped = append(skipped, pillar)
				continue
			}
			return nil, nil, fmt.Errorf("fetch pillar %s: %w", pillar, err)
		}
		raw[pillar] = sources
	}
	if len(raw) == 0 {
		return nil, nil, timeseries.ErrNoSourceData
	}
	sort.Strings(skipped)
	return raw, skipped, nil
}

// align builds the canonical monthly grid over every fetched series.
func (r *Runner) align(raw map[string][]fetch.Source) (timeseries.Grid, error) {
	defer r.observe("align", time.Now())

	var all []*timeseries.Series
	for _, sources := range raw {
		for _, src := range sources {
			all = append(all, src.Series)
		}
	}
	grid, err := timeseries.BuildGrid(all...)
	if err != nil {
		return nil, err
	}
	log.Info().
		Time("start", grid[0]).
		Time("end", grid[len(grid)-1]).
		Int("months", len(grid)).
		Msg("Canonical grid built")
	return grid, nil
}

// combineAll merges each pillar's sources onto the grid under the
// pillar's combine mode and fill policy.
func (r *Runner) combineAll(grid timeseries.Grid, raw map[string][]fetch.Source) (map[string]*timeseries.Series, error) {
	defer r.observe("combine", time.Now())

	out := make(map[string]*timeseries.Series, len(raw))
	for pillar, sources := range raw {
		pc := r.cfg.Pillars[pillar]
		merged, err := combine.Combine(grid, toCombineSources(sources), combine.Mode(pc.Combine), pc.FillPolicy())
		if err != nil {
			return nil, fmt.Errorf("combine pillar %s: %w", pillar, err)
		}
		if merged.CountValid() == 0 {
			log.Warn().Str("pillar", pillar).Msg("Pillar empty after combination, dropping")
			continue
		}
		out[pillar] = merged
	}
	return out, nil
}

// normalizeAll maps every combined pillar to the 0-100 scale. Pillars are
// independent, so each runs on its own worker; the map assembly is the
// only shared state and is mutex-guarded.
func (r *Runner) normalizeAll(pillarRaw map[string]*timeseries.Series) (map[string]*timeseries.Series, error) {
	defer r.observe("normalize", time.Now())

	normalized := make(map[string]*timeseries.Series, len(pillarRaw))
	var mu sync.Mutex
	var wg sync.WaitGroup
	errs := make(chan error, len(pillarRaw))

	for pillar, series := range pillarRaw {
		wg.Add(1)
		go func(pillar string, series *timeseries.Series) {
			defer wg.Done()
			pc := r.cfg.Pillars[pillar]
			norm, err := normalize.ForMethod(normalize.Method(pc.Method), pc.NormalizeParams())
			if err != nil {
				errs <- fmt.Errorf("pillar %s: %w", pillar, err)
				return
			}
			log.Info().
				Str("pillar", pillar).
				Str("method", pc.Method).
				Int("window", pc.Window).
				Msg("Normalizing pillar")
			scored := norm.Normalize(series)

			mu.Lock()
			normalized[pillar] = scored
			mu.Unlock()
		}(pillar, series)
	}
	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		return nil, err
	}
	return normalized, nil
}

// aggregate folds normalized pillars into the composite and smooths it.
func (r *Runner) aggregate(grid timeseries.Grid, normalized map[string]*timeseries.Series) (*timeseries.Series, *timeseries.Series, composite.WeightVector, error) {
	defer r.observe("aggregate", time.Now())

	weights := composite.WeightVector(r.cfg.Weights)
	comp, applied, err := composite.Aggregate(grid, normalized, weights)
	if err != nil {
		return nil, nil, nil, err
	}
	return comp, composite.Smooth(comp), applied, nil
}

// Reaggregate recombines already-normalized pillar scores under a new
// weight vector, without re-running normalization. This is the separable
// presentation-time path: the dashboard may sweep weight vectors over one
// set of normalized pillars.
func Reaggregate(res *Result, weights composite.WeightVector) (*Result, error) {
	comp, applied, err := composite.Aggregate(res.Grid, res.Pillars, weights)
	if err != nil {
		return nil, err
	}
	return &Result{
		RunID:     res.RunID,
		Grid:      res.Grid,
		Pillars:   res.Pillars,
		Composite: comp,
		Smoothed:  composite.Smooth(comp),
		Weights:   applied,
		Skipped:   res.Skipped,
	}, nil
}

func toCombineSources(sources []fetch.Source) []combine.Source {
	out := make([]combine.Source, len(sources))
	for i, src := range sources {
		out[i] = combine.Source{Name: src.Name, Series: src.Series}
	}
	return out
}

func (r *Runner) observe(stage string, started time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

func (r *Runner) countError() {
	if r.metrics == nil {
		return
	}
	r.metrics.RunErrors.Inc()
}

// recordRun publishes run gauges after a successful pipeline pass.
func (r *Runner) recordRun(normalized map[string]*timeseries.Series, comp *timeseries.Series) {
	if r.metrics == nil {
		return
	}
	r.metrics.RunsTotal.Inc()
	r.metrics.PillarsPresent.Set(float64(len(normalized)))
	for pillar, series := range normalized {
		if v, ok := lastValid(series); ok {
			r.metrics.PillarScore.WithLabelValues(pillar).Set(v)
		}
	}
	if v, ok := lastValid(comp); ok {
		r.metrics.LatestComposite.Set(v)
	}
}

func lastValid(s *timeseries.Series) (float64, bool) {
	for i := s.Len() - 1; i >= 0; i-- {
		_, v := s.At(i)
		if !timeseries.IsMissing(v) {
			return v, true
		}
	}
	return 0, false
}

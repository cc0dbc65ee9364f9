// Package fetch abstracts where raw pillar series come from. The engine
// core never touches storage directly; it sees only the Fetcher interface,
// optionally wrapped in caching, circuit-breaker and rate-limit
// middleware.
package fetch

import (
	"context"
	"errors"

	"github.com/aibps/aibps/internal/timeseries"
)

// ErrMissingSource signals that no raw series exists for a pillar. The
// pipeline drops the pillar and redistributes its weight; the error is
// fatal only if it empties the pillar set.
var ErrMissingSource = errors.New("no raw series for pillar")

// Source is one named raw series contributing to a pillar.
type Source struct {
	Name   string
	Series *timeseries.Series
}

// Fetcher yields the raw sources for one pillar.
type Fetcher interface {
	Fetch(ctx context.Context, pillar string) ([]Source, error)
}

// StaticFetcher serves sources from memory. Used in tests and for sample
// data.
type StaticFetcher struct {
	data map[string][]Source
}

// NewStaticFetcher builds a fetcher over an in-memory source map.
func NewStaticFetcher(data map[string][]Source) *StaticFetcher {
	return &StaticFetcher{data: data}
}

func (f *StaticFetcher) Fetch(_ context.Context, pillar string) ([]Source, error) {
	sources, ok := f.data[pillar]
	if !ok || len(sources) == 0 {
		return nil, ErrMissingSource
	}
	return sources, nil
}

package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/aibps/aibps/internal/timeseries"
)

const cacheKeyPrefix = "aibps:raw:"

// CachedFetcher memoizes pillar fetches in Redis with a TTL. Cache
// failures degrade to the wrapped fetcher; they never fail the run.
type CachedFetcher struct {
	next   Fetcher
	client redis.Cmdable
	ttl    time.Duration
}

// NewCachedFetcher wraps next with a Redis read-through cache.
func NewCachedFetcher(next Fetcher, client redis.Cmdable, ttl time.Duration) *CachedFetcher {
	return &CachedFetcher{next: next, client: client, ttl: ttl}
}

// cachedSource is the wire form of a Source. Missing values travel as
// JSON nulls because NaN has no JSON encoding.
type cachedSource struct {
	Name   string      `json:"name"`
	Times  []time.Time `json:"times"`
	Values []*float64  `json:"values"`
}

func (f *CachedFetcher) Fetch(ctx context.Context, pillar string) ([]Source, error) {
	key := cacheKeyPrefix + pillar

	payload, err := f.client.Get(ctx, key).Result()
	if err == nil {
		sources, decodeErr := decodeSources(payload)
		if decodeErr == nil {
			log.Debug().Str("pillar", pillar).Msg("Raw series cache hit")
			return sources, nil
		}
		log.Warn().Err(decodeErr).Str("pillar", pillar).Msg("Corrupt cache entry, refetching")
	} else if err != redis.Nil {
		log.Warn().Err(err).Str("pillar", pillar).Msg("Cache read failed, falling through")
	}

	sources, err := f.next.Fetch(ctx, pillar)
	if err != nil {
		return nil, err
	}

	encoded, err := encodeSources(sources)
	if err == nil {
		if setErr := f.client.Set(ctx, key, encoded, f.ttl).Err(); setErr != nil {
			log.Warn().Err(setErr).Str("pillar", pillar).Msg("Cache write failed")
		}
	}
	return sources, nil
}

func encodeSources(sources []Source) (string, error) {
	wire := make([]cachedSource, 0, len(sources))
	for _, src := range sources {
		cs := cachedSource{
			Name:   src.Name,
			Times:  src.Series.Times(),
			Values: make([]*float64, src.Series.Len()),
		}
		for i, v := range src.Series.Values() {
			if timeseries.IsMissing(v) {
				continue
			}
			val := v
			cs.Values[i] = &val
		}
		wire = append(wire, cs)
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("encode sources: %w", err)
	}
	return string(data), nil
}

func decodeSources(payload string) ([]Source, error) {
	var wire []cachedSource
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}

	sources := make([]Source, 0, len(wire))
	for _, cs := range wire {
		values := make([]float64, len(cs.Values))
		for i, v := range cs.Values {
			if v == nil {
				values[i] = timeseries.Missing()
				continue
			}
			values[i] = *v
		}
		series, err := timeseries.New(cs.Times, values)
		if err != nil {
			return nil, err
		}
		sources = append(sources, Source{Name: cs.Name, Series: series})
	}
	return sources, nil
}

package fetch

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aibps/aibps/internal/timeseries"
)

// CSVFetcher reads processed per-pillar CSV files: a header row, a date
// column first and one value column. A missing file is not an error; the
// source is simply skipped, and a pillar with zero readable sources
// reports ErrMissingSource.
type CSVFetcher struct {
	paths map[string][]string
}

// NewCSVFetcher builds a fetcher over a pillar -> file paths map.
func NewCSVFetcher(paths map[string][]string) *CSVFetcher {
	return &CSVFetcher{paths: paths}
}

func (f *CSVFetcher) Fetch(ctx context.Context, pillar string) ([]Source, error) {
	files, ok := f.paths[pillar]
	if !ok || len(files) == 0 {
		return nil, ErrMissingSource
	}

	var sources []Source
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		series, err := readSeriesCSV(path)
		if err != nil {
			if os.IsNotExist(err) {
				log.Info().Str("pillar", pillar).Str("path", path).Msg("Source file missing, skipping")
				continue
			}
			return nil, fmt.Errorf("read source %s: %w", path, err)
		}
		if series.CountValid() == 0 {
			log.Info().Str("pillar", pillar).Str("path", path).Msg("Source file empty, skipping")
			continue
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		sources = append(sources, Source{Name: name, Series: series})
	}
	if len(sources) == 0 {
		return nil, ErrMissingSource
	}
	return sources, nil
}

// dateLayouts are tried in order when parsing the date column.
var dateLayouts = []string{"2006-01-02", "2006-01", "2006-01-02 15:04:05", time.RFC3339}

func readSeriesCSV(path string) (*timeseries.Series, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	var times []time.Time
	var values []float64
	header := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		if len(record) < 2 {
			continue
		}
		if header {
			header = false
			if _, err := parseDate(record[0]); err != nil {
				continue
			}
		}
		ts, err := parseDate(record[0])
		if err != nil {
			return nil, fmt.Errorf("bad date %q: %w", record[0], err)
		}
		times = append(times, ts)
		values = append(values, parseValue(record[1]))
	}
	return timeseries.New(times, values)
}

func parseDate(field string) (time.Time, error) {
	field = strings.TrimSpace(field)
	var lastErr error
	for _, layout := range dateLayouts {
		ts, err := time.Parse(layout, field)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func parseValue(field string) float64 {
	field = strings.TrimSpace(field)
	if field == "" {
		return timeseries.Missing()
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return timeseries.Missing()
	}
	return v
}

// Package artifacts writes the run's output table: one sorted CSV keyed
// by month-end date, fully overwritten on every run.
package artifacts

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/aibps/aibps/internal/pipeline"
	"github.com/aibps/aibps/internal/timeseries"
)

const dateLayout = "2006-01-02"

// WriteTable writes the composite table for res to path. Columns are the
// date, one normalized column per present pillar in sorted order, then
// Composite and Composite_RA. Rows where the composite is undefined are
// dropped, matching the run's downstream consumers.
func WriteTable(path string, res *pipeline.Result) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure output dir: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	pillars := make([]string, 0, len(res.Pillars))
	for pillar := range res.Pillars {
		pillars = append(pillars, pillar)
	}
	sort.Strings(pillars)

	header := append([]string{"date"}, pillars...)
	header = append(header, "Composite", "Composite_RA")
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	rows := 0
	for i, ts := range res.Grid {
		_, comp := res.Composite.At(i)
		if timeseries.IsMissing(comp) {
			continue
		}
		record := make([]string, 0, len(header))
		record = append(record, ts.Format(dateLayout))
		for _, pillar := range pillars {
			v, _ := res.Pillars[pillar].Value(ts)
			record = append(record, formatValue(v))
		}
		_, smoothed := res.Smoothed.At(i)
		record = append(record, formatValue(comp), formatValue(smoothed))
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
		rows++
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	log.Info().Str("path", path).Int("rows", rows).Msg("Composite table written")
	return nil
}

// formatValue renders a cell; missing values become empty cells, never
// zeros.
func formatValue(v float64) string {
	if timeseries.IsMissing(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

package fetcher

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sarbstats/econ-cli/internal/model"
)

// LoadFile reads observations from a local CSV or XLSX backfill file,
// dispatching on extension.
func LoadFile(path string) ([]model.Observation, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(path)
	case ".xlsx":
		return LoadXLSX(path)
	default:
		return nil, eris.Errorf("fetcher: unsupported file type %q", filepath.Ext(path))
	}
}

// LoadCSV reads observations from a CSV file with a header row of
// indicator_name, category, value, unit, observed_date, source.
func LoadCSV(path string) ([]model.Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read header of %s", path)
	}
	idx := headerIndex(header)

	var out []model.Observation
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: read row of %s", path)
		}
		out = append(out, rowToObservation(record, idx))
	}
	return out, nil
}

// LoadXLSX reads observations from the first sheet of an XLSX file with the
// same header layout as LoadCSV.
func LoadXLSX(path string) ([]model.Observation, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("fetcher: %s has no sheets", path)
	}
	sheet := f.Sheets[0]

	var idx map[string]int
	var out []model.Observation
	for i, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = strings.TrimSpace(c.Value)
		}
		if i == 0 {
			idx = headerIndex(cells)
			continue
		}
		out = append(out, rowToObservation(cells, idx))
	}
	return out, nil
}

// headerIndex maps lowercased column names to positions.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

// rowToObservation builds an Observation from a row. Missing or unparseable
// fields yield zero values; the raw store classifies those as malformed
// rather than the loader guessing at intent.
func rowToObservation(record []string, idx map[string]int) model.Observation {
	get := func(col string) string {
		i, ok := idx[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	obs := model.Observation{
		IndicatorName: get("indicator_name"),
		Category:      get("category"),
		Unit:          get("unit"),
		Source:        get("source"),
	}

	if raw := get("value"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			obs.Value = &v
		}
	}
	if raw := get("observed_date"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			obs.ObservedDate = t
		}
	}
	return obs
}

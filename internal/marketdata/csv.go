// Package marketdata loads historical price series from local files. These
// are the offline stand-ins for the market-data collaborators; the core
// consumes the resulting series and never touches I/O itself.
package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"quantbt-go/internal/series"
)

// CSVDir serves one CSV file per symbol from a directory, named
// <SYMBOL>.csv with a timestamp,open,high,low,close,volume header.
type CSVDir struct {
	Dir string
}

// NewCSVDir creates a provider rooted at the given directory.
func NewCSVDir(dir string) *CSVDir { return &CSVDir{Dir: dir} }

// GetSeries reads the symbol's file and returns bars inside [start, end].
// Zero start/end bounds are open-ended. No rows in range yields an empty
// series, not an error.
func (c *CSVDir) GetSeries(symbol string, start, end time.Time) (*series.Series, error) {
	file, err := os.Open(filepath.Join(c.Dir, symbol+".csv"))
	if err != nil {
		return nil, fmt.Errorf("open series file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	column := make(map[string]int, len(header))
	for i, name := range header {
		column[name] = i
	}
	for _, required := range []string{"timestamp", "open", "high", "low", "close", "volume"} {
		if _, ok := column[required]; !ok {
			return nil, series.DataError{Column: required, Reason: "not found in CSV header"}
		}
	}

	var bars []series.Bar
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		ts, err := parseTimestamp(record[column["timestamp"]])
		if err != nil {
			return nil, err
		}
		if (!start.IsZero() && ts.Before(start)) || (!end.IsZero() && ts.After(end)) {
			continue
		}
		bar := series.Bar{Ts: ts}
		for _, field := range []struct {
			name string
			dst  *float64
		}{
			{"open", &bar.Open},
			{"high", &bar.High},
			{"low", &bar.Low},
			{"close", &bar.Close},
			{"volume", &bar.Volume},
		} {
			value, err := strconv.ParseFloat(record[column[field.name]], 64)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", field.name, err)
			}
			*field.dst = value
		}
		bars = append(bars, bar)
	}
	return series.New(bars)
}

var timestampLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", value)
}

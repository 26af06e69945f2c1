package marketdata

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"quantbt-go/internal/series"
)

// BarRecord is the on-disk Parquet schema for daily bar data.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// ParquetDir serves one Parquet file per symbol from a directory, named
// <SYMBOL>.parquet with the BarRecord schema.
type ParquetDir struct {
	Dir string
}

// NewParquetDir creates a provider rooted at the given data directory.
func NewParquetDir(dir string) *ParquetDir { return &ParquetDir{Dir: dir} }

// GetSeries reads the symbol's file and returns bars inside [start, end] in
// timestamp order. Zero start/end bounds are open-ended.
func (p *ParquetDir) GetSeries(symbol string, start, end time.Time) (*series.Series, error) {
	path := filepath.Join(p.Dir, symbol+".parquet")
	records, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}

	var bars []series.Bar
	for _, record := range records {
		ts := time.UnixMilli(record.Timestamp).UTC()
		if (!start.IsZero() && ts.Before(start)) || (!end.IsZero() && ts.After(end)) {
			continue
		}
		bars = append(bars, series.Bar{
			Ts:     ts,
			Open:   record.Open,
			High:   record.High,
			Low:    record.Low,
			Close:  record.Close,
			Volume: record.Volume,
		})
	}
	sort.Slice(bars, func(a, b int) bool { return bars[a].Ts.Before(bars[b].Ts) })
	return series.New(bars)
}

// WriteBars writes bars for a symbol, mainly to round-trip fixtures in tests
// and seed local data directories.
func (p *ParquetDir) WriteBars(symbol string, bars []series.Bar) error {
	records := make([]BarRecord, len(bars))
	for i, bar := range bars {
		records[i] = BarRecord{
			Symbol:    symbol,
			Timestamp: bar.Ts.UnixMilli(),
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Close:     bar.Close,
			Volume:    bar.Volume,
		}
	}
	path := filepath.Join(p.Dir, symbol+".parquet")
	return parquet.WriteFile(path, records)
}

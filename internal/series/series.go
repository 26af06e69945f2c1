// Package series standardizes the price-history payloads shared between data
// loading, indicator, strategy, and backtest layers.
package series

import (
	"fmt"
	"math"
	"time"
)

// Signal expresses a per-bar trading bias produced by a strategy.
type Signal int

const (
	// Buy indicates a long bias.
	Buy Signal = 1
	// Hold indicates no bias.
	Hold Signal = 0
	// Sell indicates a short bias.
	Sell Signal = -1
)

// Column names written by strategies.
const (
	ColSignal       = "signal"
	ColPositionSize = "position_size"
)

// Bar models a single OHLCV observation.
type Bar struct {
	Ts     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// DataError reports a precondition failure on input data, such as a missing
// column or a series too short for the requested window.
type DataError struct {
	Column string
	Reason string
}

func (e DataError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("data error: column %q %s", e.Column, e.Reason)
	}
	return fmt.Sprintf("data error: %s", e.Reason)
}

// Series is an ordered price history plus named derived columns. Warm-up or
// otherwise undefined cells hold NaN. Transforms never mutate a series in
// place; they return a copy with columns added.
type Series struct {
	bars    []Bar
	columns map[string][]float64
}

// New validates bar ordering and wraps the bars in a Series. Timestamps must
// be strictly increasing.
func New(bars []Bar) (*Series, error) {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Ts.After(bars[i-1].Ts) {
			return nil, DataError{Reason: fmt.Sprintf("timestamps not strictly increasing at index %d", i)}
		}
	}
	return &Series{bars: bars, columns: make(map[string][]float64)}, nil
}

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.bars) }

// Bar returns the bar at index i.
func (s *Series) Bar(i int) Bar { return s.bars[i] }

// Bars exposes the underlying bar slice. Callers must treat it as read-only.
func (s *Series) Bars() []Bar { return s.bars }

// Clone returns a copy sharing the immutable bars but owning its column map,
// so that added columns never leak back into the source series.
func (s *Series) Clone() *Series {
	columns := make(map[string][]float64, len(s.columns))
	for name, values := range s.columns {
		columns[name] = values
	}
	return &Series{bars: s.bars, columns: columns}
}

// Prefix returns a view over the first n bars, truncating every column.
// The expanding-window loop in the backtest engine is built on this.
func (s *Series) Prefix(n int) *Series {
	if n > len(s.bars) {
		n = len(s.bars)
	}
	columns := make(map[string][]float64, len(s.columns))
	for name, values := range s.columns {
		columns[name] = values[:n]
	}
	return &Series{bars: s.bars[:n], columns: columns}
}

// WithColumn returns a copy of the series carrying an extra named column.
func (s *Series) WithColumn(name string, values []float64) (*Series, error) {
	if len(values) != len(s.bars) {
		return nil, DataError{Column: name, Reason: fmt.Sprintf("length %d does not match %d bars", len(values), len(s.bars))}
	}
	out := s.Clone()
	out.columns[name] = values
	return out, nil
}

// Column returns the named column and whether it exists.
func (s *Series) Column(name string) ([]float64, bool) {
	values, ok := s.columns[name]
	return values, ok
}

// HasColumn reports whether the named column exists.
func (s *Series) HasColumn(name string) bool {
	_, ok := s.columns[name]
	return ok
}

// SignalAt reads the signal column at index i, mapping NaN or a missing
// column to Hold.
func (s *Series) SignalAt(i int) Signal {
	values, ok := s.columns[ColSignal]
	if !ok || i < 0 || i >= len(values) || math.IsNaN(values[i]) {
		return Hold
	}
	switch {
	case values[i] > 0:
		return Buy
	case values[i] < 0:
		return Sell
	default:
		return Hold
	}
}

// Closes extracts the close prices as a fresh slice.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.bars))
	for i, bar := range s.bars {
		out[i] = bar.Close
	}
	return out
}

// Opens extracts the open prices as a fresh slice.
func (s *Series) Opens() []float64 {
	out := make([]float64, len(s.bars))
	for i, bar := range s.bars {
		out[i] = bar.Open
	}
	return out
}

// Highs extracts the high prices as a fresh slice.
func (s *Series) Highs() []float64 {
	out := make([]float64, len(s.bars))
	for i, bar := range s.bars {
		out[i] = bar.High
	}
	return out
}

// Lows extracts the low prices as a fresh slice.
func (s *Series) Lows() []float64 {
	out := make([]float64, len(s.bars))
	for i, bar := range s.bars {
		out[i] = bar.Low
	}
	return out
}

// Volumes extracts the volumes as a fresh slice.
func (s *Series) Volumes() []float64 {
	out := make([]float64, len(s.bars))
	for i, bar := range s.bars {
		out[i] = bar.Volume
	}
	return out
}

// Field returns a named raw bar field ("open", "high", "low", "close",
// "volume") or a derived column, preferring raw fields. Feature engineering
// in the statistical strategies addresses both uniformly through this.
func (s *Series) Field(name string) ([]float64, bool) {
	switch name {
	case "open":
		return s.Opens(), true
	case "high":
		return s.Highs(), true
	case "low":
		return s.Lows(), true
	case "close":
		return s.Closes(), true
	case "volume":
		return s.Volumes(), true
	}
	return s.Column(name)
}

package strategy

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"quantbt-go/internal/series"
)

// minMaxScaler rescales each feature column to [0, 1]. A constant column
// maps to 0 instead of dividing by a zero span.
type minMaxScaler struct {
	min  []float64
	span []float64
}

func (m *minMaxScaler) fit(rows [][]float64) {
	if len(rows) == 0 {
		return
	}
	n := len(rows[0])
	m.min = make([]float64, n)
	m.span = make([]float64, n)
	column := make([]float64, len(rows))
	for j := 0; j < n; j++ {
		for i := range rows {
			column[i] = rows[i][j]
		}
		lo, hi := floats.Min(column), floats.Max(column)
		m.min[j] = lo
		m.span[j] = hi - lo
		if m.span[j] == 0 {
			m.span[j] = 1
		}
	}
}

func (m *minMaxScaler) transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - m.min[j]) / m.span[j]
		}
		out[i] = scaled
	}
	return out
}

// standardScaler applies per-column z-score normalization. A zero-variance
// column divides by 1 instead.
type standardScaler struct {
	mean []float64
	std  []float64
}

func (s *standardScaler) fit(rows [][]float64) {
	if len(rows) == 0 {
		return
	}
	n := len(rows[0])
	s.mean = make([]float64, n)
	s.std = make([]float64, n)
	column := make([]float64, len(rows))
	for j := 0; j < n; j++ {
		for i := range rows {
			column[i] = rows[i][j]
		}
		s.mean[j] = stat.Mean(column, nil)
		s.std[j] = stat.StdDev(column, nil)
		if s.std[j] == 0 || math.IsNaN(s.std[j]) {
			s.std[j] = 1
		}
	}
}

func (s *standardScaler) transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.mean[j]) / s.std[j]
		}
		out[i] = scaled
	}
	return out
}

// selectFeatures keeps the requested feature names present in the series,
// reporting the skipped ones. At least one feature must survive.
func selectFeatures(s *series.Series, requested []string) (kept, skipped []string, err error) {
	for _, name := range requested {
		if _, ok := s.Field(name); ok {
			kept = append(kept, name)
		} else {
			skipped = append(skipped, name)
		}
	}
	if len(kept) == 0 {
		return nil, skipped, ModelFitError{Reason: "no valid features found in data"}
	}
	return kept, skipped, nil
}

// featureMatrix extracts the named fields as per-bar rows.
func featureMatrix(s *series.Series, names []string) ([][]float64, error) {
	columns := make([][]float64, len(names))
	for j, name := range names {
		values, ok := s.Field(name)
		if !ok {
			return nil, series.DataError{Column: name, Reason: "not found"}
		}
		columns[j] = values
	}
	rows := make([][]float64, s.Len())
	for i := range rows {
		row := make([]float64, len(names))
		for j := range names {
			row[j] = columns[j][i]
		}
		rows[i] = row
	}
	return rows, nil
}

// featureSet is an engineered training table: one row per bar that survived
// warm-up trimming, with a binary target and the originating bar index.
type featureSet struct {
	names    []string
	rows     [][]float64
	targets  []float64
	barIndex []int
}

var (
	forestMAWindows  = []int{5, 10, 20, 50, 200}
	forestRSIWindows = []int{5, 10, 20}
)

// buildForestFeatures engineers the ensemble-tree feature table: lagged base
// features, price-change ratios, rolling means, and RSI over several windows,
// labeled by whether the close is higher after the prediction horizon. Rows
// containing undefined cells are dropped.
func buildForestFeatures(s *series.Series, baseFeatures []string, lookbacks []int, horizon int) (*featureSet, error) {
	closes := s.Closes()
	n := s.Len()

	var names []string
	var columns [][]float64

	addColumn := func(name string, values []float64) {
		names = append(names, name)
		columns = append(columns, values)
	}

	for _, feature := range baseFeatures {
		values, ok := s.Field(feature)
		if !ok {
			return nil, series.DataError{Column: feature, Reason: "not found"}
		}
		for _, lag := range lookbacks {
			addColumn(fmt.Sprintf("%s_lag_%d", feature, lag), shift(values, lag))
		}
	}

	for _, lag := range lookbacks {
		change := make([]float64, n)
		for i := range change {
			change[i] = math.NaN()
			if i >= lag && closes[i-lag] != 0 {
				change[i] = closes[i]/closes[i-lag] - 1
			}
		}
		addColumn(fmt.Sprintf("price_change_%d", lag), change)
	}

	for _, window := range forestMAWindows {
		addColumn(fmt.Sprintf("ma_%d", window), trailingMean(closes, window))
	}

	for _, window := range forestRSIWindows {
		addColumn(fmt.Sprintf("rsi_%d", window), trailingRSI(closes, window))
	}

	targets := make([]float64, n)
	for i := range targets {
		targets[i] = math.NaN()
		if i+horizon < n {
			if closes[i+horizon] > closes[i] {
				targets[i] = 1
			} else {
				targets[i] = 0
			}
		}
	}

	set := &featureSet{names: names}
	for i := 0; i < n; i++ {
		if math.IsNaN(targets[i]) {
			continue
		}
		row := make([]float64, len(columns))
		defined := true
		for j := range columns {
			if math.IsNaN(columns[j][i]) {
				defined = false
				break
			}
			row[j] = columns[j][i]
		}
		if !defined {
			continue
		}
		set.rows = append(set.rows, row)
		set.targets = append(set.targets, targets[i])
		set.barIndex = append(set.barIndex, i)
	}
	return set, nil
}

func shift(values []float64, lag int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
		if i >= lag {
			out[i] = values[i-lag]
		}
	}
	return out
}

func trailingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
		if i >= window-1 {
			out[i] = stat.Mean(values[i-window+1:i+1], nil)
		}
	}
	return out
}

// trailingRSI mirrors the indicator-package RSI with the zero-loss
// denominator substitution, operating on a raw value slice.
func trailingRSI(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
		if i < window {
			continue
		}
		gain, loss := 0.0, 0.0
		for j := i - window + 1; j <= i; j++ {
			delta := values[j] - values[j-1]
			if delta > 0 {
				gain += delta
			} else {
				loss -= delta
			}
		}
		avgGain := gain / float64(window)
		avgLoss := loss / float64(window)
		if avgLoss <= 0 {
			avgLoss = 1
		}
		rs := avgGain / avgLoss
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

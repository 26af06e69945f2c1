// Package indicator provides pure technical-indicator transforms over price
// series. Every function returns a new series with derived columns added;
// warm-up positions hold NaN instead of fabricated values.
package indicator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"quantbt-go/internal/series"
)

// MAType selects the moving-average flavor.
type MAType string

const (
	// SMAType is the arithmetic mean over a trailing window.
	SMAType MAType = "sma"
	// EMAType is recursive exponential smoothing.
	EMAType MAType = "ema"
)

// Column names produced by the transforms in this package.
const (
	ColMiddleBand    = "middle_band"
	ColUpperBand     = "upper_band"
	ColLowerBand     = "lower_band"
	ColRSI           = "rsi"
	ColMACD          = "macd"
	ColMACDSignal    = "macd_signal"
	ColMACDHistogram = "macd_histogram"
	ColATR           = "atr"
	ColStochK        = "stoch_k"
	ColStochD        = "stoch_d"
)

func sourceColumn(s *series.Series, column string) ([]float64, error) {
	values, ok := s.Field(column)
	if !ok {
		return nil, series.DataError{Column: column, Reason: "not found"}
	}
	return values, nil
}

// rollingMean computes a trailing simple mean; any NaN inside the window
// leaves the output undefined at that position.
func rollingMean(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	for i := window - 1; i < len(values); i++ {
		sum, ok := 0.0, true
		for j := i - window + 1; j <= i; j++ {
			if math.IsNaN(values[j]) {
				ok = false
				break
			}
			sum += values[j]
		}
		if ok {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// ewma runs the recursive smoothing with factor 2/(window+1). The recurrence
// is zero-seeded at the first defined input; the first window-1 smoothed
// positions stay undefined while the seed washes out.
func ewma(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	alpha := 2.0 / (float64(window) + 1.0)
	first := -1
	for i, v := range values {
		if !math.IsNaN(v) {
			first = i
			break
		}
	}
	if first < 0 {
		return out
	}
	smoothed := 0.0
	for i := first; i < len(values); i++ {
		smoothed = alpha*values[i] + (1-alpha)*smoothed
		if i >= first+window-1 {
			out[i] = smoothed
		}
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// MovingAverage appends a moving average of the named column under the out
// column name.
func MovingAverage(s *series.Series, window int, maType MAType, column, out string) (*series.Series, error) {
	if window <= 0 {
		return nil, series.DataError{Reason: fmt.Sprintf("window must be positive, got %d", window)}
	}
	values, err := sourceColumn(s, column)
	if err != nil {
		return nil, err
	}
	if out == "" {
		out = fmt.Sprintf("%s_%d", maType, window)
	}
	switch maType {
	case SMAType:
		return s.WithColumn(out, rollingMean(values, window))
	case EMAType:
		return s.WithColumn(out, ewma(values, window))
	default:
		return nil, series.DataError{Reason: fmt.Sprintf("unknown moving average type %q", maType)}
	}
}

// SMA appends a simple moving average of the named column.
func SMA(s *series.Series, window int, column, out string) (*series.Series, error) {
	return MovingAverage(s, window, SMAType, column, out)
}

// EMA appends an exponential moving average of the named column.
func EMA(s *series.Series, window int, column, out string) (*series.Series, error) {
	return MovingAverage(s, window, EMAType, column, out)
}

// BollingerBands appends middle_band, upper_band, and lower_band columns.
// The middle band is an SMA; the outer bands sit numStd sample standard
// deviations away.
func BollingerBands(s *series.Series, window int, numStd float64, column string) (*series.Series, error) {
	values, err := sourceColumn(s, column)
	if err != nil {
		return nil, err
	}
	middle := rollingMean(values, window)
	upper := nanSlice(len(values))
	lower := nanSlice(len(values))
	for i := window - 1; i < len(values); i++ {
		if math.IsNaN(middle[i]) {
			continue
		}
		sd := stat.StdDev(values[i-window+1:i+1], nil)
		upper[i] = middle[i] + sd*numStd
		lower[i] = middle[i] - sd*numStd
	}
	out, err := s.WithColumn(ColMiddleBand, middle)
	if err != nil {
		return nil, err
	}
	if out, err = out.WithColumn(ColUpperBand, upper); err != nil {
		return nil, err
	}
	return out.WithColumn(ColLowerBand, lower)
}

// RSI appends the Relative Strength Index of the named column. A zero
// average loss substitutes 1 into the denominator instead of dividing by
// zero, keeping the output inside [0, 100].
func RSI(s *series.Series, window int, column string) (*series.Series, error) {
	values, err := sourceColumn(s, column)
	if err != nil {
		return nil, err
	}
	gains := nanSlice(len(values))
	losses := nanSlice(len(values))
	for i := 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		gains[i], losses[i] = 0, 0
		if delta > 0 {
			gains[i] = delta
		} else if delta < 0 {
			losses[i] = -delta
		}
	}
	avgGain := rollingMean(gains, window)
	avgLoss := rollingMean(losses, window)
	rsi := nanSlice(len(values))
	for i := range rsi {
		if math.IsNaN(avgGain[i]) || math.IsNaN(avgLoss[i]) {
			continue
		}
		denom := avgLoss[i]
		if denom <= 0 {
			denom = 1
		}
		rs := avgGain[i] / denom
		rsi[i] = 100 - 100/(1+rs)
	}
	return s.WithColumn(ColRSI, rsi)
}

// MACD appends macd, macd_signal, and macd_histogram columns derived from
// fast and slow EMAs of the named column.
func MACD(s *series.Series, fastPeriod, slowPeriod, signalPeriod int, column string) (*series.Series, error) {
	values, err := sourceColumn(s, column)
	if err != nil {
		return nil, err
	}
	fast := ewma(values, fastPeriod)
	slow := ewma(values, slowPeriod)
	line := nanSlice(len(values))
	for i := range line {
		line[i] = fast[i] - slow[i]
	}
	signal := ewma(line, signalPeriod)
	histogram := nanSlice(len(values))
	for i := range histogram {
		histogram[i] = line[i] - signal[i]
	}
	out, err := s.WithColumn(ColMACD, line)
	if err != nil {
		return nil, err
	}
	if out, err = out.WithColumn(ColMACDSignal, signal); err != nil {
		return nil, err
	}
	return out.WithColumn(ColMACDHistogram, histogram)
}

// ATR appends the Average True Range over high/low/close bar fields. True
// range at the first bar falls back to high-low since no previous close
// exists.
func ATR(s *series.Series, window int) (*series.Series, error) {
	if window <= 0 {
		return nil, series.DataError{Reason: fmt.Sprintf("window must be positive, got %d", window)}
	}
	trueRange := make([]float64, s.Len())
	for i := 0; i < s.Len(); i++ {
		bar := s.Bar(i)
		tr := bar.High - bar.Low
		if i > 0 {
			prevClose := s.Bar(i - 1).Close
			tr = math.Max(tr, math.Abs(bar.High-prevClose))
			tr = math.Max(tr, math.Abs(bar.Low-prevClose))
		}
		trueRange[i] = tr
	}
	return s.WithColumn(ColATR, rollingMean(trueRange, window))
}

// Stochastic appends the stochastic oscillator columns stoch_k and stoch_d.
// A zero high-low range substitutes 1 into the %K denominator.
func Stochastic(s *series.Series, kPeriod, dPeriod, slowing int) (*series.Series, error) {
	if kPeriod <= 0 || dPeriod <= 0 || slowing <= 0 {
		return nil, series.DataError{Reason: "stochastic periods must be positive"}
	}
	rawK := nanSlice(s.Len())
	for i := kPeriod - 1; i < s.Len(); i++ {
		lowest, highest := math.Inf(1), math.Inf(-1)
		for j := i - kPeriod + 1; j <= i; j++ {
			bar := s.Bar(j)
			lowest = math.Min(lowest, bar.Low)
			highest = math.Max(highest, bar.High)
		}
		span := highest - lowest
		if span <= 0 {
			span = 1
		}
		rawK[i] = 100 * (s.Bar(i).Close - lowest) / span
	}
	k := rollingMean(rawK, slowing)
	d := rollingMean(k, dPeriod)
	out, err := s.WithColumn(ColStochK, k)
	if err != nil {
		return nil, err
	}
	return out.WithColumn(ColStochD, d)
}

package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"quantbt-go/internal/series"
)

func testSeries(t *testing.T, closes ...float64) *series.Series {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]series.Bar, len(closes))
	for i, c := range closes {
		bars[i] = series.Bar{
			Ts:     start.Add(time.Duration(i) * 24 * time.Hour),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 100,
		}
	}
	s, err := series.New(bars)
	if err != nil {
		t.Fatalf("new series: %v", err)
	}
	return s
}

func column(t *testing.T, s *series.Series, name string) []float64 {
	t.Helper()
	values, ok := s.Column(name)
	if !ok {
		t.Fatalf("missing column %q", name)
	}
	return values
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSMAWarmupAndValues(t *testing.T) {
	s := testSeries(t, 1, 2, 3, 4, 5)
	out, err := SMA(s, 3, "close", "sma_3")
	if err != nil {
		t.Fatalf("sma: %v", err)
	}
	values := column(t, out, "sma_3")
	for i := 0; i < 2; i++ {
		if !math.IsNaN(values[i]) {
			t.Fatalf("warm-up position %d should be NaN, got %f", i, values[i])
		}
	}
	for i, want := range []float64{2, 3, 4} {
		if !approx(values[i+2], want) {
			t.Fatalf("sma at %d: want %f got %f", i+2, want, values[i+2])
		}
	}
}

func TestEMARecurrence(t *testing.T) {
	s := testSeries(t, 3, 3, 3)
	out, err := EMA(s, 2, "close", "ema_2")
	if err != nil {
		t.Fatalf("ema: %v", err)
	}
	values := column(t, out, "ema_2")
	if !math.IsNaN(values[0]) {
		t.Fatalf("first position should be NaN, got %f", values[0])
	}
	// alpha = 2/3 with a zero seed: 2.0, then 2.6667, then 2.8889.
	if !approx(values[1], 8.0/3.0) || !approx(values[2], 26.0/9.0) {
		t.Fatalf("unexpected ema values %v", values)
	}
}

func TestMovingAverageValidation(t *testing.T) {
	s := testSeries(t, 1, 2, 3)
	if _, err := SMA(s, 0, "close", ""); err == nil {
		t.Fatal("expected error for zero window")
	}
	var derr series.DataError
	if _, err := SMA(s, 2, "missing", ""); !errors.As(err, &derr) || derr.Column != "missing" {
		t.Fatalf("expected DataError naming the column, got %v", err)
	}
	if _, err := MovingAverage(s, 2, MAType("wma"), "close", ""); err == nil {
		t.Fatal("expected error for unknown moving average type")
	}
}

func TestBollingerBandsOrderingAndZeroVariance(t *testing.T) {
	s := testSeries(t, 10, 12, 11, 14, 13, 12, 15)
	out, err := BollingerBands(s, 3, 2, "close")
	if err != nil {
		t.Fatalf("bollinger: %v", err)
	}
	middle := column(t, out, ColMiddleBand)
	upper := column(t, out, ColUpperBand)
	lower := column(t, out, ColLowerBand)
	for i := 2; i < len(middle); i++ {
		if !(lower[i] <= middle[i] && middle[i] <= upper[i]) {
			t.Fatalf("band ordering violated at %d: %f %f %f", i, lower[i], middle[i], upper[i])
		}
	}

	flat := testSeries(t, 10, 10, 10)
	out, err = BollingerBands(flat, 3, 2, "close")
	if err != nil {
		t.Fatalf("bollinger flat: %v", err)
	}
	if u := column(t, out, ColUpperBand); !approx(u[2], 10) {
		t.Fatalf("zero variance should collapse bands, got %f", u[2])
	}
}

func TestRSIBoundsAndZeroLoss(t *testing.T) {
	s := testSeries(t, 1, 2, 3, 4, 5, 6)
	out, err := RSI(s, 3, "close")
	if err != nil {
		t.Fatalf("rsi: %v", err)
	}
	values := column(t, out, ColRSI)
	for i := 0; i < 3; i++ {
		if !math.IsNaN(values[i]) {
			t.Fatalf("warm-up position %d should be NaN", i)
		}
	}
	// All-gain window with per-bar delta 1: relative strength 1/1, rsi 50.
	if !approx(values[3], 50) {
		t.Fatalf("zero-loss rsi: want 50 got %f", values[3])
	}
	for i := 3; i < len(values); i++ {
		if values[i] < 0 || values[i] > 100 {
			t.Fatalf("rsi out of bounds at %d: %f", i, values[i])
		}
	}

	flat := testSeries(t, 5, 5, 5, 5, 5)
	out, err = RSI(flat, 3, "close")
	if err != nil {
		t.Fatalf("rsi flat: %v", err)
	}
	if v := column(t, out, ColRSI)[4]; !approx(v, 0) {
		t.Fatalf("flat series rsi: want 0 got %f", v)
	}
}

func TestMACDHistogram(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i) + 3*math.Sin(float64(i)/4)
	}
	out, err := MACD(testSeries(t, closes...), 5, 10, 4, "close")
	if err != nil {
		t.Fatalf("macd: %v", err)
	}
	line := column(t, out, ColMACD)
	signal := column(t, out, ColMACDSignal)
	hist := column(t, out, ColMACDHistogram)
	defined := 0
	for i := range hist {
		if math.IsNaN(hist[i]) {
			continue
		}
		defined++
		if !approx(hist[i], line[i]-signal[i]) {
			t.Fatalf("histogram mismatch at %d", i)
		}
	}
	if defined == 0 {
		t.Fatal("no defined histogram values")
	}
}

func TestATR(t *testing.T) {
	s := testSeries(t, 10, 11, 12, 13, 14)
	out, err := ATR(s, 3)
	if err != nil {
		t.Fatalf("atr: %v", err)
	}
	values := column(t, out, ColATR)
	if !math.IsNaN(values[1]) {
		t.Fatal("warm-up atr should be NaN")
	}
	// High-low span is 2 on every bar and the close steps by 1, so true
	// range is 2 throughout.
	for i := 2; i < len(values); i++ {
		if !approx(values[i], 2) {
			t.Fatalf("atr at %d: want 2 got %f", i, values[i])
		}
	}
	if _, err := ATR(s, 0); err == nil {
		t.Fatal("expected error for zero window")
	}
}

func TestStochasticBounds(t *testing.T) {
	s := testSeries(t, 10, 12, 9, 14, 13, 11, 15, 12)
	out, err := Stochastic(s, 3, 2, 1)
	if err != nil {
		t.Fatalf("stochastic: %v", err)
	}
	k := column(t, out, ColStochK)
	d := column(t, out, ColStochD)
	for i := range k {
		if !math.IsNaN(k[i]) && (k[i] < 0 || k[i] > 100) {
			t.Fatalf("stoch_k out of bounds at %d: %f", i, k[i])
		}
		if !math.IsNaN(d[i]) && (d[i] < 0 || d[i] > 100) {
			t.Fatalf("stoch_d out of bounds at %d: %f", i, d[i])
		}
	}
	if _, err := Stochastic(s, 0, 2, 1); err == nil {
		t.Fatal("expected error for bad period")
	}
}

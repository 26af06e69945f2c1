package backtest

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"quantbt-go/internal/series"
	"quantbt-go/internal/strategy"
)

// fakeProvider serves canned series per symbol and errors for unknown ones.
type fakeProvider struct {
	data map[string]*series.Series
}

func (p *fakeProvider) GetSeries(symbol string, start, end time.Time) (*series.Series, error) {
	s, ok := p.data[symbol]
	if !ok {
		return nil, series.DataError{Reason: "symbol not found: " + symbol}
	}
	return s, nil
}

func TestRunBatchSkipsFailedSymbols(t *testing.T) {
	provider := &fakeProvider{data: map[string]*series.Series{
		"GOOD":  barSeries(t, 100, 102, 101),
		"EMPTY": barSeries(t),
	}}
	build := func() (strategy.Strategy, error) {
		return &stubStrategy{
			name:    "stub",
			signals: []float64{1, 0, 0},
			sizes:   []float64{10, 0, 0},
		}, nil
	}
	batch, err := RunBatch(provider, []string{"GOOD", "MISSING", "EMPTY"}, time.Time{}, time.Time{}, 10000, build, zerolog.Nop())
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(batch.PerSymbol) != 2 {
		t.Fatalf("want 2 per-symbol results, got %d", len(batch.PerSymbol))
	}
	if batch.PerSymbol[0].Symbol != "GOOD" || batch.PerSymbol[1].Symbol != "EMPTY" {
		t.Fatalf("unexpected symbols %s %s", batch.PerSymbol[0].Symbol, batch.PerSymbol[1].Symbol)
	}
	if batch.Combined == nil {
		t.Fatal("missing combined result")
	}
}

func TestRunBatchFactoryErrorAborts(t *testing.T) {
	provider := &fakeProvider{data: map[string]*series.Series{}}
	build := func() (strategy.Strategy, error) {
		return nil, strategy.ConfigError{Option: "kind", Reason: "unknown"}
	}
	_, err := RunBatch(provider, []string{"A"}, time.Time{}, time.Time{}, 10000, build, zerolog.Nop())
	var cerr strategy.ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected configuration error to abort, got %v", err)
	}
}

func TestCombine(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := start.Add(24 * time.Hour)
	a := &Result{
		Symbol: "A",
		EquityCurve: []EquityPoint{
			{Ts: start, Value: 100},
			{Ts: t1, Value: 110},
		},
		Trades: []Trade{
			{Symbol: "A", Side: Buy, Qty: 1, Price: 100, Ts: t1},
			{Symbol: "A", Side: Sell, Qty: 1, Price: 110, Ts: t1},
		},
		Metrics: Metrics{WinRate: 1, TotalTrades: 2},
	}
	b := &Result{
		Symbol: "B",
		EquityCurve: []EquityPoint{
			{Ts: start, Value: 200},
			{Ts: t1, Value: 190},
		},
		Trades: []Trade{
			{Symbol: "B", Side: Buy, Qty: 2, Price: 50, Ts: start},
		},
		Metrics: Metrics{WinRate: 0, TotalTrades: 1},
	}

	combined := Combine([]*Result{a, b})
	if len(combined.EquityCurve) != 2 {
		t.Fatalf("want 2 combined points, got %d", len(combined.EquityCurve))
	}
	if !approx(combined.EquityCurve[0].Value, 150) || !approx(combined.EquityCurve[1].Value, 150) {
		t.Fatalf("unexpected combined curve %+v", combined.EquityCurve)
	}
	if combined.Metrics.TotalTrades != 3 {
		t.Fatalf("want 3 trades, got %d", combined.Metrics.TotalTrades)
	}
	if !approx(combined.Metrics.WinRate, 2.0/3.0) {
		t.Fatalf("trade-weighted win rate: want %f got %f", 2.0/3.0, combined.Metrics.WinRate)
	}
	if combined.Trades[0].Symbol != "B" {
		t.Fatalf("trades should be time ordered, first is %+v", combined.Trades[0])
	}
	if combined.Metrics.MaxDrawdown != 0 {
		t.Fatalf("flat combined curve should have zero drawdown, got %f", combined.Metrics.MaxDrawdown)
	}
	if !approx(combined.Metrics.FinalPortfolioValue, 150) {
		t.Fatalf("final value: want 150 got %f", combined.Metrics.FinalPortfolioValue)
	}
}

func TestCombineEmpty(t *testing.T) {
	combined := Combine(nil)
	if combined == nil || len(combined.EquityCurve) != 0 || combined.Metrics.TotalTrades != 0 {
		t.Fatalf("unexpected combined result %+v", combined)
	}
}

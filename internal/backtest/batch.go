package backtest

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"quantbt-go/internal/risk"
	"quantbt-go/internal/series"
	"quantbt-go/internal/strategy"
)

// Provider supplies historical price series. An empty series means
// insufficient data, not an error.
type Provider interface {
	GetSeries(symbol string, start, end time.Time) (*series.Series, error)
}

// StrategyFactory builds a fresh strategy instance. Each symbol run gets its
// own instance so fitted model state is never shared.
type StrategyFactory func() (strategy.Strategy, error)

// BatchResult holds per-symbol results plus their combination.
type BatchResult struct {
	Combined  *Result   `json:"combined"`
	PerSymbol []*Result `json:"per_symbol"`
}

// RunBatch backtests the strategy over every symbol, reporting partial
// results when individual symbols fail or degrade. Only a configuration
// error from the factory aborts the batch.
func RunBatch(provider Provider, symbols []string, start, end time.Time, initialCapital float64, build StrategyFactory, log zerolog.Logger) (*BatchResult, error) {
	batch := &BatchResult{}
	for _, symbol := range symbols {
		strat, err := build()
		if err != nil {
			return nil, err
		}

		s, err := provider.GetSeries(symbol, start, end)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("failed to load series, skipping symbol")
			continue
		}

		result, err := NewEngine(strat, initialCapital, log).Run(symbol, s)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("backtest failed, skipping symbol")
			continue
		}
		batch.PerSymbol = append(batch.PerSymbol, result)
	}
	batch.Combined = Combine(batch.PerSymbol)
	return batch, nil
}

// Combine merges per-symbol results: equity curves averaged per timestamp,
// trades merged in time order, win rate weighted by trade count, and the
// remaining metrics recomputed over the combined curve.
func Combine(results []*Result) *Result {
	combined := &Result{}
	if len(results) == 0 {
		return combined
	}

	byTs := make(map[time.Time]float64)
	for _, result := range results {
		for _, point := range result.EquityCurve {
			byTs[point.Ts] += point.Value / float64(len(results))
		}
	}
	for ts, value := range byTs {
		combined.EquityCurve = append(combined.EquityCurve, EquityPoint{Ts: ts, Value: value})
	}
	sort.Slice(combined.EquityCurve, func(a, b int) bool {
		return combined.EquityCurve[a].Ts.Before(combined.EquityCurve[b].Ts)
	})

	for _, result := range results {
		combined.Trades = append(combined.Trades, result.Trades...)
	}
	sort.Slice(combined.Trades, func(a, b int) bool {
		return combined.Trades[a].Ts.Before(combined.Trades[b].Ts)
	})

	totalTrades := 0
	weightedWins := 0.0
	for _, result := range results {
		totalTrades += result.Metrics.TotalTrades
		weightedWins += result.Metrics.WinRate * float64(result.Metrics.TotalTrades)
	}
	combined.Metrics.TotalTrades = totalTrades
	if totalTrades > 0 {
		combined.Metrics.WinRate = weightedWins / float64(totalTrades)
	}

	curve := combined.EquityCurve
	if len(curve) == 0 {
		return combined
	}
	combined.Metrics.FinalPortfolioValue = curve[len(curve)-1].Value

	first, last := curve[0], curve[len(curve)-1]
	days := last.Ts.Sub(first.Ts).Hours() / 24
	if days > 0 && first.Value > 0 {
		combined.Metrics.AnnualizedReturn = math.Pow(last.Value/first.Value, 365/days) - 1
	}

	values := make([]float64, len(curve))
	for i, point := range curve {
		values[i] = point.Value
	}
	combined.Metrics.MaxDrawdown = risk.MaxDrawdown(values)

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		if curve[i-1].Value != 0 {
			returns = append(returns, curve[i].Value/curve[i-1].Value-1)
		}
	}
	if len(returns) > 0 {
		sd := stat.StdDev(returns, nil)
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		combined.Metrics.SharpeRatio = stat.Mean(returns, nil) / sd * math.Sqrt(tradingDaysPerYear)
	}
	return combined
}

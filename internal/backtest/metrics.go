package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"quantbt-go/internal/risk"
)

const (
	// tradingDaysPerYear annualizes daily returns.
	tradingDaysPerYear = 252
	// dailyRiskFreeRate is the assumed daily risk-free return (0.01%).
	dailyRiskFreeRate = 0.0001
)

// computeMetrics derives performance metrics from an equity curve.
func computeMetrics(curve []EquityPoint, totalTrades int, initialCapital float64) Metrics {
	m := Metrics{TotalTrades: totalTrades}
	if len(curve) == 0 {
		return m
	}

	final := curve[len(curve)-1].Value
	m.FinalPortfolioValue = final

	if initialCapital > 0 {
		m.AnnualizedReturn = math.Pow(final/initialCapital, tradingDaysPerYear/float64(len(curve))) - 1
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Value
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, curve[i].Value/prev-1)
	}
	if len(returns) == 0 {
		return m
	}

	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - dailyRiskFreeRate
	}
	sd := stat.StdDev(excess, nil)
	if sd > 0 && !math.IsNaN(sd) {
		m.SharpeRatio = stat.Mean(excess, nil) / sd * math.Sqrt(tradingDaysPerYear)
	}

	// Drawdown of the cumulative-return curve against its running peak; the
	// curve includes the baseline point, so a first-bar peak counts.
	values := make([]float64, len(curve))
	for i, point := range curve {
		values[i] = point.Value
	}
	m.MaxDrawdown = risk.MaxDrawdown(values)

	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}
	m.WinRate = float64(wins) / float64(len(returns))
	return m
}

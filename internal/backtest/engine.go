// Package backtest drives a strategy over historical price series and
// derives risk-adjusted performance from the resulting equity curve.
package backtest

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"quantbt-go/internal/metrics"
	"quantbt-go/internal/series"
	"quantbt-go/internal/strategy"
)

// Side enumerates trade directions.
type Side string

const (
	// Buy indicates a long entry or short cover.
	Buy Side = "BUY"
	// Sell indicates a short entry or long exit.
	Sell Side = "SELL"
)

const epsilon = 1e-9

// Trade is a realized execution event.
type Trade struct {
	Symbol string    `json:"symbol"`
	Side   Side      `json:"side"`
	Qty    float64   `json:"qty"`
	Price  float64   `json:"price"`
	Ts     time.Time `json:"ts"`
}

// EquityPoint snapshots portfolio value at one bar.
type EquityPoint struct {
	Ts    time.Time `json:"ts"`
	Value float64   `json:"value"`
}

// Metrics aggregates risk-adjusted performance derived from the equity curve.
type Metrics struct {
	AnnualizedReturn    float64 `json:"annualized_return"`
	SharpeRatio         float64 `json:"sharpe_ratio"`
	MaxDrawdown         float64 `json:"max_drawdown"`
	WinRate             float64 `json:"win_rate"`
	TotalTrades         int     `json:"total_trades"`
	FinalPortfolioValue float64 `json:"final_portfolio_value"`
}

// Result is the terminal output of one backtest run; nothing mutates it
// afterwards.
type Result struct {
	RunID       string        `json:"run_id"`
	Symbol      string        `json:"symbol"`
	Strategy    string        `json:"strategy"`
	EquityCurve []EquityPoint `json:"equity_curve"`
	Trades      []Trade       `json:"trades"`
	Metrics     Metrics       `json:"metrics"`
}

// Engine replays bars in strictly increasing timestamp order against a
// strategy. Each bar's sizing decision sees the full expanding prefix of the
// series, so bars must never be processed out of order or in parallel.
type Engine struct {
	strat          strategy.Strategy
	initialCapital float64
	log            zerolog.Logger
}

// NewEngine wires a strategy and starting capital into an engine.
func NewEngine(strat strategy.Strategy, initialCapital float64, log zerolog.Logger) *Engine {
	return &Engine{strat: strat, initialCapital: initialCapital, log: log}
}

// Run simulates the strategy over the series and returns the equity curve,
// trade log, and performance metrics. An empty series yields an empty result,
// not an error.
func (e *Engine) Run(symbol string, s *series.Series) (*Result, error) {
	result := &Result{
		RunID:    uuid.NewString(),
		Symbol:   symbol,
		Strategy: e.strat.Name(),
	}
	if s.Len() == 0 {
		e.log.Warn().Str("symbol", symbol).Msg("empty series, nothing to backtest")
		return result, nil
	}

	signaled, err := e.strat.GenerateSignals(s)
	if err != nil {
		return nil, err
	}
	e.countSignals(symbol, signaled)

	cash := e.initialCapital
	equity := e.initialCapital
	heldQty := 0.0

	for i := 0; i < signaled.Len(); i++ {
		bar := signaled.Bar(i)

		sized, err := e.strat.PositionSizes(signaled.Prefix(i+1), equity)
		if err != nil {
			return nil, err
		}
		sizes, ok := sized.Column(series.ColPositionSize)
		if !ok {
			return nil, series.DataError{Column: series.ColPositionSize, Reason: "not returned by strategy"}
		}
		implied := sizes[i]

		if math.Abs(implied) > epsilon && math.Abs(implied-heldQty) > epsilon && bar.Close > 0 {
			if math.Abs(heldQty) > epsilon {
				cash += heldQty * bar.Close
				result.Trades = append(result.Trades, e.trade(symbol, -heldQty, bar))
			}
			cash -= implied * bar.Close
			result.Trades = append(result.Trades, e.trade(symbol, implied, bar))
			heldQty = implied
		}

		equity = cash + heldQty*bar.Close
		result.EquityCurve = append(result.EquityCurve, EquityPoint{Ts: bar.Ts, Value: equity})
	}

	result.Metrics = computeMetrics(result.EquityCurve, len(result.Trades), e.initialCapital)
	metrics.BacktestsTotal.WithLabelValues(symbol, e.strat.Name()).Inc()
	e.log.Info().
		Str("symbol", symbol).
		Str("strategy", e.strat.Name()).
		Str("run_id", result.RunID).
		Int("trades", len(result.Trades)).
		Float64("final_equity", result.Metrics.FinalPortfolioValue).
		Msg("backtest complete")
	return result, nil
}

// trade records a fill for a signed quantity delta at the bar close.
func (e *Engine) trade(symbol string, qtyDelta float64, bar series.Bar) Trade {
	side := Buy
	if qtyDelta < 0 {
		side = Sell
	}
	metrics.TradesTotal.WithLabelValues(symbol, string(side)).Inc()
	return Trade{
		Symbol: symbol,
		Side:   side,
		Qty:    math.Abs(qtyDelta),
		Price:  bar.Close,
		Ts:     bar.Ts,
	}
}

func (e *Engine) countSignals(symbol string, signaled *series.Series) {
	for i := 0; i < signaled.Len(); i++ {
		switch signaled.SignalAt(i) {
		case series.Buy:
			metrics.SignalsTotal.WithLabelValues(symbol, string(Buy)).Inc()
		case series.Sell:
			metrics.SignalsTotal.WithLabelValues(symbol, string(Sell)).Inc()
		}
	}
}

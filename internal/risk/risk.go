// Package risk provides position sizing, stop pricing, and portfolio risk
// guard-rails shared by strategies and the backtest engine.
package risk

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Direction enumerates position directions.
type Direction string

const (
	// Long indicates a position that profits from rising prices.
	Long Direction = "long"
	// Short indicates a position that profits from falling prices.
	Short Direction = "short"
)

// FixedRiskSize returns the quantity that risks exactly riskAmount between
// the entry and stop prices. A zero distance means undefined risk per unit,
// so the size is 0.
func FixedRiskSize(riskAmount, entryPrice, stopPrice float64) float64 {
	perUnit := math.Abs(entryPrice - stopPrice)
	if perUnit == 0 {
		return 0
	}
	return riskAmount / perUnit
}

// StopLoss prices an ATR-based stop: k ATRs below entry for longs, above for
// shorts.
func StopLoss(entryPrice float64, direction Direction, atr, multiplier float64) (float64, error) {
	switch direction {
	case Long:
		return entryPrice - atr*multiplier, nil
	case Short:
		return entryPrice + atr*multiplier, nil
	default:
		return 0, fmt.Errorf("direction must be %q or %q, got %q", Long, Short, direction)
	}
}

// RiskReward returns reward distance divided by risk distance, or 0 when the
// stop sits on the entry.
func RiskReward(entryPrice, stopPrice, targetPrice float64) float64 {
	riskDist := math.Abs(entryPrice - stopPrice)
	if riskDist == 0 {
		return 0
	}
	return math.Abs(entryPrice-targetPrice) / riskDist
}

// Kelly computes the Kelly criterion fraction from a win rate and the average
// win/loss payoff ratio, clamped to [0, 0.5] as a conservative cap.
func Kelly(winRate, avgWinLossRatio float64) float64 {
	if avgWinLossRatio <= 0 {
		return 0
	}
	kelly := winRate - (1-winRate)/avgWinLossRatio
	return math.Max(0, math.Min(kelly, 0.5))
}

// TrailingStop tracks the most favorable price seen by an open position and
// trips once price retraces past the trail percentage. Once triggered it
// stays triggered; the position must be closed and the tracker discarded.
type TrailingStop struct {
	direction Direction
	trailPct  float64
	extreme   float64
	triggered bool
}

// NewTrailingStop starts tracking from the entry price.
func NewTrailingStop(direction Direction, entryPrice, trailPct float64) *TrailingStop {
	return &TrailingStop{direction: direction, trailPct: trailPct, extreme: entryPrice}
}

// Update feeds the latest price, returning whether the stop is (now)
// triggered and the current stop level. Updates after triggering are no-ops.
func (t *TrailingStop) Update(price float64) (bool, float64) {
	if t.triggered {
		return true, t.Stop()
	}
	switch t.direction {
	case Long:
		if price > t.extreme {
			t.extreme = price
		}
		if price <= t.Stop() {
			t.triggered = true
		}
	case Short:
		if price < t.extreme {
			t.extreme = price
		}
		if price >= t.Stop() {
			t.triggered = true
		}
	}
	return t.triggered, t.Stop()
}

// Stop returns the current stop level derived from the tracked extreme.
func (t *TrailingStop) Stop() float64 {
	if t.direction == Short {
		return t.extreme * (1 + t.trailPct)
	}
	return t.extreme * (1 - t.trailPct)
}

// Triggered reports whether the stop has tripped.
func (t *TrailingStop) Triggered() bool { return t.triggered }

// Position is a valued portfolio holding used by the portfolio-level checks.
type Position struct {
	Symbol string
	Value  float64
}

// PortfolioVaR estimates Value at Risk by historical simulation: capital
// weights applied to aligned historical return series, the empirical loss
// percentile at 1-confidence, scaled by sqrt of the horizon. Returns 0 when
// no positions or no historical returns are supplied.
func PortfolioVaR(positions []Position, confidence float64, horizonDays int, historicalReturns map[string][]float64) float64 {
	if len(positions) == 0 || len(historicalReturns) == 0 {
		return 0
	}

	total := 0.0
	for _, p := range positions {
		total += p.Value
	}
	if total == 0 {
		return 0
	}

	longest := 0
	for _, returns := range historicalReturns {
		if len(returns) > longest {
			longest = len(returns)
		}
	}

	// Align every series to the shortest common length, trailing side.
	aligned := make([][]float64, len(positions))
	minLen := longest
	for i, p := range positions {
		returns, ok := historicalReturns[p.Symbol]
		if !ok {
			returns = make([]float64, longest)
		}
		aligned[i] = returns
		if len(returns) < minLen {
			minLen = len(returns)
		}
	}
	if minLen == 0 {
		return 0
	}

	portfolio := make([]float64, minLen)
	for i, p := range positions {
		weight := p.Value / total
		tail := aligned[i][len(aligned[i])-minLen:]
		for j, r := range tail {
			portfolio[j] += weight * r
		}
	}

	sort.Float64s(portfolio)
	percentile := stat.Quantile(1-confidence, stat.LinInterp, portfolio, nil)
	return -percentile * math.Sqrt(float64(horizonDays))
}

// AllocationViolation names a position whose share of the portfolio exceeds
// the allowed maximum.
type AllocationViolation struct {
	Symbol     string
	Allocation float64
	MaxAllowed float64
}

// AllocationReport summarizes an allocation-limit check.
type AllocationReport struct {
	Compliant  bool
	Violations []AllocationViolation
}

// CheckAllocation flags positions whose value exceeds the maxAllocation
// fraction of total portfolio value.
func CheckAllocation(positions []Position, maxAllocation float64) AllocationReport {
	if len(positions) == 0 {
		return AllocationReport{Compliant: true}
	}
	total := 0.0
	for _, p := range positions {
		total += p.Value
	}
	report := AllocationReport{Compliant: true}
	if total == 0 {
		return report
	}
	for _, p := range positions {
		allocation := p.Value / total
		if allocation > maxAllocation {
			report.Violations = append(report.Violations, AllocationViolation{
				Symbol:     p.Symbol,
				Allocation: allocation,
				MaxAllowed: maxAllocation,
			})
		}
	}
	report.Compliant = len(report.Violations) == 0
	return report
}

// MaxDrawdown returns the deepest peak-to-trough decline of an equity curve
// as a positive fraction.
func MaxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0]
	worst := 0.0
	for _, value := range equity {
		if value > peak {
			peak = value
		}
		if peak > 0 {
			drawdown := value/peak - 1
			if drawdown < worst {
				worst = drawdown
			}
		}
	}
	return math.Abs(worst)
}

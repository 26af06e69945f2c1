package strategy

import (
	"math"

	"quantbt-go/internal/indicator"
	"quantbt-go/internal/risk"
	"quantbt-go/internal/series"
)

// Column names carried by the trend-following signal frame.
const (
	colFastMA = "fast_ma"
	colSlowMA = "slow_ma"
)

// TrendParams tunes the moving-average crossover variant.
type TrendParams struct {
	FastMAWindow    int     `yaml:"fast_ma_window"`
	SlowMAWindow    int     `yaml:"slow_ma_window"`
	MAType          string  `yaml:"ma_type"`
	ATRWindow       int     `yaml:"atr_window"`
	RiskPct         float64 `yaml:"risk_pct"`
	PositionSizePct float64 `yaml:"position_size_pct"`
}

func (p TrendParams) withDefaults() TrendParams {
	if p.FastMAWindow == 0 {
		p.FastMAWindow = 10
	}
	if p.SlowMAWindow == 0 {
		p.SlowMAWindow = 30
	}
	if p.MAType == "" {
		p.MAType = string(indicator.EMAType)
	}
	if p.ATRWindow == 0 {
		p.ATRWindow = 14
	}
	if p.RiskPct == 0 {
		p.RiskPct = 0.01
	}
	if p.PositionSizePct == 0 {
		p.PositionSizePct = 0.2
	}
	return p
}

// Validate checks every option against its domain, reporting the first
// violation.
func (p TrendParams) Validate() error {
	if p.FastMAWindow <= 0 {
		return ConfigError{Option: "fast_ma_window", Reason: "must be a positive integer"}
	}
	if p.SlowMAWindow <= 0 {
		return ConfigError{Option: "slow_ma_window", Reason: "must be a positive integer"}
	}
	if p.FastMAWindow >= p.SlowMAWindow {
		return ConfigError{Option: "fast_ma_window", Reason: "must be less than slow_ma_window"}
	}
	if p.MAType != string(indicator.SMAType) && p.MAType != string(indicator.EMAType) {
		return ConfigError{Option: "ma_type", Reason: `must be either "sma" or "ema"`}
	}
	if p.ATRWindow <= 0 {
		return ConfigError{Option: "atr_window", Reason: "must be a positive integer"}
	}
	if p.RiskPct <= 0 || p.RiskPct > 0.1 {
		return ConfigError{Option: "risk_pct", Reason: "must be between 0 and 0.1"}
	}
	if p.PositionSizePct <= 0 || p.PositionSizePct > 1 {
		return ConfigError{Option: "position_size_pct", Reason: "must be between 0 and 1"}
	}
	return nil
}

// TrendFollowing buys on the fast moving average crossing above the slow one
// and sells on the cross below, sizing positions from ATR risk. Sizing is
// computed for the latest bar only; the variant targets live sizing rather
// than a vectorized pass.
type TrendFollowing struct {
	params TrendParams
}

// NewTrendFollowing merges defaults into the supplied parameters and
// validates them.
func NewTrendFollowing(params TrendParams) (*TrendFollowing, error) {
	merged := params.withDefaults()
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &TrendFollowing{params: merged}, nil
}

// Name identifies the variant.
func (t *TrendFollowing) Name() string { return "trend_following" }

// Params returns the validated configuration.
func (t *TrendFollowing) Params() TrendParams { return t.params }

// GenerateSignals computes fast/slow moving averages and ATR, emitting Buy on
// an upward crossover and Sell on a downward one. Warm-up bars where either
// average is undefined produce no crossovers.
func (t *TrendFollowing) GenerateSignals(s *series.Series) (*series.Series, error) {
	maType := indicator.MAType(t.params.MAType)
	out, err := indicator.MovingAverage(s, t.params.FastMAWindow, maType, "close", colFastMA)
	if err != nil {
		return nil, err
	}
	out, err = indicator.MovingAverage(out, t.params.SlowMAWindow, maType, "close", colSlowMA)
	if err != nil {
		return nil, err
	}
	out, err = indicator.ATR(out, t.params.ATRWindow)
	if err != nil {
		return nil, err
	}

	fast, _ := out.Column(colFastMA)
	slow, _ := out.Column(colSlowMA)

	signals := make([]float64, out.Len())
	prevAbove := false
	for i := 0; i < out.Len(); i++ {
		above := fast[i] > slow[i] // NaN compares false, so warm-up stays flat
		if above && !prevAbove && i > 0 {
			signals[i] = float64(series.Buy)
		} else if !above && prevAbove {
			signals[i] = float64(series.Sell)
		}
		prevAbove = above
	}
	return out.WithColumn(series.ColSignal, signals)
}

// PositionSizes sizes the latest bar only: the smaller of the ATR-risk-based
// quantity (2 ATR stop distance) and the max-allocation quantity, signed by
// the latest signal. All other bars carry zero.
func (t *TrendFollowing) PositionSizes(s *series.Series, portfolioValue float64) (*series.Series, error) {
	signals, ok := s.Column(series.ColSignal)
	if !ok {
		return nil, series.DataError{Column: series.ColSignal, Reason: "not found; call GenerateSignals first"}
	}
	atr, ok := s.Column(indicator.ColATR)
	if !ok {
		return nil, series.DataError{Column: indicator.ColATR, Reason: "not found; call GenerateSignals first"}
	}

	sizes := make([]float64, s.Len())
	if s.Len() == 0 {
		return s.WithColumn(series.ColPositionSize, sizes)
	}

	last := s.Len() - 1
	latestSignal := signalValue(signals[last])
	latestClose := s.Bar(last).Close
	latestATR := atr[last]

	if latestSignal == series.Hold || latestClose <= 0 || math.IsNaN(latestATR) || latestATR <= 0 {
		return s.WithColumn(series.ColPositionSize, sizes)
	}

	riskAmount := portfolioValue * t.params.RiskPct
	stop, err := risk.StopLoss(latestClose, risk.Long, latestATR, 2)
	if err != nil {
		return nil, err
	}
	sharesFromRisk := risk.FixedRiskSize(riskAmount, latestClose, stop)
	maxShares := portfolioValue * t.params.PositionSizePct / latestClose

	shares := math.Min(sharesFromRisk, maxShares)
	if latestSignal == series.Sell {
		shares = -shares
	}
	sizes[last] = shares
	return s.WithColumn(series.ColPositionSize, sizes)
}

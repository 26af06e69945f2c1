package strategy

import (
	"math"

	"quantbt-go/internal/indicator"
	"quantbt-go/internal/series"
)

// MeanReversionParams tunes the Bollinger/RSI mean-reversion variant.
type MeanReversionParams struct {
	BollingerWindow int     `yaml:"bollinger_window"`
	BollingerStd    float64 `yaml:"bollinger_std"`
	RSIWindow       int     `yaml:"rsi_window"`
	RSIOversold     float64 `yaml:"rsi_oversold"`
	RSIOverbought   float64 `yaml:"rsi_overbought"`
	PositionSizePct float64 `yaml:"position_size_pct"`
}

func (p MeanReversionParams) withDefaults() MeanReversionParams {
	if p.BollingerWindow == 0 {
		p.BollingerWindow = 20
	}
	if p.BollingerStd == 0 {
		p.BollingerStd = 2.0
	}
	if p.RSIWindow == 0 {
		p.RSIWindow = 14
	}
	if p.RSIOversold == 0 {
		p.RSIOversold = 30
	}
	if p.RSIOverbought == 0 {
		p.RSIOverbought = 70
	}
	if p.PositionSizePct == 0 {
		p.PositionSizePct = 0.1
	}
	return p
}

// Validate checks every option against its domain, reporting the first
// violation.
func (p MeanReversionParams) Validate() error {
	if p.BollingerWindow <= 0 {
		return ConfigError{Option: "bollinger_window", Reason: "must be a positive integer"}
	}
	if p.BollingerStd <= 0 {
		return ConfigError{Option: "bollinger_std", Reason: "must be a positive number"}
	}
	if p.RSIWindow <= 0 {
		return ConfigError{Option: "rsi_window", Reason: "must be a positive integer"}
	}
	if p.RSIOversold < 0 || p.RSIOversold > 100 {
		return ConfigError{Option: "rsi_oversold", Reason: "must be between 0 and 100"}
	}
	if p.RSIOverbought < 0 || p.RSIOverbought > 100 {
		return ConfigError{Option: "rsi_overbought", Reason: "must be between 0 and 100"}
	}
	if p.PositionSizePct <= 0 || p.PositionSizePct > 1 {
		return ConfigError{Option: "position_size_pct", Reason: "must be between 0 and 1"}
	}
	return nil
}

// MeanReversion buys when price drops below the lower Bollinger band with an
// oversold RSI, and sells when price rises above the upper band with an
// overbought RSI.
type MeanReversion struct {
	params MeanReversionParams
}

// NewMeanReversion merges defaults into the supplied parameters and
// validates them.
func NewMeanReversion(params MeanReversionParams) (*MeanReversion, error) {
	merged := params.withDefaults()
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &MeanReversion{params: merged}, nil
}

// Name identifies the variant.
func (m *MeanReversion) Name() string { return "mean_reversion" }

// Params returns the validated configuration.
func (m *MeanReversion) Params() MeanReversionParams { return m.params }

// GenerateSignals computes Bollinger Bands and RSI over closes and derives
// the per-bar signal. Warm-up bars stay Hold.
func (m *MeanReversion) GenerateSignals(s *series.Series) (*series.Series, error) {
	out, err := indicator.BollingerBands(s, m.params.BollingerWindow, m.params.BollingerStd, "close")
	if err != nil {
		return nil, err
	}
	out, err = indicator.RSI(out, m.params.RSIWindow, "close")
	if err != nil {
		return nil, err
	}

	upper, _ := out.Column(indicator.ColUpperBand)
	lower, _ := out.Column(indicator.ColLowerBand)
	rsi, _ := out.Column(indicator.ColRSI)

	signals := make([]float64, out.Len())
	for i := 0; i < out.Len(); i++ {
		close := out.Bar(i).Close
		switch {
		case close < lower[i] && rsi[i] < m.params.RSIOversold:
			signals[i] = float64(series.Buy)
		case close > upper[i] && rsi[i] > m.params.RSIOverbought:
			signals[i] = float64(series.Sell)
		}
	}
	return out.WithColumn(series.ColSignal, signals)
}

// PositionSizes allocates a fixed fraction of portfolio value at the latest
// close, applied only at bars where the signal changed.
func (m *MeanReversion) PositionSizes(s *series.Series, portfolioValue float64) (*series.Series, error) {
	signals, ok := s.Column(series.ColSignal)
	if !ok {
		return nil, series.DataError{Column: series.ColSignal, Reason: "not found; call GenerateSignals first"}
	}
	if s.Len() == 0 {
		return s.WithColumn(series.ColPositionSize, nil)
	}

	latest := s.Bar(s.Len() - 1).Close
	shares := 0.0
	if latest > 0 {
		shares = portfolioValue * m.params.PositionSizePct / latest
	}

	sizes := make([]float64, s.Len())
	for i, sig := range signals {
		if !math.IsNaN(sig) {
			sizes[i] = sig * shares
		}
	}
	diffGate(signals, sizes)
	return s.WithColumn(series.ColPositionSize, sizes)
}

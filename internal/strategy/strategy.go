// Package strategy implements the trading-strategy contract and its four
// variants: mean reversion, trend following, and two statistical models.
package strategy

import (
	"fmt"
	"strings"

	"quantbt-go/internal/series"
)

// Strategy defines behaviour shared by strategy implementations. Parameters
// are validated once at construction; a constructed strategy holds only valid
// configuration. Instances own their fitted model state and must not be
// shared across concurrent backtests.
type Strategy interface {
	// Name identifies the strategy variant.
	Name() string

	// GenerateSignals returns a copy of the series with a signal column
	// holding Buy/Hold/Sell per bar.
	GenerateSignals(s *series.Series) (*series.Series, error)

	// PositionSizes returns a copy of the signal-bearing series with a
	// position_size column of signed quantities.
	PositionSizes(s *series.Series, portfolioValue float64) (*series.Series, error)
}

// ConfigError names the first invalid strategy option encountered during
// validation. It is fatal and surfaced to the caller unretried.
type ConfigError struct {
	Option string
	Reason string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("invalid strategy configuration: %s %s", e.Option, e.Reason)
}

// ModelFitError indicates a statistical variant could not fit its model.
// Callers degrade to an all-Hold signal series instead of aborting.
type ModelFitError struct {
	Reason string
	Err    error
}

func (e ModelFitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model fit failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("model fit failed: %s", e.Reason)
}

func (e ModelFitError) Unwrap() error { return e.Err }

// Params bundles the per-variant parameter blocks so callers can configure
// every variant from one YAML document.
type Params struct {
	MeanReversion MeanReversionParams `yaml:"mean_reversion"`
	Trend         TrendParams         `yaml:"trend_following"`
	Sequence      SequenceParams      `yaml:"sequence"`
	Forest        ForestParams        `yaml:"random_forest"`
}

// Build returns a validated strategy implementation matching the configured
// kind. Unknown kinds are a configuration error.
func Build(kind string, params Params) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "mean_reversion", "meanreversion":
		return NewMeanReversion(params.MeanReversion)
	case "trend_following", "trend":
		return NewTrendFollowing(params.Trend)
	case "sequence", "ml_sequence":
		return NewSequence(params.Sequence)
	case "random_forest", "forest":
		return NewRandomForest(params.Forest)
	default:
		return nil, ConfigError{Option: "kind", Reason: fmt.Sprintf("unknown strategy kind %q", kind)}
	}
}

// diffGate zeroes sizes at bars where the signal did not change from the
// previous bar, so positions are only adjusted on fresh signals. The first
// bar is treated as unchanged.
func diffGate(signals []float64, sizes []float64) {
	for i := range sizes {
		if i == 0 || signalValue(signals[i]) == signalValue(signals[i-1]) {
			sizes[i] = 0
		}
	}
}

func signalValue(v float64) series.Signal {
	switch {
	case v > 0:
		return series.Buy
	case v < 0:
		return series.Sell
	default:
		return series.Hold
	}
}

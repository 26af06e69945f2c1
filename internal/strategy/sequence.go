package strategy

import (
	"math"

	"github.com/rs/zerolog"

	"quantbt-go/internal/series"
)

// SequenceParams tunes the sequence-model variant.
type SequenceParams struct {
	SequenceLength    int      `yaml:"sequence_length"`
	PredictionHorizon int      `yaml:"prediction_horizon"`
	Features          []string `yaml:"features"`
	Epochs            int      `yaml:"epochs"`
	Threshold         float64  `yaml:"threshold"`
	PositionSizePct   float64  `yaml:"position_size_pct"`
}

func (p SequenceParams) withDefaults() SequenceParams {
	if p.SequenceLength == 0 {
		p.SequenceLength = 20
	}
	if p.PredictionHorizon == 0 {
		p.PredictionHorizon = 5
	}
	if len(p.Features) == 0 {
		p.Features = []string{"close", "volume", "rsi", "macd"}
	}
	if p.Epochs == 0 {
		p.Epochs = 50
	}
	if p.Threshold == 0 {
		p.Threshold = 0.6
	}
	if p.PositionSizePct == 0 {
		p.PositionSizePct = 0.1
	}
	return p
}

// Validate checks every option against its domain, reporting the first
// violation.
func (p SequenceParams) Validate() error {
	if p.SequenceLength <= 0 {
		return ConfigError{Option: "sequence_length", Reason: "must be a positive integer"}
	}
	if p.PredictionHorizon <= 0 {
		return ConfigError{Option: "prediction_horizon", Reason: "must be a positive integer"}
	}
	if len(p.Features) == 0 {
		return ConfigError{Option: "features", Reason: "must be a non-empty list"}
	}
	if p.Epochs <= 0 {
		return ConfigError{Option: "epochs", Reason: "must be a positive integer"}
	}
	if p.Threshold < 0.5 || p.Threshold > 1 {
		return ConfigError{Option: "threshold", Reason: "must be between 0.5 and 1"}
	}
	if p.PositionSizePct <= 0 || p.PositionSizePct > 1 {
		return ConfigError{Option: "position_size_pct", Reason: "must be between 0 and 1"}
	}
	return nil
}

// Sequence fits a binary classifier over fixed-length windows of scaled
// features, predicting whether the close is higher after the prediction
// horizon, and signals when the predicted probability crosses the threshold.
// The model and scaler are owned by this instance; do not share one instance
// across concurrent backtests.
//
// Fitting and scoring happen on overlapping data within one GenerateSignals
// call, so the backtest signal quality is optimistic relative to true
// walk-forward retraining.
type Sequence struct {
	params SequenceParams
	log    zerolog.Logger

	model        *logitModel
	scaler       *minMaxScaler
	featureNames []string
}

// NewSequence merges defaults into the supplied parameters and validates
// them.
func NewSequence(params SequenceParams) (*Sequence, error) {
	merged := params.withDefaults()
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &Sequence{params: merged, log: zerolog.Nop()}, nil
}

// SetLogger routes degrade warnings somewhere visible.
func (q *Sequence) SetLogger(log zerolog.Logger) { q.log = log }

// Name identifies the variant.
func (q *Sequence) Name() string { return "sequence" }

// Params returns the validated configuration.
func (q *Sequence) Params() SequenceParams { return q.params }

// GenerateSignals fits the window classifier on the supplied series and
// scores each window. Insufficient data degrades to an all-Hold series with
// a logged warning rather than an error.
func (q *Sequence) GenerateSignals(s *series.Series) (*series.Series, error) {
	hold := make([]float64, s.Len())

	kept, skipped, err := selectFeatures(s, q.params.Features)
	for _, name := range skipped {
		q.log.Warn().Str("feature", name).Msg("feature not found in data, skipping")
	}
	if err != nil {
		q.log.Warn().Err(err).Msg("sequence model degrading to hold signals")
		return s.WithColumn(series.ColSignal, hold)
	}
	q.featureNames = kept

	rows, err := featureMatrix(s, kept)
	if err != nil {
		return nil, err
	}
	q.scaler = &minMaxScaler{}
	q.scaler.fit(rows)
	scaled := q.scaler.transform(rows)

	seqLen := q.params.SequenceLength
	horizon := q.params.PredictionHorizon
	closeIdx, ok := indexOf(kept, "close")
	if !ok {
		// Labels compare future closes, so a feature set without the
		// close column has nothing to predict.
		q.log.Warn().Strs("features", kept).Msg("close feature required for labels, returning no signals")
		return s.WithColumn(series.ColSignal, hold)
	}

	var inputs [][]float64
	var labels []float64
	for i := 0; i+seqLen+horizon < len(scaled); i++ {
		inputs = append(inputs, flatten(scaled[i:i+seqLen]))
		label := 0.0
		if scaled[i+seqLen+horizon][closeIdx] > scaled[i+seqLen-1][closeIdx] {
			label = 1
		}
		labels = append(labels, label)
	}
	if len(inputs) == 0 {
		q.log.Warn().Int("bars", s.Len()).Msg("not enough data for sequence model, returning no signals")
		return s.WithColumn(series.ColSignal, hold)
	}

	q.model = newLogitModel(len(inputs[0]))
	q.model.fit(inputs, labels, q.params.Epochs)

	signals := make([]float64, s.Len())
	for i := seqLen; i < s.Len()-horizon; i++ {
		p := q.model.predict(flatten(scaled[i-seqLen : i]))
		if p >= q.params.Threshold {
			signals[i] = float64(series.Buy)
		} else if p <= 1-q.params.Threshold {
			signals[i] = float64(series.Sell)
		}
	}
	return s.WithColumn(series.ColSignal, signals)
}

// PositionSizes allocates a fixed fraction of portfolio value at each bar
// where the signal changed to a non-Hold value, priced at that bar's close.
func (q *Sequence) PositionSizes(s *series.Series, portfolioValue float64) (*series.Series, error) {
	return changeGatedSizes(s, portfolioValue, q.params.PositionSizePct)
}

// changeGatedSizes implements the statistical variants' shared sizing rule.
func changeGatedSizes(s *series.Series, portfolioValue, positionSizePct float64) (*series.Series, error) {
	signals, ok := s.Column(series.ColSignal)
	if !ok {
		return nil, series.DataError{Column: series.ColSignal, Reason: "not found; call GenerateSignals first"}
	}
	positionValue := portfolioValue * positionSizePct
	sizes := make([]float64, s.Len())
	for i := 1; i < s.Len(); i++ {
		current := signalValue(signals[i])
		if current == series.Hold || current == signalValue(signals[i-1]) {
			continue
		}
		close := s.Bar(i).Close
		if close <= 0 {
			continue
		}
		shares := positionValue / close
		if current == series.Sell {
			shares = -shares
		}
		sizes[i] = shares
	}
	return s.WithColumn(series.ColPositionSize, sizes)
}

func indexOf(names []string, target string) (int, bool) {
	for i, name := range names {
		if name == target {
			return i, true
		}
	}
	return 0, false
}

func flatten(rows [][]float64) []float64 {
	out := make([]float64, 0, len(rows)*len(rows[0]))
	for _, row := range rows {
		out = append(out, row...)
	}
	return out
}

// logitModel is a logistic-regression binary classifier trained with batch
// gradient descent. Zero initialization keeps the fit deterministic.
type logitModel struct {
	weights []float64
	bias    float64
}

func newLogitModel(inputs int) *logitModel {
	return &logitModel{weights: make([]float64, inputs)}
}

const logitLearningRate = 0.1

func (m *logitModel) fit(inputs [][]float64, labels []float64, epochs int) {
	n := float64(len(inputs))
	grad := make([]float64, len(m.weights))
	for epoch := 0; epoch < epochs; epoch++ {
		for j := range grad {
			grad[j] = 0
		}
		gradBias := 0.0
		for i, x := range inputs {
			residual := m.predict(x) - labels[i]
			for j, v := range x {
				grad[j] += residual * v
			}
			gradBias += residual
		}
		for j := range m.weights {
			m.weights[j] -= logitLearningRate * grad[j] / n
		}
		m.bias -= logitLearningRate * gradBias / n
	}
}

func (m *logitModel) predict(x []float64) float64 {
	z := m.bias
	for j, v := range x {
		z += m.weights[j] * v
	}
	return 1 / (1 + math.Exp(-z))
}

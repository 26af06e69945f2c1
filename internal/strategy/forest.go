package strategy

import (
	"math"
	"math/rand"
	"sort"

	"github.com/rs/zerolog"

	"quantbt-go/internal/series"
)

// forestSeed fixes the bootstrap and feature sampling for reproducible fits.
const forestSeed = 42

// minForestRows is the smallest feature table worth training on; anything
// less degrades to hold signals.
const minForestRows = 50

// ForestParams tunes the ensemble-tree classifier variant.
type ForestParams struct {
	NEstimators       int      `yaml:"n_estimators"`
	MaxDepth          int      `yaml:"max_depth"`
	MinSamplesSplit   int      `yaml:"min_samples_split"`
	MinSamplesLeaf    int      `yaml:"min_samples_leaf"`
	Features          []string `yaml:"features"`
	LookbackPeriods   []int    `yaml:"lookback_periods"`
	PredictionHorizon int      `yaml:"prediction_horizon"`
	Threshold         float64  `yaml:"threshold"`
	PositionSizePct   float64  `yaml:"position_size_pct"`
}

func (p ForestParams) withDefaults() ForestParams {
	if p.NEstimators == 0 {
		p.NEstimators = 100
	}
	if p.MaxDepth == 0 {
		p.MaxDepth = 10
	}
	if p.MinSamplesSplit == 0 {
		p.MinSamplesSplit = 2
	}
	if p.MinSamplesLeaf == 0 {
		p.MinSamplesLeaf = 1
	}
	if len(p.Features) == 0 {
		p.Features = []string{"open", "high", "low", "close", "volume", "rsi", "macd"}
	}
	if len(p.LookbackPeriods) == 0 {
		p.LookbackPeriods = []int{1, 3, 5, 10, 20}
	}
	if p.PredictionHorizon == 0 {
		p.PredictionHorizon = 5
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
func (p ForestParams) Validate() error {
	if p.NEstimators <= 0 {
		return ConfigError{Option: "n_estimators", Reason: "must be a positive integer"}
	}
	if p.MaxDepth <= 0 {
		return ConfigError{Option: "max_depth", Reason: "must be a positive integer"}
	}
	if p.MinSamplesSplit < 2 {
		return ConfigError{Option: "min_samples_split", Reason: "must be at least 2"}
	}
	if p.MinSamplesLeaf <= 0 {
		return ConfigError{Option: "min_samples_leaf", Reason: "must be a positive integer"}
	}
	if len(p.Features) == 0 {
		return ConfigError{Option: "features", Reason: "must be a non-empty list"}
	}
	if len(p.LookbackPeriods) == 0 {
		return ConfigError{Option: "lookback_periods", Reason: "must be a non-empty list"}
	}
	if p.PredictionHorizon <= 0 {
		return ConfigError{Option: "prediction_horizon", Reason: "must be a positive integer"}
	}
	if p.Threshold < 0.5 || p.Threshold > 1 {
		return ConfigError{Option: "threshold", Reason: "must be between 0.5 and 1"}
	}
	if p.PositionSizePct <= 0 || p.PositionSizePct > 1 {
		return ConfigError{Option: "position_size_pct", Reason: "must be between 0 and 1"}
	}
	return nil
}

// RandomForest fits a bagged-tree classifier over engineered features and
// signals when the predicted probability of a higher close crosses the
// threshold. The model and scaler are owned by this instance; do not share
// one instance across concurrent backtests.
//
// Like the sequence variant, fitting and scoring overlap within a single
// GenerateSignals pass.
type RandomForest struct {
	params ForestParams
	log    zerolog.Logger

	model  *forestClassifier
	scaler *standardScaler
}

// NewRandomForest merges defaults into the supplied parameters and validates
// them.
func NewRandomForest(params ForestParams) (*RandomForest, error) {
	merged := params.withDefaults()
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &RandomForest{params: merged, log: zerolog.Nop()}, nil
}

// SetLogger routes degrade warnings somewhere visible.
func (f *RandomForest) SetLogger(log zerolog.Logger) { f.log = log }

// Name identifies the variant.
func (f *RandomForest) Name() string { return "random_forest" }

// Params returns the validated configuration.
func (f *RandomForest) Params() ForestParams { return f.params }

// GenerateSignals engineers features, fits the forest, and scores the same
// rows. Too little data degrades to an all-Hold series with a logged warning
// rather than an error.
func (f *RandomForest) GenerateSignals(s *series.Series) (*series.Series, error) {
	hold := make([]float64, s.Len())

	kept, skipped, err := selectFeatures(s, f.params.Features)
	for _, name := range skipped {
		f.log.Warn().Str("feature", name).Msg("feature not found in data, skipping")
	}
	if err != nil {
		f.log.Warn().Err(err).Msg("random forest degrading to hold signals")
		return s.WithColumn(series.ColSignal, hold)
	}

	set, err := buildForestFeatures(s, kept, f.params.LookbackPeriods, f.params.PredictionHorizon)
	if err != nil {
		return nil, err
	}
	if len(set.rows) < minForestRows {
		f.log.Warn().Int("rows", len(set.rows)).Msg("not enough data for random forest, returning no signals")
		return s.WithColumn(series.ColSignal, hold)
	}

	f.scaler = &standardScaler{}
	f.scaler.fit(set.rows)
	scaled := f.scaler.transform(set.rows)

	f.model = newForestClassifier(f.params.NEstimators, f.params.MaxDepth, f.params.MinSamplesSplit, f.params.MinSamplesLeaf)
	f.model.fit(scaled, set.targets, forestSeed)

	signals := make([]float64, s.Len())
	for i, row := range scaled {
		p := f.model.predictProba(row)
		if p >= f.params.Threshold {
			signals[set.barIndex[i]] = float64(series.Buy)
		} else if p <= 1-f.params.Threshold {
			signals[set.barIndex[i]] = float64(series.Sell)
		}
	}
	return s.WithColumn(series.ColSignal, signals)
}

// PositionSizes allocates a fixed fraction of portfolio value at each bar
// where the signal changed to a non-Hold value, priced at that bar's close.
func (f *RandomForest) PositionSizes(s *series.Series, portfolioValue float64) (*series.Series, error) {
	return changeGatedSizes(s, portfolioValue, f.params.PositionSizePct)
}

// forestClassifier is a random forest of binary-probability trees: bootstrap
// sampling per tree, sqrt feature subsampling per split, gini splits.
type forestClassifier struct {
	trees           []*treeNode
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
}

type treeNode struct {
	leaf      bool
	prob      float64
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
}

func newForestClassifier(nEstimators, maxDepth, minSamplesSplit, minSamplesLeaf int) *forestClassifier {
	return &forestClassifier{
		trees:           make([]*treeNode, 0, nEstimators),
		maxDepth:        maxDepth,
		minSamplesSplit: minSamplesSplit,
		minSamplesLeaf:  minSamplesLeaf,
	}
}

func (c *forestClassifier) fit(rows [][]float64, targets []float64, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	n := len(rows)
	for t := 0; t < cap(c.trees); t++ {
		indices := make([]int, n)
		for i := range indices {
			indices[i] = rng.Intn(n)
		}
		c.trees = append(c.trees, c.buildTree(rows, targets, indices, 0, rng))
	}
}

func (c *forestClassifier) predictProba(row []float64) float64 {
	sum := 0.0
	for _, tree := range c.trees {
		node := tree
		for !node.leaf {
			if row[node.feature] <= node.threshold {
				node = node.left
			} else {
				node = node.right
			}
		}
		sum += node.prob
	}
	return sum / float64(len(c.trees))
}

func (c *forestClassifier) buildTree(rows [][]float64, targets []float64, indices []int, depth int, rng *rand.Rand) *treeNode {
	positives := 0.0
	for _, i := range indices {
		positives += targets[i]
	}
	prob := positives / float64(len(indices))

	if depth >= c.maxDepth || len(indices) < c.minSamplesSplit || prob == 0 || prob == 1 {
		return &treeNode{leaf: true, prob: prob}
	}

	feature, threshold, ok := c.bestSplit(rows, targets, indices, rng)
	if !ok {
		return &treeNode{leaf: true, prob: prob}
	}

	var left, right []int
	for _, i := range indices {
		if rows[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &treeNode{
		feature:   feature,
		threshold: threshold,
		left:      c.buildTree(rows, targets, left, depth+1, rng),
		right:     c.buildTree(rows, targets, right, depth+1, rng),
	}
}

// bestSplit searches a sqrt-sized random feature subset for the gini-optimal
// threshold honoring the minimum leaf size.
func (c *forestClassifier) bestSplit(rows [][]float64, targets []float64, indices []int, rng *rand.Rand) (int, float64, bool) {
	nFeatures := len(rows[0])
	subset := rng.Perm(nFeatures)[:maxInt(1, int(math.Sqrt(float64(nFeatures))))]

	bestGini := math.Inf(1)
	bestFeature, bestThreshold := -1, 0.0

	sorted := make([]int, len(indices))
	for _, feature := range subset {
		copy(sorted, indices)
		sort.Slice(sorted, func(a, b int) bool {
			return rows[sorted[a]][feature] < rows[sorted[b]][feature]
		})

		leftPos, rightPos := 0.0, 0.0
		for _, i := range sorted {
			rightPos += targets[i]
		}
		for split := 1; split < len(sorted); split++ {
			moved := sorted[split-1]
			leftPos += targets[moved]
			rightPos -= targets[moved]

			if rows[sorted[split-1]][feature] == rows[sorted[split]][feature] {
				continue
			}
			if split < c.minSamplesLeaf || len(sorted)-split < c.minSamplesLeaf {
				continue
			}

			gini := weightedGini(leftPos, float64(split), rightPos, float64(len(sorted)-split))
			if gini < bestGini {
				bestGini = gini
				bestFeature = feature
				bestThreshold = (rows[sorted[split-1]][feature] + rows[sorted[split]][feature]) / 2
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func weightedGini(leftPos, leftN, rightPos, rightN float64) float64 {
	gini := func(pos, n float64) float64 {
		p := pos / n
		return 2 * p * (1 - p)
	}
	total := leftN + rightN
	return leftN/total*gini(leftPos, leftN) + rightN/total*gini(rightPos, rightN)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

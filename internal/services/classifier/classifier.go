package classifier

import (
	"math"
	"sort"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/services/features"
	"TradePilot/pkg/logger"
)

// horizon is the fixed look-ahead, in bars, used to realize a neighbor's
// forward return.
const horizon = 4

// baseThreshold is the flat decision threshold before regime widening.
const baseThreshold = 0.001

// Classifier derives a directional signal from the Lorentzian-distance
// nearest neighbors of the current feature vector. It holds no mutable
// state: Predict is a pure function of the bar window and the validated
// parameter set, so instruments may be evaluated in parallel.
type Classifier struct {
	params models.ParameterSet
	engine *features.Engine
	log    *logger.Logger
}

// New validates the parameter set before any data is touched and returns a
// configured classifier.
func New(params models.ParameterSet, log *logger.Logger) (*Classifier, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Classifier{
		params: params,
		engine: features.NewEngine(features.Config{
			FeatureCount:        params.FeatureCount,
			VolatilityLookback:  params.VolatilityLookback,
			TrendStrengthWeight: params.TrendStrengthWeight,
			MaxCorrelation:      params.MaxCorrelation,
		}),
		log: log,
	}, nil
}

// Params returns the immutable configuration.
func (c *Classifier) Params() models.ParameterSet { return c.params }

type neighbor struct {
	index    int
	distance float64
}

// Predict returns the directional signal for the final bar of the window.
// Insufficient history is a defined quiescent state, not an error; any
// arithmetic fault is converted to HOLD so a caller's loop over many
// instruments or parameter sets never aborts.
func (c *Classifier) Predict(bars []models.Bar) (res models.PredictionResult) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("prediction fault converted to HOLD", logger.Any("cause", r))
			res = models.PredictionResult{Signal: models.Hold}
		}
	}()

	matrix, err := c.engine.Compute(bars)
	if err != nil {
		c.log.Debug("feature computation skipped", logger.Error(err))
		return models.PredictionResult{Signal: models.Hold}
	}
	if len(matrix.Rows) < 2 {
		return models.PredictionResult{Signal: models.Hold}
	}

	query := matrix.Last()
	pool := matrix.Rows[:len(matrix.Rows)-1]
	if len(pool) < c.params.NeighborsCount {
		return models.PredictionResult{Signal: models.Hold}
	}

	nearest := c.nearestNeighbors(query, pool)

	closes := models.Closes(bars)
	returns := make([]float64, 0, len(nearest))
	agree := 0
	for _, nb := range nearest {
		// neighbors whose look-ahead runs past the series are excluded,
		// not substituted
		if nb.index+horizon >= len(closes) {
			continue
		}
		base := closes[nb.index]
		if base == 0 {
			continue
		}
		returns = append(returns, (closes[nb.index+horizon]-base)/base)
	}
	if len(returns) == 0 {
		return models.PredictionResult{Signal: models.Hold}
	}

	mean, std := meanStd(returns)
	if std == 0 {
		// zero variance across neighbor returns leaves confidence undefined
		return models.PredictionResult{Signal: models.Hold}
	}
	if math.IsNaN(mean) || math.IsNaN(std) {
		c.log.Warn("degenerate neighbor returns, holding",
			logger.Float64("mean", mean), logger.Float64("std", std))
		return models.PredictionResult{Signal: models.Hold}
	}

	threshold := c.adaptiveThreshold(matrix)
	signal := models.Hold
	switch {
	case mean > threshold && mean > 2*std:
		signal = models.Long
	case mean < -threshold && math.Abs(mean) > 2*std:
		signal = models.Short
	}

	z := mean / std
	for _, r := range returns {
		if (r > 0) == (mean > 0) && r != 0 {
			agree++
		}
	}
	return models.PredictionResult{
		Signal:        signal,
		Confidence:    sigmoid(z),
		TrendStrength: float64(agree) / float64(len(returns)) * math.Abs(z) / 2,
		Defined:       true,
	}
}

// nearestNeighbors selects the k smallest Lorentzian distances. The sort is
// stable and equal distances keep the lower (older) original index first,
// so selection is reproducible across runs.
func (c *Classifier) nearestNeighbors(query []float64, pool [][]float64) []neighbor {
	ns := make([]neighbor, len(pool))
	for i, cand := range pool {
		ns[i] = neighbor{index: i, distance: LorentzianDistance(query, cand)}
	}
	sort.SliceStable(ns, func(a, b int) bool {
		return ns[a].distance < ns[b].distance
	})
	k := c.params.NeighborsCount
	if k > len(ns) {
		k = len(ns)
	}
	return ns[:k]
}

// LorentzianDistance sums ln(1+|delta|) across feature dimensions,
// compressing outlier deltas logarithmically so a single anomalous
// indicator spike cannot dominate neighbor selection. Dimensions where
// either operand is undefined are skipped rather than zero-filled.
func LorentzianDistance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		sum += math.Log(1 + math.Abs(a[i]-b[i]))
	}
	return sum
}

// adaptiveThreshold widens the base threshold in volatile or strongly
// trending regimes; calm regimes are treated as more reliable for small
// edges. A pruned regime column contributes no widening.
func (c *Classifier) adaptiveThreshold(m features.Matrix) float64 {
	last := m.Last()
	vol, trend := 0.0, 0.0
	if j, ok := m.Column(features.ColVolatility); ok {
		vol = last[j]
	}
	if j, ok := m.Column(features.ColTrendStrength); ok {
		trend = last[j]
	}
	return baseThreshold * (1 + vol) * (1 + math.Abs(trend))
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	mean := 0.0
	for _, v := range xs {
		mean += v
	}
	mean /= float64(len(xs))
	var sq float64
	for _, v := range xs {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}

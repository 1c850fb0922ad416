package optimizer

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/domain/repository"
	"TradePilot/internal/services/classifier"
	"TradePilot/pkg/logger"
)

// forwardHorizon mirrors the classifier's fixed look-ahead when realizing
// a chunk signal's forward return.
const forwardHorizon = 4

// barsPerYear annualizes the Sharpe ratio over daily-equivalent periods.
const barsPerYear = 252

// Score weights for the combined configuration score.
const (
	weightSharpe       = 0.35
	weightWinRate      = 0.25
	weightProfitFactor = 0.20
	weightDrawdown     = 0.20
	tradeBonusCap      = 0.10
)

// Grid is the Cartesian parameter space the sweep walks.
type Grid struct {
	Neighbors    []int
	Features     []int
	VolLookbacks []int
	TrendWeights []float64
	Correlations []float64
}

// Combinations expands the grid in a fixed order so two runs visit the
// same sequence.
func (g Grid) Combinations() []models.ParameterSet {
	out := make([]models.ParameterSet, 0,
		len(g.Neighbors)*len(g.Features)*len(g.VolLookbacks)*len(g.TrendWeights)*len(g.Correlations))
	for _, k := range g.Neighbors {
		for _, f := range g.Features {
			for _, vl := range g.VolLookbacks {
				for _, tw := range g.TrendWeights {
					for _, mc := range g.Correlations {
						out = append(out, models.ParameterSet{
							NeighborsCount:      k,
							FeatureCount:        f,
							VolatilityLookback:  vl,
							TrendStrengthWeight: tw,
							MaxCorrelation:      mc,
						})
					}
				}
			}
		}
	}
	return out
}

// Evaluator scores one parameter set against the historical series. ok is
// false when the configuration is discarded rather than scored (invalid
// parameters, or too few signals for the metrics to mean anything).
type Evaluator interface {
	Evaluate(bars []models.Bar, p models.ParameterSet) (models.StrategyMetrics, bool)
}

// Config bounds the sweep.
type Config struct {
	Grid            Grid
	EvalChunkSize   int
	MinSignals      int
	MinTrades       int
	DrawdownCeiling float64
	Workers         int
}

// Optimizer drives the grid sweep: fetch (or receive) the historical
// series, evaluate every not-yet-done combination, score survivors, and
// persist progress and the running best after every step.
type Optimizer struct {
	fetcher   *Fetcher
	evaluator Evaluator
	state     *StateStore
	results   repository.ResultStore
	metrics   repository.Metrics
	cfg       Config
	log       *logger.Logger
}

func New(fetcher *Fetcher, state *StateStore, results repository.ResultStore,
	metrics repository.Metrics, cfg Config, log *logger.Logger) *Optimizer {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.EvalChunkSize <= 0 {
		cfg.EvalChunkSize = 500
	}
	o := &Optimizer{
		fetcher: fetcher, state: state, results: results,
		metrics: metrics, cfg: cfg, log: log,
	}
	o.evaluator = &chunkEvaluator{
		chunkSize:  cfg.EvalChunkSize,
		minSignals: cfg.MinSignals,
		log:        log,
	}
	return o
}

// SetEvaluator overrides the evaluation strategy; used in tests.
func (o *Optimizer) SetEvaluator(e Evaluator) { o.evaluator = e }

// Run executes the sweep and returns the best result found, which may
// come from a previous partial run. The sweep is parallel across
// parameter sets; only the evaluated-set append and best update are
// serialized.
func (o *Optimizer) Run(ctx context.Context) (models.OptimizationResult, error) {
	bars, err := o.fetcher.Historical(ctx)
	if err != nil {
		return models.OptimizationResult{}, err
	}

	combos := o.cfg.Grid.Combinations()
	sweep := o.state.LoadSweep()
	o.log.Info("starting parameter sweep",
		logger.Int("combinations", len(combos)),
		logger.Int("already_evaluated", len(sweep.Evaluated)),
		logger.Int("bars", len(bars)))

	var mu sync.Mutex
	work := make(chan models.ParameterSet)
	var wg sync.WaitGroup

	for w := 0; w < o.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range work {
				o.runOne(ctx, bars, p, &sweep, &mu)
			}
		}()
	}

feed:
	for _, p := range combos {
		mu.Lock()
		done := sweep.Evaluated[p.Key()]
		mu.Unlock()
		if done {
			continue
		}
		select {
		case work <- p:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if sweep.Best == nil {
		if err := ctx.Err(); err != nil {
			return models.OptimizationResult{}, err
		}
		return models.OptimizationResult{}, fmt.Errorf("%w: no configuration produced a scorable result",
			models.ErrDataQualityInsufficient)
	}
	return *sweep.Best, nil
}

func (o *Optimizer) runOne(ctx context.Context, bars []models.Bar, p models.ParameterSet,
	sweep *SweepState, mu *sync.Mutex) {
	start := time.Now()
	metrics, ok := o.evaluator.Evaluate(bars, p)
	if o.metrics != nil {
		o.metrics.RecordEvaluation(time.Since(start).Seconds())
	}

	mu.Lock()
	defer mu.Unlock()
	sweep.Evaluated[p.Key()] = true

	if ok {
		score := o.Score(metrics)
		if !math.IsInf(score, -1) && (sweep.Best == nil || score > sweep.Best.Score) {
			best := models.OptimizationResult{
				Params:    p,
				Metrics:   metrics,
				Score:     score,
				Evaluated: time.Now().UTC(),
			}
			sweep.Best = &best
			o.log.Info("new best configuration",
				logger.String("params", p.Key()),
				logger.Float64("score", score),
				logger.Float64("sharpe", metrics.SharpeRatio),
				logger.Int("trades", metrics.TotalTrades))
			if o.metrics != nil {
				o.metrics.RecordBestScore(score)
			}
			if o.results != nil {
				if err := o.results.MarkBest(ctx, best); err != nil {
					o.log.Error("persist best failed", logger.Error(err))
				}
			}
		} else if o.results != nil {
			if err := o.results.Persist(ctx, models.OptimizationResult{
				Params: p, Metrics: metrics, Score: score, Evaluated: time.Now().UTC(),
			}); err != nil {
				o.log.Warn("persist result failed", logger.Error(err))
			}
		}
	}

	if err := o.state.SaveSweep(*sweep); err != nil {
		o.log.Warn("sweep state save failed", logger.Error(err))
	}
}

// Score combines the metrics into one comparable number. Configurations
// under the minimum trade count or over the drawdown ceiling score
// negative infinity and can never become best.
func (o *Optimizer) Score(m models.StrategyMetrics) float64 {
	if m.TotalTrades < o.cfg.MinTrades || m.MaxDrawdown > o.cfg.DrawdownCeiling {
		return math.Inf(-1)
	}
	score := weightSharpe*m.SharpeRatio +
		weightWinRate*m.WinRate +
		weightProfitFactor*m.ProfitFactor +
		weightDrawdown*(1-m.MaxDrawdown)
	bonus := float64(m.TotalTrades) / 1000
	if bonus > tradeBonusCap {
		bonus = tradeBonusCap
	}
	return score + bonus
}

// chunkEvaluator slides a classifier over fixed-size non-overlapping
// chunks of the series, pairing each non-HOLD signal with its realized
// forward return. A fault in one chunk skips that chunk, never the sweep.
type chunkEvaluator struct {
	chunkSize  int
	minSignals int
	log        *logger.Logger
}

func (e *chunkEvaluator) Evaluate(bars []models.Bar, p models.ParameterSet) (models.StrategyMetrics, bool) {
	cls, err := classifier.New(p, e.log)
	if err != nil {
		e.log.Warn("configuration discarded", logger.String("params", p.Key()), logger.Error(err))
		return models.StrategyMetrics{}, false
	}

	closes := models.Closes(bars)
	signals := make([]models.Signal, 0)
	returns := make([]float64, 0)

	for start := 0; start+e.chunkSize+forwardHorizon <= len(bars); start += e.chunkSize {
		end := start + e.chunkSize
		pred := cls.Predict(bars[start:end])
		if pred.Signal == models.Hold {
			continue
		}
		base := closes[end-1]
		if base == 0 {
			continue
		}
		signals = append(signals, pred.Signal)
		returns = append(returns, (closes[end-1+forwardHorizon]-base)/base)
	}

	if len(signals) < e.minSignals {
		return models.StrategyMetrics{}, false
	}
	return ComputeMetrics(signals, returns), true
}

// ComputeMetrics derives the performance statistics from matched
// (signal, forward return) pairs.
func ComputeMetrics(signals []models.Signal, returns []float64) models.StrategyMetrics {
	signed := make([]float64, 0, len(returns))
	for i, s := range signals {
		r := returns[i]
		if math.IsNaN(r) {
			continue
		}
		switch s {
		case models.Long:
			signed = append(signed, r)
		case models.Short:
			signed = append(signed, -r)
		}
	}
	if len(signed) == 0 {
		return models.StrategyMetrics{}
	}

	wins := 0
	var mean float64
	var gains, losses float64
	for _, r := range signed {
		mean += r
		if r > 0 {
			wins++
			gains += r
		} else if r < 0 {
			losses += -r
		}
	}
	mean /= float64(len(signed))

	var sq float64
	for _, r := range signed {
		d := r - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(signed)))

	sharpe := 0.0
	if std > 0 {
		sharpe = mean / std * math.Sqrt(barsPerYear)
	}
	profitFactor := 0.0
	if losses > 0 {
		profitFactor = gains / losses
	}

	var cum, peak, maxDD float64
	for _, r := range signed {
		cum += r
		if cum > peak {
			peak = cum
		}
		denom := peak
		if denom == 0 {
			denom = 1
		}
		if dd := (peak - cum) / denom; dd > maxDD {
			maxDD = dd
		}
	}

	return models.StrategyMetrics{
		SharpeRatio:  sharpe,
		WinRate:      float64(wins) / float64(len(signed)),
		ProfitFactor: profitFactor,
		MaxDrawdown:  maxDD,
		TotalTrades:  len(signed),
	}
}

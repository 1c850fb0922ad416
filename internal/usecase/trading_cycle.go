package usecase

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/domain/repository"
	"TradePilot/internal/services/classifier"
	"TradePilot/internal/services/features"
	"TradePilot/internal/services/risk"
	"TradePilot/pkg/logger"
)

// longTrendPeriod is the slow EMA/SMA period the directional filter uses.
// Signals against the long-term trend are downgraded to HOLD.
const longTrendPeriod = 200

// returnWindow is how many trailing simple returns feed the risk snapshot.
const returnWindow = 20

// correlationBars is the history depth fetched per open position when
// checking cross-correlation against a prospective trade.
const correlationBars = returnWindow + 1

// TradingCycleConfig bounds one cycle run.
type TradingCycleConfig struct {
	Instruments []string
	HistoryBars int
}

// TradingCycle runs the signal-to-order pipeline for every configured
// instrument: fetch history, classify, filter by the long-term trend,
// gate through risk, size, and execute.
type TradingCycle struct {
	broker    repository.Broker
	risk      *risk.Manager
	snapshots *SnapshotStore
	trades    repository.TradeStore
	publisher repository.DecisionPublisher
	metrics   repository.Metrics
	cfg       TradingCycleConfig
	log       *logger.Logger

	mu  sync.RWMutex
	cls *classifier.Classifier
}

func NewTradingCycle(broker repository.Broker, cls *classifier.Classifier, rm *risk.Manager,
	snapshots *SnapshotStore, trades repository.TradeStore, publisher repository.DecisionPublisher,
	metrics repository.Metrics, cfg TradingCycleConfig, log *logger.Logger) *TradingCycle {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.HistoryBars <= 0 {
		cfg.HistoryBars = 250
	}
	return &TradingCycle{
		broker:    broker,
		cls:       cls,
		risk:      rm,
		snapshots: snapshots,
		trades:    trades,
		publisher: publisher,
		metrics:   metrics,
		cfg:       cfg,
		log:       log,
	}
}

// UpdateParameters swaps in a classifier built from a new configuration,
// typically the optimizer's current best. The running cycle picks it up on
// its next pass.
func (tc *TradingCycle) UpdateParameters(p models.ParameterSet) error {
	cls, err := classifier.New(p, tc.log)
	if err != nil {
		return err
	}
	tc.mu.Lock()
	tc.cls = cls
	tc.mu.Unlock()
	tc.log.Info("classifier parameters updated", logger.String("params", p.Key()))
	return nil
}

func (tc *TradingCycle) currentClassifier() *classifier.Classifier {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.cls
}

// Run executes one full cycle. Per-instrument failures are logged and
// skipped; one bad feed never stalls the rest.
func (tc *TradingCycle) Run(ctx context.Context) {
	for _, instrument := range tc.cfg.Instruments {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := tc.runInstrument(ctx, instrument); err != nil {
			if tc.metrics != nil {
				tc.metrics.RecordError("trading_cycle")
			}
			tc.log.Error("trading cycle failed",
				logger.String("instrument", instrument),
				logger.Error(err))
		}
	}
}

func (tc *TradingCycle) runInstrument(ctx context.Context, instrument string) error {
	bars, err := tc.broker.FetchBars(ctx, instrument, tc.cfg.HistoryBars)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		return fmt.Errorf("%w: no bars for %s", models.ErrInsufficientData, instrument)
	}

	pred := tc.currentClassifier().Predict(bars)
	closes := models.Closes(bars)
	price := closes[len(closes)-1]
	if tc.metrics != nil {
		tc.metrics.RecordLastPrice(instrument, price)
	}

	if filtered := trendFilter(pred.Signal, closes); filtered != pred.Signal {
		tc.log.Debug("signal filtered by long-term trend",
			logger.String("instrument", instrument),
			logger.String("signal", pred.Signal.String()))
		pred.Signal = filtered
	}

	snapshot := marketSnapshot(instrument, bars)
	snap := models.SignalSnapshot{
		Instrument: instrument,
		Time:       time.Now().UTC(),
		Prediction: pred,
	}

	if pred.Signal == models.Hold {
		snap.Decision = models.Decision{Allow: false, Reason: "no actionable signal"}
		tc.publish(ctx, snap, "hold")
		return nil
	}

	open, err := tc.broker.OpenPositions(ctx)
	if err != nil {
		return err
	}
	tc.fillPositionReturns(ctx, open)

	decision := tc.risk.Evaluate(snapshot, open)
	if decision.Allow {
		account, err := tc.broker.AccountSummary(ctx)
		if err != nil {
			return err
		}
		decision.Size = tc.risk.SizePosition(account.Balance, snapshot)
	}
	snap.Decision = decision

	if !decision.Allow {
		if tc.metrics != nil {
			tc.metrics.RecordDenial(decision.Reason)
		}
		tc.log.Info("trade denied",
			logger.String("instrument", instrument),
			logger.String("signal", pred.Signal.String()),
			logger.String("reason", decision.Reason))
		tc.publish(ctx, snap, "denied")
		return nil
	}

	id, err := tc.broker.SubmitOrder(ctx, instrument, pred.Signal, decision.Size)
	if err != nil {
		tc.publish(ctx, snap, "error")
		return err
	}
	snap.Executed = true

	if tc.trades != nil {
		record := models.TradeRecord{
			ID:         id,
			Instrument: instrument,
			Direction:  pred.Signal,
			Units:      decision.Size,
			EntryPrice: price,
			OpenedAt:   snap.Time,
		}
		if err := tc.trades.Record(ctx, record); err != nil {
			tc.log.Warn("trade record failed", logger.Error(err))
		}
	}

	tc.log.Info("trade executed",
		logger.String("instrument", instrument),
		logger.String("signal", pred.Signal.String()),
		logger.Float64("units", decision.Size),
		logger.Float64("confidence", pred.Confidence),
		logger.String("order_id", id))
	tc.publish(ctx, snap, "executed")
	return nil
}

func (tc *TradingCycle) publish(ctx context.Context, snap models.SignalSnapshot, outcome string) {
	snap = tc.snapshots.Publish(snap)
	if tc.metrics != nil {
		tc.metrics.RecordDecision(snap.Instrument, outcome)
	}
	if tc.publisher != nil {
		if err := tc.publisher.PublishDecision(ctx, snap); err != nil {
			tc.log.Warn("decision publish failed", logger.Error(err))
		}
	}
}

// fillPositionReturns fetches a short history per open position so the
// correlation gate has something to compare against.
func (tc *TradingCycle) fillPositionReturns(ctx context.Context, open []models.Position) {
	for i := range open {
		bars, err := tc.broker.FetchBars(ctx, open[i].Instrument, correlationBars)
		if err != nil {
			tc.log.Debug("position history unavailable",
				logger.String("instrument", open[i].Instrument),
				logger.Error(err))
			continue
		}
		open[i].Returns = simpleReturns(models.Closes(bars))
	}
}

// trendFilter downgrades signals that fight the long-term trend. With too
// little history for the slow averages the signal passes through.
func trendFilter(sig models.Signal, closes []float64) models.Signal {
	if sig == models.Hold || len(closes) < longTrendPeriod {
		return sig
	}
	ema := features.EMA(closes, longTrendPeriod)
	sma := features.SMA(closes, longTrendPeriod)
	lastEMA := ema[len(ema)-1]
	lastSMA := sma[len(sma)-1]
	if math.IsNaN(lastEMA) || math.IsNaN(lastSMA) {
		return sig
	}
	price := closes[len(closes)-1]
	switch sig {
	case models.Long:
		if price < lastEMA || price < lastSMA {
			return models.Hold
		}
	case models.Short:
		if price > lastEMA || price > lastSMA {
			return models.Hold
		}
	}
	return sig
}

// marketSnapshot derives the risk gate's view of current conditions from
// the trailing bars.
func marketSnapshot(instrument string, bars []models.Bar) models.MarketSnapshot {
	closes := models.Closes(bars)
	returns := simpleReturns(closes)
	if len(returns) > returnWindow {
		returns = returns[len(returns)-returnWindow:]
	}

	vol := 0.0
	if len(returns) >= 2 {
		mean := 0.0
		for _, r := range returns {
			mean += r
		}
		mean /= float64(len(returns))
		var sq float64
		for _, r := range returns {
			d := r - mean
			sq += d * d
		}
		vol = math.Sqrt(sq/float64(len(returns))) * math.Sqrt(252)
	}

	return models.MarketSnapshot{
		Instrument: instrument,
		Price:      closes[len(closes)-1],
		Returns:    returns,
		Volatility: vol,
	}
}

func simpleReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (closes[i]-closes[i-1])/closes[i-1])
	}
	return out
}

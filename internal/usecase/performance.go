package usecase

import (
	"context"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/domain/repository"
	"TradePilot/internal/services/risk"
	"TradePilot/pkg/logger"
)

// maxPerformancePoints bounds the in-memory balance history.
const maxPerformancePoints = 100

// PerformanceSummary is the aggregate view the dashboard reads.
type PerformanceSummary struct {
	Balance      float64                   `json:"balance"`
	UnrealizedPL float64                   `json:"unrealized_pl"`
	MarginUsed   float64                   `json:"margin_used"`
	DailyTrades  int                       `json:"daily_trades"`
	DailyPnL     float64                   `json:"daily_pnl"`
	History      []models.PerformancePoint `json:"history"`
}

// PerformanceTracker samples account state on a fixed interval and keeps a
// bounded balance history. Oldest points are dropped first.
type PerformanceTracker struct {
	broker repository.Broker
	risk   *risk.Manager
	log    *logger.Logger

	mu      sync.RWMutex
	history []models.PerformancePoint
	latest  models.AccountSnapshot
}

func NewPerformanceTracker(broker repository.Broker, rm *risk.Manager, log *logger.Logger) *PerformanceTracker {
	if log == nil {
		log = logger.Nop()
	}
	return &PerformanceTracker{broker: broker, risk: rm, log: log}
}

// Sample fetches the account snapshot and appends one history point.
func (pt *PerformanceTracker) Sample(ctx context.Context) error {
	account, err := pt.broker.AccountSummary(ctx)
	if err != nil {
		return err
	}

	pt.mu.Lock()
	pt.latest = account
	pt.history = append(pt.history, models.PerformancePoint{
		Time:    time.Now().UTC(),
		Balance: account.Balance,
	})
	if len(pt.history) > maxPerformancePoints {
		pt.history = pt.history[len(pt.history)-maxPerformancePoints:]
	}
	pt.mu.Unlock()

	pt.log.Debug("performance sampled",
		logger.Float64("balance", account.Balance),
		logger.Float64("unrealized_pl", account.UnrealizedPL))
	return nil
}

// Summary returns the latest account state, daily risk counters, and a
// copy of the balance history.
func (pt *PerformanceTracker) Summary() PerformanceSummary {
	pt.mu.RLock()
	history := make([]models.PerformancePoint, len(pt.history))
	copy(history, pt.history)
	latest := pt.latest
	pt.mu.RUnlock()

	trades, pnl := 0, 0.0
	if pt.risk != nil {
		trades, pnl = pt.risk.DailyState()
	}
	return PerformanceSummary{
		Balance:      latest.Balance,
		UnrealizedPL: latest.UnrealizedPL,
		MarginUsed:   latest.MarginUsed,
		DailyTrades:  trades,
		DailyPnL:     pnl,
		History:      history,
	}
}

package usecase

import (
	"context"
	"fmt"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/domain/repository"
	"TradePilot/internal/services/risk"
	"TradePilot/pkg/logger"
)

// PositionCloser closes open positions on demand and folds the realized
// PnL into the risk manager's rolling windows.
type PositionCloser struct {
	broker repository.Broker
	risk   *risk.Manager
	log    *logger.Logger
}

func NewPositionCloser(broker repository.Broker, rm *risk.Manager, log *logger.Logger) *PositionCloser {
	if log == nil {
		log = logger.Nop()
	}
	return &PositionCloser{broker: broker, risk: rm, log: log}
}

// Close closes the position with the given ID and returns its last known
// unrealized PnL as the realized outcome.
func (pc *PositionCloser) Close(ctx context.Context, id string) (models.Position, error) {
	open, err := pc.broker.OpenPositions(ctx)
	if err != nil {
		return models.Position{}, err
	}

	var found *models.Position
	for i := range open {
		if open[i].ID == id {
			found = &open[i]
			break
		}
	}
	if found == nil {
		return models.Position{}, fmt.Errorf("position %s not open", id)
	}

	if err := pc.broker.ClosePosition(ctx, id); err != nil {
		return models.Position{}, err
	}
	if pc.risk != nil {
		pc.risk.RecordOutcome(found.PnL)
	}
	pc.log.Info("position closed",
		logger.String("id", id),
		logger.String("instrument", found.Instrument),
		logger.Float64("pnl", found.PnL))
	return *found, nil
}

package repository

import (
	"context"
	"time"

	"TradePilot/internal/domain/models"
)

// MarketData is the historical/market data source boundary.
type MarketData interface {
	// FetchBars returns up to count completed bars, oldest first.
	FetchBars(ctx context.Context, instrument string, count int) ([]models.Bar, error)
}

// Broker is the execution boundary. Order submission semantics (wire
// protocol, auth, retries) live behind this interface.
type Broker interface {
	MarketData
	SubmitOrder(ctx context.Context, instrument string, direction models.Signal, units float64) (string, error)
	OpenPositions(ctx context.Context) ([]models.Position, error)
	ClosePosition(ctx context.Context, id string) error
	AccountSummary(ctx context.Context) (models.AccountSnapshot, error)
}

// PriceStream is a live price feed for the configured instruments.
type PriceStream interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.Tick, <-chan error)
	Close() error
}

// SeriesCache persists historical bar series with TTL semantics. Age is
// measured from the write; a read past the TTL is a miss.
type SeriesCache interface {
	Read(ctx context.Context, key string, maxAge time.Duration) ([]models.Bar, bool)
	Write(ctx context.Context, key string, bars []models.Bar) error
}

// ResultStore durably persists optimization results. MarkBest atomically
// reassigns the current-best flag: the old best is cleared and the new one
// set as one logical update.
type ResultStore interface {
	Persist(ctx context.Context, res models.OptimizationResult) error
	MarkBest(ctx context.Context, res models.OptimizationResult) error
	Best(ctx context.Context) (models.OptimizationResult, bool, error)
}

// TradeStore records executed trades for the dashboard boundary.
type TradeStore interface {
	Record(ctx context.Context, t models.TradeRecord) error
	Recent(ctx context.Context, limit int) ([]models.TradeRecord, error)
}

// DecisionPublisher emits trade decisions as events keyed by instrument.
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, snap models.SignalSnapshot) error
	Close() error
}

// Metrics abstracts operational metric recording.
type Metrics interface {
	RecordDecision(instrument, outcome string)
	RecordDenial(reason string)
	RecordError(kind string)
	RecordLastPrice(instrument string, price float64)
	RecordEvaluation(seconds float64)
	RecordFetchChunk(ok bool)
	RecordBestScore(score float64)
}

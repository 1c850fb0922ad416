package models

import "time"

// Signal is a directional trading signal. Hold is the zero value: the
// default and the quiescent outcome, never an error.
type Signal int

const (
	Hold Signal = iota
	Long
	Short
)

func (s Signal) String() string {
	switch s {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "HOLD"
	}
}

// PredictionResult is the classifier output for one window.
// Confidence is only meaningful when Defined is true; a HOLD produced by
// insufficient history or zero variance leaves it undefined.
type PredictionResult struct {
	Signal        Signal
	Confidence    float64 // in [0,1]
	TrendStrength float64 // >= 0
	Defined       bool
}

// Decision is the risk gate verdict for a prospective trade. Reason is
// always populated, for Allow as well as Deny, so callers log uniformly.
type Decision struct {
	Allow  bool
	Reason string
	Size   float64
}

// SignalSnapshot is the immutable per-instrument outcome of one trading
// cycle. The snapshot store hands copies to readers; nothing mutates a
// published snapshot.
type SignalSnapshot struct {
	Instrument string
	Time       time.Time
	Prediction PredictionResult
	Decision   Decision
	Executed   bool
	Version    uint64
}

// TradeRecord is one executed trade, persisted for the dashboard boundary.
type TradeRecord struct {
	ID         string
	Instrument string
	Direction  Signal
	Units      float64
	EntryPrice float64
	PnL        float64
	OpenedAt   time.Time
	ClosedAt   time.Time
}

// PerformancePoint is one (timestamp, balance) observation of the bounded
// performance history series.
type PerformancePoint struct {
	Time    time.Time
	Balance float64
}

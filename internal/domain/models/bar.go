package models

import "time"

// Bar represents one OHLCV observation for a fixed period.
// Bars are immutable once produced by the data source.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Closes extracts the close series from a bar window.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Tick is one live price observation from the streaming feed.
type Tick struct {
	Instrument string
	Price      float64
	Time       time.Time
}

// MarketSnapshot carries the instantaneous market state the risk gate
// evaluates against: latest price plus a short return window.
type MarketSnapshot struct {
	Instrument string
	Price      float64
	Returns    []float64 // most recent simple returns, oldest first
	Volatility float64   // annualized sigma over Returns
}

// Position is an open broker position with enough history to check
// cross-correlation against a prospective trade.
type Position struct {
	ID         string
	Instrument string
	Units      float64
	Returns    []float64
	PnL        float64
}

// AccountSnapshot is the broker account state used for sizing and
// performance tracking.
type AccountSnapshot struct {
	Balance      float64
	UnrealizedPL float64
	MarginUsed   float64
}

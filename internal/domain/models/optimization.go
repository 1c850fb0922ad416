package models

import "time"

// StrategyMetrics are the performance statistics of one parameter
// combination over the historical sweep.
type StrategyMetrics struct {
	SharpeRatio  float64 `json:"sharpe_ratio"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	TotalTrades  int     `json:"total_trades"`
}

// OptimizationResult pairs a parameter set with its metrics and combined
// score. The optimizer tracks exactly one current best at a time.
type OptimizationResult struct {
	Params    ParameterSet    `json:"parameters"`
	Metrics   StrategyMetrics `json:"metrics"`
	Score     float64         `json:"score"`
	Evaluated time.Time       `json:"evaluated_at"`
}

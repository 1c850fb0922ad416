package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/domain/repository"
)

// Schema returns the idempotent DDL for the optimization and trade tables.
// best_configuration is a ReplacingMergeTree keyed by a constant slot, so
// inserting a new best logically replaces the old one in a single write.
func Schema(database string) []string {
	return []string{
		`CREATE DATABASE IF NOT EXISTS ` + database,
		`CREATE TABLE IF NOT EXISTS ` + database + `.optimization_results (
			evaluated_at     DateTime64(3),
			neighbors        Int32,
			features         Int32,
			vol_lookback     Int32,
			trend_weight     Float64,
			max_correlation  Float64,
			sharpe_ratio     Float64,
			win_rate         Float64,
			profit_factor    Float64,
			max_drawdown     Float64,
			total_trades     Int32,
			score            Float64
		) ENGINE = MergeTree()
		ORDER BY evaluated_at`,
		`CREATE TABLE IF NOT EXISTS ` + database + `.best_configuration (
			slot             UInt8,
			evaluated_at     DateTime64(3),
			neighbors        Int32,
			features         Int32,
			vol_lookback     Int32,
			trend_weight     Float64,
			max_correlation  Float64,
			sharpe_ratio     Float64,
			win_rate         Float64,
			profit_factor    Float64,
			max_drawdown     Float64,
			total_trades     Int32,
			score            Float64
		) ENGINE = ReplacingMergeTree(evaluated_at)
		ORDER BY slot`,
		`CREATE TABLE IF NOT EXISTS ` + database + `.trades (
			id          String,
			instrument  String,
			direction   String,
			units       Float64,
			entry_price Float64,
			pnl         Float64,
			opened_at   DateTime64(3),
			closed_at   DateTime64(3)
		) ENGINE = MergeTree()
		ORDER BY opened_at`,
	}
}

// ResultStore implements repository.ResultStore on ClickHouse.
type ResultStore struct {
	db       *sql.DB
	database string
}

// NewResultStore creates the ClickHouse-backed optimization result store.
func NewResultStore(db *sql.DB, database string) repository.ResultStore {
	return &ResultStore{db: db, database: database}
}

func (s *ResultStore) Persist(ctx context.Context, res models.OptimizationResult) error {
	q := `INSERT INTO ` + s.database + `.optimization_results
		(evaluated_at, neighbors, features, vol_lookback, trend_weight, max_correlation,
		 sharpe_ratio, win_rate, profit_factor, max_drawdown, total_trades, score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		res.Evaluated,
		res.Params.NeighborsCount, res.Params.FeatureCount, res.Params.VolatilityLookback,
		res.Params.TrendStrengthWeight, res.Params.MaxCorrelation,
		res.Metrics.SharpeRatio, res.Metrics.WinRate, res.Metrics.ProfitFactor,
		res.Metrics.MaxDrawdown, res.Metrics.TotalTrades, res.Score)
	return err
}

func (s *ResultStore) MarkBest(ctx context.Context, res models.OptimizationResult) error {
	if err := s.Persist(ctx, res); err != nil {
		return err
	}
	q := `INSERT INTO ` + s.database + `.best_configuration
		(slot, evaluated_at, neighbors, features, vol_lookback, trend_weight, max_correlation,
		 sharpe_ratio, win_rate, profit_factor, max_drawdown, total_trades, score)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		res.Evaluated,
		res.Params.NeighborsCount, res.Params.FeatureCount, res.Params.VolatilityLookback,
		res.Params.TrendStrengthWeight, res.Params.MaxCorrelation,
		res.Metrics.SharpeRatio, res.Metrics.WinRate, res.Metrics.ProfitFactor,
		res.Metrics.MaxDrawdown, res.Metrics.TotalTrades, res.Score)
	return err
}

func (s *ResultStore) Best(ctx context.Context) (models.OptimizationResult, bool, error) {
	q := `SELECT evaluated_at, neighbors, features, vol_lookback, trend_weight, max_correlation,
		 sharpe_ratio, win_rate, profit_factor, max_drawdown, total_trades, score
		FROM ` + s.database + `.best_configuration FINAL
		WHERE slot = 1
		ORDER BY evaluated_at DESC LIMIT 1`

	var res models.OptimizationResult
	err := s.db.QueryRowContext(ctx, q).Scan(
		&res.Evaluated,
		&res.Params.NeighborsCount, &res.Params.FeatureCount, &res.Params.VolatilityLookback,
		&res.Params.TrendStrengthWeight, &res.Params.MaxCorrelation,
		&res.Metrics.SharpeRatio, &res.Metrics.WinRate, &res.Metrics.ProfitFactor,
		&res.Metrics.MaxDrawdown, &res.Metrics.TotalTrades, &res.Score)
	if errors.Is(err, sql.ErrNoRows) {
		return models.OptimizationResult{}, false, nil
	}
	if err != nil {
		return models.OptimizationResult{}, false, err
	}
	return res, true, nil
}

// TradeStore implements repository.TradeStore on ClickHouse.
type TradeStore struct {
	db       *sql.DB
	database string
}

// NewTradeStore creates the ClickHouse-backed trade log.
func NewTradeStore(db *sql.DB, database string) repository.TradeStore {
	return &TradeStore{db: db, database: database}
}

func (s *TradeStore) Record(ctx context.Context, t models.TradeRecord) error {
	q := `INSERT INTO ` + s.database + `.trades
		(id, instrument, direction, units, entry_price, pnl, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	closedAt := t.ClosedAt
	if closedAt.IsZero() {
		closedAt = time.Unix(0, 0).UTC()
	}
	_, err := s.db.ExecContext(ctx, q,
		t.ID, t.Instrument, t.Direction.String(), t.Units,
		t.EntryPrice, t.PnL, t.OpenedAt, closedAt)
	return err
}

func (s *TradeStore) Recent(ctx context.Context, limit int) ([]models.TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, instrument, direction, units, entry_price, pnl, opened_at, closed_at
		FROM ` + s.database + `.trades
		ORDER BY opened_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TradeRecord
	for rows.Next() {
		var t models.TradeRecord
		var direction string
		if err := rows.Scan(&t.ID, &t.Instrument, &direction, &t.Units,
			&t.EntryPrice, &t.PnL, &t.OpenedAt, &t.ClosedAt); err != nil {
			return nil, err
		}
		switch direction {
		case "LONG":
			t.Direction = models.Long
		case "SHORT":
			t.Direction = models.Short
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

package features

import (
	"fmt"
	"math"

	"TradePilot/internal/domain/models"
)

// Column names for the two always-on features the classifier consults for
// its adaptive threshold.
const (
	ColVolatility    = "volatility"
	ColTrendStrength = "trend_strength"
)

// Moving-average periods for the trend-strength divergence feature.
const (
	trendFastPeriod = 10
	trendSlowPeriod = 40
)

// Matrix is an ordered sequence of equal-length feature vectors, one per
// bar index. It is owned by the caller that built it and never mutated
// after distances are computed.
type Matrix struct {
	Columns []string
	Rows    [][]float64
}

// Column returns the latest value of a named column, or 0 when the column
// was pruned away.
func (m Matrix) Column(name string) (int, bool) {
	for i, c := range m.Columns {
		if c == name {
			return i, true
		}
	}
	return 0, false
}

// Last returns the final row, or nil for an empty matrix.
func (m Matrix) Last() []float64 {
	if len(m.Rows) == 0 {
		return nil
	}
	return m.Rows[len(m.Rows)-1]
}

// Config selects which features the engine computes and how they are
// pruned. The fields are the feature-relevant subset of a ParameterSet.
type Config struct {
	FeatureCount        int
	VolatilityLookback  int
	TrendStrengthWeight float64
	MaxCorrelation      float64
}

// Engine turns a window of OHLCV bars into a feature matrix. It is a pure
// function of its inputs plus this immutable configuration.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Compute validates the bar window, assembles the selected indicator
// columns plus the two always-on columns, normalizes undefined positions
// to 0, and applies correlation pruning.
//
// Indicator priority order is fixed: RSI(14), WaveTrend, CCI(20), ADX(14),
// RSI(9). FeatureCount strictly adds columns from that list.
func (e *Engine) Compute(bars []models.Bar) (Matrix, error) {
	if len(bars) == 0 {
		return Matrix{}, fmt.Errorf("%w: empty bar window", models.ErrInsufficientData)
	}
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		if b.Close <= 0 {
			return Matrix{}, fmt.Errorf("%w: close series missing or non-positive at index %d", models.ErrInsufficientData, i)
		}
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}

	type column struct {
		name   string
		values []float64
	}
	all := []column{
		{"rsi14", RSI(closes, 14)},
		{"wavetrend", WaveTrend(highs, lows, closes)},
		{"cci20", CCI(highs, lows, closes, 20)},
		{"adx14", ADX(highs, lows, closes, 14)},
		{"rsi9", RSI(closes, 9)},
	}
	count := e.cfg.FeatureCount
	if count < 2 {
		count = 2
	}
	if count > len(all) {
		count = len(all)
	}
	cols := all[:count]
	cols = append(cols, column{ColVolatility, RollingVolatility(closes, e.cfg.VolatilityLookback)})
	cols = append(cols, column{ColTrendStrength, e.trendStrength(closes)})

	m := Matrix{
		Columns: make([]string, len(cols)),
		Rows:    make([][]float64, len(bars)),
	}
	for j, c := range cols {
		m.Columns[j] = c.name
	}
	for i := range bars {
		row := make([]float64, len(cols))
		for j, c := range cols {
			v := c.values[i]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0 // undefined lookback positions become neutral, never a missing marker
			}
			row[j] = v
		}
		m.Rows[i] = row
	}

	return e.prune(m), nil
}

// trendStrength is the fast/slow moving-average divergence scaled by the
// configured weight.
func (e *Engine) trendStrength(closes []float64) []float64 {
	fast := EMA(closes, trendFastPeriod)
	slow := SMA(closes, trendSlowPeriod)
	out := make([]float64, len(closes))
	for i := range closes {
		if math.IsNaN(slow[i]) {
			out[i] = nan
			continue
		}
		out[i] = e.cfg.TrendStrengthWeight * safeDiv(fast[i]-slow[i], slow[i])
	}
	return out
}

// prune drops, for every column pair correlated above the configured
// absolute threshold, the column with the higher mean absolute correlation
// to all others; ties drop the higher column index. Pairs are visited in
// index order over surviving columns, so the result is deterministic and
// at least one column always survives.
func (e *Engine) prune(m Matrix) Matrix {
	nCols := len(m.Columns)
	if nCols < 2 || e.cfg.MaxCorrelation >= 1 {
		return m
	}

	corr := make([][]float64, nCols)
	for i := range corr {
		corr[i] = make([]float64, nCols)
		corr[i][i] = 1
	}
	for i := 0; i < nCols; i++ {
		for j := i + 1; j < nCols; j++ {
			c := pearson(m.colValues(i), m.colValues(j))
			corr[i][j] = c
			corr[j][i] = c
		}
	}

	meanAbs := func(i int, alive []bool) float64 {
		sum, n := 0.0, 0
		for j := 0; j < nCols; j++ {
			if j == i || !alive[j] {
				continue
			}
			sum += math.Abs(corr[i][j])
			n++
		}
		if n == 0 {
			return 0
		}
		return sum / float64(n)
	}

	alive := make([]bool, nCols)
	for i := range alive {
		alive[i] = true
	}
	for i := 0; i < nCols; i++ {
		for j := i + 1; j < nCols; j++ {
			if !alive[i] || !alive[j] {
				continue
			}
			if math.Abs(corr[i][j]) <= e.cfg.MaxCorrelation {
				continue
			}
			mi, mj := meanAbs(i, alive), meanAbs(j, alive)
			if mi > mj {
				alive[i] = false
			} else {
				alive[j] = false
			}
		}
	}

	kept := make([]int, 0, nCols)
	for i, a := range alive {
		if a {
			kept = append(kept, i)
		}
	}
	if len(kept) == len(m.Columns) {
		return m
	}
	out := Matrix{
		Columns: make([]string, len(kept)),
		Rows:    make([][]float64, len(m.Rows)),
	}
	for k, idx := range kept {
		out.Columns[k] = m.Columns[idx]
	}
	for r, row := range m.Rows {
		nr := make([]float64, len(kept))
		for k, idx := range kept {
			nr[k] = row[idx]
		}
		out.Rows[r] = nr
	}
	return out
}

func (m Matrix) colValues(j int) []float64 {
	out := make([]float64, len(m.Rows))
	for i, row := range m.Rows {
		out[i] = row[j]
	}
	return out
}

// pearson computes the correlation of two equal-length series; degenerate
// variance yields 0, not NaN.
func pearson(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	ma, sa := meanStd(a)
	mb, sb := meanStd(b)
	if sa == 0 || sb == 0 {
		return 0
	}
	var cov float64
	for i := 0; i < n; i++ {
		cov += (a[i] - ma) * (b[i] - mb)
	}
	cov /= float64(n)
	return cov / (sa * sb)
}

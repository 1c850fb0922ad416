package features

import (
	"errors"
	"math"
	"testing"

	"TradePilot/internal/domain/models"
)

func flatBars(n int, price float64) []models.Bar {
	bars := make([]models.Bar, n)
	for i := range bars {
		bars[i] = models.Bar{Open: price, High: price, Low: price, Close: price, Volume: 100}
	}
	return bars
}

func TestComputeFlatSeries(t *testing.T) {
	e := NewEngine(Config{
		FeatureCount:        5,
		VolatilityLookback:  20,
		TrendStrengthWeight: 0.3,
		MaxCorrelation:      0.85,
	})

	m, err := e.Compute(flatBars(30, 100))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(m.Rows) != 30 {
		t.Fatalf("rows = %d, want 30", len(m.Rows))
	}
	for i, row := range m.Rows {
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("row %d col %d = %v, want finite", i, j, v)
			}
		}
	}

	last := m.Last()
	if j, ok := m.Column(ColVolatility); ok && last[j] != 0 {
		t.Errorf("volatility = %v, want 0 for flat series", last[j])
	}
	if j, ok := m.Column(ColTrendStrength); ok && last[j] != 0 {
		t.Errorf("trend_strength = %v, want 0 for flat series", last[j])
	}
}

func TestComputeColumnOrder(t *testing.T) {
	e := NewEngine(Config{
		FeatureCount:        2,
		VolatilityLookback:  20,
		TrendStrengthWeight: 0.3,
		MaxCorrelation:      0.99,
	})

	m, err := e.Compute(flatBars(30, 100))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	want := []string{"rsi14", "wavetrend", ColVolatility, ColTrendStrength}
	if len(m.Columns) != len(want) {
		t.Fatalf("columns = %v, want %v", m.Columns, want)
	}
	for i, name := range want {
		if m.Columns[i] != name {
			t.Errorf("column %d = %q, want %q", i, m.Columns[i], name)
		}
	}
}

func TestComputeRejectsBadWindows(t *testing.T) {
	e := NewEngine(Config{FeatureCount: 3, VolatilityLookback: 20, MaxCorrelation: 0.85})

	if _, err := e.Compute(nil); !errors.Is(err, models.ErrInsufficientData) {
		t.Errorf("empty window: err = %v, want ErrInsufficientData", err)
	}

	bars := flatBars(10, 100)
	bars[4].Close = 0
	if _, err := e.Compute(bars); !errors.Is(err, models.ErrInsufficientData) {
		t.Errorf("zero close: err = %v, want ErrInsufficientData", err)
	}
}

func TestPruneDropsHigherIndexOnTie(t *testing.T) {
	e := NewEngine(Config{MaxCorrelation: 0.85})

	// a and b are identical, c is uncorrelated with both.
	m := Matrix{
		Columns: []string{"a", "b", "c"},
		Rows: [][]float64{
			{1, 1, 5},
			{2, 2, -3},
			{3, 3, 7},
			{4, 4, -1},
			{5, 5, 4},
			{6, 6, -6},
		},
	}

	out := e.prune(m)
	if len(out.Columns) != 2 {
		t.Fatalf("columns after prune = %v, want 2 survivors", out.Columns)
	}
	if out.Columns[0] != "a" || out.Columns[1] != "c" {
		t.Errorf("survivors = %v, want [a c]", out.Columns)
	}
	for i, row := range out.Rows {
		if len(row) != 2 {
			t.Fatalf("row %d width = %d, want 2", i, len(row))
		}
	}
}

func TestPruneKeepsAtLeastOneColumn(t *testing.T) {
	e := NewEngine(Config{MaxCorrelation: 0.5})

	m := Matrix{
		Columns: []string{"a", "b"},
		Rows: [][]float64{
			{1, 1}, {2, 2}, {3, 3}, {4, 4},
		},
	}
	out := e.prune(m)
	if len(out.Columns) != 1 {
		t.Fatalf("columns = %v, want exactly one survivor", out.Columns)
	}
	if out.Columns[0] != "a" {
		t.Errorf("survivor = %q, want a", out.Columns[0])
	}
}

func TestPruneIsDeterministic(t *testing.T) {
	e := NewEngine(Config{
		FeatureCount:        5,
		VolatilityLookback:  10,
		TrendStrengthWeight: 0.3,
		MaxCorrelation:      0.6,
	})

	bars := make([]models.Bar, 80)
	for i := range bars {
		price := 100 + 10*math.Sin(float64(i)/5) + float64(i)*0.1
		bars[i] = models.Bar{Open: price, High: price * 1.01, Low: price * 0.99, Close: price, Volume: 100}
	}

	first, err := e.Compute(bars)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for run := 0; run < 3; run++ {
		m, err := e.Compute(bars)
		if err != nil {
			t.Fatalf("Compute run %d: %v", run, err)
		}
		if len(m.Columns) != len(first.Columns) {
			t.Fatalf("run %d columns = %v, want %v", run, m.Columns, first.Columns)
		}
		for i := range m.Columns {
			if m.Columns[i] != first.Columns[i] {
				t.Errorf("run %d column %d = %q, want %q", run, i, m.Columns[i], first.Columns[i])
			}
		}
	}
}

package classifier

import (
	"errors"
	"math"
	"testing"

	"TradePilot/internal/domain/models"
)

func validParams() models.ParameterSet {
	return models.ParameterSet{
		NeighborsCount:      5,
		FeatureCount:        3,
		VolatilityLookback:  10,
		TrendStrengthWeight: 0.3,
		MaxCorrelation:      0.99,
	}
}

func trendBars(n int, drift float64) []models.Bar {
	bars := make([]models.Bar, n)
	price := 100.0
	for i := range bars {
		// small deterministic wobble keeps neighbor returns from collapsing
		// to zero variance
		p := price * (1 + 0.001*math.Sin(float64(i)))
		bars[i] = models.Bar{Open: p, High: p * 1.002, Low: p * 0.998, Close: p, Volume: 100}
		price *= 1 + drift
	}
	return bars
}

func TestNewRejectsInvalidParameters(t *testing.T) {
	bad := validParams()
	bad.NeighborsCount = 0
	if _, err := New(bad, nil); !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Fatalf("err = %v, want ErrInvalidConfiguration", err)
	}

	bad = validParams()
	bad.MaxCorrelation = 1.5
	if _, err := New(bad, nil); !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Fatalf("err = %v, want ErrInvalidConfiguration", err)
	}
}

func TestPredictHoldsOnShortWindow(t *testing.T) {
	c, err := New(validParams(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, n := range []int{0, 1, 4} {
		res := c.Predict(trendBars(n, 0.01))
		if res.Signal != models.Hold {
			t.Errorf("n=%d: signal = %v, want HOLD", n, res.Signal)
		}
		if res.Defined {
			t.Errorf("n=%d: Defined = true, want false on insufficient history", n)
		}
	}
}

func TestPredictHoldsOnZeroVariance(t *testing.T) {
	c, err := New(validParams(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	bars := make([]models.Bar, 60)
	for i := range bars {
		bars[i] = models.Bar{Open: 100, High: 100, Low: 100, Close: 100, Volume: 100}
	}
	res := c.Predict(bars)
	if res.Signal != models.Hold {
		t.Errorf("signal = %v, want HOLD on flat series", res.Signal)
	}
	if res.Defined {
		t.Errorf("Defined = true, want false when neighbor variance is zero")
	}
}

func TestPredictLongOnSustainedUptrend(t *testing.T) {
	c, err := New(validParams(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res := c.Predict(trendBars(120, 0.01))
	if res.Signal != models.Long {
		t.Fatalf("signal = %v, want LONG", res.Signal)
	}
	if !res.Defined {
		t.Error("Defined = false, want true")
	}
	if res.Confidence <= 0.5 || res.Confidence > 1 {
		t.Errorf("confidence = %v, want in (0.5, 1] for a positive edge", res.Confidence)
	}
	if res.TrendStrength < 0 {
		t.Errorf("trend strength = %v, want >= 0", res.TrendStrength)
	}
}

func TestPredictShortOnSustainedDowntrend(t *testing.T) {
	c, err := New(validParams(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res := c.Predict(trendBars(120, -0.01))
	if res.Signal != models.Short {
		t.Fatalf("signal = %v, want SHORT", res.Signal)
	}
	if res.Confidence >= 0.5 {
		t.Errorf("confidence = %v, want < 0.5 for a negative edge", res.Confidence)
	}
}

func TestPredictIsDeterministic(t *testing.T) {
	c, err := New(validParams(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	bars := trendBars(120, 0.004)
	first := c.Predict(bars)
	for i := 0; i < 3; i++ {
		got := c.Predict(bars)
		if got != first {
			t.Fatalf("run %d: result %+v differs from first %+v", i, got, first)
		}
	}
}

func TestLorentzianDistance(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{2, 0, 3}

	if d := LorentzianDistance(a, a); d != 0 {
		t.Errorf("d(a,a) = %v, want 0", d)
	}
	if d, rev := LorentzianDistance(a, b), LorentzianDistance(b, a); d != rev {
		t.Errorf("asymmetric: d(a,b)=%v d(b,a)=%v", d, rev)
	}

	want := math.Log(2) + math.Log(3)
	if d := LorentzianDistance(a, b); math.Abs(d-want) > 1e-12 {
		t.Errorf("d(a,b) = %v, want %v", d, want)
	}
}

func TestLorentzianDistanceSkipsUndefinedDimensions(t *testing.T) {
	a := []float64{1, math.NaN(), 3}
	b := []float64{1, 2, 7}

	want := math.Log(5)
	if d := LorentzianDistance(a, b); math.Abs(d-want) > 1e-12 {
		t.Errorf("d = %v, want %v with the NaN dimension skipped", d, want)
	}
	if d := LorentzianDistance(a, a); d != 0 {
		t.Errorf("d(a,a) = %v, want 0", d)
	}
}

func TestLorentzianDistanceUnequalLengths(t *testing.T) {
	a := []float64{1, 2, 3, 4}
	b := []float64{1, 2}
	if d := LorentzianDistance(a, b); d != 0 {
		t.Errorf("d = %v, want 0 over the shared dimensions", d)
	}
}

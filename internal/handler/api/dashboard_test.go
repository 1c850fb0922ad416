package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/domain/repository"
	"TradePilot/internal/usecase"
	xlogger "TradePilot/pkg/logger"
)

type stubBroker struct {
	open    []models.Position
	account models.AccountSnapshot
	closed  []string
}

func (b *stubBroker) FetchBars(context.Context, string, int) ([]models.Bar, error) {
	return nil, nil
}

func (b *stubBroker) SubmitOrder(context.Context, string, models.Signal, float64) (string, error) {
	return "", nil
}

func (b *stubBroker) OpenPositions(context.Context) ([]models.Position, error) {
	return b.open, nil
}

func (b *stubBroker) ClosePosition(_ context.Context, id string) error {
	b.closed = append(b.closed, id)
	return nil
}

func (b *stubBroker) AccountSummary(context.Context) (models.AccountSnapshot, error) {
	return b.account, nil
}

type stubResultStore struct {
	best models.OptimizationResult
	ok   bool
}

func (s *stubResultStore) Persist(context.Context, models.OptimizationResult) error { return nil }
func (s *stubResultStore) MarkBest(context.Context, models.OptimizationResult) error {
	return nil
}
func (s *stubResultStore) Best(context.Context) (models.OptimizationResult, bool, error) {
	return s.best, s.ok, nil
}

type stubTradeStore struct {
	trades []models.TradeRecord
	limit  int
}

func (s *stubTradeStore) Record(context.Context, models.TradeRecord) error { return nil }
func (s *stubTradeStore) Recent(_ context.Context, limit int) ([]models.TradeRecord, error) {
	s.limit = limit
	return s.trades, nil
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, results repository.ResultStore, trades repository.TradeStore,
	broker *stubBroker) (*echo.Echo, *usecase.SnapshotStore) {
	t.Helper()
	snapshots := usecase.NewSnapshotStore()
	perf := usecase.NewPerformanceTracker(broker, nil, nil)
	closer := usecase.NewPositionCloser(broker, nil, nil)
	h := NewDashboardHandler(xlogger.Nop(), snapshots, perf, closer, results, trades)

	e := echo.New()
	h.RegisterRoutes(e)
	return e, snapshots
}

func doRequest(e *echo.Echo, method, target string) (*httptest.ResponseRecorder, envelope) {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func publishedSnapshot(instrument string) models.SignalSnapshot {
	return models.SignalSnapshot{
		Instrument: instrument,
		Time:       time.Now().UTC(),
		Prediction: models.PredictionResult{Signal: models.Long, Confidence: 0.8, Defined: true},
		Decision:   models.Decision{Allow: true, Reason: "Trade allowed", Size: 100},
		Executed:   true,
	}
}

func TestSignalsListAndLookup(t *testing.T) {
	broker := &stubBroker{}
	e, snapshots := newTestServer(t, nil, nil, broker)
	snapshots.Publish(publishedSnapshot("EUR_USD"))
	snapshots.Publish(publishedSnapshot("GBP_USD"))

	rec, env := doRequest(e, http.MethodGet, "/api/signals")
	if rec.Code != http.StatusOK || env.Status != http.StatusOK {
		t.Fatalf("status = %d/%d, want 200", rec.Code, env.Status)
	}
	var all []models.SignalSnapshot
	if err := json.Unmarshal(env.Data, &all); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("snapshots = %d, want 2", len(all))
	}

	_, env = doRequest(e, http.MethodGet, "/api/signals?instrument=EUR_USD")
	if env.Status != http.StatusOK {
		t.Fatalf("lookup status = %d, want 200", env.Status)
	}
	var one models.SignalSnapshot
	if err := json.Unmarshal(env.Data, &one); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if one.Instrument != "EUR_USD" || !one.Executed {
		t.Errorf("snapshot = %+v, want the published EUR_USD snapshot", one)
	}

	_, env = doRequest(e, http.MethodGet, "/api/signals?instrument=USD_JPY")
	if env.Status != http.StatusNotFound {
		t.Errorf("unknown instrument status = %d, want 404", env.Status)
	}
}

func TestPerformanceEndpoint(t *testing.T) {
	broker := &stubBroker{account: models.AccountSnapshot{Balance: 12345}}
	e, _ := newTestServer(t, nil, nil, broker)

	_, env := doRequest(e, http.MethodGet, "/api/performance")
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", env.Status)
	}
	var sum usecase.PerformanceSummary
	if err := json.Unmarshal(env.Data, &sum); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	// no sample taken yet: zero state, never an error
	if sum.Balance != 0 || len(sum.History) != 0 {
		t.Errorf("summary = %+v, want empty initial state", sum)
	}
}

func TestTradesEndpoint(t *testing.T) {
	trades := &stubTradeStore{trades: []models.TradeRecord{
		{ID: "1", Instrument: "EUR_USD", Direction: models.Long, Units: 100},
	}}
	e, _ := newTestServer(t, nil, trades, &stubBroker{})

	_, env := doRequest(e, http.MethodGet, "/api/trades")
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", env.Status)
	}
	if trades.limit != 50 {
		t.Errorf("limit = %d, want the default of 50", trades.limit)
	}

	_, env = doRequest(e, http.MethodGet, "/api/trades?limit=5")
	if env.Status != http.StatusOK || trades.limit != 5 {
		t.Errorf("limit = %d (status %d), want explicit 5", trades.limit, env.Status)
	}

	_, env = doRequest(e, http.MethodGet, "/api/trades?limit=9999")
	if env.Status != http.StatusBadRequest {
		t.Errorf("out-of-range limit status = %d, want 400", env.Status)
	}
}

func TestTradesEndpointWithoutStore(t *testing.T) {
	e, _ := newTestServer(t, nil, nil, &stubBroker{})

	_, env := doRequest(e, http.MethodGet, "/api/trades")
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200 with an empty list", env.Status)
	}
}

func TestBestConfigurationEndpoint(t *testing.T) {
	e, _ := newTestServer(t, nil, nil, &stubBroker{})
	_, env := doRequest(e, http.MethodGet, "/api/optimization/best")
	if env.Status != http.StatusNotFound {
		t.Errorf("status without store = %d, want 404", env.Status)
	}

	results := &stubResultStore{ok: true, best: models.OptimizationResult{
		Params: models.ParameterSet{NeighborsCount: 8, FeatureCount: 5, VolatilityLookback: 20,
			TrendStrengthWeight: 0.3, MaxCorrelation: 0.85},
		Score: 1.23,
	}}
	e, _ = newTestServer(t, results, nil, &stubBroker{})

	_, env = doRequest(e, http.MethodGet, "/api/optimization/best")
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", env.Status)
	}
	var best models.OptimizationResult
	if err := json.Unmarshal(env.Data, &best); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if best.Score != 1.23 || best.Params.NeighborsCount != 8 {
		t.Errorf("best = %+v, want the stored result", best)
	}

	results.ok = false
	_, env = doRequest(e, http.MethodGet, "/api/optimization/best")
	if env.Status != http.StatusNotFound {
		t.Errorf("status with no best = %d, want 404", env.Status)
	}
}

func TestClosePositionEndpoint(t *testing.T) {
	broker := &stubBroker{open: []models.Position{
		{ID: "7", Instrument: "EUR_USD", Units: 100, PnL: 3.2},
	}}
	e, _ := newTestServer(t, nil, nil, broker)

	_, env := doRequest(e, http.MethodPost, "/api/positions/7/close")
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", env.Status)
	}
	if len(broker.closed) != 1 || broker.closed[0] != "7" {
		t.Errorf("closed = %v, want [7]", broker.closed)
	}

	_, env = doRequest(e, http.MethodPost, "/api/positions/404/close")
	if env.Status != http.StatusBadRequest {
		t.Errorf("unknown position status = %d, want 400", env.Status)
	}
}

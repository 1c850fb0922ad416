package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/pkg/retry"
)

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Factor: 2}
}

func newTestClient(baseURL string) *Client {
	return New("test-key", "101-001-1234567-001", baseURL,
		WithGranularity("M5"),
		WithRateLimit(100, 100),
		WithRetry(fastRetry()),
	)
}

func TestFetchBarsParsesAndFilters(t *testing.T) {
	var gotAuth, gotPath, gotCount string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotCount = r.URL.Query().Get("count")
		_, _ = w.Write([]byte(`{"candles":[
			{"complete":true,"time":"2026-01-01T00:05:00Z","volume":10,
			 "mid":{"o":"1.10","h":"1.11","l":"1.09","c":"1.105"}},
			{"complete":true,"time":"2026-01-01T00:00:00Z","volume":12,
			 "mid":{"o":"1.09","h":"1.10","l":"1.08","c":"1.10"}},
			{"complete":false,"time":"2026-01-01T00:10:00Z","volume":3,
			 "mid":{"o":"1.105","h":"1.106","l":"1.104","c":"1.1055"}}
		]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	bars, err := c.FetchBars(context.Background(), "EUR_USD", 2)
	if err != nil {
		t.Fatalf("FetchBars: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("auth header = %q, want bearer token", gotAuth)
	}
	if gotPath != "/v3/instruments/EUR_USD/candles" {
		t.Errorf("path = %q", gotPath)
	}
	if gotCount != "3" {
		t.Errorf("count param = %q, want requested+1", gotCount)
	}

	if len(bars) != 2 {
		t.Fatalf("bars = %d, want 2 complete candles", len(bars))
	}
	if !bars[0].Time.Before(bars[1].Time) {
		t.Error("bars not sorted oldest first")
	}
	if bars[0].Close != 1.10 || bars[1].Close != 1.105 {
		t.Errorf("closes = %v, %v, want 1.10, 1.105", bars[0].Close, bars[1].Close)
	}
}

func TestFetchBarsRejectsBadCount(t *testing.T) {
	c := newTestClient("http://localhost:0")
	if _, err := c.FetchBars(context.Background(), "EUR_USD", 0); !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Fatalf("err = %v, want ErrInvalidConfiguration", err)
	}
}

func TestFetchBarsWrapsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if _, err := c.FetchBars(context.Background(), "EUR_USD", 10); !errors.Is(err, models.ErrExternalUnavailable) {
		t.Fatalf("err = %v, want ErrExternalUnavailable", err)
	}
}

func TestSubmitOrderNegatesShortUnits(t *testing.T) {
	var body struct {
		Order struct {
			Type       string `json:"type"`
			Instrument string `json:"instrument"`
			Units      string `json:"units"`
		} `json:"order"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"orderFillTransaction":{"id":"fill-1"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	id, err := c.SubmitOrder(context.Background(), "EUR_USD", models.Short, 150)
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if id != "fill-1" {
		t.Errorf("id = %q, want fill-1", id)
	}
	if body.Order.Units != "-150" {
		t.Errorf("units = %q, want -150 for a short", body.Order.Units)
	}
	if body.Order.Type != "MARKET" {
		t.Errorf("type = %q, want MARKET", body.Order.Type)
	}
}

func TestSubmitOrderFallsBackToCreateID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"orderCreateTransaction":{"id":"create-9"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	id, err := c.SubmitOrder(context.Background(), "EUR_USD", models.Long, 100)
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if id != "create-9" {
		t.Errorf("id = %q, want create-9", id)
	}
}

func TestSubmitOrderRejectsHold(t *testing.T) {
	c := newTestClient("http://localhost:0")
	if _, err := c.SubmitOrder(context.Background(), "EUR_USD", models.Hold, 100); !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Fatalf("err = %v, want ErrInvalidConfiguration", err)
	}
}

func TestOpenPositionsParsesTrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/openTrades") {
			t.Errorf("path = %q, want openTrades", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"trades":[
			{"id":"7","instrument":"EUR_USD","currentUnits":"100","unrealizedPL":"12.5"},
			{"id":"8","instrument":"GBP_USD","currentUnits":"-50","unrealizedPL":"-3.25"}
		]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	positions, err := c.OpenPositions(context.Background())
	if err != nil {
		t.Fatalf("OpenPositions: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("positions = %d, want 2", len(positions))
	}
	if positions[0].ID != "7" || positions[0].Units != 100 || positions[0].PnL != 12.5 {
		t.Errorf("positions[0] = %+v", positions[0])
	}
	if positions[1].Units != -50 {
		t.Errorf("positions[1].Units = %v, want -50", positions[1].Units)
	}
}

func TestClosePositionHitsTradeEndpoint(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if err := c.ClosePosition(context.Background(), "7"); err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("method = %q, want PUT", gotMethod)
	}
	if !strings.HasSuffix(gotPath, "/trades/7/close") {
		t.Errorf("path = %q, want the trade close endpoint", gotPath)
	}
}

func TestAccountSummaryParsesNumbers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"account":{"balance":"10000.50","unrealizedPL":"-12.3","marginUsed":"250"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	account, err := c.AccountSummary(context.Background())
	if err != nil {
		t.Fatalf("AccountSummary: %v", err)
	}
	if account.Balance != 10000.50 || account.UnrealizedPL != -12.3 || account.MarginUsed != 250 {
		t.Errorf("account = %+v", account)
	}
}

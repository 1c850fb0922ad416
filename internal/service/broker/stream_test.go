package broker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newStreamServer(t *testing.T, handle func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestStream(url string) *Stream {
	return NewStream("test-key", url, []string{"EUR_USD"},
		time.Millisecond, 5*time.Millisecond, nil)
}

func TestStreamReadDeliversTicks(t *testing.T) {
	srv := newStreamServer(t, func(conn *websocket.Conn) {
		// drain the subscribe message, then emit one price frame
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		frame := `{"type":"PRICE","instrument":"EUR_USD","closeoutBid":"1.1000","closeoutAsk":"1.1002","time":"2026-03-10T09:00:00Z"}`
		_ = conn.WriteMessage(websocket.TextMessage, []byte(frame))
		time.Sleep(20 * time.Millisecond)
	})
	defer srv.Close()

	s := newTestStream(wsURL(srv))
	ctx := context.Background()
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Close()

	ticks, _ := s.Read(ctx)
	select {
	case tick := <-ticks:
		if tick.Instrument != "EUR_USD" {
			t.Errorf("instrument = %q, want EUR_USD", tick.Instrument)
		}
		if tick.Price != 1.1001 {
			t.Errorf("price = %v, want the bid/ask midpoint 1.1001", tick.Price)
		}
	case <-time.After(time.Second):
		t.Fatal("no tick delivered")
	}
}

func TestStreamReadWithoutConnect(t *testing.T) {
	s := newTestStream("ws://127.0.0.1:0")

	ticks, errs := s.Read(context.Background())
	if err := <-errs; err == nil {
		t.Fatal("want an error from Read before Connect")
	}
	if _, ok := <-ticks; ok {
		t.Error("ticks channel open, want closed")
	}
}

func TestStreamReconnectCyclesReleaseGoroutines(t *testing.T) {
	srv := newStreamServer(t, func(conn *websocket.Conn) {
		// accept the subscription and hang up, forcing the client to reconnect
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	})
	defer srv.Close()

	s := newTestStream(wsURL(srv))
	ctx := context.Background()
	before := runtime.NumGoroutine()

	for i := 0; i < 10; i++ {
		if err := s.Connect(ctx); err != nil {
			t.Fatalf("Connect cycle %d: %v", i, err)
		}
		ticks, errs := s.Read(ctx)
		for range ticks {
		}
		for range errs {
		}
		_ = s.Close()
	}

	time.Sleep(50 * time.Millisecond)
	after := runtime.NumGoroutine()
	if after > before+3 {
		t.Errorf("goroutines grew from %d to %d across reconnect cycles", before, after)
	}
}

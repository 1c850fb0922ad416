package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/pkg/logger"

	"github.com/gorilla/websocket"
)

// Stream implements repository.PriceStream over a WebSocket price feed.
type Stream struct {
	apiKey         string
	streamURL      string
	instruments    []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewStream creates a price stream for the given instruments.
func NewStream(apiKey, streamURL string, instruments []string,
	reconnectDelay, pingInterval time.Duration, log *logger.Logger) *Stream {
	if log == nil {
		log = logger.Nop()
	}
	return &Stream{
		apiKey:         apiKey,
		streamURL:      streamURL,
		instruments:    instruments,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
	}
}

// Connect dials the feed and subscribes to the configured instruments.
func (s *Stream) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", s.streamURL, s.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("%w: stream connect: %v", models.ErrExternalUnavailable, err)
	}

	for _, inst := range s.instruments {
		msg := map[string]string{"type": "subscribe", "instrument": inst}
		if err := conn.WriteJSON(msg); err != nil {
			_ = conn.Close()
			return fmt.Errorf("%w: subscribe %s: %v", models.ErrExternalUnavailable, inst, err)
		}
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.log.Info("price stream connected",
		logger.Strings("instruments", s.instruments))
	return nil
}

type priceFrame struct {
	Type       string `json:"type"`
	Instrument string `json:"instrument"`
	Bid        string `json:"closeoutBid"`
	Ask        string `json:"closeoutAsk"`
	Time       string `json:"time"`
}

// Read streams ticks and errors until ctx ends or the connection drops.
// Both channels close when the read loop exits, and the keepalive pinger
// exits with it.
func (s *Stream) Read(ctx context.Context) (<-chan models.Tick, <-chan error) {
	ticks := make(chan models.Tick, 256)
	errs := make(chan error, 1)

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		errs <- fmt.Errorf("stream not connected")
		close(ticks)
		close(errs)
		return ticks, errs
	}

	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}()

	go func() {
		defer close(done)
		defer close(ticks)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("stream read: %w", err)
				return
			}

			var frame priceFrame
			if err := json.Unmarshal(b, &frame); err != nil || frame.Type != "PRICE" {
				continue
			}
			bid, errB := strconv.ParseFloat(frame.Bid, 64)
			ask, errA := strconv.ParseFloat(frame.Ask, 64)
			if errB != nil || errA != nil {
				continue
			}
			t, err := time.Parse(time.RFC3339, frame.Time)
			if err != nil {
				t = time.Now().UTC()
			}

			select {
			case ticks <- models.Tick{
				Instrument: frame.Instrument,
				Price:      (bid + ask) / 2,
				Time:       t,
			}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ticks, errs
}

// Close shuts the connection down.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

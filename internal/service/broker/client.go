package broker

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/service/ratelimit"
	apphttp "TradePilot/pkg/http"
	"TradePilot/pkg/logger"
	"TradePilot/pkg/retry"
)

// maxCandlesPerRequest is the broker's hard cap on one candles call.
const maxCandlesPerRequest = 5000

// Client implements repository.Broker against a v20-style REST API.
type Client struct {
	apiKey      string
	accountID   string
	baseURL     string
	granularity string

	http    *apphttp.Client
	limiter *ratelimit.Limiter
	policy  retry.Policy
	log     *logger.Logger

	rateCapacity float64
	rateRefill   float64
}

// Option configures Client.
type Option func(*Client)

// New creates a broker REST client.
func New(apiKey, accountID, baseURL string, opts ...Option) *Client {
	c := &Client{
		apiKey:       apiKey,
		accountID:    accountID,
		baseURL:      baseURL,
		granularity:  "M5",
		http:         apphttp.NewClient(apphttp.WithTimeout(10 * time.Second)),
		limiter:      ratelimit.New(),
		policy:       retry.Default(),
		log:          logger.Nop(),
		rateCapacity: 30,
		rateRefill:   2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithGranularity sets the candle granularity (e.g. "M5", "H1").
func WithGranularity(g string) Option {
	return func(c *Client) {
		c.granularity = g
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http = apphttp.NewClient(apphttp.WithTimeout(d))
	}
}

// WithRateLimit sets the request token bucket.
func WithRateLimit(capacity, refillPerSec float64) Option {
	return func(c *Client) {
		c.rateCapacity = capacity
		c.rateRefill = refillPerSec
	}
}

// WithRetry sets the retry policy for transient request failures.
func WithRetry(p retry.Policy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

type candlesResponse struct {
	Candles []struct {
		Complete bool   `json:"complete"`
		Time     string `json:"time"`
		Volume   int64  `json:"volume"`
		Mid      struct {
			O string `json:"o"`
			H string `json:"h"`
			L string `json:"l"`
			C string `json:"c"`
		} `json:"mid"`
	} `json:"candles"`
}

// FetchBars returns up to count completed bars, oldest first. Incomplete
// trailing candles are dropped so callers never see a moving bar.
func (c *Client) FetchBars(ctx context.Context, instrument string, count int) ([]models.Bar, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive", models.ErrInvalidConfiguration)
	}
	if count > maxCandlesPerRequest {
		count = maxCandlesPerRequest
	}

	var resp candlesResponse
	err := c.send(ctx, &apphttp.RequestOptions{
		Method: apphttp.MethodGet,
		URL:    fmt.Sprintf("%s/v3/instruments/%s/candles", c.baseURL, instrument),
		QueryParams: map[string]string{
			"count":       strconv.Itoa(count + 1), // last candle may be incomplete
			"granularity": c.granularity,
			"price":       "M",
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch candles %s: %v", models.ErrExternalUnavailable, instrument, err)
	}

	bars := make([]models.Bar, 0, len(resp.Candles))
	for _, cd := range resp.Candles {
		if !cd.Complete {
			continue
		}
		t, err := time.Parse(time.RFC3339, cd.Time)
		if err != nil {
			continue
		}
		o, errO := strconv.ParseFloat(cd.Mid.O, 64)
		h, errH := strconv.ParseFloat(cd.Mid.H, 64)
		l, errL := strconv.ParseFloat(cd.Mid.L, 64)
		cl, errC := strconv.ParseFloat(cd.Mid.C, 64)
		if errO != nil || errH != nil || errL != nil || errC != nil {
			continue
		}
		bars = append(bars, models.Bar{
			Time: t, Open: o, High: h, Low: l, Close: cl, Volume: float64(cd.Volume),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	if len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	return bars, nil
}

type orderResponse struct {
	OrderFillTransaction struct {
		ID string `json:"id"`
	} `json:"orderFillTransaction"`
	OrderCreateTransaction struct {
		ID string `json:"id"`
	} `json:"orderCreateTransaction"`
}

// SubmitOrder places a market order; negative units open a short. The
// returned ID identifies the fill when available, the order otherwise.
func (c *Client) SubmitOrder(ctx context.Context, instrument string, direction models.Signal, units float64) (string, error) {
	if direction == models.Hold {
		return "", fmt.Errorf("%w: cannot submit a hold order", models.ErrInvalidConfiguration)
	}
	if direction == models.Short {
		units = -units
	}

	var resp orderResponse
	err := c.send(ctx, &apphttp.RequestOptions{
		Method: apphttp.MethodPost,
		URL:    fmt.Sprintf("%s/v3/accounts/%s/orders", c.baseURL, c.accountID),
		Body: map[string]interface{}{
			"order": map[string]interface{}{
				"type":         "MARKET",
				"instrument":   instrument,
				"units":        fmt.Sprintf("%.0f", units),
				"timeInForce":  "FOK",
				"positionFill": "DEFAULT",
			},
		},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("%w: submit order %s: %v", models.ErrExternalUnavailable, instrument, err)
	}

	id := resp.OrderFillTransaction.ID
	if id == "" {
		id = resp.OrderCreateTransaction.ID
	}
	c.log.Info("order submitted",
		logger.String("instrument", instrument),
		logger.String("direction", direction.String()),
		logger.Float64("units", units),
		logger.String("id", id))
	return id, nil
}

type openTradesResponse struct {
	Trades []struct {
		ID           string `json:"id"`
		Instrument   string `json:"instrument"`
		CurrentUnits string `json:"currentUnits"`
		UnrealizedPL string `json:"unrealizedPL"`
	} `json:"trades"`
}

// OpenPositions lists currently open trades. Return histories are not
// populated here; callers needing correlation data fetch bars separately.
func (c *Client) OpenPositions(ctx context.Context) ([]models.Position, error) {
	var resp openTradesResponse
	err := c.send(ctx, &apphttp.RequestOptions{
		Method: apphttp.MethodGet,
		URL:    fmt.Sprintf("%s/v3/accounts/%s/openTrades", c.baseURL, c.accountID),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: open trades: %v", models.ErrExternalUnavailable, err)
	}

	positions := make([]models.Position, 0, len(resp.Trades))
	for _, t := range resp.Trades {
		units, _ := strconv.ParseFloat(t.CurrentUnits, 64)
		pnl, _ := strconv.ParseFloat(t.UnrealizedPL, 64)
		positions = append(positions, models.Position{
			ID:         t.ID,
			Instrument: t.Instrument,
			Units:      units,
			PnL:        pnl,
		})
	}
	return positions, nil
}

// ClosePosition fully closes one open trade by ID.
func (c *Client) ClosePosition(ctx context.Context, id string) error {
	err := c.send(ctx, &apphttp.RequestOptions{
		Method: apphttp.MethodPut,
		URL:    fmt.Sprintf("%s/v3/accounts/%s/trades/%s/close", c.baseURL, c.accountID, id),
		Body:   map[string]string{"units": "ALL"},
	}, nil)
	if err != nil {
		return fmt.Errorf("%w: close trade %s: %v", models.ErrExternalUnavailable, id, err)
	}
	c.log.Info("position closed", logger.String("id", id))
	return nil
}

type accountResponse struct {
	Account struct {
		Balance      string `json:"balance"`
		UnrealizedPL string `json:"unrealizedPL"`
		MarginUsed   string `json:"marginUsed"`
	} `json:"account"`
}

// AccountSummary returns the current account state.
func (c *Client) AccountSummary(ctx context.Context) (models.AccountSnapshot, error) {
	var resp accountResponse
	err := c.send(ctx, &apphttp.RequestOptions{
		Method: apphttp.MethodGet,
		URL:    fmt.Sprintf("%s/v3/accounts/%s/summary", c.baseURL, c.accountID),
	}, &resp)
	if err != nil {
		return models.AccountSnapshot{}, fmt.Errorf("%w: account summary: %v", models.ErrExternalUnavailable, err)
	}

	balance, _ := strconv.ParseFloat(resp.Account.Balance, 64)
	upl, _ := strconv.ParseFloat(resp.Account.UnrealizedPL, 64)
	margin, _ := strconv.ParseFloat(resp.Account.MarginUsed, 64)
	return models.AccountSnapshot{
		Balance:      balance,
		UnrealizedPL: upl,
		MarginUsed:   margin,
	}, nil
}

// send applies the rate limit, then issues the request with retries.
func (c *Client) send(ctx context.Context, opts *apphttp.RequestOptions, dest interface{}) error {
	if err := c.limiter.Wait(ctx, "rest", c.rateCapacity, c.rateRefill); err != nil {
		return err
	}
	if opts.Headers == nil {
		opts.Headers = make(map[string]string)
	}
	opts.Headers["Authorization"] = "Bearer " + c.apiKey

	return c.policy.Do(ctx, func() error {
		return c.http.SendAndParse(ctx, opts, dest)
	})
}

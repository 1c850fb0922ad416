package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/pkg/logger"
)

// volSpikeMultiple is the fixed multiple of the snapshot's own return
// deviation above which trading is suspended.
const volSpikeMultiple = 2.5

// dailyWindow is the rolling horizon for trade-count and PnL limits.
const dailyWindow = 24 * time.Hour

// Limits is the immutable risk configuration for one account.
type Limits struct {
	MaxRiskPerTrade   float64
	MaxDailyRisk      float64
	MaxTradesPerDay   int
	MaxDrawdown       float64
	MaxCorrelation    float64
	MinPositionSize   float64
	LotMultiplier     float64
	VolatilityScaling bool
	QuietWindows      []ClockWindow
}

// ClockWindow is a fixed wall-clock range during which trading is denied
// regardless of market data (high-impact event windows). A window whose
// start is after its end wraps past midnight.
type ClockWindow struct {
	Start, End int // minutes since midnight UTC
}

// ParseClockWindow parses "HH:MM-HH:MM".
func ParseClockWindow(s string) (ClockWindow, error) {
	var sh, sm, eh, em int
	if _, err := fmt.Sscanf(s, "%d:%d-%d:%d", &sh, &sm, &eh, &em); err != nil {
		return ClockWindow{}, fmt.Errorf("parse quiet window %q: %w", s, err)
	}
	if sh < 0 || sh > 23 || eh < 0 || eh > 23 || sm < 0 || sm > 59 || em < 0 || em > 59 {
		return ClockWindow{}, fmt.Errorf("quiet window %q out of range", s)
	}
	return ClockWindow{Start: sh*60 + sm, End: eh*60 + em}, nil
}

func (w ClockWindow) contains(t time.Time) bool {
	m := t.UTC().Hour()*60 + t.UTC().Minute()
	if w.Start <= w.End {
		return m >= w.Start && m <= w.End
	}
	return m >= w.Start || m <= w.End
}

type tradeEntry struct {
	at  time.Time
	pnl float64
}

// Manager is the stateful risk gate for a single trading account. All
// read-modify-write of the rolling windows happens under one mutex, so
// concurrent evaluations per account are serialized.
//
// tradeHistory grows without bound; it feeds read-only statistics only and
// long-running processes are expected to recycle the manager externally.
type Manager struct {
	mu           sync.Mutex
	limits       Limits
	dailyTrades  []tradeEntry
	dailyPnL     float64
	tradeHistory []float64
	log          *logger.Logger
	now          func() time.Time
}

func NewManager(limits Limits, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{limits: limits, log: log, now: time.Now}
}

// SetClock overrides the time source; used in tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Evaluate gates a prospective trade. Every verdict, including Allow,
// carries a human-readable reason so callers log intent uniformly.
func (m *Manager) Evaluate(snapshot models.MarketSnapshot, open []models.Position) models.Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cleanupLocked()

	if len(m.dailyTrades) >= m.limits.MaxTradesPerDay {
		return deny(fmt.Sprintf("daily trade limit reached (%d/%d)",
			len(m.dailyTrades), m.limits.MaxTradesPerDay))
	}
	if math.Abs(m.dailyPnL) >= m.limits.MaxDailyRisk {
		return deny(fmt.Sprintf("daily risk limit reached (pnl %.4f, limit %.4f)",
			m.dailyPnL, m.limits.MaxDailyRisk))
	}
	if dd := m.drawdownLocked(); dd > m.limits.MaxDrawdown {
		return deny(fmt.Sprintf("drawdown %.4f exceeds limit %.4f", dd, m.limits.MaxDrawdown))
	}
	now := m.now()
	for _, w := range m.limits.QuietWindows {
		if w.contains(now) {
			return deny(fmt.Sprintf("inside high-impact window %02d:%02d-%02d:%02d",
				w.Start/60, w.Start%60, w.End/60, w.End%60))
		}
	}
	if spiked, latest, sigma := volatilitySpike(snapshot.Returns); spiked {
		return deny(fmt.Sprintf("volatility spike: |%.5f| > %.1fx sigma %.5f",
			latest, volSpikeMultiple, sigma))
	}
	for _, p := range open {
		c := math.Abs(pearson(snapshot.Returns, p.Returns))
		if c > m.limits.MaxCorrelation {
			return deny(fmt.Sprintf("correlation %.2f with open %s exceeds %.2f",
				c, p.Instrument, m.limits.MaxCorrelation))
		}
	}

	return models.Decision{Allow: true, Reason: "Trade allowed"}
}

// SizePosition computes the position size for the current balance and
// market state. It never fails: with no usable balance it degrades to the
// minimum floor.
func (m *Manager) SizePosition(balance float64, snapshot models.MarketSnapshot) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if balance <= 0 {
		return m.limits.MinPositionSize
	}

	size := balance * m.limits.MaxRiskPerTrade * m.limits.LotMultiplier

	if m.limits.VolatilityScaling && snapshot.Volatility > 0 {
		size /= 1 + snapshot.Volatility
	}

	if n := len(m.tradeHistory); n > 0 {
		wins := 0
		for _, pnl := range m.tradeHistory {
			if pnl > 0 {
				wins++
			}
		}
		factor := 2 * float64(wins) / float64(n)
		if factor > 1.5 {
			factor = 1.5
		}
		size *= factor
	}

	ceiling := balance * 0.1
	if size > ceiling {
		size = ceiling
	}
	if size < m.limits.MinPositionSize {
		size = m.limits.MinPositionSize
	}
	return math.Round(size)
}

// RecordOutcome appends a realized trade result to both rolling windows.
func (m *Manager) RecordOutcome(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyTrades = append(m.dailyTrades, tradeEntry{at: m.now(), pnl: pnl})
	m.dailyPnL += pnl
	m.tradeHistory = append(m.tradeHistory, pnl)
}

// DailyState reports the rolling-window trade count and PnL after lazy
// expiry; used by the status API.
func (m *Manager) DailyState() (trades int, pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupLocked()
	return len(m.dailyTrades), m.dailyPnL
}

// cleanupLocked expires entries older than 24h and recomputes the daily
// PnL as their sum. Calling it twice with no new trades is a no-op.
func (m *Manager) cleanupLocked() {
	cutoff := m.now().Add(-dailyWindow)
	kept := m.dailyTrades[:0]
	sum := 0.0
	for _, t := range m.dailyTrades {
		if t.at.After(cutoff) {
			kept = append(kept, t)
			sum += t.pnl
		}
	}
	m.dailyTrades = kept
	m.dailyPnL = sum
}

// drawdownLocked is the peak-to-current decline of the cumulative PnL
// curve over the full trade history.
func (m *Manager) drawdownLocked() float64 {
	if len(m.tradeHistory) == 0 {
		return 0
	}
	cum, peak := 0.0, 0.0
	for _, pnl := range m.tradeHistory {
		cum += pnl
		if cum > peak {
			peak = cum
		}
	}
	if peak <= 0 {
		return 0
	}
	return (peak - cum) / peak
}

func deny(reason string) models.Decision {
	return models.Decision{Allow: false, Reason: reason}
}

// volatilitySpike reports whether the latest return magnitude exceeds the
// fixed multiple of the return series' own deviation.
func volatilitySpike(returns []float64) (bool, float64, float64) {
	if len(returns) < 3 {
		return false, 0, 0
	}
	latest := returns[len(returns)-1]
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var sq float64
	for _, r := range returns {
		d := r - mean
		sq += d * d
	}
	sigma := math.Sqrt(sq / float64(len(returns)))
	if sigma == 0 {
		return false, latest, 0
	}
	return math.Abs(latest) > volSpikeMultiple*sigma, latest, sigma
}

// pearson computes absolute-comparable correlation over the overlapping
// tail of two return series.
func pearson(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}
	a = a[len(a)-n:]
	b = b[len(b)-n:]
	var ma, mb float64
	for i := 0; i < n; i++ {
		ma += a[i]
		mb += b[i]
	}
	ma /= float64(n)
	mb /= float64(n)
	var cov, va, vb float64
	for i := 0; i < n; i++ {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va == 0 || vb == 0 {
		return 0
	}
	return cov / math.Sqrt(va*vb)
}

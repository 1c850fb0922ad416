package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy is the single retry/backoff description shared by the history
// fetcher and broker calls: max attempts, geometric delay growth, jitter,
// and an absolute cap.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64
	Jitter      float64 // fraction of the delay randomized, in [0,1]
}

// Default mirrors the optimizer retry defaults.
func Default() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Factor:      2,
		Jitter:      0.2,
	}
}

// Delay returns the backoff before attempt n (0-based), jittered and capped.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= p.Factor
		if d >= float64(p.MaxDelay) {
			d = float64(p.MaxDelay)
			break
		}
	}
	if p.Jitter > 0 {
		// symmetric jitter around the nominal delay
		span := d * p.Jitter
		d = d - span/2 + rand.Float64()*span
	}
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Sleep blocks for the attempt's delay or until ctx is cancelled.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	t := time.NewTimer(p.Delay(attempt))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn up to MaxAttempts times, sleeping between failures. The last
// error is returned when every attempt fails.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		if serr := p.Sleep(ctx, i); serr != nil {
			return serr
		}
	}
	return err
}

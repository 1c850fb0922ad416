package optimizer

import (
	"context"
	"fmt"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/domain/repository"
	"TradePilot/pkg/logger"
	"TradePilot/pkg/retry"
)

// FetchConfig bounds one historical acquisition.
type FetchConfig struct {
	Instrument       string
	Count            int
	ChunkSize        int
	CacheTTL         time.Duration
	QualityThreshold float64 // minimum fetched/requested ratio to cache
}

// Fetcher acquires a historical bar series: freshness-bounded cache read
// first, then a chunked, checkpointed, backoff-paced fetch from the data
// source. Only series above the quality threshold become cache entries.
type Fetcher struct {
	source  repository.MarketData
	cache   repository.SeriesCache
	state   *StateStore
	policy  retry.Policy
	cfg     FetchConfig
	log     *logger.Logger
	metrics repository.Metrics
}

func NewFetcher(source repository.MarketData, cache repository.SeriesCache, state *StateStore,
	policy retry.Policy, cfg FetchConfig, log *logger.Logger, metrics repository.Metrics) *Fetcher {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 500
	}
	return &Fetcher{
		source: source, cache: cache, state: state,
		policy: policy, cfg: cfg, log: log, metrics: metrics,
	}
}

func (f *Fetcher) cacheKey() string {
	return fmt.Sprintf("bars:%s:%d", f.cfg.Instrument, f.cfg.Count)
}

// Historical returns the historical series for the configured instrument.
// A fatal error is only returned when nothing usable was obtained.
func (f *Fetcher) Historical(ctx context.Context) ([]models.Bar, error) {
	if f.cache != nil {
		if bars, ok := f.cache.Read(ctx, f.cacheKey(), f.cfg.CacheTTL); ok {
			f.log.Info("historical data served from cache",
				logger.String("instrument", f.cfg.Instrument), logger.Int("bars", len(bars)))
			return bars, nil
		}
	}

	bars, err := f.fetchChunked(ctx)
	if err != nil {
		return nil, err
	}

	quality := float64(len(bars)) / float64(f.cfg.Count)
	if quality >= f.cfg.QualityThreshold {
		if f.cache != nil {
			if err := f.cache.Write(ctx, f.cacheKey(), bars); err != nil {
				f.log.Warn("cache write failed", logger.Error(err))
			}
		}
	} else {
		// partial-but-too-sparse data must never become a trusted cache entry
		f.log.Warn("fetched series below quality threshold, not caching",
			logger.Float64("quality", quality),
			logger.Float64("threshold", f.cfg.QualityThreshold))
	}
	return bars, nil
}

func (f *Fetcher) fetchChunked(ctx context.Context) ([]models.Bar, error) {
	var bars []models.Bar
	chunks := 0

	if f.state != nil {
		if cp, ok := f.state.LoadFetch(f.cfg.Instrument); ok && cp.Requested == f.cfg.Count {
			bars = cp.Bars
			chunks = cp.Chunks
			f.log.Info("resuming fetch from checkpoint",
				logger.Int("chunks", chunks), logger.Int("bars", len(bars)))
		}
	}

	for len(bars) < f.cfg.Count {
		want := f.cfg.Count - len(bars)
		if want > f.cfg.ChunkSize {
			want = f.cfg.ChunkSize
		}

		start := time.Now()
		var chunk []models.Bar
		err := f.policy.Do(ctx, func() error {
			var ferr error
			chunk, ferr = f.source.FetchBars(ctx, f.cfg.Instrument, want)
			return ferr
		})
		latency := time.Since(start)
		if f.metrics != nil {
			f.metrics.RecordFetchChunk(err == nil)
		}
		if err != nil {
			if len(bars) == 0 {
				return nil, fmt.Errorf("%w: history fetch exhausted: %v", models.ErrExternalUnavailable, err)
			}
			f.log.Error("chunk fetch exhausted retries, proceeding with partial series",
				logger.Error(err), logger.Int("bars", len(bars)))
			break
		}
		if len(chunk) == 0 {
			// data source has no more history to give
			break
		}

		bars = append(bars, chunk...)
		chunks++
		if f.state != nil {
			if serr := f.state.SaveFetch(FetchCheckpoint{
				Instrument: f.cfg.Instrument,
				Requested:  f.cfg.Count,
				Chunks:     chunks,
				Bars:       bars,
			}); serr != nil {
				f.log.Warn("checkpoint save failed", logger.Error(serr))
			}
		}

		if len(bars) >= f.cfg.Count {
			break
		}
		if err := f.pause(ctx, chunks, latency); err != nil {
			return bars, err
		}
	}

	complete := len(bars) >= f.cfg.Count
	if len(bars) > f.cfg.Count {
		bars = bars[:f.cfg.Count]
	}
	// a partial series keeps its checkpoint so a rerun resumes instead of
	// refetching from zero
	if f.state != nil && complete {
		f.state.ClearFetch(f.cfg.Instrument)
	}
	return bars, nil
}

// pause applies the adaptive inter-chunk backoff: the policy's geometric
// base delay by chunk count, widened by half the last observed response
// latency, capped at the policy ceiling. Cancellable between chunks.
func (f *Fetcher) pause(ctx context.Context, chunks int, latency time.Duration) error {
	d := f.policy.Delay(chunks)
	d += latency / 2
	if d > f.policy.MaxDelay {
		d = f.policy.MaxDelay
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

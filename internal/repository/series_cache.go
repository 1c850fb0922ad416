package repository

import (
	"context"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/domain/repository"
	"TradePilot/pkg/cache"
	"TradePilot/pkg/logger"
)

// seriesEnvelope wraps a cached bar series with its write time so reads
// can enforce a per-call max age regardless of the store's own TTL.
type seriesEnvelope struct {
	SavedAt time.Time    `json:"saved_at"`
	Bars    []models.Bar `json:"bars"`
}

// SeriesCache implements repository.SeriesCache over a cache.Store.
type SeriesCache struct {
	store cache.Store
	ttl   time.Duration
	log   *logger.Logger
}

// NewSeriesCache creates a bar-series cache. ttl bounds how long entries
// live in the underlying store.
func NewSeriesCache(store cache.Store, ttl time.Duration, log *logger.Logger) repository.SeriesCache {
	if log == nil {
		log = logger.Nop()
	}
	return &SeriesCache{store: store, ttl: ttl, log: log}
}

// Read returns the cached series if present and no older than maxAge.
func (c *SeriesCache) Read(ctx context.Context, key string, maxAge time.Duration) ([]models.Bar, bool) {
	var env seriesEnvelope
	if err := c.store.Get(ctx, "series:"+key, &env); err != nil {
		return nil, false
	}
	if time.Since(env.SavedAt) > maxAge || len(env.Bars) == 0 {
		return nil, false
	}
	c.log.Debug("series cache hit",
		logger.String("key", key),
		logger.Int("bars", len(env.Bars)))
	return env.Bars, true
}

// Write stores the series stamped with the current time.
func (c *SeriesCache) Write(ctx context.Context, key string, bars []models.Bar) error {
	return c.store.Set(ctx, "series:"+key, seriesEnvelope{
		SavedAt: time.Now().UTC(),
		Bars:    bars,
	}, c.ttl)
}

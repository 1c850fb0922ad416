package cache

import (
	"context"
	"time"
)

// Layered implements a two-level cache, memory in front of Redis. Reads
// hit memory first; writes go through to both.
type Layered struct {
	mem   *MemoryStore
	redis *RedisStore
}

// NewLayered creates a layered cache over the given Redis store.
func NewLayered(redis *RedisStore, opts ...LayeredOption) *Layered {
	cfg := &LayeredConfig{MemoryMaxSize: 1000}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Layered{
		mem:   NewMemoryStore(WithMemoryMaxSize(cfg.MemoryMaxSize)),
		redis: redis,
	}
}

func (lc *Layered) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.redis.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	_ = lc.mem.Set(ctx, key, value, expiration)
	return nil
}

func (lc *Layered) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.mem.Get(ctx, key, dest); err == nil {
		return nil
	}
	if err := lc.redis.Get(ctx, key, dest); err != nil {
		return err
	}
	_ = lc.mem.Set(ctx, key, dest, 0)
	return nil
}

func (lc *Layered) Delete(ctx context.Context, keys ...string) error {
	_ = lc.mem.Delete(ctx, keys...)
	return lc.redis.Delete(ctx, keys...)
}

func (lc *Layered) Exists(ctx context.Context, keys ...string) (bool, error) {
	return lc.redis.Exists(ctx, keys...)
}

// Close closes both layers.
func (lc *Layered) Close() error {
	_ = lc.mem.Close()
	return lc.redis.Close()
}

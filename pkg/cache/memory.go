package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryItem struct {
	data     []byte
	expireAt time.Time
}

func (m *memoryItem) expired() bool {
	return time.Now().After(m.expireAt)
}

// MemoryStore implements Store with in-process storage and LRU eviction.
type MemoryStore struct {
	data    map[string]*memoryItem
	access  map[string]time.Time
	mutex   sync.Mutex
	maxSize int
	janitor *time.Ticker
	done    chan struct{}
}

// NewMemoryStore creates an in-memory cache.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}

	ms := &MemoryStore{
		data:    make(map[string]*memoryItem),
		access:  make(map[string]time.Time),
		maxSize: cfg.MaxSize,
		janitor: time.NewTicker(cfg.CleanupInterval),
		done:    make(chan struct{}),
	}
	go ms.cleanupExpired()
	return ms
}

func (ms *MemoryStore) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if len(ms.data) >= ms.maxSize {
		ms.evictLRU()
	}

	expireAt := time.Now().Add(expiration)
	if expiration <= 0 {
		expireAt = time.Now().Add(7 * 24 * time.Hour)
	}
	ms.data[key] = &memoryItem{data: data, expireAt: expireAt}
	ms.access[key] = time.Now()
	return nil
}

func (ms *MemoryStore) Get(_ context.Context, key string, dest interface{}) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	item, exists := ms.data[key]
	if !exists || item.expired() {
		if exists {
			delete(ms.data, key)
			delete(ms.access, key)
		}
		return ErrCacheMiss
	}

	ms.access[key] = time.Now()
	return json.Unmarshal(item.data, dest)
}

func (ms *MemoryStore) Delete(_ context.Context, keys ...string) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	for _, key := range keys {
		delete(ms.data, key)
		delete(ms.access, key)
	}
	return nil
}

func (ms *MemoryStore) Exists(_ context.Context, keys ...string) (bool, error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	for _, key := range keys {
		if item, ok := ms.data[key]; ok && !item.expired() {
			return true, nil
		}
	}
	return false, nil
}

func (ms *MemoryStore) evictLRU() {
	var oldestKey string
	oldestTime := time.Now()
	for key, accessTime := range ms.access {
		if accessTime.Before(oldestTime) {
			oldestTime = accessTime
			oldestKey = key
		}
	}
	if oldestKey != "" {
		delete(ms.data, oldestKey)
		delete(ms.access, oldestKey)
	}
}

func (ms *MemoryStore) cleanupExpired() {
	for {
		select {
		case <-ms.done:
			return
		case <-ms.janitor.C:
			ms.mutex.Lock()
			for key, item := range ms.data {
				if item.expired() {
					delete(ms.data, key)
					delete(ms.access, key)
				}
			}
			ms.mutex.Unlock()
		}
	}
}

// Close stops the background cleanup.
func (ms *MemoryStore) Close() error {
	ms.janitor.Stop()
	close(ms.done)
	return nil
}

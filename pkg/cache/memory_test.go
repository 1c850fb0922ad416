package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type payload struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()
	ctx := context.Background()

	in := payload{Name: "eurusd", Value: 1.1042}
	if err := ms.Set(ctx, "k1", in, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var out payload
	if err := ms.Get(ctx, "k1", &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out != in {
		t.Errorf("got %+v, want %+v", out, in)
	}

	ok, err := ms.Exists(ctx, "k1")
	if err != nil || !ok {
		t.Errorf("Exists = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestMemoryStoreMiss(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()

	var out payload
	if err := ms.Get(context.Background(), "absent", &out); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("err = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()
	ctx := context.Background()

	if err := ms.Set(ctx, "k1", payload{Name: "x"}, 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(25 * time.Millisecond)

	var out payload
	if err := ms.Get(ctx, "k1", &out); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("err = %v, want ErrCacheMiss after expiry", err)
	}
	if ok, _ := ms.Exists(ctx, "k1"); ok {
		t.Error("Exists = true for an expired entry")
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()
	ctx := context.Background()

	_ = ms.Set(ctx, "a", payload{}, time.Minute)
	_ = ms.Set(ctx, "b", payload{}, time.Minute)
	if err := ms.Delete(ctx, "a", "b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	var out payload
	if err := ms.Get(ctx, "a", &out); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("a still present after delete: %v", err)
	}
}

func TestMemoryStoreJanitorSweepsExpired(t *testing.T) {
	ms := NewMemoryStore(WithMemoryCleanup(5 * time.Millisecond))
	defer ms.Close()
	ctx := context.Background()

	if err := ms.Set(ctx, "k1", payload{Name: "x"}, 2*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	// the janitor, not a lazy read, must have dropped the entry
	ms.mutex.Lock()
	n := len(ms.data)
	ms.mutex.Unlock()
	if n != 0 {
		t.Errorf("store holds %d entries, want 0 after the cleanup sweep", n)
	}
}

func TestMemoryStoreEvictsLRU(t *testing.T) {
	ms := NewMemoryStore(WithMemoryMaxSize(2))
	defer ms.Close()
	ctx := context.Background()

	_ = ms.Set(ctx, "old", payload{Name: "old"}, time.Minute)
	time.Sleep(time.Millisecond)
	_ = ms.Set(ctx, "new", payload{Name: "new"}, time.Minute)
	time.Sleep(time.Millisecond)
	_ = ms.Set(ctx, "newest", payload{Name: "newest"}, time.Minute)

	var out payload
	if err := ms.Get(ctx, "old", &out); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("oldest entry survived eviction: %v", err)
	}
	if err := ms.Get(ctx, "newest", &out); err != nil {
		t.Errorf("newest entry missing: %v", err)
	}
}

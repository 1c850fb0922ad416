package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowConsumesCapacity(t *testing.T) {
	l := New()

	for i := 0; i < 3; i++ {
		if !l.Allow("k", 3, 0) {
			t.Fatalf("request %d denied within capacity", i)
		}
	}
	if l.Allow("k", 3, 0) {
		t.Fatal("request allowed past capacity with no refill")
	}
}

func TestAllowKeysAreIndependent(t *testing.T) {
	l := New()

	if !l.Allow("a", 1, 0) {
		t.Fatal("first token for key a denied")
	}
	if l.Allow("a", 1, 0) {
		t.Fatal("key a allowed past capacity")
	}
	if !l.Allow("b", 1, 0) {
		t.Fatal("key b blocked by key a's bucket")
	}
}

func TestAllowRefills(t *testing.T) {
	l := New()

	if !l.Allow("k", 1, 100) {
		t.Fatal("first token denied")
	}
	if l.Allow("k", 1, 100) {
		t.Fatal("empty bucket allowed immediately")
	}
	time.Sleep(30 * time.Millisecond) // 100/s refill restores the token
	if !l.Allow("k", 1, 100) {
		t.Fatal("bucket did not refill")
	}
}

func TestWaitBlocksUntilRefill(t *testing.T) {
	l := New()
	ctx := context.Background()

	if err := l.Wait(ctx, "k", 1, 50); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	start := time.Now()
	if err := l.Wait(ctx, "k", 1, 50); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("second Wait returned after %v, want a refill pause", elapsed)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	l := New()
	if err := l.Wait(context.Background(), "k", 1, 0.001); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "k", 1, 0.001); err != context.DeadlineExceeded {
		t.Fatalf("err = %v, want deadline exceeded while starved", err)
	}
}

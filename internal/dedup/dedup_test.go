package dedup_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"fieldrouter/internal/cache"
	"fieldrouter/internal/dedup"
)

// flakyBackend fails a fixed number of times before recovering.
type flakyBackend struct {
	inner     cache.Backend
	failures  int
	attempted int
}

func (f *flakyBackend) Get(ctx context.Context, key string) ([]byte, error) {
	f.attempted++
	if f.attempted <= f.failures {
		return nil, errors.New("backend down")
	}
	return f.inner.Get(ctx, key)
}

func (f *flakyBackend) SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	f.attempted++
	if f.attempted <= f.failures {
		return errors.New("backend down")
	}
	return f.inner.SetEx(ctx, key, ttl, value)
}

func (f *flakyBackend) Close() error { return nil }

func TestDedupMarkAndStatus(t *testing.T) {
	store := dedup.NewStore(cache.NewMemory(), time.Hour, time.Second)
	ctx := context.Background()

	if got := store.Status(ctx, "evt-1"); got != dedup.Unprocessed {
		t.Errorf("fresh event status = %v, want Unprocessed", got)
	}

	store.MarkProcessed(ctx, "evt-1")

	if got := store.Status(ctx, "evt-1"); got != dedup.Processed {
		t.Errorf("marked event status = %v, want Processed", got)
	}
	if got := store.Status(ctx, "evt-2"); got != dedup.Unprocessed {
		t.Errorf("other event status = %v, want Unprocessed", got)
	}
}

func TestDedupWindowExpiry(t *testing.T) {
	store := dedup.NewStore(cache.NewMemory(), 10*time.Millisecond, time.Second)
	ctx := context.Background()

	store.MarkProcessed(ctx, "evt-1")
	time.Sleep(20 * time.Millisecond)

	if got := store.Status(ctx, "evt-1"); got != dedup.Unprocessed {
		t.Errorf("expired event status = %v, want Unprocessed", got)
	}
}

func TestDedupStatusFailsOpen(t *testing.T) {
	backend := &flakyBackend{inner: cache.NewMemory(), failures: 1000}
	store := dedup.NewStore(backend, time.Hour, 200*time.Millisecond)

	// A persistently failing backend must degrade to Unprocessed, not block.
	start := time.Now()
	got := store.Status(context.Background(), "evt-1")
	if got != dedup.Unprocessed {
		t.Errorf("status on dead backend = %v, want Unprocessed", got)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("status took %v, backoff not bounded", elapsed)
	}
}

func TestDedupStatusRetriesThroughTransientFailure(t *testing.T) {
	backend := &flakyBackend{inner: cache.NewMemory(), failures: 2}
	store := dedup.NewStore(backend, time.Hour, 5*time.Second)
	ctx := context.Background()

	// Seed directly, past the flaky window.
	seed := &flakyBackend{inner: backend.inner}
	_ = seed.SetEx(ctx, "event_processed.evt-1", time.Hour, []byte("1"))

	if got := store.Status(ctx, "evt-1"); got != dedup.Processed {
		t.Errorf("status = %v, want Processed after retries", got)
	}
}

func TestDedupMarkDroppedOnDeadBackend(t *testing.T) {
	backend := &flakyBackend{inner: cache.NewMemory(), failures: 1000}
	store := dedup.NewStore(backend, time.Hour, 200*time.Millisecond)

	// Must not panic or block; the write is logged and dropped.
	store.MarkProcessed(context.Background(), "evt-1")
}

// Package dedup is the idempotency ledger: one record per event id, with a
// TTL window. Absence of a record is equivalent to UNPROCESSED, and any
// backend failure degrades to UNPROCESSED. The ledger fails open: a cache
// outage must never block the pipeline, at the cost of a possible duplicate
// delivery on redelivery.
package dedup

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"fieldrouter/internal/cache"
	"fieldrouter/internal/logger"
	"fieldrouter/internal/metrics"
)

// Status of an event id within the TTL window.
type Status int

const (
	Unprocessed Status = iota
	Processed
)

const keyPrefix = "event_processed."

var processedValue = []byte("1")

// Store tracks processed event ids.
type Store struct {
	backend cache.Backend
	ttl     time.Duration
	maxWait time.Duration
}

// NewStore builds a ledger over the cache backend. ttl bounds the
// deduplication window (default 24h); maxWait bounds the total retry time
// spent on a flaky backend per operation (default 10s).
func NewStore(backend cache.Backend, ttl, maxWait time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if maxWait <= 0 {
		maxWait = 10 * time.Second
	}
	return &Store{backend: backend, ttl: ttl, maxWait: maxWait}
}

// Status reports whether the event id was already processed within the TTL
// window. Backend errors exhaust a bounded backoff and then degrade to
// Unprocessed.
func (s *Store) Status(ctx context.Context, eventID string) Status {
	var found bool
	op := func() error {
		_, err := s.backend.Get(ctx, keyPrefix+eventID)
		if errors.Is(err, cache.ErrMiss) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	}

	if err := backoff.Retry(op, s.newBackOff(ctx)); err != nil {
		log := logger.WithComponent("dedup")
		log.Warn().
			Err(err).
			Str("event_id", eventID).
			Msg("status read failed, treating as unprocessed")
		return Unprocessed
	}
	if found {
		return Processed
	}
	return Unprocessed
}

// MarkProcessed records the event id. On repeated backend failure the write
// is logged, counted and dropped: processing already succeeded upstream, so
// the worst case is a duplicate delivery on redelivery, which the
// dead-letter check catches on the next attempt.
func (s *Store) MarkProcessed(ctx context.Context, eventID string) {
	op := func() error {
		return s.backend.SetEx(ctx, keyPrefix+eventID, s.ttl, processedValue)
	}

	if err := backoff.Retry(op, s.newBackOff(ctx)); err != nil {
		metrics.DedupMarkDropped.Inc()
		log := logger.WithComponent("dedup")
		log.Error().
			Err(err).
			Str("event_id", eventID).
			Msg("mark-processed write dropped after retries, dedup window weakened")
	}
}

func (s *Store) newBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = s.maxWait
	return backoff.WithContext(bo, ctx)
}

package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/goccy/go-json"

	"fieldrouter/internal/logger"
	"fieldrouter/internal/metrics"
	"fieldrouter/internal/models"
)

// Gateway publishes transformed documents towards destinations. Publish
// failures are retried with bounded exponential backoff and then re-raised
// unchanged, so the caller's redelivery mechanism decides what happens next.
type Gateway struct {
	broker      Broker
	env         string
	dlTopic     string
	maxAttempts uint64

	published    atomic.Uint64
	failed       atomic.Uint64
	bytesWritten atomic.Uint64
}

// Stats holds publish counters since startup.
type Stats struct {
	Published    uint64
	Failed       uint64
	BytesWritten uint64
}

// Stats returns a snapshot of the gateway's counters.
func (g *Gateway) Stats() Stats {
	return Stats{
		Published:    g.published.Load(),
		Failed:       g.failed.Load(),
		BytesWritten: g.bytesWritten.Load(),
	}
}

// Config holds gateway settings.
type Config struct {
	// Environment is the deployment name embedded in default topic names.
	Environment string
	// DeadLetterTopic receives envelopes that must not be retried.
	DeadLetterTopic string
	// MaxAttempts bounds publish retries per document (default 5).
	MaxAttempts uint64
}

// NewGateway wires a Gateway over a broker.
func NewGateway(broker Broker, cfg Config) *Gateway {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 5
	}
	return &Gateway{
		broker:      broker,
		env:         cfg.Environment,
		dlTopic:     cfg.DeadLetterTopic,
		maxAttempts: maxAttempts,
	}
}

// Publish serializes the document and delivers it to the destination's
// topic (configured, or the deterministic default) with the routing
// attributes and an advisory ordering key.
func (g *Gateway) Publish(ctx context.Context, doc map[string]any, attributes map[string]string, dest *models.Destination, orderingKey string) error {
	log := logger.WithComponent("dispatch")

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("serializing document for destination %s: %w", dest.ID, err)
	}

	topic := dest.Topic(g.env)
	start := time.Now()

	err = g.retryPublish(ctx, topic, payload, attributes, orderingKey)
	metrics.DispatchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		g.failed.Add(1)
		metrics.DispatchTotal.WithLabelValues(dest.TypeSlug, "failed").Inc()
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("destination_id", dest.ID).
			Msg("publish failed after retries")
		return err
	}

	g.published.Add(1)
	g.bytesWritten.Add(uint64(len(payload)))
	metrics.DispatchTotal.WithLabelValues(dest.TypeSlug, "success").Inc()
	log.Debug().
		Str("topic", topic).
		Str("destination_id", dest.ID).
		Int("bytes", len(payload)).
		Msg("document published")
	return nil
}

// DeadLetter forwards the original envelope, its attributes and a reason to
// the dead-letter topic.
func (g *Gateway) DeadLetter(ctx context.Context, envelope *models.Envelope, reason string) error {
	attributes := make(map[string]string, len(envelope.Attributes)+1)
	for k, v := range envelope.Attributes {
		attributes[k] = v
	}
	attributes[models.AttrDeadLetterReason] = reason

	metrics.DeadLetterTotal.WithLabelValues(reason).Inc()
	log := logger.WithComponent("dispatch")
	log.Warn().
		Str("reason", reason).
		Str("topic", g.dlTopic).
		Msg("forwarding envelope to dead-letter")

	return g.retryPublish(ctx, g.dlTopic, envelope.Payload, attributes, "")
}

func (g *Gateway) retryPublish(ctx context.Context, topic string, payload []byte, attributes map[string]string, orderingKey string) error {
	attempt := 0
	op := func() error {
		if attempt > 0 {
			metrics.DispatchRetries.Inc()
			log := logger.WithComponent("dispatch")
			log.Warn().
				Int("attempt", attempt).
				Str("topic", topic).
				Msg("retrying publish")
		}
		attempt++
		return g.broker.Publish(ctx, topic, payload, attributes, orderingKey)
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), g.maxAttempts-1), ctx)
	return backoff.Retry(op, bo)
}

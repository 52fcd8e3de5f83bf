// Package consumer pulls envelopes from the broker and drives them through
// the routing pipeline with a bounded worker pool. Pipeline outcomes map to
// broker acknowledgements: processed → Ack, retryable → Nak (redelivery),
// terminal → dead-letter publish + Term.
package consumer

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"fieldrouter/internal/dispatch"
	"fieldrouter/internal/errs"
	"fieldrouter/internal/logger"
	"fieldrouter/internal/metrics"
	"fieldrouter/internal/models"
	"fieldrouter/internal/pipeline"
)

// Config holds broker consumption settings.
type Config struct {
	Stream     string
	Subject    string
	Durable    string
	MaxDeliver int
	Workers    int
	// ProcessTimeout bounds one envelope's end-to-end processing.
	ProcessTimeout time.Duration
}

// Consumer owns the subscription and the worker pool.
type Consumer struct {
	js       jetstream.JetStream
	pipeline *pipeline.Pipeline
	gateway  *dispatch.Gateway
	cfg      Config

	msgChan chan jetstream.Msg
	cc      jetstream.ConsumeContext
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	processed    atomic.Uint64
	retried      atomic.Uint64
	deadLettered atomic.Uint64
}

// Stats holds consumer counters since startup.
type Stats struct {
	Processed    uint64
	Retried      uint64
	DeadLettered uint64
	QueueSize    int
}

// Stats returns a snapshot of the consumer's counters.
func (c *Consumer) Stats() Stats {
	return Stats{
		Processed:    c.processed.Load(),
		Retried:      c.retried.Load(),
		DeadLettered: c.deadLettered.Load(),
		QueueSize:    len(c.msgChan),
	}
}

// New builds a Consumer on an existing connection.
func New(nc *nats.Conn, pl *pipeline.Pipeline, gateway *dispatch.Gateway, cfg Config) (*Consumer, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, err
	}

	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = 10
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 60 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		js:       js,
		pipeline: pl,
		gateway:  gateway,
		cfg:      cfg,
		msgChan:  make(chan jetstream.Msg, cfg.Workers*2),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start ensures the stream and durable consumer exist and begins pulling.
func (c *Consumer) Start(ctx context.Context) error {
	log := logger.WithComponent("consumer")

	stream, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     c.cfg.Stream,
		Subjects: []string{c.cfg.Subject},
	})
	if err != nil {
		return err
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       c.cfg.Durable,
		FilterSubject: c.cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    c.cfg.MaxDeliver,
	})
	if err != nil {
		return err
	}

	for i := 0; i < c.cfg.Workers; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		select {
		case c.msgChan <- msg:
		case <-c.ctx.Done():
		}
	})
	if err != nil {
		c.cancel()
		return err
	}
	c.cc = cc

	log.Info().
		Str("stream", c.cfg.Stream).
		Str("subject", c.cfg.Subject).
		Str("durable", c.cfg.Durable).
		Int("workers", c.cfg.Workers).
		Msg("consumer started")
	return nil
}

// Stop drains the subscription and waits for in-flight envelopes.
func (c *Consumer) Stop() {
	log := logger.WithComponent("consumer")
	log.Info().Msg("stopping consumer")

	if c.cc != nil {
		c.cc.Stop()
	}
	c.cancel()
	c.wg.Wait()
	log.Info().Msg("consumer stopped")
}

func (c *Consumer) worker(id int) {
	defer c.wg.Done()

	log := logger.WithComponent("consumer").With().Int("worker_id", id).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("consumer").Inc()
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.msgChan:
			if !ok {
				return
			}
			c.handle(msg)
		}
	}
}

func (c *Consumer) handle(msg jetstream.Msg) {
	log := logger.WithComponent("consumer")

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.ProcessTimeout)
	defer cancel()

	envelope := envelopeFrom(msg)
	err := c.pipeline.Process(ctx, envelope)

	switch {
	case err == nil:
		c.processed.Add(1)
		if aerr := msg.Ack(); aerr != nil {
			log.Warn().Err(aerr).Msg("ack failed")
		}
	case errs.DeadLetter(err):
		if derr := c.gateway.DeadLetter(ctx, envelope, errs.Reason(err)); derr != nil {
			// Dead-letter publish failed: keep the message alive so
			// redelivery gets another chance to record it.
			log.Error().Err(derr).Msg("dead-letter publish failed, nacking")
			c.retried.Add(1)
			if nerr := msg.Nak(); nerr != nil {
				log.Warn().Err(nerr).Msg("nak failed")
			}
			return
		}
		c.deadLettered.Add(1)
		if terr := msg.Term(); terr != nil {
			log.Warn().Err(terr).Msg("term failed")
		}
	default:
		c.retried.Add(1)
		if nerr := msg.Nak(); nerr != nil {
			log.Warn().Err(nerr).Msg("nak failed")
		}
	}
}

// envelopeFrom rebuilds the envelope from a broker message: headers become
// attributes, the broker publish time backfills the ingestion timestamp
// when the attribute is absent.
func envelopeFrom(msg jetstream.Msg) *models.Envelope {
	attributes := map[string]string{}
	for key, values := range msg.Headers() {
		if len(values) > 0 {
			attributes[key] = values[0]
		}
	}
	if attributes[models.AttrIngestedAt] == "" {
		if md, err := msg.Metadata(); err == nil {
			attributes[models.AttrIngestedAt] = md.Timestamp.UTC().Format(time.RFC3339)
		}
	}
	return models.NewEnvelope(msg.Data(), attributes)
}

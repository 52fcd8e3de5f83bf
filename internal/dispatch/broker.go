// Package dispatch publishes transformed documents, tagged with routing
// metadata, to per-destination broker topics, and owns the dead-letter
// channel.
package dispatch

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// OrderingKeyHeader carries the advisory ordering key: messages sharing the
// key must reach the destination in submission order. The broker treats it
// as metadata, ordering is not enforced locally.
const OrderingKeyHeader = "Ordering-Key"

// Broker publishes payload bytes with string attributes to a named topic.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte, attributes map[string]string, orderingKey string) error
	Close() error
}

type natsBroker struct {
	js jetstream.JetStream
}

// NewNATSBroker builds the JetStream-backed Broker. The connection's
// lifecycle stays with the caller; the service owns it end to end.
func NewNATSBroker(nc *nats.Conn) (Broker, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, err
	}
	return &natsBroker{js: js}, nil
}

func (b *natsBroker) Publish(ctx context.Context, topic string, payload []byte, attributes map[string]string, orderingKey string) error {
	msg := &nats.Msg{
		Subject: topic,
		Data:    payload,
		Header:  nats.Header{},
	}
	for k, v := range attributes {
		msg.Header.Set(k, v)
	}
	if orderingKey != "" {
		msg.Header.Set(OrderingKeyHeader, orderingKey)
	}

	_, err := b.js.PublishMsg(ctx, msg)
	return err
}

func (b *natsBroker) Close() error { return nil }

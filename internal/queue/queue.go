// Package queue abstracts the event transport the processing and
// scoring orchestrators run on, with in-memory, Redis Streams and
// RabbitMQ backends sharing the same interface.
package queue

import (
	"context"
	"strconv"

	"github.com/loudmantrade/RealEstatesAntiFraud/internal/events"
)

// Delivery is one envelope handed to a subscriber, with the ack
// machinery the backend needs to honor at-least-once delivery.
type Delivery struct {
	Envelope events.Envelope
	Ack      func() error
	Reject   func(requeue bool) error
}

// Handler processes one delivered envelope. Returning an error leaves
// the delivery unacknowledged; the caller is expected to Reject it.
type Handler func(ctx context.Context, d Delivery) error

// Producer publishes envelopes onto a topic.
type Producer interface {
	Publish(ctx context.Context, topic events.Topic, envelope events.Envelope) error
}

// Consumer subscribes a handler to a topic with some number of
// concurrent workers, blocking until ctx is cancelled.
type Consumer interface {
	Subscribe(ctx context.Context, topic events.Topic, workerCount int, handler Handler) error
}

// Queue is the full surface every backend implements: connection
// lifecycle, publish, subscribe and a liveness probe.
type Queue interface {
	Producer
	Consumer
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	HealthCheck(ctx context.Context) error
}

// Idempotent wraps a Handler so that envelopes sharing an event id and
// retry count already seen by this process are acknowledged without
// being re-delivered to the underlying handler. A retry republished
// with a higher retry count reaches the handler again. It only dedupes within a
// single process's lifetime; cross-process idempotence is the
// responsibility of a durable store keyed by event_id, which backends
// needing it layer on top of this.
func Idempotent(h Handler) Handler {
	seen := newSeenSet()
	return func(ctx context.Context, d Delivery) error {
		key := d.Envelope.EventID + "#" + strconv.Itoa(d.Envelope.RetryCount)
		if !seen.claim(key) {
			return d.Ack()
		}
		return h(ctx, d)
	}
}

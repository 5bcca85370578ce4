package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/loudmantrade/RealEstatesAntiFraud/internal/events"
)

// MemoryQueue uses one buffered channel per topic to simulate a
// message queue. It is meant for tests and single-process deployments.
type MemoryQueue struct {
	mu     sync.Mutex
	topics map[events.Topic]chan events.Envelope
	size   int
	closed bool
}

// NewMemoryQueue creates an in-memory queue with the given per-topic
// channel buffer size.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 256
	}
	return &MemoryQueue{topics: make(map[events.Topic]chan events.Envelope), size: size}
}

func (q *MemoryQueue) channel(topic events.Topic) chan events.Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.topics[topic]
	if !ok {
		ch = make(chan events.Envelope, q.size)
		q.topics[topic] = ch
	}
	return ch
}

// Connect is a no-op for the in-memory backend.
func (q *MemoryQueue) Connect(ctx context.Context) error { return nil }

// Publish enqueues an envelope onto its topic's channel.
func (q *MemoryQueue) Publish(ctx context.Context, topic events.Topic, envelope events.Envelope) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return errors.New("queue: memory queue is closed")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.channel(topic) <- envelope:
		return nil
	}
}

// Subscribe starts workerCount goroutines consuming topic until ctx
// is cancelled. A handler error requeues the envelope with its retry
// count bumped, routing to the dead letter topic once exhausted.
func (q *MemoryQueue) Subscribe(ctx context.Context, topic events.Topic, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	ch := q.channel(topic)
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case envelope, ok := <-ch:
					if !ok {
						return
					}
					q.deliver(ctx, topic, envelope, handler)
				}
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (q *MemoryQueue) deliver(ctx context.Context, topic events.Topic, envelope events.Envelope, handler Handler) {
	d := Delivery{
		Envelope: envelope,
		Ack:      func() error { return nil },
		Reject: func(requeue bool) error {
			if !requeue {
				return nil
			}
			next := envelope.NextAttempt()
			if next.Exhausted() {
				return q.Publish(ctx, events.TopicDeadLetter, next.ToDeadLetter())
			}
			return q.Publish(ctx, topic, next)
		},
	}
	if err := handler(ctx, d); err != nil {
		_ = d.Reject(true)
		return
	}
	_ = d.Ack()
}

// Disconnect closes every topic channel.
func (q *MemoryQueue) Disconnect(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	for _, ch := range q.topics {
		close(ch)
	}
	q.closed = true
	return nil
}

// HealthCheck always succeeds for the in-memory backend unless closed.
func (q *MemoryQueue) HealthCheck(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errors.New("queue: memory queue is closed")
	}
	return nil
}

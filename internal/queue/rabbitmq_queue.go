package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/loudmantrade/RealEstatesAntiFraud/internal/events"
)

// RabbitMQConfig describes the connection parameters for the
// RabbitMQ-backed queue. Each topic is declared as its own queue,
// named with a fixed prefix; the queue is durable when Durable is set.
type RabbitMQConfig struct {
	URL        string
	Prefix     string
	Prefetch   int
	Durable    bool
	AutoDelete bool
}

// RabbitMQQueue implements Queue over RabbitMQ using manual
// acknowledgement and explicit requeue-on-reject.
type RabbitMQQueue struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	prefix string
	durable    bool
	autoDelete bool

	mu      sync.Mutex
	declared map[events.Topic]struct{}
}

// NewRabbitMQQueue dials RabbitMQ and opens a channel.
func NewRabbitMQQueue(cfg RabbitMQConfig) (*RabbitMQQueue, error) {
	if cfg.URL == "" {
		return nil, errors.New("queue: rabbitmq url cannot be empty")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "antifraud."
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("queue: connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: open rabbitmq channel: %w", err)
	}
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("queue: set rabbitmq qos: %w", err)
		}
	}
	return &RabbitMQQueue{
		conn: conn, ch: ch, prefix: prefix,
		durable: cfg.Durable, autoDelete: cfg.AutoDelete,
		declared: make(map[events.Topic]struct{}),
	}, nil
}

// Connect is a no-op; the connection is already live after construction.
func (q *RabbitMQQueue) Connect(ctx context.Context) error { return nil }

func (q *RabbitMQQueue) queueName(topic events.Topic) string {
	return q.prefix + string(topic)
}

func (q *RabbitMQQueue) ensureDeclared(topic events.Topic) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.declared[topic]; ok {
		return nil
	}
	_, err := q.ch.QueueDeclare(q.queueName(topic), q.durable, q.autoDelete, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue: declare rabbitmq queue %s: %w", topic, err)
	}
	q.declared[topic] = struct{}{}
	return nil
}

// Publish sends the envelope to the topic's queue.
func (q *RabbitMQQueue) Publish(ctx context.Context, topic events.Topic, envelope events.Envelope) error {
	if q.ch == nil {
		return errors.New("queue: rabbitmq queue not initialized")
	}
	if err := q.ensureDeclared(topic); err != nil {
		return err
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("queue: marshal envelope: %w", err)
	}
	return q.ch.PublishWithContext(ctx, "", q.queueName(topic), false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		MessageId:    envelope.EventID,
	})
}

// Subscribe consumes the topic's queue with manual acknowledgement,
// requeuing rejected messages unless the envelope's retry budget is
// exhausted, in which case it is re-routed to the dead letter topic
// and acknowledged off the original queue.
func (q *RabbitMQQueue) Subscribe(ctx context.Context, topic events.Topic, workerCount int, handler Handler) error {
	if q.ch == nil {
		return errors.New("queue: rabbitmq queue not initialized")
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	if err := q.ensureDeclared(topic); err != nil {
		return err
	}
	msgs, err := q.ch.Consume(q.queueName(topic), "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue: consume rabbitmq queue %s: %w", topic, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						return
					}
					q.deliverMessage(ctx, topic, msg, handler)
				}
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (q *RabbitMQQueue) deliverMessage(ctx context.Context, topic events.Topic, msg amqp.Delivery, handler Handler) {
	var envelope events.Envelope
	if err := json.Unmarshal(msg.Body, &envelope); err != nil {
		_ = msg.Ack(false)
		return
	}
	d := Delivery{
		Envelope: envelope,
		Ack:      func() error { return msg.Ack(false) },
		Reject: func(requeue bool) error {
			if !requeue {
				return msg.Ack(false)
			}
			next := envelope.NextAttempt()
			target := topic
			if next.Exhausted() {
				next = next.ToDeadLetter()
				target = events.TopicDeadLetter
			}
			if err := q.Publish(ctx, target, next); err != nil {
				return err
			}
			return msg.Ack(false)
		},
	}
	if err := handler(ctx, d); err != nil {
		_ = d.Reject(true)
		return
	}
	_ = d.Ack()
}

// Disconnect closes the channel and connection.
func (q *RabbitMQQueue) Disconnect(ctx context.Context) error {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// HealthCheck reports whether the underlying connection is still open.
func (q *RabbitMQQueue) HealthCheck(ctx context.Context) error {
	if q.conn == nil || q.conn.IsClosed() {
		return errors.New("queue: rabbitmq connection is closed")
	}
	return nil
}

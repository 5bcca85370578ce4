package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/loudmantrade/RealEstatesAntiFraud/internal/events"
)

// StreamQueueConfig describes the Redis connection and consumer group
// parameters for the Streams-backed queue.
type StreamQueueConfig struct {
	Address       string
	Password      string
	DB            int
	ConsumerGroup string
	ConsumerName  string
	BlockWait     time.Duration
	MaxPending    int64
}

// StreamQueue implements Queue over Redis Streams, using one stream
// per topic and a shared consumer group for at-least-once delivery
// with manual acknowledgement.
type StreamQueue struct {
	client  *redis.Client
	group   string
	name    string
	wait    time.Duration
	maxPend int64

	mu      sync.Mutex
	groups  map[events.Topic]struct{}
}

// NewStreamQueue dials Redis and prepares a Streams-backed queue.
func NewStreamQueue(cfg StreamQueueConfig) (*StreamQueue, error) {
	if cfg.Address == "" {
		return nil, errors.New("queue: redis address cannot be empty")
	}
	group := cfg.ConsumerGroup
	if group == "" {
		group = "antifraud"
	}
	name := cfg.ConsumerName
	if name == "" {
		name = "consumer-1"
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	maxPend := cfg.MaxPending
	if maxPend <= 0 {
		maxPend = 1000
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB})
	return &StreamQueue{client: client, group: group, name: name, wait: wait, maxPend: maxPend, groups: make(map[events.Topic]struct{})}, nil
}

// Connect pings Redis to verify connectivity.
func (q *StreamQueue) Connect(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("queue: connect to redis: %w", err)
	}
	return nil
}

func streamKey(topic events.Topic) string {
	return "antifraud:stream:" + string(topic)
}

// Publish appends the envelope to the topic's stream via XADD.
func (q *StreamQueue) Publish(ctx context.Context, topic events.Topic, envelope events.Envelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("queue: marshal envelope: %w", err)
	}
	err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(topic),
		Values: map[string]any{"envelope": body},
	}).Err()
	if err != nil {
		return fmt.Errorf("queue: xadd to %s: %w", topic, err)
	}
	return nil
}

func (q *StreamQueue) ensureGroup(ctx context.Context, topic events.Topic) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.groups[topic]; ok {
		return nil
	}
	err := q.client.XGroupCreateMkStream(ctx, streamKey(topic), q.group, "0").Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		// BUSYGROUP means the group already exists, which is fine.
		if err.Error() != "BUSYGROUP Consumer Group name already exists" {
			return fmt.Errorf("queue: create consumer group for %s: %w", topic, err)
		}
	}
	q.groups[topic] = struct{}{}
	return nil
}

// Subscribe reads from the topic's stream via XREADGROUP with
// workerCount concurrent readers sharing the consumer group, applying
// backpressure by checking XPENDING against MaxPending before pulling
// more work.
func (q *StreamQueue) Subscribe(ctx context.Context, topic events.Topic, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	if err := q.ensureGroup(ctx, topic); err != nil {
		return err
	}
	errCh := make(chan error, workerCount)
	for i := 0; i < workerCount; i++ {
		go q.readLoop(ctx, topic, fmt.Sprintf("%s-%d", q.name, i), handler, errCh)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (q *StreamQueue) readLoop(ctx context.Context, topic events.Topic, consumer string, handler Handler, errCh chan error) {
	key := streamKey(topic)
	for {
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
			return
		default:
		}
		pending, err := q.client.XPending(ctx, key, q.group).Result()
		if err == nil && pending != nil && int64(pending.Count) >= q.maxPend {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{key, ">"},
			Count:    10,
			Block:    q.wait,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				errCh <- err
				return
			}
			continue
		}
		for _, stream := range res {
			for _, msg := range stream.Messages {
				q.deliverMessage(ctx, key, topic, msg, handler)
			}
		}
	}
}

func (q *StreamQueue) deliverMessage(ctx context.Context, key string, topic events.Topic, msg redis.XMessage, handler Handler) {
	raw, _ := msg.Values["envelope"].(string)
	var envelope events.Envelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		_ = q.client.XAck(ctx, key, q.group, msg.ID).Err()
		return
	}
	d := Delivery{
		Envelope: envelope,
		Ack:      func() error { return q.client.XAck(ctx, key, q.group, msg.ID).Err() },
		Reject: func(requeue bool) error {
			if !requeue {
				return q.client.XAck(ctx, key, q.group, msg.ID).Err()
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
			return q.client.XAck(ctx, key, q.group, msg.ID).Err()
		},
	}
	if err := handler(ctx, d); err != nil {
		_ = d.Reject(true)
		return
	}
	_ = d.Ack()
}

// Disconnect closes the Redis client.
func (q *StreamQueue) Disconnect(ctx context.Context) error {
	return q.client.Close()
}

// HealthCheck pings Redis.
func (q *StreamQueue) HealthCheck(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

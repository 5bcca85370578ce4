// Package events defines the event envelope and the typed event
// payloads that flow between the queue and the processing/scoring
// orchestrators.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Topic names the fixed set of channels events travel on.
type Topic string

const (
	TopicListingsRaw        Topic = "listings.raw"
	TopicListingsNormalized Topic = "listings.normalized"
	TopicListingsProcessed  Topic = "listings.processed"
	TopicFraudDetected      Topic = "fraud.detected"
	TopicProcessingFailed   Topic = "processing.failed"
	TopicDeadLetter         Topic = "dead_letter"
)

// Status tracks an envelope's progress through retry handling.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusRetrying  Status = "retrying"
	StatusDead      Status = "dead"
)

// Envelope wraps every payload moved through the queue with the
// metadata the runtime needs for tracing, idempotence and retries.
type Envelope struct {
	EventID       string          `json:"event_id"`
	ParentEventID string          `json:"parent_event_id,omitempty"`
	TraceID       string          `json:"trace_id,omitempty"`
	RequestID     string          `json:"request_id,omitempty"`
	Topic         Topic           `json:"topic"`
	Timestamp     time.Time       `json:"timestamp"`
	RetryCount    int             `json:"retry_count"`
	MaxRetries    int             `json:"max_retries"`
	Status        Status          `json:"status"`
	Tags          map[string]string `json:"tags,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// New builds an envelope with a fresh event id and the given payload
// marshaled to JSON.
func New(topic Topic, payload any, opts ...Option) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	e := Envelope{
		EventID:    uuid.NewString(),
		Topic:      topic,
		Timestamp:  time.Now().UTC(),
		MaxRetries: DefaultMaxRetries,
		Status:     StatusPending,
		Payload:    body,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e, nil
}

// DefaultMaxRetries bounds how many times an envelope is retried
// before it is routed to the dead_letter topic.
const DefaultMaxRetries = 3

// Option customizes envelope construction.
type Option func(*Envelope)

// WithParent sets the parent event id, linking a derived event back
// to the one that produced it.
func WithParent(parentEventID string) Option {
	return func(e *Envelope) { e.ParentEventID = parentEventID }
}

// WithTrace propagates trace and request ids onto a derived envelope.
func WithTrace(traceID, requestID string) Option {
	return func(e *Envelope) {
		e.TraceID = traceID
		e.RequestID = requestID
	}
}

// WithMaxRetries overrides the default retry ceiling.
func WithMaxRetries(n int) Option {
	return func(e *Envelope) {
		if n > 0 {
			e.MaxRetries = n
		}
	}
}

// WithTag attaches a single tag to the envelope.
func WithTag(key, value string) Option {
	return func(e *Envelope) {
		if e.Tags == nil {
			e.Tags = map[string]string{}
		}
		e.Tags[key] = value
	}
}

// Unmarshal decodes the envelope's payload into v.
func (e Envelope) Unmarshal(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// NextAttempt returns a copy of e with RetryCount incremented and
// Status set to Retrying, for republishing after a transient failure.
func (e Envelope) NextAttempt() Envelope {
	next := e
	next.RetryCount++
	next.Status = StatusRetrying
	return next
}

// Exhausted reports whether e has used up its retry budget.
func (e Envelope) Exhausted() bool {
	return e.RetryCount >= e.MaxRetries
}

// ToDeadLetter returns a copy of e retopicked to the dead letter
// channel with its status marked Dead, preserving the original topic
// as a tag for operator triage.
func (e Envelope) ToDeadLetter() Envelope {
	dead := e
	dead.Tags = cloneTags(e.Tags)
	if dead.Tags == nil {
		dead.Tags = map[string]string{}
	}
	dead.Tags["original_topic"] = string(e.Topic)
	dead.Topic = TopicDeadLetter
	dead.Status = StatusDead
	return dead
}

func cloneTags(tags map[string]string) map[string]string {
	if tags == nil {
		return nil
	}
	cp := make(map[string]string, len(tags))
	for k, v := range tags {
		cp[k] = v
	}
	return cp
}

// Package orchestrator runs the listing processing pipeline: it
// consumes raw listings, feeds them sequentially through enabled
// processing plugins in priority order, scores the result for fraud
// risk, and emits the outcome. Unlike the system it was modeled on,
// it aborts a listing's pipeline on the first plugin failure rather
// than skipping past it.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	xerrors "github.com/loudmantrade/RealEstatesAntiFraud/internal/errors"
	"github.com/loudmantrade/RealEstatesAntiFraud/internal/events"
	"github.com/loudmantrade/RealEstatesAntiFraud/internal/listing"
	"github.com/loudmantrade/RealEstatesAntiFraud/internal/observability/alerting"
	"github.com/loudmantrade/RealEstatesAntiFraud/internal/observability/metrics"
	"github.com/loudmantrade/RealEstatesAntiFraud/internal/plugin"
	"github.com/loudmantrade/RealEstatesAntiFraud/internal/queue"
	"github.com/loudmantrade/RealEstatesAntiFraud/internal/scoring"
	"github.com/loudmantrade/RealEstatesAntiFraud/pkg/logger"
)

// PluginSource supplies the ordered, enabled processing plugins and
// live implementations the pipeline runs.
type PluginSource interface {
	EnabledByKind(kind plugin.Kind) []string
	Get(id string) (plugin.Plugin, error)
}

// Scorer computes the fraud score for a fully processed listing.
type Scorer interface {
	Run(ctx context.Context, l listing.Listing) (scoring.FraudScore, error)
}

// DeadLetterSink archives an envelope whose pipeline failed
// permanently, after the failure event has already been published to
// processing.failed.
type DeadLetterSink interface {
	SaveEnvelope(ctx context.Context, e events.Envelope, reason string) error
}

// Stats is a snapshot of the orchestrator's lifetime counters.
type Stats struct {
	EventsProcessed       int64 `json:"events_processed"`
	EventsFailed          int64 `json:"events_failed"`
	PluginExecutionCount  int64 `json:"plugin_execution_count"`
	FraudDetected         int64 `json:"fraud_detected"`
}

// Orchestrator drives one end of the listing pipeline: consume
// listings.raw, transform, score, publish.
type Orchestrator struct {
	plugins     PluginSource
	scorer      Scorer
	queue       queue.Queue
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
	deadLetters DeadLetterSink

	stats Stats
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithWorkerCount sets how many concurrent consumers drain listings.raw.
func WithWorkerCount(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workerCount = n
		}
	}
}

// WithLogger overrides the orchestrator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithAlertDispatcher wires an alert dispatcher for pipeline failures.
func WithAlertDispatcher(d alerting.Dispatcher) Option {
	return func(o *Orchestrator) {
		o.alerter = d
	}
}

// WithDeadLetterSink archives envelopes whose pipeline failed
// permanently alongside the processing.failed event.
func WithDeadLetterSink(sink DeadLetterSink) Option {
	return func(o *Orchestrator) {
		o.deadLetters = sink
	}
}

// New constructs a processing orchestrator.
func New(plugins PluginSource, scorer Scorer, q queue.Queue, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		plugins:     plugins,
		scorer:      scorer,
		queue:       q,
		workerCount: 1,
		logger:      logger.Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.workerCount <= 0 {
		o.workerCount = 1
	}
	return o
}

// Start subscribes to listings.raw and runs until ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.queue == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "队列未配置")
	}
	handler := queue.Idempotent(o.handle)
	return o.queue.Subscribe(ctx, events.TopicListingsRaw, o.workerCount, handler)
}

func (o *Orchestrator) handle(ctx context.Context, d queue.Delivery) error {
	var raw events.RawListingEvent
	if err := d.Envelope.Unmarshal(&raw); err != nil {
		o.stats.EventsFailed++
		metrics.ObserveEventFailed()
		o.logger.Error("failed to decode raw listing event", "error", err, "event_id", d.Envelope.EventID)
		return d.Reject(false)
	}

	l := raw.Listing
	if err := l.Validate(); err != nil {
		o.stats.EventsFailed++
		metrics.ObserveEventFailed()
		o.logger.Warn("listing failed validation, routing to dead letter",
			"listing_id", l.ListingID, "error", err)
		o.emitProcessingFailed(ctx, d.Envelope, l.ListingID, "", err)
		return d.Reject(false)
	}

	processed, err := o.runPipeline(ctx, l)
	if err != nil {
		o.stats.EventsFailed++
		metrics.ObserveEventFailed()
		o.logger.Error("processing pipeline failed", "listing_id", l.ListingID, "error", err)
		o.emitAlert(ctx, l.ListingID, CodePipelineStep, err, "process")
		if xerrors.RetryableError(err) && !d.Envelope.Exhausted() {
			return d.Reject(true)
		}
		o.emitProcessingFailed(ctx, d.Envelope, l.ListingID, "", err)
		return d.Reject(false)
	}

	score, err := o.scorer.Run(ctx, processed)
	if err != nil {
		o.stats.EventsFailed++
		metrics.ObserveEventFailed()
		o.logger.Error("scoring failed", "listing_id", l.ListingID, "error", err)
		o.emitAlert(ctx, l.ListingID, CodePipelineScoring, err, "score")
		if xerrors.RetryableError(err) && !d.Envelope.Exhausted() {
			return d.Reject(true)
		}
		o.emitProcessingFailed(ctx, d.Envelope, l.ListingID, "", err)
		return d.Reject(false)
	}

	if err := o.publishProcessed(ctx, processed, score); err != nil {
		o.stats.EventsFailed++
		metrics.ObserveEventFailed()
		o.logger.Error("failed to publish processed listing", "listing_id", l.ListingID, "error", err)
		o.emitAlert(ctx, l.ListingID, CodePipelinePublish, err, "publish")
		return d.Reject(true)
	}

	metrics.ObserveRiskLevel(string(score.RiskLevel))
	if score.RiskLevel == scoring.LevelFraud {
		o.stats.FraudDetected++
		if err := o.publishFraudDetected(ctx, score); err != nil {
			o.logger.Error("failed to publish fraud detected event", "listing_id", l.ListingID, "error", err)
		}
	}

	o.stats.EventsProcessed++
	metrics.ObserveEventProcessed()
	return d.Ack()
}

// runPipeline runs every enabled processing plugin, in priority order,
// against the listing sequentially. It returns on the first plugin
// error rather than skipping past a failing plugin and continuing
// with the rest of the chain.
func (o *Orchestrator) runPipeline(ctx context.Context, l listing.Listing) (listing.Listing, error) {
	ids := o.plugins.EnabledByKind(plugin.KindProcessing)
	current := l
	for _, id := range ids {
		impl, err := o.plugins.Get(id)
		if err != nil {
			return current, xerrors.Wrap(CodePipelineStep, err, fmt.Sprintf("处理插件 %s 不可用", id))
		}
		processor, ok := impl.(plugin.ProcessingPlugin)
		if !ok {
			return current, xerrors.New(CodePipelineStep, fmt.Sprintf("插件 %s 未实现处理接口", id))
		}
		o.stats.PluginExecutionCount++
		metrics.ObservePluginExecuted()
		next, err := o.runStep(ctx, processor, id, current)
		if err != nil {
			return current, xerrors.Wrap(CodePipelineStep, err, fmt.Sprintf("处理插件 %s 执行失败", id),
				xerrors.WithRetryable(retryableCause(err)))
		}
		current = next
	}
	return current, nil
}

// retryableCause reports whether a processing plugin's own error
// should keep the envelope eligible for redelivery. A plugin that
// tags its error through xerrors (for example plugin.NewPermanentError)
// has its own Retryable() honored; an untagged error defaults to
// retryable, matching the prior behavior for ordinary Go errors.
func retryableCause(err error) bool {
	if _, ok := xerrors.From(err); ok {
		return xerrors.RetryableError(err)
	}
	return true
}

func (o *Orchestrator) runStep(ctx context.Context, p plugin.ProcessingPlugin, id string, l listing.Listing) (result listing.Listing, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin %s panicked: %v", id, r)
		}
	}()
	return p.Process(ctx, l)
}

func (o *Orchestrator) publishProcessed(ctx context.Context, l listing.Listing, score scoring.FraudScore) error {
	payload := events.ProcessedListingEvent{
		Listing: l,
		Score:   score.OverallScore,
		Level:   string(score.RiskLevel),
	}
	envelope, err := events.New(events.TopicListingsProcessed, payload)
	if err != nil {
		return err
	}
	return o.queue.Publish(ctx, events.TopicListingsProcessed, envelope)
}

func (o *Orchestrator) publishFraudDetected(ctx context.Context, score scoring.FraudScore) error {
	signals := make([]events.SignalPayload, 0, len(score.Signals))
	for _, s := range score.Signals {
		signals = append(signals, events.SignalPayload{Code: s.Code, Message: s.Message, Confidence: s.Confidence})
	}
	payload := events.FraudDetectedEvent{
		ListingID: score.ListingID,
		Score:     score.OverallScore,
		Level:     string(score.RiskLevel),
		Signals:   signals,
	}
	envelope, err := events.New(events.TopicFraudDetected, payload)
	if err != nil {
		return err
	}
	return o.queue.Publish(ctx, events.TopicFraudDetected, envelope)
}

func (o *Orchestrator) emitProcessingFailed(ctx context.Context, raw events.Envelope, listingID, pluginID string, cause error) {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	payload := events.ProcessingFailedEvent{ListingID: listingID, PluginID: pluginID, Reason: reason}
	envelope, err := events.New(events.TopicProcessingFailed, payload)
	if err != nil {
		o.logger.Error("failed to build processing failed event", "listing_id", listingID, "error", err)
		return
	}
	if pubErr := o.queue.Publish(ctx, events.TopicProcessingFailed, envelope); pubErr != nil {
		o.logger.Error("failed to publish processing failed event", "listing_id", listingID, "error", pubErr)
	}
	if o.deadLetters != nil {
		if err := o.deadLetters.SaveEnvelope(ctx, raw.ToDeadLetter(), reason); err != nil {
			o.logger.Error("failed to archive dead letter", "listing_id", listingID, "error", err)
		}
	}
}

func (o *Orchestrator) emitAlert(ctx context.Context, listingID string, code xerrors.Code, cause error, stage string) {
	if o.alerter == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	metadata := map[string]string{"stage": stage}
	if cause != nil {
		metadata["cause"] = cause.Error()
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		ListingID:  listingID,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if err := o.alerter.Notify(ctx, event); err != nil {
		o.logger.Error("alert dispatch failed", "listing_id", listingID, "stage", stage, "error", err)
	}
}

// Snapshot returns a copy of the orchestrator's lifetime counters.
func (o *Orchestrator) Snapshot() Stats {
	return o.stats
}

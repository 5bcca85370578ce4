// Package scoring implements the risk-scoring orchestrator: it fans
// detection plugins out concurrently over a listing, aggregates their
// scores into a single weighted fraud score, and classifies the result.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/loudmantrade/RealEstatesAntiFraud/internal/listing"
	"github.com/loudmantrade/RealEstatesAntiFraud/internal/observability/metrics"
	"github.com/loudmantrade/RealEstatesAntiFraud/internal/plugin"
	"github.com/loudmantrade/RealEstatesAntiFraud/pkg/logger"
)

// Level is the human-readable risk classification a FraudScore falls into.
type Level string

const (
	LevelSafe       Level = "safe"
	LevelSuspicious Level = "suspicious"
	LevelFraud      Level = "fraud"
)

// PluginResult is one detection plugin's contribution, kept alongside
// the weight it was scored with for metadata and debugging.
type PluginResult struct {
	PluginID string                  `json:"plugin_id"`
	Weight   float64                 `json:"weight"`
	Result   plugin.DetectionResult  `json:"result"`
}

// FraudScore is the final, aggregated assessment of one listing.
type FraudScore struct {
	ListingID         string         `json:"listing_id"`
	OverallScore      float64        `json:"overall_score"`
	Confidence        float64        `json:"confidence"`
	RiskLevel         Level          `json:"risk_level"`
	Signals           []plugin.Signal `json:"signals"`
	PluginResults     []PluginResult `json:"plugin_results"`
	ProcessingTime    time.Duration  `json:"processing_time"`
	PluginsExecuted   int            `json:"plugins_executed"`
	TotalSignals      int            `json:"total_signals"`
	HighConfidenceSignals int        `json:"high_confidence_signals"`
}

// Source supplies the set of enabled detection plugins, with their
// manifest weight overrides, to run for a given analysis. The scoring
// orchestrator does not own plugin lifecycle; it only reads from it.
type Source interface {
	EnabledByKind(kind plugin.Kind) []string
	Get(id string) (plugin.Plugin, error)
	Info(id string) (plugin.Info, error)
}

// Orchestrator runs every enabled detection plugin against a listing
// and computes its aggregate fraud score.
type Orchestrator struct {
	source              Source
	minConfidence       float64
	deadline            time.Duration
	highConfidenceFloor float64
	logger              *slog.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithMinConfidence overrides the default 0.5 signal inclusion threshold.
func WithMinConfidence(threshold float64) Option {
	return func(o *Orchestrator) {
		if threshold >= 0 && threshold <= 1 {
			o.minConfidence = threshold
		}
	}
}

// WithDeadline bounds how long the fan-out across detection plugins
// is allowed to take before results are aggregated from whoever
// finished in time.
func WithDeadline(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.deadline = d
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

// New constructs a risk-scoring orchestrator over source.
func New(source Source, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:              source,
		minConfidence:       0.5,
		deadline:            10 * time.Second,
		highConfidenceFloor: 0.8,
		logger:              logger.Named("scoring"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run fans every enabled detection plugin out concurrently, bounded by
// the orchestrator's deadline, and aggregates their results into a
// FraudScore. A plugin that errors or times out is logged and
// excluded from the aggregate rather than failing the whole run.
func (o *Orchestrator) Run(ctx context.Context, l listing.Listing) (FraudScore, error) {
	start := time.Now()
	ids := o.source.EnabledByKind(plugin.KindDetection)

	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	outcomes := make([]outcomeResult, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			outcomes[i] = o.runOne(ctx, id, l)
		}(i, id)
	}
	wg.Wait()

	var results []PluginResult
	var signals []plugin.Signal
	for _, out := range outcomes {
		if !out.ok {
			continue
		}
		results = append(results, PluginResult{PluginID: out.id, Weight: out.weight, Result: out.result})
		for _, s := range out.result.Signals {
			if s.Confidence >= o.minConfidence {
				signals = append(signals, s)
			}
		}
	}

	overallScore, confidence := computeWeightedScore(results)
	level := DetermineRiskLevel(overallScore)

	highConfidence := 0
	for _, s := range signals {
		if s.Confidence > o.highConfidenceFloor {
			highConfidence++
		}
	}

	score := FraudScore{
		ListingID:             l.ListingID,
		OverallScore:          overallScore,
		Confidence:            confidence,
		RiskLevel:             level,
		Signals:               signals,
		PluginResults:         results,
		ProcessingTime:        time.Since(start),
		PluginsExecuted:       len(results),
		TotalSignals:          len(signals),
		HighConfidenceSignals: highConfidence,
	}
	o.logger.Info("fraud analysis complete",
		"listing_id", l.ListingID,
		"score", overallScore,
		"risk_level", level,
		"signals", len(signals),
		"plugins_executed", len(results),
	)
	return score, nil
}

type outcomeResult struct {
	id     string
	weight float64
	result plugin.DetectionResult
	ok     bool
}

func (o *Orchestrator) runOne(ctx context.Context, id string, l listing.Listing) outcomeResult {
	impl, err := o.source.Get(id)
	if err != nil {
		o.logger.Error("detection plugin not available", "plugin_id", id, "error", err)
		return outcomeResult{id: id}
	}
	detector, ok := impl.(plugin.DetectionPlugin)
	if !ok {
		o.logger.Error("plugin does not implement DetectionPlugin", "plugin_id", id)
		return outcomeResult{id: id}
	}
	info, err := o.source.Info(id)
	if err != nil {
		o.logger.Error("failed to read plugin info", "plugin_id", id, "error", err)
		return outcomeResult{id: id}
	}
	weight := 1.0
	if info.Weight != nil {
		weight = *info.Weight
	}

	result, err := func() (result plugin.DetectionResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("plugin %s panicked: %v", id, r)
			}
		}()
		return detector.Detect(ctx, l)
	}()
	if err != nil {
		o.logger.Error("detection plugin failed", "plugin_id", id, "error", err)
		return outcomeResult{id: id}
	}
	metrics.ObservePluginExecuted()
	return outcomeResult{id: id, weight: weight, result: result, ok: true}
}

// computeWeightedScore normalizes plugin weights to sum to 1 and
// returns the weighted average score (0-100) and weighted average
// confidence (0-1). When every contributing weight is zero, it falls
// back to an equal-weight average across contributing plugins rather
// than returning a zero score.
func computeWeightedScore(results []PluginResult) (float64, float64) {
	if len(results) == 0 {
		return 0.0, 0.0
	}

	totalWeight := 0.0
	for _, r := range results {
		totalWeight += r.Weight
	}

	weights := make([]float64, len(results))
	if totalWeight == 0 {
		equal := 1.0 / float64(len(results))
		for i := range weights {
			weights[i] = equal
		}
	} else {
		for i, r := range results {
			weights[i] = r.Weight / totalWeight
		}
	}

	var weightedScore, weightedConfidence float64
	for i, r := range results {
		weightedScore += r.Result.Score * weights[i]
		weightedConfidence += averageConfidence(r.Result.Signals) * weights[i]
	}
	return weightedScore, weightedConfidence
}

func averageConfidence(signals []plugin.Signal) float64 {
	if len(signals) == 0 {
		return 0.0
	}
	var sum float64
	for _, s := range signals {
		sum += s.Confidence
	}
	return sum / float64(len(signals))
}

// DetermineRiskLevel classifies a 0-100 fraud score into safe,
// suspicious or fraud bands: safe < 30, suspicious [30, 70), fraud >= 70.
func DetermineRiskLevel(score float64) Level {
	switch {
	case score < 30:
		return LevelSafe
	case score < 70:
		return LevelSuspicious
	default:
		return LevelFraud
	}
}

// SortPluginResultsByID returns results sorted by plugin id, used for
// deterministic metadata output and tests.
func SortPluginResultsByID(results []PluginResult) []PluginResult {
	sorted := append([]PluginResult(nil), results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PluginID < sorted[j].PluginID })
	return sorted
}

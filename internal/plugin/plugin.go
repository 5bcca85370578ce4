package plugin

import (
	"context"
	"time"

	"github.com/loudmantrade/RealEstatesAntiFraud/internal/listing"
)

// Plugin defines the lifecycle hooks every plugin implementation must
// satisfy, regardless of kind.
type Plugin interface {
	// Info returns the static metadata for the plugin.
	Info() Info
	// Configure allows the plugin to inspect its configuration block
	// prior to initialisation. Implementations may mutate the
	// configuration map to inject defaults.
	Configure(cfg map[string]any) error
	// Init prepares the plugin for use.
	Init(ctx *ExecutionContext) error
	// Start activates the plugin and should spawn long running
	// routines if required.
	Start(ctx *ExecutionContext) error
	// Stop gracefully halts the plugin and releases any resources. It
	// must return within the caller's deadline.
	Stop(ctx *ExecutionContext) error
}

// Signal is a single piece of evidence a detection plugin surfaces
// about a listing, independent of its contribution to the aggregate
// fraud score.
type Signal struct {
	Code       string  `json:"code"`
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence"`
}

// DetectionResult is what a detection plugin returns for one listing:
// its own risk score on a 0-100 scale and the signals that informed it.
type DetectionResult struct {
	Score   float64  `json:"score"`
	Signals []Signal `json:"signals"`
}

// DetectionPlugin evaluates a listing for fraud risk. Its Detect call
// is invoked concurrently by the scoring orchestrator under a shared
// deadline; implementations must honor ctx cancellation.
type DetectionPlugin interface {
	Plugin
	Detect(ctx context.Context, l listing.Listing) (DetectionResult, error)
}

// ProcessingPlugin transforms, enriches or validates a listing. Its
// Process call is invoked sequentially by the processing orchestrator
// in manifest priority order.
type ProcessingPlugin interface {
	Plugin
	Process(ctx context.Context, l listing.Listing) (listing.Listing, error)
}

// SourcePlugin produces raw listings from an external feed.
type SourcePlugin interface {
	Plugin
	Fetch(ctx context.Context) ([]listing.Listing, error)
}

// ExecutionContext is passed to plugins for every lifecycle stage.
type ExecutionContext struct {
	// C is the underlying context for cancellation and deadlines.
	C context.Context
	// Config is the plugin specific configuration block merged with
	// manager and environment overrides.
	Config map[string]any
	// Resources exposes shared services supplied by the host
	// application (storage handles, queue clients, shared HTTP clients).
	Resources map[string]any
}

// Clone returns a shallow copy of the execution context so plugins
// can safely mutate maps without affecting the manager's state.
func (c *ExecutionContext) Clone() *ExecutionContext {
	if c == nil {
		return nil
	}
	dup := *c
	if c.Config != nil {
		dup.Config = make(map[string]any, len(c.Config))
		for k, v := range c.Config {
			dup.Config[k] = v
		}
	}
	if c.Resources != nil {
		dup.Resources = make(map[string]any, len(c.Resources))
		for k, v := range c.Resources {
			dup.Resources[k] = v
		}
	}
	return &dup
}

// Option modifies the behaviour of a plugin manager instance.
type Option func(*Manager)

// WithLoader overrides the default binary loader implementation.
func WithLoader(loader Loader) Option {
	return func(m *Manager) {
		if loader != nil {
			m.loader = loader
		}
	}
}

// WithIsolationStrategy sets a custom isolation policy enforcement strategy.
func WithIsolationStrategy(strategy IsolationStrategy) Option {
	return func(m *Manager) {
		if strategy != nil {
			m.isolation = strategy
		}
	}
}

// WithResource registers a shared resource that will be exposed to all
// plugins through their ExecutionContext.
func WithResource(key string, value any) Option {
	return func(m *Manager) {
		if key == "" || value == nil {
			return
		}
		if m.resources == nil {
			m.resources = make(map[string]any)
		}
		m.resources[key] = value
	}
}

// WithHookTimeout overrides the default lifecycle hook timeout applied
// to Init, Start and Stop calls, except the old instance's Stop during
// a hot reload.
func WithHookTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.hookTimeout = d
		}
	}
}

// WithShutdownDeadline overrides the default bound on the old
// instance's Stop call during a hot reload.
func WithShutdownDeadline(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.shutdownDeadline = d
		}
	}
}

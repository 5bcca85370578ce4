package plugin

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/loudmantrade/RealEstatesAntiFraud/internal/depgraph"
	xerrors "github.com/loudmantrade/RealEstatesAntiFraud/internal/errors"
	"github.com/loudmantrade/RealEstatesAntiFraud/pkg/manifest"
	"github.com/loudmantrade/RealEstatesAntiFraud/pkg/semver"
)

// DefaultHookTimeout bounds every lifecycle hook call (Init, Start,
// Stop) except the old instance's Stop during a hot reload.
const DefaultHookTimeout = 60 * time.Second

// DefaultShutdownDeadline bounds the old instance's Stop call during a
// hot reload, a tighter bound than DefaultHookTimeout since reload is
// expected to complete quickly.
const DefaultShutdownDeadline = 5 * time.Second

// LifecycleListener is notified of every state transition a plugin
// instance makes. Listeners are invoked synchronously and must not
// block for long.
type LifecycleListener func(id string, from, to State)

// Manager keeps track of registered plugins and orchestrates their lifecycle.
type Manager struct {
	mu               sync.RWMutex
	registry         map[string]*instance
	loader           Loader
	isolation        IsolationStrategy
	resources        map[string]any
	defaults         IsolationPolicy
	hookTimeout      time.Duration
	shutdownDeadline time.Duration
	listeners        []LifecycleListener
}

type instance struct {
	mu       sync.Mutex
	Plugin   Plugin
	Info     Info
	State    State
	Config   map[string]any
	Policy   IsolationPolicy
	Manifest manifest.Manifest
	Dir      string
}

// NewManager constructs a manager using the supplied configuration and options.
func NewManager(cfg ManagerConfig, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		registry:         make(map[string]*instance),
		loader:           ManifestDirLoader{},
		isolation:        NewIsolationStrategy(nil),
		resources:        make(map[string]any),
		defaults:         cfg.Defaults,
		hookTimeout:      DefaultHookTimeout,
		shutdownDeadline: DefaultShutdownDeadline,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.isolation = NewIsolationStrategy(m.isolation)
	if err := m.loadConfigured(cfg); err != nil {
		return nil, err
	}
	return m, nil
}

// AddListener registers a lifecycle transition observer.
func (m *Manager) AddListener(l LifecycleListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Manager) notify(id string, from, to State) {
	for _, l := range m.listeners {
		l(id, from, to)
	}
}

// RegisterManifest registers a plugin implementation together with
// its parsed manifest, applying env overrides and secret resolution to
// its configuration block before Configure is called.
func (m *Manager) RegisterManifest(dir string, man manifest.Manifest, p Plugin, cfg map[string]any, policy IsolationPolicy) error {
	if man.ID == "" {
		return errors.New("manifest id cannot be empty")
	}
	if p == nil {
		return errors.New("plugin implementation cannot be nil")
	}
	info := p.Info()
	info = mergeManifestInfo(info, man)
	policy = MergePolicies(m.defaults, &policy)
	if err := EnsurePolicy(info, policy); err != nil {
		return err
	}
	if err := m.isolation.Validate(info, policy); err != nil {
		return err
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	cfg = ApplyEnvOverrides(man.ID, cfg)
	cfg = ResolveSecrets(cfg)
	if err := p.Configure(cfg); err != nil {
		return fmt.Errorf("configure plugin %s: %w", man.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.registry[man.ID]; exists {
		return fmt.Errorf("plugin %s already registered", man.ID)
	}
	m.registry[man.ID] = &instance{
		Plugin:   p,
		Info:     info,
		State:    StateRegistered,
		Config:   cfg,
		Policy:   policy,
		Manifest: man,
		Dir:      dir,
	}
	m.notify(man.ID, "", StateRegistered)
	return nil
}

// Load loads a plugin from an on-disk manifest directory and
// registers it with the manager.
func (m *Manager) Load(dir string, cfg map[string]any, policy IsolationPolicy) error {
	loaded, err := m.loader.Load(dir)
	if err != nil {
		return fmt.Errorf("load plugin from %s: %w", dir, err)
	}
	return m.RegisterManifest(dir, loaded.Manifest, loaded.Impl, cfg, policy)
}

// Configure moves a Registered plugin into Configured by re-running
// Configure with the latest resolved config. Most callers never need
// this directly since RegisterManifest already configures on entry;
// it exists for administrators pushing a fresh config without a full
// reload.
func (m *Manager) Configure(id string, cfg map[string]any) error {
	inst, err := m.get(id)
	if err != nil {
		return err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if !inst.State.CanTransitionTo(StateConfigured) && inst.State != StateConfigured {
		return fmt.Errorf("plugin %s cannot move from %s to configured", id, inst.State)
	}
	resolved := ResolveSecrets(ApplyEnvOverrides(id, cfg))
	if err := inst.Plugin.Configure(resolved); err != nil {
		m.transitionLocked(inst, id, StateFailed)
		return fmt.Errorf("configure plugin %s: %w", id, err)
	}
	inst.Config = resolved
	m.transitionLocked(inst, id, StateConfigured)
	return nil
}

// Enable initialises (if needed) and starts a plugin, moving it to Enabled.
func (m *Manager) Enable(ctx context.Context, id string) error {
	inst, err := m.get(id)
	if err != nil {
		return err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.State == StateEnabled {
		return nil
	}
	hookCtx, cancel := context.WithTimeout(ctx, m.hookTimeout)
	defer cancel()
	execCtx := &ExecutionContext{C: hookCtx, Config: inst.Config, Resources: m.resources}

	if inst.State == StateRegistered {
		if err := inst.Plugin.Init(execCtx.Clone()); err != nil {
			m.transitionLocked(inst, id, StateFailed)
			return fmt.Errorf("initialise plugin %s: %w", id, err)
		}
		m.transitionLocked(inst, id, StateConfigured)
	}
	if err := m.isolation.Prepare(inst.Info); err != nil {
		m.transitionLocked(inst, id, StateFailed)
		return fmt.Errorf("prepare isolation for %s: %w", id, err)
	}
	if err := inst.Plugin.Start(execCtx.Clone()); err != nil {
		_ = m.isolation.Cleanup(inst.Info)
		m.transitionLocked(inst, id, StateFailed)
		return fmt.Errorf("start plugin %s: %w", id, err)
	}
	m.transitionLocked(inst, id, StateEnabled)
	return nil
}

// Disable stops a plugin if it is running, moving it to Disabled.
func (m *Manager) Disable(ctx context.Context, id string) error {
	inst, err := m.get(id)
	if err != nil {
		return err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.State != StateEnabled {
		return nil
	}
	hookCtx, cancel := context.WithTimeout(ctx, m.hookTimeout)
	defer cancel()
	execCtx := &ExecutionContext{C: hookCtx, Config: inst.Config, Resources: m.resources}
	if err := inst.Plugin.Stop(execCtx.Clone()); err != nil {
		m.transitionLocked(inst, id, StateFailed)
		return fmt.Errorf("stop plugin %s: %w", id, err)
	}
	if err := m.isolation.Cleanup(inst.Info); err != nil {
		m.transitionLocked(inst, id, StateFailed)
		return fmt.Errorf("cleanup isolation for %s: %w", id, err)
	}
	m.transitionLocked(inst, id, StateDisabled)
	return nil
}

// Reload performs a hot reload of a plugin in place: shut down the
// running instance bounded by the shutdown deadline, re-read its manifest
// and module from disk, resolve the entrypoint, instantiate the
// replacement, and atomically swap it in. Get(id) never observes the
// plugin as absent during this sequence because the registry entry is
// mutated in place, never removed and re-added.
func (m *Manager) Reload(ctx context.Context) func(id string) error {
	return func(id string) error {
		inst, err := m.get(id)
		if err != nil {
			return err
		}
		inst.mu.Lock()
		defer inst.mu.Unlock()

		wasEnabled := inst.State == StateEnabled
		if wasEnabled {
			shutdownCtx, cancel := context.WithTimeout(ctx, m.shutdownDeadline)
			execCtx := &ExecutionContext{C: shutdownCtx, Config: inst.Config, Resources: m.resources}
			err := inst.Plugin.Stop(execCtx.Clone())
			cancel()
			if err != nil {
				m.transitionLocked(inst, id, StateFailed)
				return fmt.Errorf("reload %s: shutdown old instance: %w", id, err)
			}
		}

		if inst.Dir == "" {
			m.transitionLocked(inst, id, StateFailed)
			return fmt.Errorf("reload %s: plugin was registered without a source directory", id)
		}
		loaded, err := m.loader.Load(inst.Dir)
		if err != nil {
			m.transitionLocked(inst, id, StateFailed)
			return fmt.Errorf("reload %s: re-read manifest/module: %w", id, err)
		}
		if loaded.Manifest.ID != id {
			m.transitionLocked(inst, id, StateFailed)
			return fmt.Errorf("reload %s: manifest id changed to %s", id, loaded.Manifest.ID)
		}

		if err := loaded.Impl.Configure(inst.Config); err != nil {
			m.transitionLocked(inst, id, StateFailed)
			return fmt.Errorf("reload %s: configure new instance: %w", id, err)
		}
		hookCtx, cancel := context.WithTimeout(ctx, m.hookTimeout)
		execCtx := &ExecutionContext{C: hookCtx, Config: inst.Config, Resources: m.resources}
		if err := loaded.Impl.Init(execCtx.Clone()); err != nil {
			cancel()
			m.transitionLocked(inst, id, StateFailed)
			return fmt.Errorf("reload %s: initialise new instance: %w", id, err)
		}
		if wasEnabled {
			if err := loaded.Impl.Start(execCtx.Clone()); err != nil {
				cancel()
				m.transitionLocked(inst, id, StateFailed)
				return fmt.Errorf("reload %s: start new instance: %w", id, err)
			}
		}
		cancel()

		// Atomic swap: the registry key never leaves the map.
		inst.Plugin = loaded.Impl
		inst.Manifest = loaded.Manifest
		inst.Info = mergeManifestInfo(loaded.Impl.Info(), loaded.Manifest)
		if wasEnabled {
			m.transitionLocked(inst, id, StateEnabled)
		} else {
			m.transitionLocked(inst, id, StateConfigured)
		}
		return nil
	}
}

// ReloadOne is sugar for Reload(ctx)(id).
func (m *Manager) ReloadOne(ctx context.Context, id string) error {
	return m.Reload(ctx)(id)
}

// EnableAll enables every registered plugin in dependency order: a
// plugin is enabled only after everything it declares in its
// manifest's dependencies.plugins block.
func (m *Manager) EnableAll(ctx context.Context) error {
	order, err := m.loadOrder()
	if err != nil {
		return err
	}
	for _, id := range order {
		if err := m.Enable(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// DisableAll disables every active plugin in reverse dependency order,
// so a plugin's dependents are stopped before the plugin itself.
func (m *Manager) DisableAll(ctx context.Context) error {
	order, err := m.loadOrder()
	if err != nil {
		return err
	}
	for i := len(order) - 1; i >= 0; i-- {
		if err := m.Disable(ctx, order[i]); err != nil {
			return err
		}
	}
	return nil
}

// DependencyGraph builds the dependency graph over every registered
// plugin from its manifest's declared version and plugin dependencies.
func (m *Manager) DependencyGraph() (*depgraph.Graph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g := depgraph.New()
	for id, inst := range m.registry {
		inst.mu.Lock()
		rawVersion := inst.Manifest.Version
		deps := inst.Manifest.Dependencies.Plugins
		inst.mu.Unlock()
		version, err := semver.Parse(rawVersion)
		if err != nil {
			return nil, fmt.Errorf("plugin %s has invalid version %q: %w", id, rawVersion, err)
		}
		g.AddPlugin(depgraph.Node{ID: id, Version: version, Dependencies: deps})
	}
	return g, nil
}

// loadOrder resolves the dependency-respecting load order over every
// registered plugin.
func (m *Manager) loadOrder() ([]string, error) {
	g, err := m.DependencyGraph()
	if err != nil {
		return nil, err
	}
	return g.LoadOrder()
}

// State returns the lifecycle state of a plugin.
func (m *Manager) State(id string) (State, error) {
	inst, err := m.get(id)
	if err != nil {
		return "", err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.State, nil
}

// Info returns the descriptive metadata of a registered plugin.
func (m *Manager) Info(id string) (Info, error) {
	inst, err := m.get(id)
	if err != nil {
		return Info{}, err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.Info, nil
}

// Get returns the live plugin implementation for id. It never returns
// a not-found error for a plugin mid-reload: the registry entry is
// mutated in place by Reload, never removed.
func (m *Manager) Get(id string) (Plugin, error) {
	inst, err := m.get(id)
	if err != nil {
		return nil, err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.Plugin, nil
}

// ByKind returns the ids of every registered plugin of the given kind
// in manifest priority order, ties broken lexicographically by id.
func (m *Manager) ByKind(kind Kind) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, inst := range m.registry {
		if inst.Info.Kind == kind {
			ids = append(ids, id)
		}
	}
	sortByPriorityThenID(ids, m.registry)
	return ids
}

// EnabledByKind is ByKind filtered to plugins currently Enabled.
func (m *Manager) EnabledByKind(kind Kind) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, inst := range m.registry {
		inst.mu.Lock()
		enabled := inst.Info.Kind == kind && inst.State == StateEnabled
		inst.mu.Unlock()
		if enabled {
			ids = append(ids, id)
		}
	}
	sortByPriorityThenID(ids, m.registry)
	return ids
}


// List returns the Info of every registered plugin, sorted by id, for
// the admin API's plugin listing endpoint.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]Info, 0, len(m.registry))
	for _, inst := range m.registry {
		inst.mu.Lock()
		infos = append(infos, inst.Info)
		inst.mu.Unlock()
	}
	sortInfosByID(infos)
	return infos
}

// Manifest returns the parsed plugin.yaml manifest for id, including
// its optional health-check descriptor.
func (m *Manager) Manifest(id string) (manifest.Manifest, error) {
	inst, err := m.get(id)
	if err != nil {
		return manifest.Manifest{}, err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.Manifest, nil
}

// Unregister stops an enabled plugin and removes it from the registry
// entirely. Unlike Reload, the registry entry is deleted: a later
// Get(id) returns a not-found error (code NOT_FOUND).
func (m *Manager) Unregister(ctx context.Context, id string) error {
	if err := m.Disable(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.registry, id)
	return nil
}

func (m *Manager) get(id string) (*instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.registry[id]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("plugin %s not registered", id),
			xerrors.WithMetadata("plugin_id", id))
	}
	return inst, nil
}

// transitionLocked records a state change on an instance already held
// under its own mutex and fires lifecycle listeners.
func (m *Manager) transitionLocked(inst *instance, id string, to State) {
	from := inst.State
	inst.State = to
	m.notify(id, from, to)
}

func (m *Manager) loadConfigured(cfg ManagerConfig) error {
	for id, pluginCfg := range cfg.Plugins {
		if !pluginCfg.Enabled {
			continue
		}
		dir := pluginCfg.Path
		if !filepath.IsAbs(dir) && cfg.PluginDir != "" {
			dir = filepath.Join(cfg.PluginDir, dir)
		}
		policy := MergePolicies(cfg.Defaults, pluginCfg.Policy)
		if err := m.Load(dir, cloneConfig(pluginCfg.Config), policy); err != nil {
			return fmt.Errorf("load configured plugin %s: %w", id, err)
		}
	}
	return nil
}

func mergeManifestInfo(info Info, man manifest.Manifest) Info {
	info.ID = man.ID
	if info.Name == "" {
		info.Name = man.Name
	}
	info.Description = man.Description
	info.Version = man.Version
	info.Kind = Kind(man.Kind)
	info.Priority = man.Priority
	info.Weight = man.Weight
	return info
}

func cloneConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return map[string]any{}
	}
	cp := make(map[string]any, len(cfg))
	for k, v := range cfg {
		cp[k] = v
	}
	return cp
}

func sortInfosByID(infos []Info) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
}

func sortByPriorityThenID(ids []string, registry map[string]*instance) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0; j-- {
			a, b := registry[ids[j-1]], registry[ids[j]]
			if lessPriority(a.Info, b.Info, ids[j-1], ids[j]) {
				break
			}
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

func lessPriority(a, b Info, idA, idB string) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return idA < idB
}

package plugin

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/loudmantrade/RealEstatesAntiFraud/pkg/manifest"
)

type fakePlugin struct {
	info        Info
	startErr    error
	stopErr     error
	startCalls  int
	stopCalls   int
	configCalls int
}

func (f *fakePlugin) Info() Info                        { return f.info }
func (f *fakePlugin) Configure(cfg map[string]any) error { f.configCalls++; return nil }
func (f *fakePlugin) Init(ctx *ExecutionContext) error    { return nil }
func (f *fakePlugin) Start(ctx *ExecutionContext) error {
	f.startCalls++
	return f.startErr
}
func (f *fakePlugin) Stop(ctx *ExecutionContext) error {
	f.stopCalls++
	return f.stopErr
}

func testManifest(id string, kind manifest.Kind, priority int) manifest.Manifest {
	return manifest.Manifest{
		ID:         id,
		Name:       id,
		Version:    "1.0.0",
		Kind:       kind,
		APIVersion: manifest.SupportedAPIVersion,
		Description: "test plugin",
		Entrypoint:  manifest.Entrypoint{Module: "m", Class: "C"},
		Priority:    priority,
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(ManagerConfig{Plugins: map[string]PluginConfig{}})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestRegisterAndEnableLifecycle(t *testing.T) {
	m := newTestManager(t)
	p := &fakePlugin{}
	man := testManifest("plugin-detection-x", manifest.KindDetection, 10)

	if err := m.RegisterManifest("", man, p, nil, IsolationPolicy{}); err != nil {
		t.Fatal(err)
	}
	state, err := m.State("plugin-detection-x")
	if err != nil || state != StateRegistered {
		t.Fatalf("expected registered state, got %v err %v", state, err)
	}

	if err := m.Enable(context.Background(), "plugin-detection-x"); err != nil {
		t.Fatal(err)
	}
	state, _ = m.State("plugin-detection-x")
	if state != StateEnabled {
		t.Fatalf("expected enabled, got %s", state)
	}
	if p.startCalls != 1 {
		t.Errorf("expected Start called once, got %d", p.startCalls)
	}

	if err := m.Disable(context.Background(), "plugin-detection-x"); err != nil {
		t.Fatal(err)
	}
	state, _ = m.State("plugin-detection-x")
	if state != StateDisabled {
		t.Fatalf("expected disabled, got %s", state)
	}
	if p.stopCalls != 1 {
		t.Errorf("expected Stop called once, got %d", p.stopCalls)
	}
}

func TestEnableFailureTransitionsToFailed(t *testing.T) {
	m := newTestManager(t)
	p := &fakePlugin{startErr: errors.New("boom")}
	man := testManifest("plugin-detection-y", manifest.KindDetection, 0)
	if err := m.RegisterManifest("", man, p, nil, IsolationPolicy{}); err != nil {
		t.Fatal(err)
	}
	if err := m.Enable(context.Background(), "plugin-detection-y"); err == nil {
		t.Fatal("expected Enable to fail")
	}
	state, _ := m.State("plugin-detection-y")
	if state != StateFailed {
		t.Fatalf("expected failed state, got %s", state)
	}
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	m := newTestManager(t)
	man := testManifest("plugin-detection-dup", manifest.KindDetection, 0)
	if err := m.RegisterManifest("", man, &fakePlugin{}, nil, IsolationPolicy{}); err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterManifest("", man, &fakePlugin{}, nil, IsolationPolicy{}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestByKindOrdersByPriorityThenID(t *testing.T) {
	m := newTestManager(t)
	_ = m.RegisterManifest("", testManifest("plugin-processing-z", manifest.KindProcessing, 5), &fakePlugin{}, nil, IsolationPolicy{})
	_ = m.RegisterManifest("", testManifest("plugin-processing-a", manifest.KindProcessing, 1), &fakePlugin{}, nil, IsolationPolicy{})
	_ = m.RegisterManifest("", testManifest("plugin-processing-b", manifest.KindProcessing, 1), &fakePlugin{}, nil, IsolationPolicy{})

	ids := m.ByKind(KindProcessing)
	want := []string{"plugin-processing-a", "plugin-processing-b", "plugin-processing-z"}
	if len(ids) != len(want) {
		t.Fatalf("unexpected ids: %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("position %d: want %s got %s (%v)", i, want[i], ids[i], ids)
		}
	}
}

func TestLifecycleListenerNotifiedOnTransitions(t *testing.T) {
	m := newTestManager(t)
	var transitions []string
	m.AddListener(func(id string, from, to State) {
		transitions = append(transitions, string(from)+"->"+string(to))
	})
	man := testManifest("plugin-detection-listen", manifest.KindDetection, 0)
	if err := m.RegisterManifest("", man, &fakePlugin{}, nil, IsolationPolicy{}); err != nil {
		t.Fatal(err)
	}
	if err := m.Enable(context.Background(), "plugin-detection-listen"); err != nil {
		t.Fatal(err)
	}
	if len(transitions) < 2 {
		t.Fatalf("expected at least 2 transitions, got %v", transitions)
	}
}

func TestEnableAllRespectsManifestDependencyOrder(t *testing.T) {
	m := newTestManager(t)
	var order []string
	m.AddListener(func(id string, from, to State) {
		if to == StateEnabled {
			order = append(order, id)
		}
	})

	downstream := testManifest("plugin-detection-downstream", manifest.KindDetection, 0)
	downstream.Dependencies.Plugins = map[string]string{"plugin-detection-upstream": ">=1.0.0"}
	upstream := testManifest("plugin-detection-upstream", manifest.KindDetection, 0)

	if err := m.RegisterManifest("", downstream, &fakePlugin{}, nil, IsolationPolicy{}); err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterManifest("", upstream, &fakePlugin{}, nil, IsolationPolicy{}); err != nil {
		t.Fatal(err)
	}

	if err := m.EnableAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != "plugin-detection-upstream" || order[1] != "plugin-detection-downstream" {
		t.Fatalf("expected upstream enabled before downstream, got %v", order)
	}

	var disabled []string
	m.AddListener(func(id string, from, to State) {
		if to == StateDisabled {
			disabled = append(disabled, id)
		}
	})
	if err := m.DisableAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(disabled) != 2 || disabled[0] != "plugin-detection-downstream" || disabled[1] != "plugin-detection-upstream" {
		t.Fatalf("expected downstream disabled before upstream, got %v", disabled)
	}
}

type fakeLoader struct {
	loaded Loaded
}

func (f fakeLoader) Load(dir string) (Loaded, error) {
	return f.loaded, nil
}

func TestReloadStopsOldInstanceUnderShutdownDeadline(t *testing.T) {
	man := testManifest("plugin-detection-reload", manifest.KindDetection, 0)
	oldPlugin := &fakePlugin{}
	newPlugin := &fakePlugin{}
	loader := fakeLoader{loaded: Loaded{Manifest: man, Impl: newPlugin}}

	m, err := NewManager(ManagerConfig{Plugins: map[string]PluginConfig{}},
		WithLoader(loader), WithShutdownDeadline(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterManifest("/plugins/reload", man, oldPlugin, nil, IsolationPolicy{}); err != nil {
		t.Fatal(err)
	}
	if err := m.Enable(context.Background(), man.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.ReloadOne(context.Background(), man.ID); err != nil {
		t.Fatal(err)
	}
	if oldPlugin.stopCalls != 1 {
		t.Errorf("expected old instance stopped once, got %d", oldPlugin.stopCalls)
	}
	if newPlugin.startCalls != 1 {
		t.Errorf("expected new instance started once, got %d", newPlugin.startCalls)
	}
	state, err := m.State(man.ID)
	if err != nil || state != StateEnabled {
		t.Fatalf("expected reloaded plugin to stay enabled, got %v err %v", state, err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	os.Setenv("PLUGIN_PLUGIN_DETECTION_ENV_TEST_THRESHOLD", "0.9")
	defer os.Unsetenv("PLUGIN_PLUGIN_DETECTION_ENV_TEST_THRESHOLD")

	cfg := ApplyEnvOverrides("plugin-detection-env-test", map[string]any{"threshold": 0.5})
	if cfg["threshold"] != "0.9" {
		t.Errorf("expected env override to win, got %v", cfg["threshold"])
	}
}

func TestResolveSecrets(t *testing.T) {
	os.Setenv("TEST_API_KEY", "secret-value")
	defer os.Unsetenv("TEST_API_KEY")

	cfg := ResolveSecrets(map[string]any{"api_key": "${TEST_API_KEY}", "nested": map[string]any{"k": "${TEST_API_KEY}"}})
	if cfg["api_key"] != "secret-value" {
		t.Errorf("expected secret resolved, got %v", cfg["api_key"])
	}
	nested := cfg["nested"].(map[string]any)
	if nested["k"] != "secret-value" {
		t.Errorf("expected nested secret resolved, got %v", nested["k"])
	}
}

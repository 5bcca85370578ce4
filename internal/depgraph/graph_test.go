package depgraph

import (
	"errors"
	"testing"

	"github.com/loudmantrade/RealEstatesAntiFraud/pkg/semver"
)

func node(id, version string, deps map[string]string) Node {
	return Node{ID: id, Version: semver.MustParse(version), Dependencies: deps}
}

func TestLoadOrderDeterministic(t *testing.T) {
	g := New()
	g.AddPlugin(node("plugin-source-mls", "1.0.0", nil))
	g.AddPlugin(node("plugin-processing-normalize", "1.0.0", map[string]string{"plugin-source-mls": ">=1.0.0"}))
	g.AddPlugin(node("plugin-detection-price-outlier", "1.0.0", map[string]string{"plugin-processing-normalize": "^1.0.0"}))

	order, err := g.LoadOrder()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"plugin-source-mls", "plugin-processing-normalize", "plugin-detection-price-outlier"}
	if len(order) != len(want) {
		t.Fatalf("unexpected order length: %v", order)
	}
	for i, id := range want {
		if order[i] != id {
			t.Errorf("position %d: want %s, got %s (%v)", i, id, order[i], order)
		}
	}
}

func TestLoadOrderTieBreakIsLexicographic(t *testing.T) {
	g := New()
	g.AddPlugin(node("plugin-detection-z", "1.0.0", nil))
	g.AddPlugin(node("plugin-detection-a", "1.0.0", nil))
	g.AddPlugin(node("plugin-detection-m", "1.0.0", nil))

	order, err := g.LoadOrder()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"plugin-detection-a", "plugin-detection-m", "plugin-detection-z"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("expected lexicographic tie-break, got %v", order)
		}
	}
}

func TestDetectCycle(t *testing.T) {
	g := New()
	g.AddPlugin(node("plugin-detection-a", "1.0.0", map[string]string{"plugin-detection-b": "^1.0.0"}))
	g.AddPlugin(node("plugin-detection-b", "1.0.0", map[string]string{"plugin-detection-a": "^1.0.0"}))

	cycle := g.DetectCycle()
	if cycle == nil {
		t.Fatal("expected a cycle")
	}
	if _, err := g.LoadOrder(); err == nil {
		t.Fatal("expected LoadOrder to fail on a cyclic graph")
	} else {
		var cycErr *CyclicDependencyError
		if !errors.As(err, &cycErr) {
			t.Fatalf("expected CyclicDependencyError, got %T", err)
		}
	}
}

func TestMissingDependency(t *testing.T) {
	g := New()
	g.AddPlugin(node("plugin-detection-a", "1.0.0", map[string]string{"plugin-detection-ghost": "^1.0.0"}))

	err := g.Validate()
	var missing *MissingDependencyError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingDependencyError, got %v", err)
	}
}

func TestVersionIncompatibility(t *testing.T) {
	g := New()
	g.AddPlugin(node("plugin-source-mls", "0.5.0", nil))
	g.AddPlugin(node("plugin-processing-normalize", "1.0.0", map[string]string{"plugin-source-mls": "^1.0.0"}))

	err := g.Validate()
	var incompatible *VersionIncompatibilityError
	if !errors.As(err, &incompatible) {
		t.Fatalf("expected VersionIncompatibilityError, got %v", err)
	}
}

func TestDependentsAndDependencies(t *testing.T) {
	g := New()
	g.AddPlugin(node("plugin-source-mls", "1.0.0", nil))
	g.AddPlugin(node("plugin-processing-normalize", "1.0.0", map[string]string{"plugin-source-mls": ">=1.0.0"}))

	if deps := g.Dependencies("plugin-processing-normalize"); len(deps) != 1 || deps[0] != "plugin-source-mls" {
		t.Errorf("unexpected dependencies: %v", deps)
	}
	if dependents := g.Dependents("plugin-source-mls"); len(dependents) != 1 || dependents[0] != "plugin-processing-normalize" {
		t.Errorf("unexpected dependents: %v", dependents)
	}
}

func TestExportDOT(t *testing.T) {
	g := New()
	g.AddPlugin(node("plugin-source-mls", "1.0.0", nil))
	dot := g.ExportDOT()
	if dot == "" {
		t.Fatal("expected non-empty DOT output")
	}
}

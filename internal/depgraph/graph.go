// Package depgraph builds and validates the dependency graph between
// registered plugins, and derives a deterministic load order from it.
package depgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loudmantrade/RealEstatesAntiFraud/pkg/semver"
)

// Node describes one registered plugin as a vertex in the graph: its
// identity, resolved version, and the raw constraint strings it
// declares against other plugin ids.
type Node struct {
	ID           string
	Version      semver.Version
	Dependencies map[string]string
}

// MissingDependencyError reports a declared dependency that has no
// matching node in the graph.
type MissingDependencyError struct {
	PluginID     string
	DependencyID string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("depgraph: %s depends on unregistered plugin %s", e.PluginID, e.DependencyID)
}

// VersionIncompatibilityError reports a declared dependency whose
// constraint the dependency's resolved version does not satisfy.
type VersionIncompatibilityError struct {
	PluginID     string
	DependencyID string
	Constraint   string
	Resolved     semver.Version
}

func (e *VersionIncompatibilityError) Error() string {
	return fmt.Sprintf("depgraph: %s requires %s%s, but %s is registered",
		e.PluginID, e.DependencyID, e.Constraint, e.Resolved)
}

// CyclicDependencyError reports a cycle found in the dependency graph,
// carrying the cycle as a sequence of plugin ids, last equal to first.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("depgraph: cyclic dependency detected: %s", strings.Join(e.Cycle, " -> "))
}

// Graph is a directed graph of plugin-to-plugin dependency edges,
// keyed by plugin id.
type Graph struct {
	nodes map[string]Node
}

// New returns an empty dependency graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]Node)}
}

// AddPlugin inserts or replaces a node in the graph.
func (g *Graph) AddPlugin(n Node) {
	g.nodes[n.ID] = n
}

// RemovePlugin deletes a node. It does not remove dangling references
// to it from other nodes' Dependencies maps; ValidateDependencies will
// surface those as MissingDependencyError.
func (g *Graph) RemovePlugin(id string) {
	delete(g.nodes, id)
}

// HasPlugin reports whether id is present in the graph.
func (g *Graph) HasPlugin(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Dependencies returns the sorted ids that id directly depends on.
func (g *Graph) Dependencies(id string) []string {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(n.Dependencies))
	for dep := range n.Dependencies {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// Dependents returns the sorted ids of nodes that directly depend on id.
func (g *Graph) Dependents(id string) []string {
	var out []string
	for _, n := range g.nodes {
		if _, ok := n.Dependencies[id]; ok {
			out = append(out, n.ID)
		}
	}
	sort.Strings(out)
	return out
}

// ValidateDependencies checks every edge for a missing target or a
// version incompatibility. It returns the first violation found, in
// lexicographic plugin-id order for determinism.
func (g *Graph) ValidateDependencies() error {
	ids := g.sortedIDs()
	for _, id := range ids {
		n := g.nodes[id]
		deps := make([]string, 0, len(n.Dependencies))
		for dep := range n.Dependencies {
			deps = append(deps, dep)
		}
		sort.Strings(deps)
		for _, depID := range deps {
			constraintStr := n.Dependencies[depID]
			target, ok := g.nodes[depID]
			if !ok {
				return &MissingDependencyError{PluginID: id, DependencyID: depID}
			}
			c, err := semver.ParseConstraint(constraintStr)
			if err != nil {
				return &VersionIncompatibilityError{PluginID: id, DependencyID: depID, Constraint: constraintStr, Resolved: target.Version}
			}
			if !c.Satisfies(target.Version) {
				return &VersionIncompatibilityError{PluginID: id, DependencyID: depID, Constraint: constraintStr, Resolved: target.Version}
			}
		}
	}
	return nil
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DetectCycle runs a DFS with white/gray/black coloring over the graph
// and returns the first cycle found, or nil if the graph is acyclic.
// Traversal order is lexicographic by plugin id so the result is
// deterministic across runs.
func (g *Graph) DetectCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		path = append(path, id)
		for _, dep := range g.Dependencies(id) {
			switch color[dep] {
			case gray:
				idx := indexOf(path, dep)
				cycle = append(append([]string{}, path[idx:]...), dep)
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return false
	}

	for _, id := range g.sortedIDs() {
		if color[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

// Validate runs both dependency validation and cycle detection,
// returning the first error encountered.
func (g *Graph) Validate() error {
	if err := g.ValidateDependencies(); err != nil {
		return err
	}
	if cycle := g.DetectCycle(); cycle != nil {
		return &CyclicDependencyError{Cycle: cycle}
	}
	return nil
}

// LoadOrder computes a deterministic topological order over the graph
// using Kahn's algorithm. Nodes with no remaining incoming edges are
// chosen in lexicographic order among ties, so the result is stable
// across process restarts. It returns a CyclicDependencyError if the
// graph is not a DAG.
func (g *Graph) LoadOrder() ([]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	indegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = 0
	}
	// indegree[id] tracks how many of id's own dependencies have not yet
	// been emitted; an edge id->dep means dep must precede id.
	for _, id := range g.sortedIDs() {
		indegree[id] = len(g.nodes[id].Dependencies)
	}

	var ready []string
	for _, id := range g.sortedIDs() {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, id := range g.sortedIDs() {
			if _, dependsOnNext := g.nodes[id].Dependencies[next]; dependsOnNext {
				indegree[id]--
				if indegree[id] == 0 {
					ready = append(ready, id)
				}
			}
		}
	}
	if len(order) != len(g.nodes) {
		// Validate() already rejected cycles, so this should not happen;
		// treated as a cycle for safety rather than returning a partial order.
		return nil, &CyclicDependencyError{Cycle: g.sortedIDs()}
	}
	return order, nil
}

// ExportDOT renders the graph in Graphviz DOT notation for operator
// inspection and debugging.
func (g *Graph) ExportDOT() string {
	var b strings.Builder
	b.WriteString("digraph plugins {\n")
	for _, id := range g.sortedIDs() {
		fmt.Fprintf(&b, "  %q [version=%q];\n", id, g.nodes[id].Version)
	}
	for _, id := range g.sortedIDs() {
		for _, dep := range g.Dependencies(id) {
			fmt.Fprintf(&b, "  %q -> %q;\n", id, dep)
		}
	}
	b.WriteString("}\n")
	return b.String()
}

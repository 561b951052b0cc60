// Package graph defines the static stage dependency graph the executor
// walks. The graph is pure data: it validates itself at construction and
// answers readiness queries, but never executes anything.
package graph

import (
	"time"

	"github.com/anveshkr/stockscout/internal/contracts"
)

// StageDefinition declares one analytical stage: its name, the stages whose
// payloads it consumes, whether its failure invalidates the whole run, how
// long its cached result stays fresh, and the collaborator that executes it.
type StageDefinition struct {
	Name      string
	Title     string
	DependsOn []string
	Mandatory bool
	Freshness time.Duration
	Executor  contracts.StageExecutor
}

// Graph is a validated, immutable stage DAG.
type Graph struct {
	defs  map[string]StageDefinition
	order []string // deterministic topological order
	root  string   // the mandatory dependency-free stage
}

// New validates the definitions and builds the graph. It fails with a
// ConfigurationError if a dependency name is unknown, the graph has a
// cycle, or there is not exactly one mandatory stage with no dependencies.
func New(defs []StageDefinition) (*Graph, error) {
	g := &Graph{defs: make(map[string]StageDefinition, len(defs))}

	for _, def := range defs {
		if def.Name == "" {
			return nil, contracts.NewConfigurationError("stage with empty name")
		}
		if _, dup := g.defs[def.Name]; dup {
			return nil, contracts.NewConfigurationError("duplicate stage %q", def.Name)
		}
		if def.Executor == nil {
			return nil, contracts.NewConfigurationError("stage %q has no executor", def.Name)
		}
		g.defs[def.Name] = def
	}

	for _, def := range defs {
		for _, dep := range def.DependsOn {
			if dep == def.Name {
				return nil, contracts.NewConfigurationError("stage %q depends on itself", def.Name)
			}
			if _, ok := g.defs[dep]; !ok {
				return nil, contracts.NewConfigurationError("stage %q depends on unknown stage %q", def.Name, dep)
			}
		}
	}

	order, err := topologicalOrder(defs)
	if err != nil {
		return nil, err
	}
	g.order = order

	mandatory := make([]string, 0, 1)
	for _, def := range defs {
		if def.Mandatory {
			mandatory = append(mandatory, def.Name)
		}
	}
	if len(mandatory) != 1 {
		return nil, contracts.NewConfigurationError("expected exactly one mandatory stage, got %d", len(mandatory))
	}
	root := g.defs[mandatory[0]]
	if len(root.DependsOn) != 0 {
		return nil, contracts.NewConfigurationError("mandatory stage %q must have no dependencies", root.Name)
	}
	g.root = root.Name

	return g, nil
}

// topologicalOrder returns a deterministic topological order (stable with
// respect to declaration order) or a ConfigurationError on a cycle.
func topologicalOrder(defs []StageDefinition) ([]string, error) {
	indegree := make(map[string]int, len(defs))
	for _, def := range defs {
		indegree[def.Name] = len(def.DependsOn)
	}

	order := make([]string, 0, len(defs))
	remaining := len(defs)
	done := make(map[string]bool, len(defs))

	for remaining > 0 {
		progressed := false
		for _, def := range defs {
			if done[def.Name] || indegree[def.Name] != 0 {
				continue
			}
			settledDeps := true
			for _, dep := range def.DependsOn {
				if !done[dep] {
					settledDeps = false
					break
				}
			}
			if !settledDeps {
				continue
			}
			done[def.Name] = true
			order = append(order, def.Name)
			remaining--
			progressed = true
		}
		if !progressed {
			return nil, contracts.NewConfigurationError("stage graph contains a cycle")
		}
	}

	return order, nil
}

// Ready returns, in deterministic order, the stages that have not been
// started and whose dependencies have all settled.
func (g *Graph) Ready(settled map[string]bool, started map[string]bool) []StageDefinition {
	var ready []StageDefinition
	for _, name := range g.order {
		if started[name] || settled[name] {
			continue
		}
		def := g.defs[name]
		ok := true
		for _, dep := range def.DependsOn {
			if !settled[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, def)
		}
	}
	return ready
}

// Stage returns the definition for the given stage name.
func (g *Graph) Stage(name string) (StageDefinition, bool) {
	def, ok := g.defs[name]
	return def, ok
}

// Stages returns all definitions in topological order.
func (g *Graph) Stages() []StageDefinition {
	out := make([]StageDefinition, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.defs[name])
	}
	return out
}

// MandatoryRoot returns the name of the mandatory dependency-free stage.
func (g *Graph) MandatoryRoot() string {
	return g.root
}

// Len returns the number of stages.
func (g *Graph) Len() int {
	return len(g.defs)
}

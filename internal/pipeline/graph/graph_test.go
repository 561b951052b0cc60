package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anveshkr/stockscout/internal/contracts"
)

var noopExecutor = contracts.StageExecutorFunc(
	func(ctx context.Context, symbol contracts.Symbol, deps map[string]contracts.StageInput) (contracts.StageResult, error) {
		return contracts.StageResult{Status: contracts.StatusSuccess}, nil
	})

func def(name string, mandatory bool, deps ...string) StageDefinition {
	return StageDefinition{
		Name:      name,
		Title:     name,
		DependsOn: deps,
		Mandatory: mandatory,
		Executor:  noopExecutor,
	}
}

func pipelineDefs() []StageDefinition {
	return []StageDefinition{
		def("market_data", true),
		def("news", false, "market_data"),
		def("fundamentals", false, "market_data"),
		def("technical", false, "market_data"),
		def("strategy", false, "news", "fundamentals", "technical"),
		def("report", false, "market_data", "news", "fundamentals", "technical", "strategy"),
	}
}

func TestNew_ValidGraph(t *testing.T) {
	g, err := New(pipelineDefs())
	require.NoError(t, err)

	assert.Equal(t, 6, g.Len())
	assert.Equal(t, "market_data", g.MandatoryRoot())

	// Topological order: every stage appears after its dependencies.
	pos := make(map[string]int)
	for i, d := range g.Stages() {
		pos[d.Name] = i
	}
	for _, d := range pipelineDefs() {
		for _, dep := range d.DependsOn {
			assert.Less(t, pos[dep], pos[d.Name], "%s must come after %s", d.Name, dep)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		defs []StageDefinition
	}{
		{
			name: "empty stage name",
			defs: []StageDefinition{def("", true)},
		},
		{
			name: "duplicate stage",
			defs: []StageDefinition{def("a", true), def("a", false)},
		},
		{
			name: "missing executor",
			defs: []StageDefinition{{Name: "a", Mandatory: true}},
		},
		{
			name: "unknown dependency",
			defs: []StageDefinition{def("a", true), def("b", false, "ghost")},
		},
		{
			name: "self dependency",
			defs: []StageDefinition{def("a", true), def("b", false, "b")},
		},
		{
			name: "cycle",
			defs: []StageDefinition{
				def("root", true),
				def("a", false, "b"),
				def("b", false, "a"),
			},
		},
		{
			name: "no mandatory stage",
			defs: []StageDefinition{def("a", false), def("b", false, "a")},
		},
		{
			name: "two mandatory stages",
			defs: []StageDefinition{def("a", true), def("b", true)},
		},
		{
			name: "mandatory stage with dependencies",
			defs: []StageDefinition{def("a", false), def("b", true, "a")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.defs)
			require.Error(t, err)

			var cfgErr *contracts.ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestReady(t *testing.T) {
	g, err := New(pipelineDefs())
	require.NoError(t, err)

	settled := map[string]bool{}
	started := map[string]bool{}

	// Only the root is ready at the start.
	ready := g.Ready(settled, started)
	require.Len(t, ready, 1)
	assert.Equal(t, "market_data", ready[0].Name)

	// A started stage is not offered again.
	started["market_data"] = true
	assert.Empty(t, g.Ready(settled, started))

	// Settling the root unlocks its three direct dependents.
	settled["market_data"] = true
	ready = g.Ready(settled, started)
	names := make([]string, 0, len(ready))
	for _, d := range ready {
		names = append(names, d.Name)
	}
	assert.ElementsMatch(t, []string{"news", "fundamentals", "technical"}, names)

	// Strategy needs all three of its dependencies settled, not just one.
	settled["news"] = true
	settled["fundamentals"] = true
	started["news"] = true
	started["fundamentals"] = true
	started["technical"] = true
	assert.Empty(t, g.Ready(settled, started))

	settled["technical"] = true
	ready = g.Ready(settled, started)
	require.Len(t, ready, 1)
	assert.Equal(t, "strategy", ready[0].Name)

	// Report waits for strategy as well.
	settled["strategy"] = true
	started["strategy"] = true
	ready = g.Ready(settled, started)
	require.Len(t, ready, 1)
	assert.Equal(t, "report", ready[0].Name)
}

func TestReady_Deterministic(t *testing.T) {
	g, err := New(pipelineDefs())
	require.NoError(t, err)

	settled := map[string]bool{"market_data": true}
	started := map[string]bool{"market_data": true}

	first := g.Ready(settled, started)
	for i := 0; i < 10; i++ {
		again := g.Ready(settled, started)
		require.Equal(t, len(first), len(again))
		for j := range first {
			assert.Equal(t, first[j].Name, again[j].Name)
		}
	}
}

func TestStage(t *testing.T) {
	g, err := New(pipelineDefs())
	require.NoError(t, err)

	d, ok := g.Stage("strategy")
	require.True(t, ok)
	assert.Equal(t, []string{"news", "fundamentals", "technical"}, d.DependsOn)

	_, ok = g.Stage("ghost")
	assert.False(t, ok)
}

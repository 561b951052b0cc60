// Package aggregator assembles a settled run state into the final Report.
// Aggregation is a pure function: no I/O, no clock reads, deterministic
// output for a given run state, so building the same state twice yields
// byte-identical reports.
package aggregator

import (
	"fmt"

	"github.com/anveshkr/stockscout/internal/contracts"
	"github.com/anveshkr/stockscout/internal/pipeline/graph"
)

// Build produces the Report for a settled run. Sections appear in the
// graph's topological order: payload per successful stage, payload plus
// caveats per degraded stage, an explicit placeholder per failed stage.
//
// When the run aborted (mandatory stage failed) the report carries only an
// error summary and placeholders: results of sibling stages that were
// in flight when the abort fired are discarded, not embedded.
func Build(g *graph.Graph, state *contracts.RunState) *contracts.Report {
	report := &contracts.Report{
		Symbol:      state.Symbol,
		RunID:       state.RunID,
		GeneratedAt: state.StartedAt,
		Sections:    make([]contracts.Section, 0, g.Len()),
	}

	if state.Aborted {
		report.Status = contracts.RunAborted
		rootRes := state.Results[state.AbortedBy]
		report.Error = fmt.Sprintf("mandatory stage %q failed: %s", state.AbortedBy, rootRes.Reason)

		for _, def := range g.Stages() {
			section := contracts.Section{
				Stage:  def.Name,
				Title:  def.Title,
				Status: contracts.StatusFailed,
			}
			if def.Name == state.AbortedBy {
				section.Placeholder = unavailableText(def.Title, rootRes.Reason)
			} else {
				section.Placeholder = fmt.Sprintf("%s not attempted: run aborted", def.Title)
			}
			report.Sections = append(report.Sections, section)
		}
		return report
	}

	allSuccess := true
	for _, def := range g.Stages() {
		res := state.Results[def.Name]
		section := contracts.Section{
			Stage:  def.Name,
			Title:  def.Title,
			Status: res.Status,
			Source: res.Source,
		}

		switch res.Status {
		case contracts.StatusSuccess:
			section.Payload = res.Payload
		case contracts.StatusDegraded:
			allSuccess = false
			section.Payload = res.Payload
			section.Caveats = res.Caveats
			if len(section.Caveats) == 0 {
				section.Caveats = []string{"partial data"}
			}
		default:
			allSuccess = false
			section.Placeholder = unavailableText(def.Title, res.Reason)
		}

		report.Sections = append(report.Sections, section)
	}

	if allSuccess {
		report.Status = contracts.RunComplete
	} else {
		report.Status = contracts.RunPartiallyComplete
	}

	return report
}

func unavailableText(title, reason string) string {
	if reason == "" {
		reason = "unknown error"
	}
	return fmt.Sprintf("%s unavailable: %s", title, reason)
}

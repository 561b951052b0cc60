package contracts

import (
	"encoding/json"
	"time"
)

// RunStatus is the run-level outcome of one report request.
type RunStatus string

const (
	// RunComplete means every stage succeeded.
	RunComplete RunStatus = "complete"
	// RunPartiallyComplete means the mandatory stage succeeded but at
	// least one other stage did not.
	RunPartiallyComplete RunStatus = "partially_complete"
	// RunAborted means the mandatory stage failed; the report carries
	// only an error summary.
	RunAborted RunStatus = "aborted"
)

// Section is one report section, corresponding to one stage. When the
// stage failed the payload is absent and Placeholder explains why.
type Section struct {
	Stage       string          `json:"stage"`
	Title       string          `json:"title"`
	Status      StageStatus     `json:"status"`
	Source      ResultSource    `json:"source,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Caveats     []string        `json:"caveats,omitempty"`
	Placeholder string          `json:"placeholder,omitempty"`
}

// Report is the aggregator's output: one section per stage plus the
// run-level status. Callers always receive a Report; stage failures never
// surface as errors.
type Report struct {
	Symbol      Symbol    `json:"symbol"`
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Status      RunStatus `json:"status"`
	Sections    []Section `json:"sections"`
	Error       string    `json:"error,omitempty"`
}

// Section returns the section for the given stage name, if present.
func (r *Report) Section(stage string) (Section, bool) {
	for _, s := range r.Sections {
		if s.Stage == stage {
			return s, true
		}
	}
	return Section{}, false
}

// RunState is the immutable snapshot of a settled run handed to the
// aggregator: every reachable stage has a StageResult entry (stages never
// launched are recorded as failed with an explanatory reason).
type RunState struct {
	RunID     string
	Symbol    Symbol
	StartedAt time.Time
	Results   map[string]StageResult
	Aborted   bool
	AbortedBy string
}

package contracts

import (
	"context"
	"encoding/json"
	"time"
)

// Stage names. The pipeline is a closed set: every stage the executor can
// run is enumerated here and declared in the research service's graph.
const (
	StageMarketData   = "market_data"
	StageNews         = "news"
	StageFundamentals = "fundamentals"
	StageTechnical    = "technical"
	StageStrategy     = "strategy"
	StageReport       = "report"
)

// StageStatus classifies how a stage settled.
type StageStatus string

const (
	// StatusSuccess means the stage produced its full payload.
	StatusSuccess StageStatus = "success"
	// StatusDegraded means the stage produced partial or lower-confidence
	// output but did not fail outright.
	StatusDegraded StageStatus = "degraded"
	// StatusFailed means the stage produced no usable payload.
	StatusFailed StageStatus = "failed"
)

// ResultSource records whether a stage result came from a live call or
// from the result cache.
type ResultSource string

const (
	SourceFresh  ResultSource = "fresh"
	SourceCached ResultSource = "cached"
)

// StageResult is the settled outcome of one stage within one run.
// Payload is present and well-formed whenever Status is success or
// degraded, and absent when failed. Reason is present whenever Status is
// not success.
type StageResult struct {
	Stage     string          `json:"stage"`
	Status    StageStatus     `json:"status"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Caveats   []string        `json:"caveats,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Source    ResultSource    `json:"source"`
}

// Usable reports whether the result carries a payload dependents can read.
func (r StageResult) Usable() bool {
	return r.Status == StatusSuccess || r.Status == StatusDegraded
}

// StageInput is what a stage receives for each of its declared
// dependencies. When the upstream stage failed, Unavailable is set and the
// payload is absent; the stage may still run in degraded mode.
type StageInput struct {
	Payload     json.RawMessage
	Unavailable bool
	Reason      string
}

// StageExecutor is the uniform contract every analytical collaborator
// implements. Execute must be idempotent and side-effect free beyond its
// own external reads: the pipeline retries it freely and caches its output.
//
// Returning an error marks the stage failed (after retries). Returning a
// StageResult with StatusDegraded carries partial data plus caveats.
type StageExecutor interface {
	Execute(ctx context.Context, symbol Symbol, deps map[string]StageInput) (StageResult, error)
}

// StageExecutorFunc adapts a function to the StageExecutor interface.
type StageExecutorFunc func(ctx context.Context, symbol Symbol, deps map[string]StageInput) (StageResult, error)

// Execute implements StageExecutor.
func (f StageExecutorFunc) Execute(ctx context.Context, symbol Symbol, deps map[string]StageInput) (StageResult, error) {
	return f(ctx, symbol, deps)
}

// SuccessResult builds a success StageResult with the payload marshaled in.
func SuccessResult(stage string, payload any) (StageResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return StageResult{}, err
	}
	return StageResult{
		Stage:   stage,
		Status:  StatusSuccess,
		Payload: raw,
		Source:  SourceFresh,
	}, nil
}

// DegradedResult builds a degraded StageResult carrying partial data and
// the caveats explaining what is missing.
func DegradedResult(stage string, payload any, caveats ...string) (StageResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return StageResult{}, err
	}
	return StageResult{
		Stage:   stage,
		Status:  StatusDegraded,
		Payload: raw,
		Caveats: caveats,
		Reason:  "partial data",
		Source:  SourceFresh,
	}, nil
}

// Package executor drives one report request to completion: it walks the
// stage graph, launches ready stages concurrently on a bounded worker pool,
// consults the result cache before invoking a collaborator under the retry
// policy, and records every outcome as a settled StageResult. No stage
// failure ever escapes as an error; the worst case is an aborted run state.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anveshkr/stockscout/internal/contracts"
	"github.com/anveshkr/stockscout/internal/pipeline/cache"
	"github.com/anveshkr/stockscout/internal/pipeline/graph"
	"github.com/anveshkr/stockscout/internal/pipeline/retry"
	"github.com/anveshkr/stockscout/pkg/logger"
)

// RunOptions control one report request.
type RunOptions struct {
	// ForceRefresh invalidates cached results for the symbol first.
	ForceRefresh bool
	// Timeout bounds the whole run, not individual stages. Zero means the
	// executor's configured default.
	Timeout time.Duration
}

// Executor schedules stage execution for report runs. It is safe for
// concurrent use; each run owns its RunContext exclusively and only the
// result cache is shared.
type Executor struct {
	graph          *graph.Graph
	cache          *cache.ResultCache
	policy         *retry.Policy
	maxWorkers     int
	defaultTimeout time.Duration
	logger         *logger.Logger
	onEvent        EventFunc
}

// New creates an executor over a validated graph.
func New(g *graph.Graph, c *cache.ResultCache, p *retry.Policy, maxWorkers int, defaultTimeout time.Duration, log *logger.Logger) *Executor {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Executor{
		graph:          g,
		cache:          c,
		policy:         p,
		maxWorkers:     maxWorkers,
		defaultTimeout: defaultTimeout,
		logger:         log,
	}
}

// OnEvent registers a progress event handler. The handler is called from
// stage goroutines and must be safe for concurrent use.
func (e *Executor) OnEvent(fn EventFunc) {
	e.onEvent = fn
}

// Run executes all reachable stages for the symbol and returns the settled
// run state. It always returns: stage failures, circuit-open fast fails,
// timeouts and aborts are all recorded as StageResults.
func (e *Executor) Run(ctx context.Context, symbol contracts.Symbol, opts RunOptions) *contracts.RunState {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	runID := generateRunID()
	startedAt := time.Now()

	log := e.logger.WithFields(map[string]interface{}{
		"run_id": runID,
		"symbol": symbol.String(),
	})
	log.WithFields(map[string]interface{}{
		"force_refresh": opts.ForceRefresh,
		"timeout":       timeout,
	}).Info("Starting pipeline run")

	if opts.ForceRefresh {
		e.cache.InvalidateSymbol(runCtx, symbol)
		log.Debug("Invalidated cached results for forced refresh")
	}

	e.emit(Event{Type: EventRunStarted, RunID: runID, Symbol: symbol, Timestamp: time.Now()})

	settled := make(map[string]contracts.StageResult, e.graph.Len())
	started := make(map[string]bool, e.graph.Len())
	settledNames := make(map[string]bool, e.graph.Len())
	results := make(chan contracts.StageResult)
	sem := make(chan struct{}, e.maxWorkers)

	inflight := 0
	aborted := false
	abortedBy := ""

	for {
		// Launch everything ready, unless the run has been aborted or the
		// whole-run deadline already fired.
		if !aborted && runCtx.Err() == nil {
			for _, def := range e.graph.Ready(settledNames, started) {
				started[def.Name] = true
				inflight++
				inputs := buildInputs(def, settled)
				go e.runStage(runCtx, runID, symbol, def, inputs, sem, results)
			}
		}

		if inflight == 0 {
			if aborted || runCtx.Err() != nil || len(settled) == e.graph.Len() {
				break
			}
			// Nothing running and nothing ready: cannot happen on an
			// acyclic graph. Record it instead of spinning.
			log.Error("Pipeline deadlock: no runnable stages with unsettled stages remaining")
			for _, def := range e.graph.Stages() {
				if _, ok := settled[def.Name]; !ok {
					settled[def.Name] = failedResult(def.Name, "dependency deadlock")
					settledNames[def.Name] = true
				}
			}
			break
		}

		res := <-results
		inflight--
		settled[res.Stage] = res
		settledNames[res.Stage] = true

		e.emit(Event{
			Type:      EventStageSettled,
			RunID:     runID,
			Symbol:    symbol,
			Stage:     res.Stage,
			Status:    res.Status,
			Source:    res.Source,
			Reason:    res.Reason,
			Timestamp: time.Now(),
		})

		def, _ := e.graph.Stage(res.Stage)
		if res.Status == contracts.StatusFailed && def.Mandatory && !aborted {
			aborted = true
			abortedBy = res.Stage
			log.WithField("stage", res.Stage).Error("Mandatory stage failed, aborting run")
			// In-flight siblings may finish; nothing new launches, and
			// stages observing the context stop early.
			cancel()
		}
	}

	// Record stages that never settled: not attempted after an abort, or
	// cut off by the whole-run deadline.
	for _, def := range e.graph.Stages() {
		if _, ok := settled[def.Name]; ok {
			continue
		}
		reason := "not attempted"
		if !aborted && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			reason = "run deadline exceeded"
		}
		settled[def.Name] = failedResult(def.Name, reason)
	}

	// A deadline that cut off the mandatory root aborts the run too.
	if !aborted {
		if root := settled[e.graph.MandatoryRoot()]; root.Status == contracts.StatusFailed {
			aborted = true
			abortedBy = e.graph.MandatoryRoot()
		}
	}

	state := &contracts.RunState{
		RunID:     runID,
		Symbol:    symbol,
		StartedAt: startedAt,
		Results:   settled,
		Aborted:   aborted,
		AbortedBy: abortedBy,
	}

	log.WithFields(map[string]interface{}{
		"duration": time.Since(startedAt),
		"aborted":  aborted,
	}).Info("Pipeline run settled")

	e.emit(Event{Type: EventRunFinished, RunID: runID, Symbol: symbol, Timestamp: time.Now()})

	return state
}

// runStage executes one stage: cache first, then the collaborator under
// the retry policy. The result is always delivered on results.
func (e *Executor) runStage(ctx context.Context, runID string, symbol contracts.Symbol, def graph.StageDefinition, inputs map[string]contracts.StageInput, sem chan struct{}, results chan<- contracts.StageResult) {
	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-ctx.Done():
		results <- failedResult(def.Name, runStopReason(ctx))
		return
	}

	e.emit(Event{
		Type:      EventStageStarted,
		RunID:     runID,
		Symbol:    symbol,
		Stage:     def.Name,
		Timestamp: time.Now(),
	})

	now := time.Now()
	if res, ok := e.cache.Get(ctx, symbol, def.Name, now); ok {
		e.logger.WithFields(map[string]interface{}{
			"run_id": runID,
			"stage":  def.Name,
		}).Debug("Stage served from cache")
		results <- res
		return
	}

	res, err := e.policy.Do(ctx, def.Name, func(callCtx context.Context) (contracts.StageResult, error) {
		return def.Executor.Execute(callCtx, symbol, inputs)
	})
	if err != nil {
		res = failedResult(def.Name, failureReason(err))
	} else {
		res.Stage = def.Name
		res.Source = contracts.SourceFresh
		if res.Timestamp.IsZero() {
			res.Timestamp = time.Now()
		}
	}

	if res.Status != contracts.StatusFailed {
		e.cache.Put(ctx, symbol, def.Name, res, def.Freshness, time.Now())
	}

	results <- res
}

// buildInputs assembles the dependency payload map for a stage. Failed
// upstreams yield explicit unavailable markers so dependents can run in
// degraded mode instead of being blocked.
func buildInputs(def graph.StageDefinition, settled map[string]contracts.StageResult) map[string]contracts.StageInput {
	inputs := make(map[string]contracts.StageInput, len(def.DependsOn))
	for _, dep := range def.DependsOn {
		res := settled[dep]
		if res.Usable() {
			inputs[dep] = contracts.StageInput{Payload: res.Payload}
		} else {
			inputs[dep] = contracts.StageInput{
				Unavailable: true,
				Reason:      res.Reason,
			}
		}
	}
	return inputs
}

func (e *Executor) emit(ev Event) {
	if e.onEvent != nil {
		e.onEvent(ev)
	}
}

func failedResult(stage, reason string) contracts.StageResult {
	return contracts.StageResult{
		Stage:     stage,
		Status:    contracts.StatusFailed,
		Reason:    reason,
		Timestamp: time.Now(),
		Source:    contracts.SourceFresh,
	}
}

// failureReason maps policy errors to stable, user-visible reasons.
func failureReason(err error) string {
	if errors.Is(err, contracts.ErrCircuitOpen) {
		return "circuit open"
	}
	return err.Error()
}

func runStopReason(ctx context.Context) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "run deadline exceeded"
	}
	return "run canceled"
}

// generateRunID generates a unique run ID.
func generateRunID() string {
	return fmt.Sprintf("run_%s", time.Now().Format("20060102_150405.000"))
}

package executor

import (
	"time"

	"github.com/anveshkr/stockscout/internal/contracts"
)

// EventType classifies pipeline progress events.
type EventType string

const (
	EventRunStarted   EventType = "run_started"
	EventStageStarted EventType = "stage_started"
	EventStageSettled EventType = "stage_settled"
	EventRunFinished  EventType = "run_finished"
)

// Event is a progress notification emitted while a run executes. Consumers
// (CLI spinner, websocket hub) receive events from stage goroutines and
// must be safe for concurrent calls.
type Event struct {
	Type      EventType              `json:"type"`
	RunID     string                 `json:"run_id"`
	Symbol    contracts.Symbol       `json:"symbol"`
	Stage     string                 `json:"stage,omitempty"`
	Status    contracts.StageStatus  `json:"status,omitempty"`
	Source    contracts.ResultSource `json:"source,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventFunc receives pipeline progress events.
type EventFunc func(Event)

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/anveshkr/stockscout/pkg/config"
	"github.com/anveshkr/stockscout/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&config.Config{LogLevel: "error", LogFormat: "json"})
}

// stubJob is a minimal Job for scheduler tests.
type stubJob struct {
	name string
	err  error
	runs int
}

func (j *stubJob) Name() string     { return j.name }
func (j *stubJob) Schedule() string { return "0 0 * * * *" }

func (j *stubJob) Run(_ context.Context) error {
	j.runs++
	return j.err
}

func TestJobHistory_AddResultCapsAtHundred(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < 150; i++ {
		h.AddResult(JobResult{JobName: fmt.Sprintf("run-%d", i), Success: true})
	}

	if len(h.Results) != 100 {
		t.Fatalf("history holds %d results, want 100", len(h.Results))
	}
	if h.Results[0].JobName != "run-50" {
		t.Errorf("oldest kept result = %s, want run-50", h.Results[0].JobName)
	}
}

func TestJobHistory_GetLatestResults(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < 5; i++ {
		h.AddResult(JobResult{JobName: fmt.Sprintf("run-%d", i), Success: true})
	}

	latest := h.GetLatestResults(2)
	if len(latest) != 2 {
		t.Fatalf("GetLatestResults(2) returned %d results", len(latest))
	}
	if latest[1].JobName != "run-4" {
		t.Errorf("newest result = %s, want run-4", latest[1].JobName)
	}

	if got := h.GetLatestResults(50); len(got) != 5 {
		t.Errorf("GetLatestResults beyond history returned %d, want all 5", len(got))
	}
	if got := (&JobHistory{}).GetLatestResults(3); len(got) != 0 {
		t.Errorf("empty history returned %d results", len(got))
	}
}

func TestJobHistory_FailuresAndSuccessRate(t *testing.T) {
	h := &JobHistory{}
	h.AddResult(JobResult{Success: true})
	h.AddResult(JobResult{Success: false, Error: "watchlist symbol invalid"})
	h.AddResult(JobResult{Success: true})
	h.AddResult(JobResult{Success: true})

	failed := h.GetFailedResults()
	if len(failed) != 1 {
		t.Fatalf("GetFailedResults() returned %d, want 1", len(failed))
	}
	if failed[0].Error != "watchlist symbol invalid" {
		t.Errorf("failed result error = %q", failed[0].Error)
	}

	if rate := h.GetSuccessRate(); rate != 0.75 {
		t.Errorf("GetSuccessRate() = %v, want 0.75", rate)
	}
	if rate := (&JobHistory{}).GetSuccessRate(); rate != 0 {
		t.Errorf("empty history success rate = %v, want 0", rate)
	}
}

func TestScheduler_AddJobRejectsDuplicates(t *testing.T) {
	s := New(testLogger())

	if err := s.AddJob(&stubJob{name: "prewarm"}); err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}
	if err := s.AddJob(&stubJob{name: "prewarm"}); err == nil {
		t.Fatal("AddJob() must reject a duplicate name")
	}
}

func TestScheduler_GetJobHistoryUnknownJob(t *testing.T) {
	s := New(testLogger())
	if _, err := s.GetJobHistory("nope"); err == nil {
		t.Fatal("GetJobHistory() must fail for an unregistered job")
	}
	if err := s.RunJob("nope"); err == nil {
		t.Fatal("RunJob() must fail for an unregistered job")
	}
}

func TestScheduler_RunRecordsHistory(t *testing.T) {
	s := New(testLogger())
	s.maxRetries = 1
	s.retryDelay = time.Millisecond

	ok := &stubJob{name: "prewarm"}
	if err := s.AddJob(ok); err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}
	s.runJob(ok)

	history, err := s.GetJobHistory("prewarm")
	if err != nil {
		t.Fatalf("GetJobHistory() error = %v", err)
	}
	results := history.GetLatestResults(1)
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("history = %+v, want one successful result", results)
	}
	if ok.runs != 1 {
		t.Errorf("job ran %d times, want 1", ok.runs)
	}

	failing := &stubJob{name: "flaky", err: errors.New("gateway down")}
	if err := s.AddJob(failing); err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}
	s.runJob(failing)

	history, err = s.GetJobHistory("flaky")
	if err != nil {
		t.Fatalf("GetJobHistory() error = %v", err)
	}
	if failed := history.GetFailedResults(); len(failed) != 1 || failed[0].Error != "gateway down" {
		t.Fatalf("failed results = %+v, want the recorded error", failed)
	}
	if failing.runs != 2 {
		t.Errorf("failing job ran %d times, want initial attempt plus one retry", failing.runs)
	}
	if rate := history.GetSuccessRate(); rate != 0 {
		t.Errorf("flaky success rate = %v, want 0", rate)
	}
}

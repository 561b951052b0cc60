// Package jobs contains the scheduled job implementations.
package jobs

import (
	"context"

	"github.com/anveshkr/stockscout/internal/contracts"
	"github.com/anveshkr/stockscout/internal/research"
	"github.com/anveshkr/stockscout/pkg/logger"
)

// PrewarmJob runs the research pipeline for each watchlist symbol so the
// result cache stays warm during market hours. Symbols run sequentially;
// the pipeline parallelizes stages internally.
type PrewarmJob struct {
	service   *research.Service
	watchlist []string
	schedule  string
	logger    *logger.Logger
}

// NewPrewarmJob creates a new prewarm job.
func NewPrewarmJob(svc *research.Service, watchlist []string, schedule string, log *logger.Logger) *PrewarmJob {
	return &PrewarmJob{
		service:   svc,
		watchlist: watchlist,
		schedule:  schedule,
		logger:    log,
	}
}

// Name returns the job name.
func (j *PrewarmJob) Name() string {
	return "cache_prewarm"
}

// Schedule returns the configured cron schedule.
func (j *PrewarmJob) Schedule() string {
	return j.schedule
}

// Run executes the prewarm pass. Aborted runs count as failures so the
// scheduler's retry kicks in; partially complete reports are good enough.
func (j *PrewarmJob) Run(ctx context.Context) error {
	if len(j.watchlist) == 0 {
		j.logger.Debug("Prewarm watchlist is empty, nothing to do")
		return nil
	}

	var lastErr error
	warmed := 0

	for _, raw := range j.watchlist {
		report, err := j.service.Run(ctx, research.RunRequest{Symbol: raw})
		if err != nil {
			j.logger.WithError(err).WithField("symbol", raw).Warn("Prewarm skipped invalid symbol")
			lastErr = err
			continue
		}
		if report.Status == contracts.RunAborted {
			j.logger.WithFields(map[string]interface{}{
				"symbol": raw,
				"error":  report.Error,
			}).Warn("Prewarm run aborted")
			continue
		}
		warmed++
	}

	j.logger.WithFields(map[string]interface{}{
		"warmed": warmed,
		"total":  len(j.watchlist),
	}).Info("Prewarm pass finished")

	return lastErr
}

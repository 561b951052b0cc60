// Package retry wraps external calls in bounded exponential backoff with
// per-attempt timeouts and a per-call-identity circuit breaker. Exhausted
// retries come back as an error value the executor converts to a failed
// StageResult; nothing here ever panics through to the caller.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anveshkr/stockscout/internal/contracts"
	"github.com/anveshkr/stockscout/pkg/config"
	"github.com/anveshkr/stockscout/pkg/logger"
)

// CallFunc is the unit of external work the policy retries.
type CallFunc func(ctx context.Context) (contracts.StageResult, error)

// Policy applies bounded exponential backoff and per-attempt timeouts to
// any external call, consulting the breaker set before attempting I/O.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	Multiplier     float64
	MaxDelay       time.Duration
	MaxElapsed     time.Duration
	AttemptTimeout time.Duration

	breakers *BreakerSet
	logger   *logger.Logger
}

// NewPolicy builds a policy from the pipeline configuration.
func NewPolicy(cfg config.PipelineConfig, breakers *BreakerSet, log *logger.Logger) *Policy {
	return &Policy{
		MaxAttempts:    cfg.RetryMaxAttempts,
		BaseDelay:      cfg.RetryBaseDelay,
		Multiplier:     2.0,
		MaxDelay:       cfg.RetryMaxDelay,
		MaxElapsed:     cfg.RetryMaxElapsed,
		AttemptTimeout: cfg.AttemptTimeout,
		breakers:       breakers,
		logger:         log,
	}
}

// Do runs fn under the policy. callID identifies the call for circuit
// breaking. On success (including degraded results) the StageResult is
// returned; after exhausting attempts the last error is returned wrapped
// as an ExternalCallError, or contracts.ErrCircuitOpen when the breaker
// refused the call outright.
func (p *Policy) Do(ctx context.Context, callID string, fn CallFunc) (contracts.StageResult, error) {
	if p.breakers != nil && !p.breakers.Allow(callID) {
		p.logger.WithField("call", callID).Warn("Circuit open, failing fast")
		return contracts.StageResult{}, contracts.ErrCircuitOpen
	}

	start := time.Now()
	delay := p.BaseDelay
	attempts := 0
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		attempts++
		res, err := p.runAttempt(ctx, fn)
		if err == nil {
			if p.breakers != nil {
				p.breakers.RecordSuccess(callID)
			}
			return res, nil
		}
		lastErr = err

		if !retryable(err) {
			p.logger.WithFields(map[string]interface{}{
				"call":  callID,
				"error": err.Error(),
			}).Warn("Permanent failure, not retrying")
			break
		}
		if attempt == p.MaxAttempts {
			break
		}
		if p.MaxElapsed > 0 && time.Since(start)+delay > p.MaxElapsed {
			lastErr = fmt.Errorf("retry budget exhausted: %w", err)
			break
		}

		p.logger.WithFields(map[string]interface{}{
			"call":    callID,
			"attempt": attempt,
			"delay":   delay,
			"error":   err.Error(),
		}).Warn("Retrying external call")

		if !sleepCtx(ctx, delay) {
			lastErr = ctx.Err()
			break
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	// The breaker tracks the health of the remote target. A call cut short
	// because the run itself was canceled or timed out says nothing about
	// the target, so it must not push the breaker toward open.
	if p.breakers != nil && ctx.Err() == nil {
		p.breakers.RecordFailure(callID)
	}
	return contracts.StageResult{}, &contracts.ExternalCallError{
		Call:     callID,
		Attempts: attempts,
		Err:      lastErr,
	}
}

// retryableError is implemented by errors that know whether another
// attempt can help, such as httputil.StatusError.
type retryableError interface {
	Retryable() bool
}

// retryable reports whether err is worth another attempt. Errors that do
// not classify themselves are treated as transient.
func retryable(err error) bool {
	var re retryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return true
}

// runAttempt executes one attempt under the per-attempt timeout.
func (p *Policy) runAttempt(ctx context.Context, fn CallFunc) (contracts.StageResult, error) {
	attemptCtx := ctx
	if p.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		defer cancel()
	}
	return fn(attemptCtx)
}

// sleepCtx waits for d, returning false if the context was canceled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

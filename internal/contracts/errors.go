package contracts

import (
	"errors"
	"fmt"
)

// ErrCircuitOpen is returned by the retry policy when the circuit breaker
// for a call identity is open: the call fails fast without any I/O.
var ErrCircuitOpen = errors.New("circuit open")

// ConfigurationError reports an invalid stage graph or pipeline
// configuration. It is fatal at startup and never retried.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Msg
}

// NewConfigurationError builds a ConfigurationError with a formatted message.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// ExternalCallError wraps a failure of an external call after the retry
// policy exhausted its attempts. It is converted into a failed StageResult
// and never propagates to the caller of Run.
type ExternalCallError struct {
	Call     string
	Attempts int
	Err      error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("external call %s failed after %d attempt(s): %v", e.Call, e.Attempts, e.Err)
}

func (e *ExternalCallError) Unwrap() error {
	return e.Err
}

package reporter

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-reporter/exitcodes"
)

// RuntimeError means the run could not be reported and maps to exit code 2.
// Err is the cause: a config or input error, an *aggregator.ProtocolError
// when the event stream breaks the lifecycle, or an *aggregator.SinkError
// when a report could not be written.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError reports whether err is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return errors.As(err, &runtimeErr)
}

// TestFailureError means every suite was reported but at least one case
// failed. Summary is the run's one-line result. Maps to exit code 1.
type TestFailureError struct {
	Summary string
}

func (e *TestFailureError) Error() string {
	return "test failure: " + e.Summary
}

func NewTestFailureError(summary string) *TestFailureError {
	return &TestFailureError{Summary: summary}
}

func IsTestFailureError(err error) bool {
	var failure *TestFailureError
	return errors.As(err, &failure)
}

// ExitCode maps an error returned by a run to the process exit code
func ExitCode(err error) int {
	switch {
	case err == nil:
		return exitcodes.Success
	case IsRuntimeError(err):
		return exitcodes.RuntimeErr
	default:
		return exitcodes.TestFailure
	}
}

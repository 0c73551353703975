package reporter

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ethereum-optimism/infra/op-reporter/aggregator"
	"github.com/ethereum-optimism/infra/op-reporter/exitcodes"
)

func TestErrorTypes(t *testing.T) {
	runtimeErr := NewRuntimeError(errors.New("disk full"))
	wrappedRuntime := fmt.Errorf("run: %w", runtimeErr)
	failureErr := NewTestFailureError("2 failed")

	assert.True(t, IsRuntimeError(runtimeErr))
	assert.True(t, IsRuntimeError(wrappedRuntime))
	assert.False(t, IsRuntimeError(failureErr))
	assert.False(t, IsRuntimeError(nil))

	assert.True(t, IsTestFailureError(failureErr))
	assert.True(t, IsTestFailureError(fmt.Errorf("wrapped: %w", failureErr)))
	assert.False(t, IsTestFailureError(runtimeErr))

	assert.Equal(t, "runtime error: disk full", runtimeErr.Error())
	assert.Equal(t, "test failure: 2 failed", failureErr.Error())
	assert.ErrorIs(t, wrappedRuntime, runtimeErr.Err)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: exitcodes.Success},
		{name: "test failure", err: NewTestFailureError("x"), want: exitcodes.TestFailure},
		{name: "runtime", err: NewRuntimeError(errors.New("x")), want: exitcodes.RuntimeErr},
		{name: "wrapped runtime", err: fmt.Errorf("a: %w", NewRuntimeError(errors.New("x"))), want: exitcodes.RuntimeErr},
		{name: "other", err: errors.New("x"), want: exitcodes.TestFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestRuntimeErrorCauses(t *testing.T) {
	protocol := &aggregator.ProtocolError{Event: "case_passed", Reason: "no open suite"}
	sink := &aggregator.SinkError{Suite: "./pkg", Err: errors.New("disk full")}

	for _, cause := range []error{protocol, sink} {
		err := fmt.Errorf("run: %w", NewRuntimeError(cause))
		assert.True(t, IsRuntimeError(err))
		assert.Equal(t, exitcodes.RuntimeErr, ExitCode(err))
	}
	assert.True(t, aggregator.IsProtocolError(NewRuntimeError(protocol)))
	assert.True(t, aggregator.IsSinkError(NewRuntimeError(sink)))
}

package aggregator

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocolViolation is wrapped by every ProtocolError
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrAborted is returned for every event after the run was aborted
	ErrAborted = errors.New("report generation aborted")
)

// ProtocolError signals an event the upstream producer should never have sent
// in the current state.
type ProtocolError struct {
	Event  string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol violation on %s: %s: %v", e.Event, e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol violation on %s: %s", e.Event, e.Reason)
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocolViolation
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// SinkError wraps a failure of the report sink while flushing a suite
type SinkError struct {
	Suite string
	Err   error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("writing report for suite %q: %v", e.Suite, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// IsProtocolError checks if the error is or wraps a ProtocolError
func IsProtocolError(err error) bool {
	var protoErr *ProtocolError
	return err != nil && errors.As(err, &protoErr)
}

// IsSinkError checks if the error is or wraps a SinkError
func IsSinkError(err error) bool {
	var sinkErr *SinkError
	return err != nil && errors.As(err, &sinkErr)
}

func violation(event, reason string) *ProtocolError {
	return &ProtocolError{Event: event, Reason: reason}
}

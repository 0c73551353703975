package gotest

import (
	"strings"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-reporter/types"
)

// Status markers of failures that are not assertion failures
const (
	StatusBuildFailed = "buildfailed"
)

// Captured error type names, by status marker
const (
	TypeTestFailure  = "TestFailure"
	TypePanic        = "Panic"
	TypeTimeout      = "Timeout"
	TypeIncomplete   = "Incomplete"
	TypeBuildFailure = "BuildFailure"
)

// framingPrefixes mark lines go test prints around test output
var framingPrefixes = []string{
	"=== RUN", "=== PAUSE", "=== CONT", "=== NAME",
	"--- FAIL:", "--- PASS:", "--- SKIP:",
	"PASS", "FAIL", "ok  \t", "?   \t", "coverage:",
}

// cleanOutput strips colors and framing from captured output and splits it
// into non-empty, trimmed lines
func cleanOutput(output []string) []string {
	var lines []string
	for _, chunk := range output {
		for _, line := range strings.Split(stripansi.Strip(chunk), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || isFraming(line) {
				continue
			}
			lines = append(lines, line)
		}
	}
	return lines
}

func isFraming(line string) bool {
	for _, p := range framingPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// classify returns the status marker of a failed test from its raw output
func classify(output []string) string {
	var panicked bool
	for _, chunk := range output {
		switch {
		case strings.Contains(chunk, "panic: test timed out"):
			return types.ExampleStatusTimedOut
		case strings.HasPrefix(strings.TrimSpace(chunk), "panic:"):
			panicked = true
		}
	}
	if panicked {
		return types.ExampleStatusPanicked
	}
	return types.ExampleStatusFailed
}

func typeName(status string) string {
	switch status {
	case types.ExampleStatusPanicked:
		return TypePanic
	case types.ExampleStatusTimedOut:
		return TypeTimeout
	case types.ExampleStatusIncomplete:
		return TypeIncomplete
	case StatusBuildFailed:
		return TypeBuildFailure
	default:
		return TypeTestFailure
	}
}

// capture builds the error payload of a failed example. The message is the
// first diagnostic line, the backtrace holds every cleaned output line.
func capture(status string, output []string, fallback string) *types.CapturedError {
	lines := cleanOutput(output)
	msg := fallback
	if len(lines) > 0 {
		msg = lines[0]
	}
	return &types.CapturedError{
		TypeName:  typeName(status),
		Message:   msg,
		Backtrace: lines,
	}
}

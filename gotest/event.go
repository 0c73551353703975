package gotest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// Go test2json (TestEvent) action constants for JSON test output
// See https://cs.opensource.google/go/go/+/master:src/cmd/test2json/main.go;l=34-60
const (
	ActionStart       = "start"
	ActionRun         = "run"
	ActionPause       = "pause"
	ActionCont        = "cont"
	ActionPass        = "pass"
	ActionFail        = "fail"
	ActionSkip        = "skip"
	ActionOutput      = "output"
	ActionBench       = "bench"
	ActionBuildOutput = "build-output"
	ActionBuildFail   = "build-fail"
)

// maxLineSize bounds a single JSON line. Test output lines are embedded in
// the events, so this is well above bufio's default.
const maxLineSize = 4 * 1024 * 1024

// TestEvent represents a single event from the go test JSON output
type TestEvent struct {
	Time        time.Time // Time the event occurred
	Action      string    // The action taken (run, pause, cont, pass, fail, skip, output, ...)
	Package     string    // The package being tested
	Test        string    // The test function name (may be empty for package events)
	Output      string    // Output text (may be empty)
	Elapsed     float64   // Elapsed time in seconds for the specific action
	ImportPath  string    // Set on build-output and build-fail events
	FailedBuild string    // Import path of the package whose build failed
}

// IsPackageEvent reports whether the event belongs to the package rather
// than to one of its tests
func (e TestEvent) IsPackageEvent() bool {
	return e.Test == ""
}

// IsTerminal reports whether the action ends a test or package
func (e TestEvent) IsTerminal() bool {
	switch e.Action {
	case ActionPass, ActionFail, ActionSkip:
		return true
	}
	return false
}

func parseTestEvent(line []byte) (TestEvent, error) {
	var event TestEvent
	if err := json.Unmarshal(line, &event); err != nil {
		return event, err
	}
	return event, nil
}

// DecodeEvents reads newline-delimited test2json events and calls fn for
// each one. Lines that are not JSON events (e.g. build output printed by the
// go command itself) are skipped.
func DecodeEvents(ctx context.Context, r io.Reader, logger log.Logger, fn func(TestEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		event, err := parseTestEvent(line)
		if err != nil || event.Action == "" {
			logger.Debug("Skipping non-event line", "line", lineNo, "text", string(line))
			continue
		}
		if err := fn(event); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read test events at line %d: %w", lineNo+1, err)
	}
	return nil
}

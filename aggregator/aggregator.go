// Package aggregator reduces an ordered stream of test lifecycle events into
// finished report suites.
//
// The Aggregator holds a single "current suite" cursor. Entering a group
// flushes the previous suite to the Sink and opens a new one; case events
// mutate the current suite; finishing the run flushes the last suite. Events
// must be delivered sequentially from one goroutine. Concurrent runs need
// independent Aggregator instances.
package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-reporter/types"
)

// Sink persists finished suites. It is called once per suite, in the order
// the suites were opened, and only with finished suites.
type Sink interface {
	WriteReport(ctx context.Context, suite *types.Suite) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(ctx context.Context, suite *types.Suite) error

func (f SinkFunc) WriteReport(ctx context.Context, suite *types.Suite) error {
	return f(ctx, suite)
}

// Summary holds run totals, accumulated as suites are flushed
type Summary struct {
	Suites    int
	Cases     int
	Passed    int
	Failed    int
	Skipped   int
	Failures  int // Assertion failures
	Errors    int // Unexpected errors
	StartTime time.Time
	Duration  time.Duration
}

// OK reports whether no flushed case failed
func (s Summary) OK() bool {
	return s.Failed == 0
}

func (s *Summary) add(suite *types.Suite) {
	s.Suites++
	for _, c := range suite.Cases {
		s.Cases++
		switch c.Status {
		case types.CaseStatusPassed:
			s.Passed++
		case types.CaseStatusFailed:
			s.Failed++
		case types.CaseStatusSkipped:
			s.Skipped++
		}
	}
	s.Failures += suite.Failures()
	s.Errors += suite.Errors()
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithDisplay sets the pass-through display receiving every event
func WithDisplay(d Display) Option {
	return func(a *Aggregator) { a.display = d }
}

func WithLogger(l log.Logger) Option {
	return func(a *Aggregator) { a.log = l }
}

// WithClock sets the time source used for lifecycle timestamps
func WithClock(clock func() time.Time) Option {
	return func(a *Aggregator) { a.clock = clock }
}

// WithPendingMarker sets the suffix appended to the name of pending cases
func WithPendingMarker(marker string) Option {
	return func(a *Aggregator) { a.pendingMarker = marker }
}

func WithTracer(t trace.Tracer) Option {
	return func(a *Aggregator) { a.tracer = t }
}

// Aggregator translates lifecycle events into report model mutations
type Aggregator struct {
	sink          Sink
	display       Display
	log           log.Logger
	clock         func() time.Time
	tracer        trace.Tracer
	pendingMarker string

	current  *types.Suite
	finished bool
	err      error
	summary  Summary
}

// New creates an Aggregator flushing finished suites to sink
func New(sink Sink, opts ...Option) *Aggregator {
	a := &Aggregator{
		sink:          sink,
		display:       NopDisplay{},
		log:           log.NewLogger(log.DiscardHandler()),
		clock:         time.Now,
		tracer:        otel.Tracer("report aggregator"),
		pendingMarker: types.DefaultPendingMarker,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Summary returns the totals of all suites flushed so far
func (a *Aggregator) Summary() Summary {
	return a.summary
}

// Err returns the error that aborted the run, if any
func (a *Aggregator) Err() error {
	return a.err
}

// RunStarted records the start of the run
func (a *Aggregator) RunStarted(ctx context.Context, count int) error {
	if err := a.accept("run_started"); err != nil {
		return err
	}
	a.display.RunStarted(count)

	a.summary.StartTime = a.clock()
	a.log.Debug("Run started", "count", count)
	return nil
}

// GroupEntered flushes the current suite, if any, and opens a new one named
// after the group's ancestry.
func (a *Aggregator) GroupEntered(ctx context.Context, group types.Group) error {
	if err := a.accept("group_entered"); err != nil {
		return err
	}
	a.display.GroupEntered(group)

	if a.current != nil {
		if err := a.flush(ctx); err != nil {
			return err
		}
	}

	suite := types.NewSuite(group.SuiteName())
	suite.Start(a.clock())
	a.current = suite
	a.log.Debug("Opened suite", "suite", suite.Name, "depth", group.Depth())
	return nil
}

// CaseStarted appends a new running case to the current suite
func (a *Aggregator) CaseStarted(ctx context.Context, ex types.Example) error {
	const event = "case_started"
	if err := a.accept(event); err != nil {
		return err
	}
	a.display.CaseStarted(ex)

	suite, err := a.openSuite(event)
	if err != nil {
		return err
	}
	return a.startCase(event, suite, ex.Description)
}

// CaseFailed finishes the current case and attaches the example's failure.
// A failure reported before any case started in the suite (e.g. in a
// group-level setup hook) gets a case named after the qualified description.
func (a *Aggregator) CaseFailed(ctx context.Context, ex types.Example) error {
	const event = "case_failed"
	if err := a.accept(event); err != nil {
		return err
	}
	a.display.CaseFailed(ex)

	suite, err := a.openSuite(event)
	if err != nil {
		return err
	}
	if len(suite.Cases) == 0 {
		a.log.Debug("Recording failure outside of a case", "suite", suite.Name, "name", ex.QualifiedName())
		if err := a.startCase(event, suite, ex.QualifiedName()); err != nil {
			return err
		}
	}

	c, err := a.finishCase(event, suite)
	if err != nil {
		return err
	}
	c.Fail(types.NewFailure(ex))
	return nil
}

// CasePassed finishes the current case as passed
func (a *Aggregator) CasePassed(ctx context.Context, ex types.Example) error {
	const event = "case_passed"
	if err := a.accept(event); err != nil {
		return err
	}
	a.display.CasePassed(ex)

	suite, err := a.openSuite(event)
	if err != nil {
		return err
	}
	c, err := a.finishCase(event, suite)
	if err != nil {
		return err
	}
	c.Pass()
	return nil
}

// CasePending finishes the current case as skipped and marks its name
func (a *Aggregator) CasePending(ctx context.Context, ex types.Example) error {
	const event = "case_pending"
	if err := a.accept(event); err != nil {
		return err
	}
	a.display.CasePending(ex)

	suite, err := a.openSuite(event)
	if err != nil {
		return err
	}
	c, err := a.finishCase(event, suite)
	if err != nil {
		return err
	}
	c.Skip(a.pendingMarker)
	return nil
}

// RunFinished flushes the current suite, if any. No event is accepted afterwards.
func (a *Aggregator) RunFinished(ctx context.Context) error {
	if err := a.accept("run_finished"); err != nil {
		return err
	}
	a.display.RunFinished()

	if a.current != nil {
		if err := a.flush(ctx); err != nil {
			return err
		}
	}
	a.finished = true
	if !a.summary.StartTime.IsZero() {
		a.summary.Duration = a.clock().Sub(a.summary.StartTime)
	}
	a.log.Debug("Run finished", "suites", a.summary.Suites, "cases", a.summary.Cases, "failed", a.summary.Failed)
	return nil
}

// accept rejects events once the run is aborted or finished
func (a *Aggregator) accept(event string) error {
	if a.err != nil {
		return fmt.Errorf("%w: %w", ErrAborted, a.err)
	}
	if a.finished {
		return a.abort(violation(event, "run already finished"))
	}
	return nil
}

func (a *Aggregator) openSuite(event string) (*types.Suite, error) {
	if a.current == nil {
		return nil, a.abort(violation(event, "no open suite"))
	}
	return a.current, nil
}

func (a *Aggregator) startCase(event string, suite *types.Suite, name string) error {
	c := types.NewCase(name)
	if err := suite.AddCase(c); err != nil {
		return a.abort(&ProtocolError{Event: event, Reason: "cannot add case", Err: err})
	}
	c.Start(a.clock())
	return nil
}

func (a *Aggregator) finishCase(event string, suite *types.Suite) (*types.Case, error) {
	c := suite.CurrentCase()
	if c == nil {
		return nil, a.abort(violation(event, fmt.Sprintf("no case started in suite %q", suite.Name)))
	}
	if err := c.Finish(a.clock()); err != nil {
		return nil, a.abort(&ProtocolError{Event: event, Reason: "no running case", Err: err})
	}
	return c, nil
}

// flush finishes the current suite and hands it to the sink. The cursor is
// cleared first so a suite is never handed over twice.
func (a *Aggregator) flush(ctx context.Context) error {
	suite := a.current
	a.current = nil

	for _, c := range suite.Cases {
		if !c.Finished() {
			return a.abort(violation("flush", fmt.Sprintf("case %q in suite %q has no outcome", c.Name, suite.Name)))
		}
	}
	if err := suite.Finish(a.clock()); err != nil {
		return a.abort(&ProtocolError{Event: "flush", Reason: "cannot finish suite", Err: err})
	}

	ctx, span := a.tracer.Start(ctx, fmt.Sprintf("suite %s", suite.Name))
	defer span.End()
	span.SetAttributes(
		attribute.Int("cases", suite.Tests()),
		attribute.Int("failures", suite.Failures()),
		attribute.Int("errors", suite.Errors()),
	)

	if err := a.sink.WriteReport(ctx, suite); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write report")
		a.log.Error("Failed to write report", "suite", suite.Name, "err", err)
		return a.abort(&SinkError{Suite: suite.Name, Err: err})
	}

	a.summary.add(suite)
	a.log.Debug("Flushed suite", "suite", suite.Name, "cases", suite.Tests(), "duration", suite.Duration())
	return nil
}

func (a *Aggregator) abort(err error) error {
	a.err = err
	return err
}

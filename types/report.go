package types

import (
	"errors"
	"fmt"
	"time"
)

// CaseStatus represents the possible states of a reported test case
type CaseStatus string

const (
	CaseStatusRunning CaseStatus = "running"
	CaseStatusPassed  CaseStatus = "passed"
	CaseStatusFailed  CaseStatus = "failed"
	CaseStatusSkipped CaseStatus = "skipped"
)

// DefaultPendingMarker is appended to the name of a case reported as pending
const DefaultPendingMarker = " (PENDING)"

var (
	ErrCaseFinished  = errors.New("case already finished")
	ErrSuiteFinished = errors.New("suite already finished")
)

// Failure is one captured error attached to a failed case.
// It is immutable once constructed.
type Failure struct {
	assertion bool
	name      string
	message   string
	location  string
}

// NewFailure classifies the captured error of an example.
// An example whose status marker is "failed" produced an assertion failure,
// anything else is an unexpected error.
func NewFailure(ex Example) *Failure {
	f := &Failure{assertion: ex.Status == ExampleStatusFailed}
	if ex.Err != nil {
		f.name = ex.Err.TypeName
		f.message = ex.Err.Message
		f.location = ex.Err.Location()
	}
	return f
}

// IsFailure reports whether this is an assertion failure
func (f *Failure) IsFailure() bool { return f.assertion }

// IsError reports whether this is an unexpected error
func (f *Failure) IsError() bool { return !f.assertion }

func (f *Failure) Name() string     { return f.name }
func (f *Failure) Message() string  { return f.message }
func (f *Failure) Location() string { return f.location }

// Case is one executed test example and its outcome
type Case struct {
	Name      string
	Status    CaseStatus
	Failures  []*Failure
	StartTime time.Time
	EndTime   time.Time

	finished bool
}

// NewCase creates a running case
func NewCase(name string) *Case {
	return &Case{
		Name:   name,
		Status: CaseStatusRunning,
	}
}

func (c *Case) Start(at time.Time) {
	c.StartTime = at
}

// Finish records the end time. A case can only be finished once.
func (c *Case) Finish(at time.Time) error {
	if c.Finished() {
		return fmt.Errorf("%w: %q", ErrCaseFinished, c.Name)
	}
	c.EndTime = at
	c.finished = true
	return nil
}

func (c *Case) Finished() bool {
	return c.finished
}

func (c *Case) Pass() {
	c.Status = CaseStatusPassed
}

// Fail attaches a failure and marks the case failed
func (c *Case) Fail(f *Failure) {
	c.Failures = append(c.Failures, f)
	c.Status = CaseStatusFailed
}

// Skip marks the case skipped and appends the pending marker to its name
func (c *Case) Skip(marker string) {
	if c.Status != CaseStatusSkipped {
		c.Name += marker
	}
	c.Status = CaseStatusSkipped
}

// Duration returns the time between start and finish, zero while running
func (c *Case) Duration() time.Duration {
	if !c.Finished() || c.EndTime.Before(c.StartTime) {
		return 0
	}
	return c.EndTime.Sub(c.StartTime)
}

// Suite is a named, ordered group of cases
type Suite struct {
	Name      string
	Cases     []*Case
	StartTime time.Time
	EndTime   time.Time

	current  *Case
	finished bool
}

func NewSuite(name string) *Suite {
	return &Suite{
		Name:  name,
		Cases: make([]*Case, 0),
	}
}

func (s *Suite) Start(at time.Time) {
	s.StartTime = at
}

// Finish records the end time. Finishing does not flush the suite anywhere.
func (s *Suite) Finish(at time.Time) error {
	if s.Finished() {
		return fmt.Errorf("%w: %q", ErrSuiteFinished, s.Name)
	}
	s.EndTime = at
	s.finished = true
	return nil
}

func (s *Suite) Finished() bool {
	return s.finished
}

// AddCase appends a case in discovery order and makes it the current case
func (s *Suite) AddCase(c *Case) error {
	if s.Finished() {
		return fmt.Errorf("cannot add case %q: %w: %q", c.Name, ErrSuiteFinished, s.Name)
	}
	s.Cases = append(s.Cases, c)
	s.current = c
	return nil
}

// CurrentCase returns the most recently started case, or nil
func (s *Suite) CurrentCase() *Case {
	return s.current
}

func (s *Suite) Duration() time.Duration {
	if !s.Finished() || s.EndTime.Before(s.StartTime) {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// Tests returns the number of cases in the suite
func (s *Suite) Tests() int {
	return len(s.Cases)
}

// Failures counts assertion failures across all cases
func (s *Suite) Failures() int {
	n := 0
	for _, c := range s.Cases {
		for _, f := range c.Failures {
			if f.IsFailure() {
				n++
			}
		}
	}
	return n
}

// Errors counts unexpected errors across all cases
func (s *Suite) Errors() int {
	n := 0
	for _, c := range s.Cases {
		for _, f := range c.Failures {
			if f.IsError() {
				n++
			}
		}
	}
	return n
}

func (s *Suite) Skipped() int {
	n := 0
	for _, c := range s.Cases {
		if c.Status == CaseStatusSkipped {
			n++
		}
	}
	return n
}

package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func TestNewFailure_Classification(t *testing.T) {
	tests := []struct {
		name      string
		status    string
		wantFail  bool
		wantError bool
	}{
		{"failed marker is an assertion failure", ExampleStatusFailed, true, false},
		{"panic is an error", ExampleStatusPanicked, false, true},
		{"timeout is an error", ExampleStatusTimedOut, false, true},
		{"empty marker is an error", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFailure(Example{
				Status: tt.status,
				Err:    &CapturedError{TypeName: "Boom", Message: "bad", Backtrace: []string{"a.go:1", "b.go:2"}},
			})
			assert.Equal(t, tt.wantFail, f.IsFailure())
			assert.Equal(t, tt.wantError, f.IsError())
			assert.NotEqual(t, f.IsFailure(), f.IsError(), "predicates must be mutually exclusive")
			assert.Equal(t, "Boom", f.Name())
			assert.Equal(t, "bad", f.Message())
			assert.Equal(t, "a.go:1\nb.go:2", f.Location())
		})
	}
}

func TestNewFailure_MissingCapturedError(t *testing.T) {
	f := NewFailure(Example{Status: ExampleStatusFailed})
	assert.True(t, f.IsFailure())
	assert.Empty(t, f.Name())
	assert.Empty(t, f.Message())
	assert.Empty(t, f.Location())
}

func TestCase_Lifecycle(t *testing.T) {
	c := NewCase("does a thing")
	assert.Equal(t, CaseStatusRunning, c.Status)
	assert.False(t, c.Finished())

	c.Start(t0)
	require.NoError(t, c.Finish(t0.Add(2*time.Second)))
	c.Pass()

	assert.True(t, c.Finished())
	assert.Equal(t, CaseStatusPassed, c.Status)
	assert.Equal(t, 2*time.Second, c.Duration())
	assert.Empty(t, c.Failures)

	err := c.Finish(t0.Add(3 * time.Second))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCaseFinished))
	assert.Equal(t, t0.Add(2*time.Second), c.EndTime, "second finish must not move the end time")
}

func TestFinishAtZeroTime(t *testing.T) {
	c := NewCase("t")
	require.NoError(t, c.Finish(time.Time{}))
	assert.True(t, c.Finished())
	assert.ErrorIs(t, c.Finish(time.Time{}), ErrCaseFinished)

	s := NewSuite("s")
	require.NoError(t, s.Finish(time.Time{}))
	assert.True(t, s.Finished())
	assert.ErrorIs(t, s.Finish(time.Time{}), ErrSuiteFinished)
	assert.ErrorIs(t, s.AddCase(NewCase("late")), ErrSuiteFinished)
}

func TestCase_SkipAppendsMarkerOnce(t *testing.T) {
	c := NewCase("t")
	c.Skip(DefaultPendingMarker)
	c.Skip(DefaultPendingMarker)
	assert.Equal(t, "t (PENDING)", c.Name)
	assert.Equal(t, CaseStatusSkipped, c.Status)
}

func TestCase_Fail(t *testing.T) {
	c := NewCase("t")
	c.Fail(NewFailure(Example{Status: ExampleStatusFailed}))
	assert.Equal(t, CaseStatusFailed, c.Status)
	assert.Len(t, c.Failures, 1)
}

func TestSuite_AddCaseTracksCurrent(t *testing.T) {
	s := NewSuite("S")
	assert.Nil(t, s.CurrentCase())

	a, b := NewCase("a"), NewCase("b")
	require.NoError(t, s.AddCase(a))
	assert.Same(t, a, s.CurrentCase())
	require.NoError(t, s.AddCase(b))
	assert.Same(t, b, s.CurrentCase())
	assert.Equal(t, []*Case{a, b}, s.Cases)
}

func TestSuite_NoCaseAfterFinish(t *testing.T) {
	s := NewSuite("S")
	s.Start(t0)
	require.NoError(t, s.Finish(t0.Add(time.Second)))

	err := s.AddCase(NewCase("late"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSuiteFinished))
	assert.Empty(t, s.Cases)
	assert.Error(t, s.Finish(t0.Add(2*time.Second)))
	assert.Equal(t, time.Second, s.Duration())
}

func TestSuite_Counters(t *testing.T) {
	s := NewSuite("S")

	passed := NewCase("passed")
	passed.Pass()

	failed := NewCase("failed")
	failed.Fail(NewFailure(Example{Status: ExampleStatusFailed}))

	errored := NewCase("errored")
	errored.Fail(NewFailure(Example{Status: ExampleStatusPanicked}))

	skipped := NewCase("skipped")
	skipped.Skip(DefaultPendingMarker)

	for _, c := range []*Case{passed, failed, errored, skipped} {
		require.NoError(t, s.AddCase(c))
	}

	assert.Equal(t, 4, s.Tests())
	assert.Equal(t, 1, s.Failures())
	assert.Equal(t, 1, s.Errors())
	assert.Equal(t, 1, s.Skipped())
}

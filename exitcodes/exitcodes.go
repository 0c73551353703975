// Package exitcodes defines the exit codes of op-reporter.
package exitcodes

// Exit code constants used by op-reporter:
//
// * Success (0): every reported case passed or was skipped
// * TestFailure (1): at least one reported case failed
// * RuntimeErr (2): the run could not be reported, e.g. invalid configuration,
// unreadable input, a malformed event stream or a failing report sink
const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
)

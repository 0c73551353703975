package types

import (
	"slices"
	"strings"
)

// ExampleStatusFailed is the engine status marker of an assertion failure.
// Any other marker on a failed example denotes an unexpected error.
const ExampleStatusFailed = "failed"

// Engine status markers that are not assertion failures
const (
	ExampleStatusPassed     = "passed"
	ExampleStatusPending    = "pending"
	ExampleStatusPanicked   = "panicked"
	ExampleStatusTimedOut   = "timedout"
	ExampleStatusIncomplete = "incomplete"
)

// SuiteNameSeparator joins ancestor descriptions into a suite name
const SuiteNameSeparator = " "

// ChainOrder is the order in which an engine reports a group's ancestry
type ChainOrder int

const (
	OutermostFirst ChainOrder = iota
	InnermostFirst
)

// Group is the payload of a group-entered event. Chain holds the own
// description of every group from the entered one up to its root.
type Group struct {
	Chain []string
	Order ChainOrder
}

// FlatGroup creates a group reported without ancestry
func FlatGroup(description string) Group {
	return Group{Chain: []string{description}}
}

// NestedGroup creates a group from an ancestry chain given in the specified order
func NestedGroup(order ChainOrder, chain ...string) Group {
	return Group{Chain: chain, Order: order}
}

// Ancestry returns the chain ordered from the outermost group to the innermost one
func (g Group) Ancestry() []string {
	out := make([]string, 0, len(g.Chain))
	for _, d := range g.Chain {
		if d != "" {
			out = append(out, d)
		}
	}
	if g.Order == InnermostFirst {
		slices.Reverse(out)
	}
	return out
}

// Depth is the nesting depth of the group (0 for a top-level group)
func (g Group) Depth() int {
	return max(len(g.Ancestry())-1, 0)
}

// Description returns the innermost group's own description
func (g Group) Description() string {
	a := g.Ancestry()
	if len(a) == 0 {
		return ""
	}
	return a[len(a)-1]
}

// SuiteName derives the effective suite name from the ancestry
func (g Group) SuiteName() string {
	return strings.Join(g.Ancestry(), SuiteNameSeparator)
}

// CapturedError is the condition an engine captured for a non-passing example
type CapturedError struct {
	TypeName  string
	Message   string
	Backtrace []string
}

// Location renders the backtrace as a multi-line string
func (e *CapturedError) Location() string {
	return strings.Join(e.Backtrace, "\n")
}

// Example is the payload of a case event
type Example struct {
	Description     string         // Example's own description
	FullDescription string         // Description including ancestor context
	Status          string         // Engine-determined status marker
	Err             *CapturedError // Captured condition, nil when none
	Rerun           []string       // Optional command line that re-executes the example
}

// QualifiedName returns the full description, falling back to the bare one
func (e Example) QualifiedName() string {
	if e.FullDescription != "" {
		return e.FullDescription
	}
	return e.Description
}

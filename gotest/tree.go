package gotest

import (
	"strings"
	"time"
)

// testNode is one test or subtest of a package, with its buffered output
type testNode struct {
	name     string // Full test name, e.g. TestFoo/bar
	short    string // Name relative to the parent test
	parent   *testNode
	children []*testNode
	action   string // Terminal action, empty while the test has not finished
	output   []string
	start    time.Time
	end      time.Time
}

func (n *testNode) isGroup() bool {
	return len(n.children) > 0
}

// path returns the short names from the top-level test down to this one
func (n *testNode) path() []string {
	var out []string
	for cur := n; cur != nil; cur = cur.parent {
		out = append(out, cur.short)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// failing reports whether the node produces a failed case when replayed
func (n *testNode) failing() bool {
	return n.action == ActionFail || n.action == ""
}

// subtreeFailing reports whether replaying the node or any test below it
// produces a failed case
func (n *testNode) subtreeFailing() bool {
	return n.failing() || anyFailing(n.children)
}

func anyFailing(nodes []*testNode) bool {
	for _, n := range nodes {
		if n.subtreeFailing() {
			return true
		}
	}
	return false
}

// packageNode buffers every event of one package until it finishes
type packageNode struct {
	path   string
	action string
	output []string
	start  time.Time
	end    time.Time

	// failedBuild is the import path reported by a failed build, if any
	failedBuild string

	tests map[string]*testNode // Latest execution of each test name
	roots []*testNode
}

func newPackageNode(path string) *packageNode {
	return &packageNode{
		path:  path,
		tests: make(map[string]*testNode),
	}
}

func (p *packageNode) finished() bool {
	return p.action != ""
}

func (p *packageNode) failing() bool {
	return p.action == ActionFail || p.action == ""
}

// test returns the latest node of a test, creating it on first sight.
// Subtests are attached to the latest run of the closest known ancestor, so
// a subtest whose own name contains a slash is still nested correctly.
func (p *packageNode) test(name string) *testNode {
	if n, ok := p.tests[name]; ok {
		return n
	}
	n := &testNode{name: name, short: name}
	for i := strings.LastIndex(name, "/"); i > 0; i = strings.LastIndex(name[:i], "/") {
		if parent, ok := p.tests[name[:i]]; ok {
			n.parent = parent
			n.short = name[i+1:]
			break
		}
	}
	if n.parent != nil {
		n.parent.children = append(n.parent.children, n)
	} else {
		p.roots = append(p.roots, n)
	}
	p.tests[name] = n
	return n
}

// add records one event of the package
func (p *packageNode) add(e TestEvent) {
	if p.start.IsZero() && !e.Time.IsZero() {
		p.start = e.Time
	}

	if e.IsPackageEvent() {
		switch e.Action {
		case ActionOutput:
			p.output = append(p.output, e.Output)
		case ActionPass, ActionFail, ActionSkip:
			p.action = e.Action
			p.end = e.Time
			if e.FailedBuild != "" {
				p.failedBuild = e.FailedBuild
			}
		}
		return
	}

	if e.Action == ActionRun {
		// A finished test that runs again (-count, retries) is a new execution
		if prev, ok := p.tests[e.Test]; ok && prev.action != "" {
			delete(p.tests, e.Test)
		}
	}
	n := p.test(e.Test)
	switch e.Action {
	case ActionRun:
		n.start = e.Time
	case ActionOutput:
		n.output = append(n.output, e.Output)
	case ActionPass, ActionFail, ActionSkip:
		n.action = e.Action
		n.end = e.Time
		if n.start.IsZero() && e.Elapsed > 0 {
			n.start = e.Time.Add(-time.Duration(e.Elapsed * float64(time.Second)))
		}
	}
	if n.start.IsZero() {
		n.start = e.Time
	}
}

// hasTests reports whether the package ran any test at all
func (p *packageNode) hasTests() bool {
	return len(p.roots) > 0
}

// anyFailing reports whether any test of the package produces a failed case
func (p *packageNode) anyFailing() bool {
	return anyFailing(p.roots)
}

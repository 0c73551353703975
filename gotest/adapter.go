// Package gotest turns the JSON event stream of `go test -json` into report
// lifecycle events.
//
// Packages are the outermost groups. A test with subtests becomes a nested
// group, every other test becomes an example. Since go test interleaves the
// output of packages running in parallel, the events of each package are
// buffered until the package finishes and then replayed in order.
package gotest

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-reporter/types"
)

const DefaultGoBinary = "go"

// Handler receives the replayed lifecycle events. It is implemented by
// *aggregator.Aggregator.
type Handler interface {
	RunStarted(ctx context.Context, count int) error
	GroupEntered(ctx context.Context, group types.Group) error
	CaseStarted(ctx context.Context, ex types.Example) error
	CaseFailed(ctx context.Context, ex types.Example) error
	CasePassed(ctx context.Context, ex types.Example) error
	CasePending(ctx context.Context, ex types.Example) error
	RunFinished(ctx context.Context) error
}

// Option configures an Adapter
type Option func(*Adapter)

// WithClock sets the clock moved to each replayed event's timestamp
func WithClock(c *ReplayClock) Option {
	return func(a *Adapter) { a.clock = c }
}

func WithLogger(l log.Logger) Option {
	return func(a *Adapter) { a.log = l }
}

// WithModulePath makes package suite names relative to the given module
func WithModulePath(path string) Option {
	return func(a *Adapter) { a.modulePath = path }
}

// WithGoBinary sets the go command used in rerun command lines
func WithGoBinary(bin string) Option {
	return func(a *Adapter) { a.goBinary = bin }
}

// WithSkipEmptyPackages drops packages that ran no test instead of
// reporting them as empty suites
func WithSkipEmptyPackages(skip bool) Option {
	return func(a *Adapter) { a.skipEmpty = skip }
}

// Adapter buffers go test events per package and replays finished packages
// into a Handler
type Adapter struct {
	handler    Handler
	clock      *ReplayClock
	log        log.Logger
	modulePath string
	goBinary   string
	skipEmpty  bool

	started     bool
	packages    map[string]*packageNode
	replayed    map[string]bool
	order       []string
	buildOutput map[string][]string
}

func NewAdapter(h Handler, opts ...Option) *Adapter {
	a := &Adapter{
		handler:     h,
		clock:       NewReplayClock(),
		log:         log.NewLogger(log.DiscardHandler()),
		goBinary:    DefaultGoBinary,
		skipEmpty:   true,
		packages:    make(map[string]*packageNode),
		replayed:    make(map[string]bool),
		buildOutput: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Consume reads a complete go test -json stream and replays it. The run is
// finished when the stream ends; packages that never finished are replayed
// last, in the order they first appeared.
func (a *Adapter) Consume(ctx context.Context, r io.Reader) error {
	if err := DecodeEvents(ctx, r, a.log, func(e TestEvent) error {
		return a.Handle(ctx, e)
	}); err != nil {
		return err
	}
	return a.Finish(ctx)
}

// Handle buffers one event, replaying its package once the package finishes
func (a *Adapter) Handle(ctx context.Context, e TestEvent) error {
	if err := a.start(ctx, e); err != nil {
		return err
	}

	switch e.Action {
	case ActionBuildOutput:
		a.buildOutput[e.ImportPath] = append(a.buildOutput[e.ImportPath], e.Output)
		return nil
	case ActionBuildFail:
		a.log.Debug("Build failed", "package", e.ImportPath)
		return nil
	}
	if e.Package == "" {
		return nil
	}
	if a.replayed[e.Package] {
		a.log.Debug("Ignoring event of replayed package", "package", e.Package, "action", e.Action)
		return nil
	}

	pkg, ok := a.packages[e.Package]
	if !ok {
		pkg = newPackageNode(e.Package)
		a.packages[e.Package] = pkg
		a.order = append(a.order, e.Package)
	}
	pkg.add(e)

	if e.IsPackageEvent() && e.IsTerminal() {
		return a.replay(ctx, pkg)
	}
	return nil
}

// Finish replays unfinished packages and ends the run
func (a *Adapter) Finish(ctx context.Context) error {
	if err := a.start(ctx, TestEvent{}); err != nil {
		return err
	}
	for _, path := range a.order {
		pkg, ok := a.packages[path]
		if !ok {
			continue
		}
		a.log.Warn("Package did not finish", "package", path)
		if err := a.replay(ctx, pkg); err != nil {
			return err
		}
	}
	return a.handler.RunFinished(ctx)
}

// start emits run_started before the first event, with the clock already
// at that event's time
func (a *Adapter) start(ctx context.Context, e TestEvent) error {
	if a.started {
		return nil
	}
	a.started = true
	a.clock.Set(e.Time)
	return a.handler.RunStarted(ctx, 0)
}

func (a *Adapter) replay(ctx context.Context, pkg *packageNode) error {
	delete(a.packages, pkg.path)
	a.replayed[pkg.path] = true

	if !pkg.hasTests() && !pkg.failing() && a.skipEmpty {
		a.log.Debug("Skipping package without tests", "package", pkg.path)
		return nil
	}

	name := a.suiteName(pkg.path)
	a.clock.Set(pkg.start)
	if err := a.handler.GroupEntered(ctx, types.FlatGroup(name)); err != nil {
		return err
	}

	if pkg.failing() && !pkg.anyFailing() {
		if err := a.handler.CaseFailed(ctx, a.packageFailure(pkg, name)); err != nil {
			return err
		}
	}

	r := &replayer{adapter: a, pkg: pkg, chain: []string{name}}
	if err := r.leaves(ctx, pkg.roots); err != nil {
		return err
	}
	for _, n := range pkg.roots {
		if n.isGroup() {
			if err := r.group(ctx, n); err != nil {
				return err
			}
		}
	}
	a.clock.Set(pkg.end)
	return nil
}

func (a *Adapter) packageFailure(pkg *packageNode, name string) types.Example {
	output := pkg.output
	status := classify(output)
	switch {
	case pkg.failedBuild != "":
		status = StatusBuildFailed
		output = append(append([]string{}, a.buildOutput[pkg.failedBuild]...), output...)
	case !pkg.finished() && status == types.ExampleStatusFailed:
		status = types.ExampleStatusIncomplete
	}
	a.clock.Set(pkg.end)
	return types.Example{
		Description:     name,
		FullDescription: name,
		Status:          status,
		Err:             capture(status, output, fmt.Sprintf("package %s failed", pkg.path)),
		Rerun:           []string{a.goBinary, "test", pkg.path},
	}
}

// suiteName returns the package path, relative to the module when known
func (a *Adapter) suiteName(pkgPath string) string {
	if a.modulePath == "" {
		return pkgPath
	}
	if pkgPath == a.modulePath {
		return "."
	}
	if rel, ok := strings.CutPrefix(pkgPath, a.modulePath+"/"); ok {
		return "./" + rel
	}
	return pkgPath
}

// replayer emits the tests of one package
type replayer struct {
	adapter *Adapter
	pkg     *packageNode
	chain   []string
}

// group replays a test with subtests: its direct leaves, then its nested
// groups in pre-order
func (r *replayer) group(ctx context.Context, n *testNode) error {
	a := r.adapter
	parent := r.chain
	r.chain = append(append([]string{}, parent...), n.short)
	defer func() { r.chain = parent }()

	a.clock.Set(n.start)
	g := types.NestedGroup(types.OutermostFirst, r.chain...)
	if err := a.handler.GroupEntered(ctx, g); err != nil {
		return err
	}

	// Failures of the test function itself, outside of any subtest
	if n.failing() && !anyFailing(n.children) {
		ex := r.example(n)
		ex.FullDescription = g.SuiteName()
		if err := r.finish(ctx, n, ex); err != nil {
			return err
		}
	}

	if err := r.leaves(ctx, n.children); err != nil {
		return err
	}
	for _, c := range n.children {
		if c.isGroup() {
			if err := r.group(ctx, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// leaves replays the tests without subtests, in run order
func (r *replayer) leaves(ctx context.Context, nodes []*testNode) error {
	for _, n := range nodes {
		if n.isGroup() {
			continue
		}
		ex := r.example(n)
		r.adapter.clock.Set(n.start)
		if err := r.adapter.handler.CaseStarted(ctx, ex); err != nil {
			return err
		}
		if err := r.finish(ctx, n, ex); err != nil {
			return err
		}
	}
	return nil
}

func (r *replayer) finish(ctx context.Context, n *testNode, ex types.Example) error {
	h := r.adapter.handler
	r.adapter.clock.Set(n.end)
	switch n.action {
	case ActionPass:
		ex.Status = types.ExampleStatusPassed
		return h.CasePassed(ctx, ex)
	case ActionSkip:
		ex.Status = types.ExampleStatusPending
		return h.CasePending(ctx, ex)
	}

	output := n.output
	status := classify(output)
	if n.action == "" {
		status = types.ExampleStatusIncomplete
		if classify(r.pkg.output) == types.ExampleStatusTimedOut {
			status = types.ExampleStatusTimedOut
			output = append(append([]string{}, output...), r.pkg.output...)
		}
		r.adapter.clock.Set(r.pkg.end)
	}
	ex.Status = status
	ex.Err = capture(status, output, fmt.Sprintf("%s did not pass", n.name))
	return h.CaseFailed(ctx, ex)
}

func (r *replayer) example(n *testNode) types.Example {
	return types.Example{
		Description:     n.short,
		FullDescription: strings.Join(append(append([]string{}, r.chain...), n.short), types.SuiteNameSeparator),
		Rerun:           []string{r.adapter.goBinary, "test", "-run", RunPattern(n.name), r.pkg.path},
	}
}

// RunPattern returns a -run pattern matching exactly the given test
func RunPattern(testName string) string {
	parts := strings.Split(testName, "/")
	for i, p := range parts {
		parts[i] = "^" + regexp.QuoteMeta(p) + "$"
	}
	return strings.Join(parts, "/")
}

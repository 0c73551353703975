package reporting

import (
	"context"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/infra/op-reporter/aggregator"
	"github.com/ethereum-optimism/infra/op-reporter/types"
)

// Completer is implemented by sinks that produce output once all suites
// have been written
type Completer interface {
	Complete(ctx context.Context) error
}

// MultiSink fans each suite out to every configured sink
type MultiSink struct {
	sinks []aggregator.Sink
}

var _ aggregator.Sink = (*MultiSink)(nil)

func NewMultiSink(sinks ...aggregator.Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Add appends a sink
func (m *MultiSink) Add(s aggregator.Sink) {
	m.sinks = append(m.sinks, s)
}

// WriteReport writes the suite to all sinks concurrently. The suite is
// finished and only read by the sinks.
func (m *MultiSink) WriteReport(ctx context.Context, suite *types.Suite) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range m.sinks {
		g.Go(func() error {
			return s.WriteReport(ctx, suite)
		})
	}
	return g.Wait()
}

// Complete calls Complete on every sink that implements Completer, in order
func (m *MultiSink) Complete(ctx context.Context) error {
	for _, s := range m.sinks {
		c, ok := s.(Completer)
		if !ok {
			continue
		}
		if err := c.Complete(ctx); err != nil {
			return err
		}
	}
	return nil
}

// FilterSink forwards only suites whose name matches the include patterns
// and none of the exclude patterns. Patterns use doublestar glob syntax.
type FilterSink struct {
	next    aggregator.Sink
	include []string
	exclude []string
	log     log.Logger
}

func NewFilterSink(next aggregator.Sink, include, exclude []string, logger log.Logger) (*FilterSink, error) {
	for _, p := range append(append([]string{}, include...), exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid suite pattern %q", p)
		}
	}
	return &FilterSink{
		next:    next,
		include: include,
		exclude: exclude,
		log:     logger,
	}, nil
}

func (f *FilterSink) WriteReport(ctx context.Context, suite *types.Suite) error {
	if !f.Matches(suite.Name) {
		f.log.Debug("Suite filtered out", "suite", suite.Name)
		return nil
	}
	return f.next.WriteReport(ctx, suite)
}

// Complete forwards completion to the wrapped sink
func (f *FilterSink) Complete(ctx context.Context) error {
	if c, ok := f.next.(Completer); ok {
		return c.Complete(ctx)
	}
	return nil
}

// Matches reports whether a suite name passes the filter
func (f *FilterSink) Matches(name string) bool {
	for _, p := range f.exclude {
		if ok, _ := doublestar.Match(p, name); ok {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, p := range f.include {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// CollectingSink keeps every suite in memory, in flush order
type CollectingSink struct {
	suites []*types.Suite
}

func NewCollectingSink() *CollectingSink {
	return &CollectingSink{suites: make([]*types.Suite, 0)}
}

func (c *CollectingSink) WriteReport(_ context.Context, suite *types.Suite) error {
	c.suites = append(c.suites, suite)
	return nil
}

func (c *CollectingSink) Suites() []*types.Suite {
	return c.suites
}

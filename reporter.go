package reporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-reporter/aggregator"
	"github.com/ethereum-optimism/infra/op-reporter/gotest"
	"github.com/ethereum-optimism/infra/op-reporter/metrics"
	"github.com/ethereum-optimism/infra/op-reporter/reporting"
	"github.com/ethereum-optimism/infra/op-reporter/types"
	"github.com/ethereum-optimism/infra/op-reporter/ui"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

var _ cliapp.Lifecycle = &Reporter{}

// Result is the outcome of one reporting run
type Result struct {
	RunID     string
	Summary   aggregator.Summary
	Suites    []*types.Suite
	Reports   []string // Written report files
	ReportDir string
}

// Status is "pass" when no case failed, "fail" otherwise
func (r *Result) Status() string {
	if r.Summary.OK() {
		return "pass"
	}
	return "fail"
}

func (r *Result) String() string {
	return fmt.Sprintf("Run %s: %s, %d suites, %d cases (%d passed, %d failed, %d skipped) in %s",
		r.RunID, r.Status(), r.Summary.Suites, r.Summary.Cases,
		r.Summary.Passed, r.Summary.Failed, r.Summary.Skipped,
		reporting.FormatDuration(r.Summary.Duration))
}

// Option configures a Reporter
type Option func(*Reporter)

// WithOutput sets where the display and the results table are written
func WithOutput(w io.Writer) Option {
	return func(r *Reporter) { r.stdout = w }
}

// WithStdin sets the reader used for the "-" input
func WithStdin(rd io.Reader) Option {
	return func(r *Reporter) { r.stdin = rd }
}

// WithCmdBuilder sets how the go test command is created
func WithCmdBuilder(b gotest.CmdBuilder) Option {
	return func(r *Reporter) { r.cmdBuilder = b }
}

// Reporter runs go test, or reads a recorded stream, and writes the reports.
// It implements cliapp.Lifecycle and asks the app to shut down when done.
type Reporter struct {
	config  *Config
	version string
	log     log.Logger

	stdout     io.Writer
	stdin      io.Reader
	cmdBuilder gotest.CmdBuilder
	formatter  ResultFormatter

	running          atomic.Bool
	shutdownCallback func(error)
	result           *Result
}

// New creates a Reporter. shutdownCallback is invoked once a successful run
// completes.
func New(config *Config, version string, shutdownCallback func(error), opts ...Option) (*Reporter, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	logger := config.Log
	if logger == nil {
		logger = log.NewLogger(log.DiscardHandler())
	}
	r := &Reporter{
		config:           config,
		version:          version,
		log:              logger,
		stdout:           os.Stdout,
		stdin:            os.Stdin,
		shutdownCallback: shutdownCallback,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.formatter = NewConsoleResultFormatter(logger, r.stdout)
	return r, nil
}

// Start runs the reporter once. It returns a TestFailureError when any case
// failed and a RuntimeError when the run could not be reported.
func (r *Reporter) Start(ctx context.Context) error {
	r.running.Store(true)
	r.log.Info("Starting op-reporter", "version", r.version)

	result, err := r.Run(ctx)
	if err != nil {
		return err
	}

	if r.config.Display != ui.DisplayNone {
		if err := r.formatter.FormatResults(result); err != nil {
			r.log.Error("Error formatting results", "error", err)
		}
	}

	if !result.Summary.OK() {
		return NewTestFailureError(result.String())
	}
	if r.shutdownCallback != nil {
		go r.shutdownCallback(nil)
	}
	return nil
}

func (r *Reporter) Stop(ctx context.Context) error {
	if !r.running.Load() {
		return nil
	}
	r.log.Info("Stopping op-reporter")
	r.running.Store(false)
	return nil
}

func (r *Reporter) Stopped() bool {
	return !r.running.Load()
}

// Result returns the result of the last run, nil before any run finished
func (r *Reporter) Result() *Result {
	return r.result
}

// Run aggregates one event stream into reports
func (r *Reporter) Run(ctx context.Context) (*Result, error) {
	runID := uuid.New().String()
	ctx, span := otel.Tracer("op-reporter").Start(ctx, "run")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", runID))

	logger := r.log.New("run_id", runID)
	logger.Info("Starting run", "input", r.inputName(), "reportDir", r.config.ReportDir)

	junit, err := reporting.NewJUnitSink(r.config.ReportDir, r.config.ReportPrefix, r.config.KeepReports, logger)
	if err != nil {
		return nil, r.fail(span, "report_dir", err)
	}
	filter, err := reporting.NewFilterSink(junit, r.config.Include, r.config.Exclude, logger)
	if err != nil {
		return nil, r.fail(span, "config", err)
	}
	collected := reporting.NewCollectingSink()
	sink := reporting.NewMultiSink(filter, collected, metrics.NewSink(runID))
	if r.config.SummaryFile != "" {
		sink.Add(reporting.NewTextSummarySink(r.config.SummaryFile, true))
	}

	display, err := ui.NewDisplay(r.config.Display, r.stdout, r.config.PendingMarker)
	if err != nil {
		return nil, r.fail(span, "config", err)
	}

	clock := gotest.NewReplayClock()
	agg := aggregator.New(sink,
		aggregator.WithDisplay(display),
		aggregator.WithLogger(logger),
		aggregator.WithClock(clock.Now),
		aggregator.WithPendingMarker(r.config.PendingMarker),
	)
	adapter := gotest.NewAdapter(agg,
		gotest.WithClock(clock),
		gotest.WithLogger(logger),
		gotest.WithModulePath(r.config.ModulePath),
		gotest.WithGoBinary(r.config.GoBinary),
		gotest.WithSkipEmptyPackages(!r.config.IncludeEmptyPackages),
	)

	if err := r.consumeInput(ctx, func(rd io.Reader) error {
		return adapter.Consume(ctx, rd)
	}); err != nil {
		return nil, r.fail(span, errorLabel(err), err)
	}
	if err := sink.Complete(ctx); err != nil {
		return nil, r.fail(span, "sink", err)
	}

	result := &Result{
		RunID:     runID,
		Summary:   agg.Summary(),
		Suites:    collected.Suites(),
		Reports:   junit.Written(),
		ReportDir: r.config.ReportDir,
	}
	r.result = result

	metrics.RecordRun(runID, result.Status(), result.Summary.Duration)
	exporter := &metrics.Exporter{
		TextfilePath: r.config.MetricsTextfile,
		PushURL:      r.config.MetricsPushURL,
	}
	if exporter.Enabled() {
		if err := exporter.Export(ctx); err != nil {
			metrics.RecordErrorDetails("metrics_export", err)
			logger.Error("Failed to export metrics", "error", err)
		}
	}

	span.SetAttributes(
		attribute.Int("suites", result.Summary.Suites),
		attribute.Int("cases", result.Summary.Cases),
		attribute.Int("failed", result.Summary.Failed),
	)
	logger.Info("Run finished", "status", result.Status(), "suites", result.Summary.Suites,
		"cases", result.Summary.Cases, "failed", result.Summary.Failed, "reports", len(result.Reports))
	return result, nil
}

// consumeInput passes the event stream to consume: the input file, stdin, or
// the output of go test. The stream is copied to RawOutput when set.
func (r *Reporter) consumeInput(ctx context.Context, consume func(io.Reader) error) error {
	if r.config.RawOutput != "" {
		raw, err := os.Create(r.config.RawOutput)
		if err != nil {
			return fmt.Errorf("failed to create raw output file: %w", err)
		}
		defer raw.Close()
		next := consume
		consume = func(rd io.Reader) error {
			return next(io.TeeReader(rd, raw))
		}
	}

	switch r.config.Input {
	case "":
		executor, err := gotest.NewExecutor(r.config.Dir, r.config.GoBinary, r.config.TestEnv, r.cmdBuilder, r.log)
		if err != nil {
			return err
		}
		return executor.Run(ctx, r.config.Packages, r.config.GoTestFlags, consume)
	case StdinInput:
		return consume(r.stdin)
	default:
		f, err := os.Open(r.config.Input)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		return consume(f)
	}
}

func (r *Reporter) inputName() string {
	switch r.config.Input {
	case "":
		return "go test"
	case StdinInput:
		return "stdin"
	default:
		return r.config.Input
	}
}

// fail records a run error and wraps it as a RuntimeError
func (r *Reporter) fail(span trace.Span, label string, err error) error {
	metrics.RecordErrorDetails(label, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return NewRuntimeError(err)
}

func errorLabel(err error) string {
	switch {
	case aggregator.IsProtocolError(err):
		return "protocol"
	case aggregator.IsSinkError(err):
		return "sink"
	default:
		return "input"
	}
}

package metrics

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/ethereum-optimism/infra/op-reporter/types"
)

const (
	MetricsNamespace = "reporter"

	// PushJobName is the pushgateway job the metrics are pushed under. Run
	// scoped series carry their own run_id label.
	PushJobName = "op_reporter"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	suitesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suites_total",
		Help:      "Count of flushed report suites",
	}, []string{
		"run_id",
	})

	casesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "cases_total",
		Help:      "Count of reported cases by status",
	}, []string{
		"run_id",
		"status",
	})

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "failures_total",
		Help:      "Count of captured failures by kind",
	}, []string{
		"run_id",
		"kind",
	})

	suiteDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_duration_seconds",
		Help:      "Duration of a flushed suite",
	}, []string{
		"run_id",
		"suite",
	})

	runResult = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_result",
		Help:      "Result of a run, set to 1 for the run's result label",
	}, []string{
		"run_id",
		"result",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of a run",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordSuite records the totals of one flushed suite
func RecordSuite(runID string, suite *types.Suite) {
	if Debug {
		log.Debug("metric inc",
			"m", "suites_total",
			"run_id", runID,
			"suite", suite.Name,
			"cases", suite.Tests())
	}
	suitesTotal.WithLabelValues(runID).Inc()
	for _, c := range suite.Cases {
		casesTotal.WithLabelValues(runID, string(c.Status)).Inc()
	}
	failuresTotal.WithLabelValues(runID, "assertion").Add(float64(suite.Failures()))
	failuresTotal.WithLabelValues(runID, "error").Add(float64(suite.Errors()))
	suiteDuration.WithLabelValues(runID, suite.Name).Set(suite.Duration().Seconds())
}

// RecordRun records the overall result of a run
func RecordRun(runID string, result string, duration time.Duration) {
	runResult.WithLabelValues(runID, result).Set(1)
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

// Collectors returns the run scoped collectors, for registering them with a
// registry other than the default one
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{suitesTotal, casesTotal, failuresTotal, suiteDuration, runResult, runDuration}
}

// Sink records every flushed suite under a run ID
type Sink struct {
	runID string
}

func NewSink(runID string) *Sink {
	return &Sink{runID: runID}
}

func (s *Sink) WriteReport(_ context.Context, suite *types.Suite) error {
	RecordSuite(s.runID, suite)
	return nil
}

// Exporter writes the gathered metrics once the run is done, to a node
// exporter textfile and/or a pushgateway
type Exporter struct {
	TextfilePath string
	PushURL      string
	Gatherer     prometheus.Gatherer
}

// Enabled reports whether any export target is configured
func (e *Exporter) Enabled() bool {
	return e.TextfilePath != "" || e.PushURL != ""
}

// Export writes to every configured target and joins the errors
func (e *Exporter) Export(ctx context.Context) error {
	g := e.Gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}

	var errs []error
	if e.TextfilePath != "" {
		if err := prometheus.WriteToTextfile(e.TextfilePath, g); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics textfile %s: %w", e.TextfilePath, err))
		}
	}
	if e.PushURL != "" {
		err := push.New(e.PushURL, PushJobName).
			Gatherer(g).
			PushContext(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to push metrics to %s: %w", e.PushURL, err))
		}
	}
	return errors.Join(errs...)
}

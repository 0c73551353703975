package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-reporter/exitcodes"
	"github.com/ethereum-optimism/infra/op-reporter/gotest"
	"github.com/ethereum-optimism/infra/op-reporter/ui"
)

const testModule = "example.com/m"

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// stream renders a go test -json stream for package ./pkg of testModule
func stream(t *testing.T, failing bool) []byte {
	t.Helper()
	pkg := testModule + "/pkg"
	at := func(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }
	events := []gotest.TestEvent{
		{Time: at(0), Action: gotest.ActionStart, Package: pkg},
		{Time: at(1), Action: gotest.ActionRun, Package: pkg, Test: "TestOK"},
		{Time: at(5), Action: gotest.ActionPass, Package: pkg, Test: "TestOK", Elapsed: 0.004},
		{Time: at(6), Action: gotest.ActionRun, Package: pkg, Test: "TestSkipped"},
		{Time: at(7), Action: gotest.ActionSkip, Package: pkg, Test: "TestSkipped"},
	}
	final := gotest.ActionPass
	if failing {
		final = gotest.ActionFail
		events = append(events,
			gotest.TestEvent{Time: at(8), Action: gotest.ActionRun, Package: pkg, Test: "TestBad"},
			gotest.TestEvent{Time: at(9), Action: gotest.ActionOutput, Package: pkg, Test: "TestBad", Output: "    bad_test.go:10: boom\n"},
			gotest.TestEvent{Time: at(10), Action: gotest.ActionFail, Package: pkg, Test: "TestBad", Elapsed: 0.002},
		)
	}
	events = append(events, gotest.TestEvent{Time: at(20), Action: final, Package: pkg, Elapsed: 0.02})

	var buf bytes.Buffer
	for _, e := range events {
		line, err := json.Marshal(e)
		require.NoError(t, err)
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	return &Config{
		Dir:           dir,
		GoBinary:      "go",
		ModulePath:    testModule,
		ReportDir:     filepath.Join(dir, "reports"),
		ReportPrefix:  "SPEC",
		Display:       ui.DisplayNone,
		PendingMarker: " (PENDING)",
		Log:           log.NewLogger(log.DiscardHandler()),
	}
}

func writeInput(t *testing.T, cfg *Config, data []byte) {
	t.Helper()
	cfg.Input = filepath.Join(cfg.Dir, "test.json")
	require.NoError(t, os.WriteFile(cfg.Input, data, 0644))
}

func TestReporter_InputFileWithFailures(t *testing.T) {
	cfg := testConfig(t)
	input := stream(t, true)
	writeInput(t, cfg, input)
	cfg.SummaryFile = filepath.Join(cfg.Dir, "summary.txt")
	cfg.RawOutput = filepath.Join(cfg.Dir, "raw.json")
	cfg.MetricsTextfile = filepath.Join(cfg.Dir, "reporter.prom")

	r, err := New(cfg, "test", nil)
	require.NoError(t, err)

	err = r.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err))
	assert.Equal(t, exitcodes.TestFailure, ExitCode(err))

	result := r.Result()
	require.NotNil(t, result)
	assert.Equal(t, "fail", result.Status())
	assert.Equal(t, 1, result.Summary.Suites)
	assert.Equal(t, 3, result.Summary.Cases)
	assert.Equal(t, 1, result.Summary.Passed)
	assert.Equal(t, 1, result.Summary.Failed)
	assert.Equal(t, 1, result.Summary.Skipped)
	assert.Equal(t, 1, result.Summary.Failures)

	require.Len(t, result.Suites, 1)
	suite := result.Suites[0]
	assert.Equal(t, "./pkg", suite.Name)
	names := make([]string, 0, len(suite.Cases))
	for _, c := range suite.Cases {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"TestOK", "TestSkipped (PENDING)", "TestBad"}, names)

	require.Len(t, result.Reports, 1)
	assert.Equal(t, "SPEC--pkg.xml", filepath.Base(result.Reports[0]))
	report, err := os.ReadFile(result.Reports[0])
	require.NoError(t, err)
	assert.Contains(t, string(report), `tests="3"`)
	assert.Contains(t, string(report), `failures="1"`)
	assert.Contains(t, string(report), "boom")

	summary, err := os.ReadFile(cfg.SummaryFile)
	require.NoError(t, err)
	assert.Contains(t, string(summary), "./pkg")

	raw, err := os.ReadFile(cfg.RawOutput)
	require.NoError(t, err)
	assert.Equal(t, input, raw)

	prom, err := os.ReadFile(cfg.MetricsTextfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "reporter_cases_total")
}

func TestReporter_StdinPassing(t *testing.T) {
	cfg := testConfig(t)
	cfg.Input = StdinInput
	cfg.Display = ui.DisplayProgress

	var out bytes.Buffer
	shutdown := make(chan error, 1)
	r, err := New(cfg, "test", func(err error) { shutdown <- err },
		WithStdin(bytes.NewReader(stream(t, false))),
		WithOutput(&out),
	)
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background()))
	select {
	case err := <-shutdown:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown callback was not invoked")
	}

	assert.Equal(t, "pass", r.Result().Status())
	assert.Contains(t, out.String(), "2 examples, 0 failures, 1 pending")
	assert.Contains(t, out.String(), r.Result().String())

	require.NoError(t, r.Stop(context.Background()))
	assert.True(t, r.Stopped())
}

func TestReporter_Filtered(t *testing.T) {
	cfg := testConfig(t)
	writeInput(t, cfg, stream(t, false))
	cfg.Exclude = []string{"./pkg"}

	r, err := New(cfg, "test", nil)
	require.NoError(t, err)
	result, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, result.Reports)
	assert.Len(t, result.Suites, 1)
	assert.Equal(t, 2, result.Summary.Cases)
}

func TestReporter_RuntimeErrors(t *testing.T) {
	t.Run("missing input", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Input = filepath.Join(cfg.Dir, "missing.json")

		r, err := New(cfg, "test", nil)
		require.NoError(t, err)
		err = r.Start(context.Background())
		require.Error(t, err)
		assert.True(t, IsRuntimeError(err))
		assert.Equal(t, exitcodes.RuntimeErr, ExitCode(err))
	})

	t.Run("report dir is a file", func(t *testing.T) {
		cfg := testConfig(t)
		writeInput(t, cfg, stream(t, false))
		require.NoError(t, os.WriteFile(cfg.ReportDir, []byte("x"), 0644))

		r, err := New(cfg, "test", nil)
		require.NoError(t, err)
		err = r.Start(context.Background())
		require.Error(t, err)
		assert.True(t, IsRuntimeError(err))
	})

	t.Run("invalid pattern", func(t *testing.T) {
		cfg := testConfig(t)
		writeInput(t, cfg, stream(t, false))
		cfg.Include = []string{"[unclosed"}

		r, err := New(cfg, "test", nil)
		require.NoError(t, err)
		_, err = r.Run(context.Background())
		assert.True(t, IsRuntimeError(err))
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := New(nil, "test", nil)
		require.Error(t, err)
	})
}

// TestHelperProcess stands in for the go binary when run by helperCmdBuilder
// and prints a failing stream.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	fmt.Fprint(os.Stdout, string(stream(t, true)))
	os.Exit(1)
}

func helperCmdBuilder(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
	cs := append([]string{"-test.run=^TestHelperProcess$", "--", name}, arg...)
	return exec.CommandContext(ctx, os.Args[0], cs...), func() {}
}

func TestReporter_RunsGoTest(t *testing.T) {
	cfg := testConfig(t)
	cfg.Packages = []string{"./pkg/..."}
	cfg.TestEnv = []string{"GO_WANT_HELPER_PROCESS=1"}

	r, err := New(cfg, "test", nil, WithCmdBuilder(helperCmdBuilder))
	require.NoError(t, err)

	err = r.Start(context.Background())
	require.Error(t, err)
	require.True(t, IsTestFailureError(err), "unexpected error: %v", err)
	assert.True(t, strings.Contains(err.Error(), "1 failed"))
	assert.Len(t, r.Result().Reports, 1)
}

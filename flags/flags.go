package flags

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

const EnvVarPrefix = "OP_REPORTER"

// DefaultEnvFile is loaded before the flags are parsed when present
const DefaultEnvFile = ".env"

var (
	Input = &cli.StringFlag{
		Name:    "input",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "INPUT"),
		Usage:   "Read go test -json output from this file ('-' for stdin) instead of running go test",
	}
	Dir = &cli.StringFlag{
		Name:    "dir",
		Value:   ".",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DIR"),
		Usage:   "Directory in which go test is run",
	}
	ConfigFile = &cli.StringFlag{
		Name:    "config",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONFIG"),
		Usage:   "Path to a YAML config file (eg. 'reporter.yaml'). Flags override its values.",
	}
	ReportDir = &cli.StringFlag{
		Name:    "report-dir",
		Value:   "reports",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORT_DIR"),
		Usage:   "Directory to write JUnit XML reports to",
	}
	ReportPrefix = &cli.StringFlag{
		Name:    "report-prefix",
		Value:   "SPEC",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORT_PREFIX"),
		Usage:   "Filename prefix of report files",
	}
	KeepReports = &cli.BoolFlag{
		Name:    "keep-reports",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "KEEP_REPORTS"),
		Usage:   "Keep report files left over from previous runs",
	}
	Display = &cli.StringFlag{
		Name:    "display",
		Value:   "progress",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DISPLAY"),
		Usage:   "Console display: 'progress', 'doc' or 'none'",
	}
	PendingMarker = &cli.StringFlag{
		Name:    "pending-marker",
		Value:   " (PENDING)",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PENDING_MARKER"),
		Usage:   "Suffix appended to the name of pending (skipped) cases",
	}
	Include = &cli.StringSliceFlag{
		Name:    "include",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "INCLUDE"),
		Usage:   "Only write reports for suites matching these glob patterns (eg. './pkg/**')",
	}
	Exclude = &cli.StringSliceFlag{
		Name:    "exclude",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "EXCLUDE"),
		Usage:   "Do not write reports for suites matching these glob patterns",
	}
	GoBinary = &cli.StringFlag{
		Name:    "go-binary",
		Value:   "go",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "GO_BINARY"),
		Usage:   "Path to the Go binary to use for running tests",
	}
	GoTestFlags = &cli.StringSliceFlag{
		Name:    "go-test-flags",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "GO_TEST_FLAGS"),
		Usage:   "Extra flags passed to go test (eg. '-race,-count=1')",
	}
	TestEnvFile = &cli.StringFlag{
		Name:    "test-env-file",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEST_ENV_FILE"),
		Usage:   "Dotenv file whose variables are added to the go test environment",
	}
	ModuleFile = &cli.StringFlag{
		Name:    "module-file",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MODULE_FILE"),
		Usage:   "go.mod used to name suites relative to the module (defaults to <dir>/go.mod when present)",
	}
	IncludeEmptyPackages = &cli.BoolFlag{
		Name:    "include-empty-packages",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "INCLUDE_EMPTY_PACKAGES"),
		Usage:   "Write empty reports for packages that ran no tests",
	}
	SummaryFile = &cli.StringFlag{
		Name:    "summary-file",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SUMMARY_FILE"),
		Usage:   "Write a plain-text summary table to this file",
	}
	RawOutput = &cli.StringFlag{
		Name:    "raw-output",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RAW_OUTPUT"),
		Usage:   "Save the raw go test -json stream to this file",
	}
	MetricsTextfile = &cli.StringFlag{
		Name:    "metrics-textfile",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "METRICS_TEXTFILE"),
		Usage:   "Write Prometheus metrics to this node exporter textfile after the run",
	}
	MetricsPushURL = &cli.StringFlag{
		Name:    "metrics-push-url",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "METRICS_PUSH_URL"),
		Usage:   "Push Prometheus metrics to this pushgateway after the run",
	}
)

var requiredFlags = []cli.Flag{}

var optionalFlags = []cli.Flag{
	Input,
	Dir,
	ConfigFile,
	ReportDir,
	ReportPrefix,
	KeepReports,
	Display,
	PendingMarker,
	Include,
	Exclude,
	GoBinary,
	GoTestFlags,
	TestEnvFile,
	ModuleFile,
	IncludeEmptyPackages,
	SummaryFile,
	RawOutput,
	MetricsTextfile,
	MetricsPushURL,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}

// LoadEnvFiles loads the dotenv files named by OP_REPORTER_ENV_FILE
// (comma-separated), or .env when it exists, so their values can back the
// flags. Variables already set in the environment win.
func LoadEnvFiles() error {
	var files []string
	for _, f := range strings.Split(os.Getenv(EnvVarPrefix+"_ENV_FILE"), ",") {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		if _, err := os.Stat(DefaultEnvFile); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		files = []string{DefaultEnvFile}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env files %s: %w", strings.Join(files, ","), err)
	}
	return nil
}

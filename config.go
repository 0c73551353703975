package reporter

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/ethereum/go-ethereum/log"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-reporter/flags"
	"github.com/ethereum-optimism/infra/op-reporter/gotest"
	"github.com/ethereum-optimism/infra/op-reporter/schema"
	"github.com/ethereum-optimism/infra/op-reporter/ui"
)

// StdinInput reads the go test -json stream from standard input
const StdinInput = "-"

// Config holds the application configuration
type Config struct {
	Input                string   // go test -json file, "-" for stdin, empty to run go test
	Dir                  string   // Working directory of go test
	Packages             []string // Packages passed to go test
	GoBinary             string
	GoTestFlags          []string // Extra go test flags
	TestEnv              []string // KEY=VALUE pairs added to the go test environment
	ModulePath           string   // Module that suite names are made relative to
	ReportDir            string
	ReportPrefix         string
	KeepReports          bool
	Display              string
	PendingMarker        string
	Include              []string // Suite name patterns to report
	Exclude              []string // Suite name patterns not to report
	IncludeEmptyPackages bool
	SummaryFile          string
	RawOutput            string
	MetricsTextfile      string
	MetricsPushURL       string
	Log                  log.Logger
}

// FileConfig is the YAML config file. Unset values fall back to the flags.
type FileConfig struct {
	Dir                  string        `yaml:"dir"`
	ReportDir            string        `yaml:"report_dir"`
	ReportPrefix         string        `yaml:"report_prefix"`
	KeepReports          *bool         `yaml:"keep_reports"`
	Display              string        `yaml:"display"`
	PendingMarker        *string       `yaml:"pending_marker"`
	Include              []string      `yaml:"include"`
	Exclude              []string      `yaml:"exclude"`
	GoBinary             string        `yaml:"go_binary"`
	GoTestFlags          []string      `yaml:"go_test_flags"`
	Packages             []string      `yaml:"packages"`
	TestEnvFile          string        `yaml:"test_env_file"`
	ModuleFile           string        `yaml:"module_file"`
	IncludeEmptyPackages *bool         `yaml:"include_empty_packages"`
	SummaryFile          string        `yaml:"summary_file"`
	RawOutput            string        `yaml:"raw_output"`
	Metrics              MetricsConfig `yaml:"metrics"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
	PushURL  string `yaml:"push_url"`
}

// LoadFileConfig reads a YAML config file and validates it against the
// embedded schema
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if doc == nil {
		return &FileConfig{}, nil
	}
	if err := schema.ValidateValue(doc); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return &cfg, nil
}

// NewConfig creates a new Config from cli context. Positional arguments are
// the packages to test.
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	file := &FileConfig{}
	if path := ctx.String(flags.ConfigFile.Name); path != "" {
		var err error
		if file, err = LoadFileConfig(path); err != nil {
			return nil, err
		}
	}

	input := ctx.String(flags.Input.Name)
	packages := ctx.Args().Slice()
	if len(packages) == 0 {
		packages = file.Packages
	}
	if input != "" && ctx.Args().Len() > 0 {
		return nil, errors.New("packages cannot be given together with --input")
	}
	if input != "" && input != StdinInput {
		abs, err := filepath.Abs(input)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for input '%s': %w", input, err)
		}
		input = abs
	}

	dir, err := filepath.Abs(stringValue(ctx, flags.Dir, file.Dir))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for directory: %w", err)
	}
	reportDir, err := filepath.Abs(stringValue(ctx, flags.ReportDir, file.ReportDir))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for report directory: %w", err)
	}

	display := stringValue(ctx, flags.Display, file.Display)
	if !slices.Contains(ui.DisplayNames, display) {
		return nil, fmt.Errorf("invalid display: %s. Must be one of: %v", display, ui.DisplayNames)
	}

	pendingMarker := ctx.String(flags.PendingMarker.Name)
	if !ctx.IsSet(flags.PendingMarker.Name) && file.PendingMarker != nil {
		pendingMarker = *file.PendingMarker
	}

	modulePath, err := resolveModulePath(stringValue(ctx, flags.ModuleFile, file.ModuleFile), dir, input == "")
	if err != nil {
		return nil, err
	}

	var testEnv []string
	if envFile := stringValue(ctx, flags.TestEnvFile, file.TestEnvFile); envFile != "" {
		if testEnv, err = readEnvFile(envFile); err != nil {
			return nil, err
		}
	}

	return &Config{
		Input:                input,
		Dir:                  dir,
		Packages:             packages,
		GoBinary:             stringValue(ctx, flags.GoBinary, file.GoBinary),
		GoTestFlags:          sliceValue(ctx, flags.GoTestFlags, file.GoTestFlags),
		TestEnv:              testEnv,
		ModulePath:           modulePath,
		ReportDir:            reportDir,
		ReportPrefix:         stringValue(ctx, flags.ReportPrefix, file.ReportPrefix),
		KeepReports:          boolValue(ctx, flags.KeepReports, file.KeepReports),
		Display:              display,
		PendingMarker:        pendingMarker,
		Include:              sliceValue(ctx, flags.Include, file.Include),
		Exclude:              sliceValue(ctx, flags.Exclude, file.Exclude),
		IncludeEmptyPackages: boolValue(ctx, flags.IncludeEmptyPackages, file.IncludeEmptyPackages),
		SummaryFile:          stringValue(ctx, flags.SummaryFile, file.SummaryFile),
		RawOutput:            stringValue(ctx, flags.RawOutput, file.RawOutput),
		MetricsTextfile:      stringValue(ctx, flags.MetricsTextfile, file.Metrics.Textfile),
		MetricsPushURL:       stringValue(ctx, flags.MetricsPushURL, file.Metrics.PushURL),
		Log:                  log,
	}, nil
}

// stringValue prefers an explicitly set flag, then the file value, then the flag default
func stringValue(ctx *cli.Context, f *cli.StringFlag, fileValue string) string {
	if ctx.IsSet(f.Name) || fileValue == "" {
		return ctx.String(f.Name)
	}
	return fileValue
}

func boolValue(ctx *cli.Context, f *cli.BoolFlag, fileValue *bool) bool {
	if ctx.IsSet(f.Name) || fileValue == nil {
		return ctx.Bool(f.Name)
	}
	return *fileValue
}

func sliceValue(ctx *cli.Context, f *cli.StringSliceFlag, fileValue []string) []string {
	if ctx.IsSet(f.Name) || len(fileValue) == 0 {
		return ctx.StringSlice(f.Name)
	}
	return fileValue
}

// resolveModulePath reads the module path from moduleFile, or from the go.mod
// in dir when running go test there
func resolveModulePath(moduleFile, dir string, runsGoTest bool) (string, error) {
	if moduleFile == "" {
		if !runsGoTest {
			return "", nil
		}
		moduleFile = filepath.Join(dir, "go.mod")
		if _, err := os.Stat(moduleFile); errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
	}
	return gotest.ModulePath(moduleFile)
}

// readEnvFile returns the variables of a dotenv file as sorted KEY=VALUE pairs
func readEnvFile(path string) ([]string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read test env file %s: %w", path, err)
	}
	env := make([]string, 0, len(vars))
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env, nil
}

package gotest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// goTestFailedExitCode is what go test exits with when tests failed. The
// failures end up in the reports, so it is not an execution error.
const goTestFailedExitCode = 1

// CmdBuilder creates the command for the go binary and a cleanup function
type CmdBuilder func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func())

// DefaultCmdBuilder runs the command directly, bound to ctx
func DefaultCmdBuilder(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
	return exec.CommandContext(ctx, name, arg...), func() {}
}

// Executor runs `go test -json` and streams its output
type Executor struct {
	dir        string
	goBinary   string
	env        []string
	cmdBuilder CmdBuilder
	log        log.Logger
}

// NewExecutor creates an executor running go test in dir. env is appended to
// the current environment.
func NewExecutor(dir, goBinary string, env []string, cmdBuilder CmdBuilder, logger log.Logger) (*Executor, error) {
	if dir == "" {
		return nil, errors.New("working directory cannot be empty")
	}
	if goBinary == "" {
		goBinary = DefaultGoBinary
	}
	if cmdBuilder == nil {
		cmdBuilder = DefaultCmdBuilder
	}
	return &Executor{
		dir:        dir,
		goBinary:   goBinary,
		env:        env,
		cmdBuilder: cmdBuilder,
		log:        logger,
	}, nil
}

// Args returns the go test arguments for the given packages and extra flags
func (e *Executor) Args(packages, testFlags []string) []string {
	if len(packages) == 0 {
		packages = []string{"./..."}
	}
	args := []string{"test", "-json"}
	args = append(args, testFlags...)
	return append(args, packages...)
}

// Run executes go test and passes its stdout to consume. Stdout is drained
// if consume returns early so the process can exit.
func (e *Executor) Run(ctx context.Context, packages, testFlags []string, consume func(io.Reader) error) error {
	args := e.Args(packages, testFlags)
	cmd, cleanup := e.cmdBuilder(ctx, e.goBinary, args...)
	defer cleanup()

	cmd.Dir = e.dir
	cmd.Env = append(os.Environ(), e.env...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open go test output: %w", err)
	}

	e.log.Info("Running go test", "dir", e.dir, "args", strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", e.goBinary, err)
	}

	consumeErr := consume(stdout)
	if consumeErr != nil {
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()

	if s := strings.TrimSpace(stderr.String()); s != "" {
		e.log.Warn("go test wrote to stderr", "stderr", s)
	}
	if consumeErr != nil {
		return consumeErr
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) && exitErr.ExitCode() == goTestFailedExitCode {
			e.log.Debug("go test reported failures")
			return nil
		}
		return fmt.Errorf("go test failed: %w", waitErr)
	}
	return nil
}

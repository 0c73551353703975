package gotest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess stands in for the go binary when run by helperCmdBuilder.
// It prints its arguments as an output event and exits with HELPER_EXIT_CODE.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	for _, e := range []TestEvent{
		{Action: ActionStart, Package: "p"},
		{Action: ActionOutput, Package: "p", Output: strings.Join(args, " ")},
		{Action: ActionPass, Package: "p"},
	} {
		line, _ := json.Marshal(e)
		fmt.Fprintln(os.Stdout, string(line))
	}
	fmt.Fprintln(os.Stderr, "helper stderr")
	code, _ := strconv.Atoi(os.Getenv("HELPER_EXIT_CODE"))
	os.Exit(code)
}

func helperCmdBuilder(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
	cs := append([]string{"-test.run=^TestHelperProcess$", "--", name}, arg...)
	return exec.CommandContext(ctx, os.Args[0], cs...), func() {}
}

func newHelperExecutor(t *testing.T, exitCode int) *Executor {
	t.Helper()
	env := []string{"GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("HELPER_EXIT_CODE=%d", exitCode)}
	e, err := NewExecutor(t.TempDir(), "go", env, helperCmdBuilder, log.NewLogger(log.DiscardHandler()))
	require.NoError(t, err)
	return e
}

func collectEvents(events *[]TestEvent) func(io.Reader) error {
	return func(r io.Reader) error {
		return DecodeEvents(context.Background(), r, log.NewLogger(log.DiscardHandler()), func(e TestEvent) error {
			*events = append(*events, e)
			return nil
		})
	}
}

func TestNewExecutor(t *testing.T) {
	_, err := NewExecutor("", "go", nil, nil, log.NewLogger(log.DiscardHandler()))
	assert.Error(t, err)

	e, err := NewExecutor("/tmp", "", nil, nil, log.NewLogger(log.DiscardHandler()))
	require.NoError(t, err)
	assert.Equal(t, DefaultGoBinary, e.goBinary)
}

func TestExecutor_Args(t *testing.T) {
	e, err := NewExecutor("/tmp", "go", nil, nil, log.NewLogger(log.DiscardHandler()))
	require.NoError(t, err)

	assert.Equal(t, []string{"test", "-json", "./..."}, e.Args(nil, nil))
	assert.Equal(t, []string{"test", "-json", "-race", "-count=1", "./a", "./b"},
		e.Args([]string{"./a", "./b"}, []string{"-race", "-count=1"}))
}

func TestExecutor_Run(t *testing.T) {
	for _, code := range []int{0, 1} {
		t.Run(fmt.Sprintf("exit %d", code), func(t *testing.T) {
			var events []TestEvent
			err := newHelperExecutor(t, code).Run(context.Background(), []string{"./pkg"}, []string{"-v"}, collectEvents(&events))
			require.NoError(t, err)
			require.Len(t, events, 3)
			assert.Equal(t, "go test -json -v ./pkg", events[1].Output)
		})
	}
}

func TestExecutor_RunFails(t *testing.T) {
	var events []TestEvent
	err := newHelperExecutor(t, 2).Run(context.Background(), nil, nil, collectEvents(&events))
	require.Error(t, err)
	var exitErr *exec.ExitError
	assert.ErrorAs(t, err, &exitErr)
}

func TestExecutor_ConsumeError(t *testing.T) {
	boom := errors.New("boom")
	err := newHelperExecutor(t, 0).Run(context.Background(), nil, nil, func(io.Reader) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

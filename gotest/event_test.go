package gotest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-reporter/types"
)

func TestDecodeEvents(t *testing.T) {
	input := strings.Join([]string{
		`{"Time":"2025-06-01T10:00:00Z","Action":"start","Package":"p"}`,
		``,
		`# p`,
		`not json at all`,
		`{"Foo":"bar"}`,
		`{"Time":"2025-06-01T10:00:01Z","Action":"run","Package":"p","Test":"TestA"}`,
		`{"Time":"2025-06-01T10:00:02Z","Action":"pass","Package":"p","Test":"TestA","Elapsed":1}`,
	}, "\n")

	var got []TestEvent
	err := DecodeEvents(context.Background(), strings.NewReader(input), log.NewLogger(log.DiscardHandler()), func(e TestEvent) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, ActionStart, got[0].Action)
	assert.True(t, got[0].IsPackageEvent())
	assert.Equal(t, "TestA", got[2].Test)
	assert.True(t, got[2].IsTerminal())
	assert.Equal(t, 1.0, got[2].Elapsed)
}

func TestDecodeEvents_StopsOnCallbackError(t *testing.T) {
	input := `{"Action":"start","Package":"p"}` + "\n" + `{"Action":"pass","Package":"p"}`
	boom := errors.New("boom")

	calls := 0
	err := DecodeEvents(context.Background(), strings.NewReader(input), log.NewLogger(log.DiscardHandler()), func(TestEvent) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDecodeEvents_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := DecodeEvents(ctx, strings.NewReader(`{"Action":"start","Package":"p"}`), log.NewLogger(log.DiscardHandler()), func(TestEvent) error {
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCleanOutput(t *testing.T) {
	got := cleanOutput([]string{
		"=== RUN   TestA\n",
		"    a_test.go:10: \x1b[31mexpected\x1b[0m 1\n",
		"        \n",
		"--- FAIL: TestA (0.01s)\n",
		"FAIL\n",
		"multi\nline\n",
	})
	assert.Equal(t, []string{"a_test.go:10: expected 1", "multi", "line"}, got)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		output []string
		want   string
	}{
		{"assertion", []string{"    a_test.go:1: nope\n"}, types.ExampleStatusFailed},
		{"panic", []string{"panic: boom [recovered]\n", "\tpanic: boom\n"}, types.ExampleStatusPanicked},
		{"timeout", []string{"panic: test timed out after 10m0s\n"}, types.ExampleStatusTimedOut},
		{"panic mentioned in message", []string{"    a_test.go:1: expected panic: none\n"}, types.ExampleStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.output))
		})
	}
}

func TestCapture(t *testing.T) {
	c := capture(types.ExampleStatusPanicked, []string{"panic: boom\n", "goroutine 1 [running]:\n"}, "fallback")
	assert.Equal(t, TypePanic, c.TypeName)
	assert.Equal(t, "panic: boom", c.Message)
	assert.Equal(t, "panic: boom\ngoroutine 1 [running]:", c.Location())

	c = capture(types.ExampleStatusFailed, nil, "fallback")
	assert.Equal(t, TypeTestFailure, c.TypeName)
	assert.Equal(t, "fallback", c.Message)
	assert.Empty(t, c.Backtrace)
}

func TestModulePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "go.mod")
	require.NoError(t, os.WriteFile(path, []byte("module example.com/mod\n\ngo 1.22\n"), 0644))

	got, err := ModulePath(path)
	require.NoError(t, err)
	assert.Equal(t, "example.com/mod", got)

	_, err = ModulePath(filepath.Join(dir, "missing.mod"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("go 1.22\n"), 0644))
	_, err = ModulePath(path)
	assert.Error(t, err)
}

func TestSuiteName(t *testing.T) {
	a := NewAdapter(&recordingHandler{}, WithModulePath("example.com/mod"))
	assert.Equal(t, ".", a.suiteName("example.com/mod"))
	assert.Equal(t, "./widget", a.suiteName("example.com/mod/widget"))
	assert.Equal(t, "example.com/module2", a.suiteName("example.com/module2"))
	assert.Equal(t, "github.com/x/y", a.suiteName("github.com/x/y"))

	assert.Equal(t, "example.com/mod/widget", NewAdapter(&recordingHandler{}).suiteName("example.com/mod/widget"))
}

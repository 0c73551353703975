package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-reporter/types"
	"github.com/ethereum-optimism/infra/op-reporter/ui"
)

// TableReporter renders flushed suites and their cases as a table
type TableReporter struct {
	title     string
	showCases bool
}

// NewTableReporter creates a table reporter. Case rows are only rendered when showCases is set.
func NewTableReporter(title string, showCases bool) *TableReporter {
	return &TableReporter{
		title:     title,
		showCases: showCases,
	}
}

// Render returns the table for the given suites
func (tr *TableReporter) Render(suites []*types.Suite, colored bool) string {
	t := tr.build(suites, colored)
	return t.Render()
}

func (tr *TableReporter) build(suites []*types.Suite, colored bool) table.Writer {
	t := table.NewWriter()

	var total time.Duration
	var tests, passed, failed, skipped int
	for _, s := range suites {
		total += s.Duration()
	}
	t.SetTitle(fmt.Sprintf("%s (%s)", tr.title, FormatDuration(total)))

	t.AppendHeader(table.Row{
		"Type", "Name", "Duration", "Tests", "Passed", "Failed", "Skipped", "Status", "Error",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "Name", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Error", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, s := range suites {
		sp, sf, ss := countStatuses(s)
		tests += s.Tests()
		passed += sp
		failed += sf
		skipped += ss

		t.AppendRow(table.Row{
			"Suite",
			s.Name,
			FormatDuration(s.Duration()),
			s.Tests(),
			sp,
			sf,
			ss,
			StatusString(suiteStatus(s)),
			"",
		})

		if tr.showCases {
			for i, c := range s.Cases {
				t.AppendRow(table.Row{
					"",
					ui.BuildTreePrefix(0, i == len(s.Cases)-1) + c.Name,
					FormatDuration(c.Duration()),
					"",
					"",
					"",
					"",
					StatusString(c.Status),
					firstMessage(c),
				})
			}
		}
		t.AppendSeparator()
	}

	status := types.CaseStatusPassed
	switch {
	case failed > 0:
		status = types.CaseStatusFailed
	case tests > 0 && skipped == tests:
		status = types.CaseStatusSkipped
	}

	if colored {
		switch status {
		case types.CaseStatusPassed:
			t.SetStyle(table.StyleColoredBlackOnGreenWhite)
		case types.CaseStatusSkipped:
			t.SetStyle(table.StyleColoredBlackOnYellowWhite)
		default:
			t.SetStyle(table.StyleColoredBlackOnRedWhite)
		}
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d suites", len(suites)),
		FormatDuration(total),
		tests,
		passed,
		failed,
		skipped,
		StatusString(status),
		"",
	})
	return t
}

// TextSummarySink collects suites and writes a plain-text table summary
// once the run is complete
type TextSummarySink struct {
	CollectingSink
	reporter *TableReporter
	path     string
}

// NewTextSummarySink creates a sink writing its summary to path
func NewTextSummarySink(path string, includeCases bool) *TextSummarySink {
	return &TextSummarySink{
		CollectingSink: *NewCollectingSink(),
		reporter:       NewTableReporter("Test Report", includeCases),
		path:           path,
	}
}

// Complete writes the summary file
func (s *TextSummarySink) Complete(_ context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create summary directory: %w", err)
	}
	content := s.reporter.Render(s.Suites(), false) + "\n"
	if err := os.WriteFile(s.path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return nil
}

// FormatDuration formats a duration in seconds with 1 decimal place
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// StatusString returns a short symbol-prefixed status label
func StatusString(status types.CaseStatus) string {
	switch status {
	case types.CaseStatusPassed:
		return "✓ pass"
	case types.CaseStatusSkipped:
		return "- skip"
	case types.CaseStatusRunning:
		return "… running"
	default:
		return "✗ fail"
	}
}

func countStatuses(s *types.Suite) (passed, failed, skipped int) {
	for _, c := range s.Cases {
		switch c.Status {
		case types.CaseStatusPassed:
			passed++
		case types.CaseStatusFailed:
			failed++
		case types.CaseStatusSkipped:
			skipped++
		}
	}
	return passed, failed, skipped
}

func suiteStatus(s *types.Suite) types.CaseStatus {
	passed, failed, skipped := countStatuses(s)
	switch {
	case failed > 0:
		return types.CaseStatusFailed
	case skipped > 0 && passed == 0:
		return types.CaseStatusSkipped
	default:
		return types.CaseStatusPassed
	}
}

func firstMessage(c *types.Case) string {
	if len(c.Failures) == 0 {
		return ""
	}
	msg := c.Failures[0].Message()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}

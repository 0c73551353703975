package reporter

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/log"
	"github.com/fatih/color"

	"github.com/ethereum-optimism/infra/op-reporter/reporting"
)

// ResultFormatter is responsible for formatting and displaying run results.
type ResultFormatter interface {
	FormatResults(result *Result) error
}

// ConsoleResultFormatter prints the results table and a one-line summary.
type ConsoleResultFormatter struct {
	logger log.Logger
	out    io.Writer
}

func NewConsoleResultFormatter(logger log.Logger, out io.Writer) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{
		logger: logger,
		out:    out,
	}
}

// FormatResults formats and displays the run results. Only failing cases get
// their own rows.
func (f *ConsoleResultFormatter) FormatResults(result *Result) error {
	f.logger.Info("Printing results...")

	table := reporting.NewTableReporter("Test Report", false).Render(result.Suites, !color.NoColor)
	if _, err := fmt.Fprintln(f.out, table); err != nil {
		return fmt.Errorf("failed to print results table: %w", err)
	}

	for _, s := range result.Suites {
		for _, c := range s.Cases {
			if len(c.Failures) == 0 {
				continue
			}
			for _, failure := range c.Failures {
				kind := "failure"
				if failure.IsError() {
					kind = "error"
				}
				if _, err := fmt.Fprintf(f.out, "%s %s › %s: %s\n", reporting.StatusString(c.Status), s.Name, c.Name, kind); err != nil {
					return err
				}
			}
		}
	}

	if len(result.Reports) > 0 {
		fmt.Fprintf(f.out, "Wrote %d reports to %s\n", len(result.Reports), result.ReportDir)
	}
	_, err := fmt.Fprintln(f.out, result.String())
	return err
}

package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/fatih/color"

	"github.com/ethereum-optimism/infra/op-reporter/aggregator"
	"github.com/ethereum-optimism/infra/op-reporter/types"
)

// Display names accepted by NewDisplay
const (
	DisplayProgress = "progress"
	DisplayDoc      = "doc"
	DisplayNone     = "none"
)

// DisplayNames lists the valid display names, default first
var DisplayNames = []string{DisplayProgress, DisplayDoc, DisplayNone}

var (
	passColor    = color.New(color.FgGreen)
	failColor    = color.New(color.FgRed)
	pendingColor = color.New(color.FgYellow)
	groupColor   = color.New(color.Bold)
	rerunColor   = color.New(color.FgCyan)
)

// NewDisplay returns the console display registered under name. Displays
// naming pending examples append pendingMarker, like the reports do.
func NewDisplay(name string, w io.Writer, pendingMarker string) (aggregator.Display, error) {
	switch name {
	case DisplayProgress, "":
		return NewProgressDisplay(w), nil
	case DisplayDoc:
		return NewDocDisplay(w, pendingMarker), nil
	case DisplayNone:
		return aggregator.NopDisplay{}, nil
	default:
		return nil, fmt.Errorf("unknown display %q, expected one of %s", name, strings.Join(DisplayNames, ", "))
	}
}

// outcomes keeps the failed and pending examples seen during a run and
// renders the closing summary shared by the displays
type outcomes struct {
	examples int
	failed   []types.Example
	pending  []types.Example
}

func (o *outcomes) passed() {
	o.examples++
}

func (o *outcomes) fail(ex types.Example) int {
	o.examples++
	o.failed = append(o.failed, ex)
	return len(o.failed)
}

func (o *outcomes) pend(ex types.Example) {
	o.examples++
	o.pending = append(o.pending, ex)
}

func (o *outcomes) write(w io.Writer) {
	if len(o.pending) > 0 {
		fmt.Fprintln(w, "\nPending:")
		for _, ex := range o.pending {
			pendingColor.Fprintf(w, "  %s\n", ex.QualifiedName())
		}
	}

	if len(o.failed) > 0 {
		fmt.Fprintln(w, "\nFailures:")
		for i, ex := range o.failed {
			fmt.Fprintf(w, "\n  %d) %s\n", i+1, ex.QualifiedName())
			if ex.Err == nil {
				continue
			}
			failColor.Fprintf(w, "     %s: %s\n", ex.Err.TypeName, ex.Err.Message)
			for _, line := range ex.Err.Backtrace {
				fmt.Fprintf(w, "     # %s\n", line)
			}
		}
	}

	summary := fmt.Sprintf("%d examples, %d failures", o.examples, len(o.failed))
	if len(o.pending) > 0 {
		summary += fmt.Sprintf(", %d pending", len(o.pending))
	}
	fmt.Fprintln(w)
	switch {
	case len(o.failed) > 0:
		failColor.Fprintln(w, summary)
	case len(o.pending) > 0:
		pendingColor.Fprintln(w, summary)
	default:
		passColor.Fprintln(w, summary)
	}

	var reruns []types.Example
	for _, ex := range o.failed {
		if len(ex.Rerun) > 0 {
			reruns = append(reruns, ex)
		}
	}
	if len(reruns) == 0 {
		return
	}
	fmt.Fprintln(w, "\nFailed examples:")
	for _, ex := range reruns {
		rerunColor.Fprintf(w, "%s", shellescape.QuoteCommand(ex.Rerun))
		fmt.Fprintf(w, " # %s\n", ex.QualifiedName())
	}
}

// ProgressDisplay prints one character per finished example and a summary
// at the end of the run
type ProgressDisplay struct {
	w io.Writer
	outcomes
}

var _ aggregator.Display = (*ProgressDisplay)(nil)

func NewProgressDisplay(w io.Writer) *ProgressDisplay {
	return &ProgressDisplay{w: w}
}

func (d *ProgressDisplay) RunStarted(count int) {
	if count > 0 {
		fmt.Fprintf(d.w, "Running %d examples\n", count)
	}
}

func (d *ProgressDisplay) GroupEntered(types.Group)  {}
func (d *ProgressDisplay) CaseStarted(types.Example) {}

func (d *ProgressDisplay) CaseFailed(ex types.Example) {
	d.fail(ex)
	failColor.Fprint(d.w, "F")
}

func (d *ProgressDisplay) CasePassed(types.Example) {
	d.passed()
	passColor.Fprint(d.w, ".")
}

func (d *ProgressDisplay) CasePending(ex types.Example) {
	d.pend(ex)
	pendingColor.Fprint(d.w, "*")
}

func (d *ProgressDisplay) RunFinished() {
	fmt.Fprintln(d.w)
	d.write(d.w)
}

// DocDisplay prints the group hierarchy with one line per example
type DocDisplay struct {
	w             io.Writer
	depth         int
	pendingMarker string
	outcomes
}

var _ aggregator.Display = (*DocDisplay)(nil)

func NewDocDisplay(w io.Writer, pendingMarker string) *DocDisplay {
	return &DocDisplay{w: w, pendingMarker: pendingMarker}
}

const docBoxWidth = 60

func (d *DocDisplay) RunStarted(count int) {
	title := "Running examples"
	if count > 0 {
		title = fmt.Sprintf("Running %d examples", count)
	}
	fmt.Fprint(d.w, BuildBoxHeader(title, docBoxWidth))
	fmt.Fprint(d.w, BuildBoxFooter(docBoxWidth))
}

func (d *DocDisplay) GroupEntered(g types.Group) {
	d.depth = g.Depth()
	if d.depth == 0 {
		fmt.Fprintln(d.w)
	}
	groupColor.Fprintf(d.w, "%s%s\n", Indent(d.depth), g.Description())
}

func (d *DocDisplay) CaseStarted(types.Example) {}

func (d *DocDisplay) CaseFailed(ex types.Example) {
	n := d.fail(ex)
	failColor.Fprintf(d.w, "%s%s (FAILED - %d)\n", Indent(d.depth+1), ex.Description, n)
}

func (d *DocDisplay) CasePassed(ex types.Example) {
	d.passed()
	passColor.Fprintf(d.w, "%s%s\n", Indent(d.depth+1), ex.Description)
}

func (d *DocDisplay) CasePending(ex types.Example) {
	d.pend(ex)
	pendingColor.Fprintf(d.w, "%s%s%s\n", Indent(d.depth+1), ex.Description, d.pendingMarker)
}

func (d *DocDisplay) RunFinished() {
	d.write(d.w)
}

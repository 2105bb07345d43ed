package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/signalnine/stratgate/internal/result"
)

// maxListedFailures bounds the failing scenarios printed in detail.
const maxListedFailures = 10

// WriteDetail renders one candidate's report for a terminal.
func WriteDetail(r *result.Report, w io.Writer) error {
	var b strings.Builder
	rule := strings.Repeat("=", 72)

	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "STRATEGY EVALUATION: %s", r.Candidate)
	if r.Group != "" {
		fmt.Fprintf(&b, " (%s)", r.Group)
	}
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Strategy:   %s\n", r.Strategy)
	if r.StrategyType != "" {
		fmt.Fprintf(&b, "Type:       %s\n", r.StrategyType)
	}
	fmt.Fprintf(&b, "Seed:       %d\n", r.Seed)
	fmt.Fprintf(&b, "Overall:    %.2f  Grade %s\n", r.Overall, r.Grade)
	fmt.Fprintf(&b, "Robustness: %.2f  (boundary %.0f%%, random %.0f%%)\n",
		r.Robustness, r.BoundaryPassRate*100, r.RandomPassRate*100)
	fmt.Fprintf(&b, "Quality:    %.2f\n", r.Quality)
	fmt.Fprintf(&b, "Scenarios:  %d passed, %d failed, %d errored\n", r.Passed, r.Failed, r.Errored)
	if r.Interrupted {
		fmt.Fprintln(&b, "NOTE: run interrupted, scores cover completed scenarios only")
	}

	fmt.Fprintln(&b, "\nQUALITY DIMENSIONS:")
	for _, d := range r.Dimensions {
		fmt.Fprintf(&b, "  %-16s %6.2f\n", d.Name, d.Score)
		if d.Warning != "" {
			fmt.Fprintf(&b, "    warning: %s\n", d.Warning)
		}
		for _, f := range d.Findings {
			fmt.Fprintf(&b, "    %d:%d %s (-%.0f) %s\n", f.Span.Line, f.Span.Col, f.Rule, f.Points, f.Message)
		}
	}

	var failures []result.ExecutionResult
	for _, e := range r.Executions {
		if e.Status != result.StatusPass {
			failures = append(failures, e)
		}
	}
	if len(failures) > 0 {
		fmt.Fprintln(&b, "\nFAILING SCENARIOS:")
		for i, e := range failures {
			if i == maxListedFailures {
				fmt.Fprintf(&b, "  ... and %d more\n", len(failures)-maxListedFailures)
				break
			}
			fmt.Fprintf(&b, "  [%s] %s: %s", e.Status, e.Scenario, e.Failure.Kind)
			if e.Failure.Message != "" && e.Failure.Message != e.Failure.Kind {
				fmt.Fprintf(&b, " - %s", e.Failure.Message)
			}
			if e.Orders > 0 {
				fmt.Fprintf(&b, " (%d orders, notional %s)", e.Orders, e.Notional.StringFixed(2))
			}
			if e.DegenerateReads > 0 {
				fmt.Fprintf(&b, " after %d degenerate reads", e.DegenerateReads)
			}
			fmt.Fprintln(&b)
		}
	}

	for _, a := range r.External {
		fmt.Fprintf(&b, "\nANALYZER %s (exit %d):\n", a.Name, a.ExitCode)
		if a.Error != "" {
			fmt.Fprintf(&b, "  error: %s\n", a.Error)
		}
		for _, issue := range a.Issues {
			fmt.Fprintf(&b, "  %s\n", issue)
		}
	}

	if len(r.Recommendations) > 0 {
		fmt.Fprintln(&b, "\nRECOMMENDATIONS:")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(&b, "  - %s\n", rec)
		}
	}
	fmt.Fprintln(&b, rule)

	_, err := io.WriteString(w, b.String())
	return err
}

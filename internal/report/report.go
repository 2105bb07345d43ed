// Package report summarizes a run directory per candidate group and
// renders the detailed report of a single candidate.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/xuri/excelize/v2"

	"github.com/signalnine/stratgate/internal/result"
)

type GroupSummary struct {
	Group          string         `json:"group"`
	Candidates     int            `json:"candidates"`
	MeanOverall    float64        `json:"mean_overall"`
	MeanRobustness float64        `json:"mean_robustness"`
	MeanQuality    float64        `json:"mean_quality"`
	PassRate       float64        `json:"pass_rate"`
	Grades         map[string]int `json:"grades"`
}

// Generate reads every report under runDir and writes per-group
// summaries as a table, markdown, json or xlsx.
func Generate(runDir, format string, w io.Writer) error {
	reports, err := collectReports(runDir)
	if err != nil {
		return err
	}
	summaries := aggregate(reports)

	switch format {
	case "markdown":
		return writeMarkdown(summaries, w)
	case "json":
		return writeJSON(summaries, w)
	case "xlsx":
		return writeXLSX(summaries, reports, w)
	default:
		return writeTable(summaries, w)
	}
}

func collectReports(runDir string) ([]*result.Report, error) {
	paths, err := result.FindReports(runDir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", runDir, err)
	}
	var reports []*result.Report
	for _, p := range paths {
		r, err := result.ReadReport(p)
		if err != nil {
			continue
		}
		reports = append(reports, r)
	}
	sort.Slice(reports, func(i, j int) bool {
		if reports[i].Group != reports[j].Group {
			return reports[i].Group < reports[j].Group
		}
		return reports[i].Candidate < reports[j].Candidate
	})
	return reports, nil
}

func aggregate(reports []*result.Report) []GroupSummary {
	type accum struct {
		count      int
		overall    float64
		robustness float64
		quality    float64
		passRate   float64
		grades     map[string]int
	}
	byGroup := map[string]*accum{}

	for _, r := range reports {
		g := r.Group
		if g == "" {
			g = "-"
		}
		a, ok := byGroup[g]
		if !ok {
			a = &accum{grades: map[string]int{}}
			byGroup[g] = a
		}
		a.count++
		a.overall += r.Overall
		a.robustness += r.Robustness
		a.quality += r.Quality
		a.passRate += r.PassRate()
		a.grades[r.Grade]++
	}

	var summaries []GroupSummary
	for name, a := range byGroup {
		n := float64(a.count)
		summaries = append(summaries, GroupSummary{
			Group:          name,
			Candidates:     a.count,
			MeanOverall:    a.overall / n,
			MeanRobustness: a.robustness / n,
			MeanQuality:    a.quality / n,
			PassRate:       a.passRate / n,
			Grades:         a.grades,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Group < summaries[j].Group
	})
	return summaries
}

func gradeString(grades map[string]int) string {
	var parts []string
	for _, g := range []string{"A", "B", "C", "D", "F"} {
		if n := grades[g]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", g, n))
		}
	}
	return strings.Join(parts, " ")
}

func writeTable(summaries []GroupSummary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tCANDIDATES\tPASS RATE\tROBUSTNESS\tQUALITY\tOVERALL\tGRADES")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%.0f%%\t%.2f\t%.2f\t%.2f\t%s\n",
			s.Group, s.Candidates, s.PassRate*100, s.MeanRobustness, s.MeanQuality, s.MeanOverall, gradeString(s.Grades))
	}
	return tw.Flush()
}

func writeMarkdown(summaries []GroupSummary, w io.Writer) error {
	fmt.Fprintln(w, "| Group | Candidates | Pass Rate | Robustness | Quality | Overall | Grades |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
	for _, s := range summaries {
		fmt.Fprintf(w, "| %s | %d | %.0f%% | %.2f | %.2f | %.2f | %s |\n",
			s.Group, s.Candidates, s.PassRate*100, s.MeanRobustness, s.MeanQuality, s.MeanOverall, gradeString(s.Grades))
	}
	return nil
}

func writeJSON(summaries []GroupSummary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}

// writeXLSX writes a Summary sheet of groups and a Candidates sheet with
// one row per report.
func writeXLSX(summaries []GroupSummary, reports []*result.Report, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	const summary, candidates = "Summary", "Candidates"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	if _, err := f.NewSheet(candidates); err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}

	rows := [][]any{{"Group", "Candidates", "Pass Rate", "Robustness", "Quality", "Overall", "Grades"}}
	for _, s := range summaries {
		rows = append(rows, []any{s.Group, s.Candidates, s.PassRate, s.MeanRobustness, s.MeanQuality, s.MeanOverall, gradeString(s.Grades)})
	}
	if err := setRows(f, summary, rows); err != nil {
		return err
	}

	rows = [][]any{{"Group", "Candidate", "Strategy", "Robustness", "Quality", "Overall", "Grade", "Passed", "Failed", "Errored", "Seed"}}
	for _, r := range reports {
		rows = append(rows, []any{r.Group, r.Candidate, r.Strategy, r.Robustness, r.Quality, r.Overall, r.Grade, r.Passed, r.Failed, r.Errored, r.Seed})
	}
	if err := setRows(f, candidates, rows); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing xlsx: %w", err)
	}
	return nil
}

func setRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

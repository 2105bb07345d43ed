package report_test

import (
	"bytes"
	"encoding/json"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/signalnine/stratgate/internal/report"
	"github.com/signalnine/stratgate/internal/result"
)

func writeRun(t *testing.T) string {
	t.Helper()
	runDir := filepath.Join(t.TempDir(), "runs", "test-run")
	reports := []*result.Report{
		{Group: "gemini", Candidate: "a", Overall: 90, Robustness: 100, Quality: 83.33, Grade: "A", Passed: 10},
		{Group: "gemini", Candidate: "b", Overall: 70, Robustness: 60, Quality: 76.67, Grade: "C", Passed: 6, Failed: 4},
		{Group: "gpt", Candidate: "c", Overall: 50, Robustness: 40, Quality: 56.67, Grade: "F", Passed: 2, Errored: 8},
	}
	for _, r := range reports {
		if err := result.WriteReport(result.CandidateDir(runDir, r.Group, r.Candidate), r); err != nil {
			t.Fatal(err)
		}
	}
	return runDir
}

func TestGenerateTable(t *testing.T) {
	var buf bytes.Buffer
	if err := report.Generate(writeRun(t), "table", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "gemini") || !strings.Contains(output, "gpt") {
		t.Errorf("expected both groups in output:\n%s", output)
	}
	if !strings.Contains(output, "A:1 C:1") {
		t.Errorf("expected grade distribution in output:\n%s", output)
	}
}

func TestGenerateJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := report.Generate(writeRun(t), "json", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var summaries []report.GroupSummary
	if err := json.Unmarshal(buf.Bytes(), &summaries); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(summaries))
	}
	g := summaries[0]
	if g.Group != "gemini" || g.Candidates != 2 || g.MeanOverall != 80 || math.Abs(g.PassRate-0.8) > 1e-9 {
		t.Errorf("gemini summary: %+v", g)
	}
}

func TestGenerateMarkdown(t *testing.T) {
	var buf bytes.Buffer
	if err := report.Generate(writeRun(t), "markdown", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "| Group |") {
		t.Errorf("markdown header missing:\n%s", buf.String())
	}
}

func TestGenerateXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := report.Generate(writeRun(t), "xlsx", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Candidates")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Errorf("expected header + 3 rows, got %d", len(rows))
	}
	v, _ := f.GetCellValue("Summary", "A2")
	if v != "gemini" {
		t.Errorf("Summary!A2: got %q", v)
	}
}

func TestGenerateEmptyRun(t *testing.T) {
	var buf bytes.Buffer
	if err := report.Generate(t.TempDir(), "table", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(buf.String(), "GROUP") {
		t.Error("expected header even without reports")
	}
}

func TestWriteDetail(t *testing.T) {
	r := &result.Report{
		Candidate: "naive", Group: "gpt", Strategy: "naive", StrategyType: "SECURITY", Overall: 55.5, Grade: "F",
		Dimensions: []result.DimensionScore{{
			Name: "error_handling", Score: 45,
			Findings: []result.Finding{{Rule: "error_handling.unguarded_data", Message: "price used before check", Span: result.Span{Line: 6, Col: 5}, Points: 20}},
		}},
		Executions: []result.ExecutionResult{
			{Scenario: "flat/current_price=null", Status: result.StatusFail, Failure: &result.Failure{Kind: "order.price_invalid", Message: "BUY order with price null"},
				DegenerateReads: 1},
			{Scenario: "flat/ask=huge", Status: result.StatusFail, Failure: &result.Failure{Kind: "order.exceeds_buying_power", Message: "too big"},
				Orders: 1, Notional: decimal.RequireFromString("1234.5")},
			{Scenario: "flat/ma=zero", Status: result.StatusPass},
		},
		External:        []result.AnalyzerReport{{Name: "lint", ExitCode: 1, Issues: []string{"x.star:1: warning: w"}}},
		Recommendations: []string{"Guard data reads"},
		Interrupted:     true,
	}
	var buf bytes.Buffer
	if err := report.WriteDetail(r, &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"STRATEGY EVALUATION: naive (gpt)",
		"6:5 error_handling.unguarded_data (-20)",
		"[fail] flat/current_price=null: order.price_invalid - BUY order with price null",
		"Type:       SECURITY",
		"(1 orders, notional 1234.50)",
		"BUY order with price null after 1 degenerate reads",
		"ANALYZER lint (exit 1)",
		"RECOMMENDATIONS:",
		"interrupted",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "flat/ma=zero") {
		t.Error("passing scenarios should not be listed")
	}
}

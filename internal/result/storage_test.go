package result_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/signalnine/stratgate/internal/result"
)

func TestWriteAndReadReport(t *testing.T) {
	dir := t.TempDir()
	r := &result.Report{
		RunID:      "run-1",
		Candidate:  "guarded",
		Group:      "gpt",
		Robustness: 92.5,
		Quality:    88,
		Overall:    89.8,
		Grade:      "B",
		Passed:     10,
		Failed:     1,
		Executions: []result.ExecutionResult{
			{ScenarioID: 0, Scenario: "flat/current_price=null", Status: result.StatusFail,
				Failure: &result.Failure{Kind: "order.price_invalid", Message: "BUY order with price null"}},
		},
		Dimensions: []result.DimensionScore{{Name: "structure", Score: 90}},
	}
	if err := result.WriteReport(dir, r); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	got, err := result.ReadReport(filepath.Join(dir, result.ReportFile))
	if err != nil {
		t.Fatalf("ReadReport: %v", err)
	}
	if got.Candidate != r.Candidate {
		t.Errorf("candidate: got %q, want %q", got.Candidate, r.Candidate)
	}
	if got.Overall != r.Overall {
		t.Errorf("overall: got %f, want %f", got.Overall, r.Overall)
	}
	if got.Executions[0].Failure == nil || got.Executions[0].Failure.Kind != "order.price_invalid" {
		t.Errorf("failure not round-tripped: %+v", got.Executions[0])
	}
	if d, ok := got.Dimension("structure"); !ok || d.Score != 90 {
		t.Errorf("dimension lookup: got %+v, %v", d, ok)
	}
}

func TestCreateRunDir(t *testing.T) {
	base := t.TempDir()
	runDir, err := result.CreateRunDir(base)
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		t.Errorf("run directory not created: %s", runDir)
	}
	latest := filepath.Join(base, "latest")
	target, err := os.Readlink(latest)
	if err != nil {
		t.Fatalf("reading latest symlink: %v", err)
	}
	if target != runDir {
		t.Errorf("latest symlink: got %q, want %q", target, runDir)
	}
}

func TestCreateRunDirTwiceInOneSecond(t *testing.T) {
	base := t.TempDir()
	first, err := result.CreateRunDir(base)
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	second, err := result.CreateRunDir(base)
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	if first == second {
		t.Fatalf("both runs share %s", first)
	}
	target, _ := os.Readlink(filepath.Join(base, "latest"))
	if target != second {
		t.Errorf("latest symlink: got %q, want %q", target, second)
	}
}

func TestClaimDir(t *testing.T) {
	want := filepath.Join(t.TempDir(), "momentum")
	for i, suffix := range []string{"", "-2", "-3"} {
		got, err := result.ClaimDir(want)
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if got != want+suffix {
			t.Errorf("claim %d: got %q, want %q", i, got, want+suffix)
		}
	}
	if _, err := result.ClaimDir(filepath.Join(t.TempDir(), "missing", "parent")); err == nil {
		t.Error("expected error when parent is missing")
	}
}

func TestCandidateDir(t *testing.T) {
	base := t.TempDir()
	dir := result.CandidateDir(base, "gemini", "momentum")
	expected := filepath.Join(base, "candidates", "gemini", "momentum")
	if dir != expected {
		t.Errorf("got %q, want %q", dir, expected)
	}
}

func TestFindReports(t *testing.T) {
	base := t.TempDir()
	for _, name := range []string{"a", "b"} {
		dir := result.CandidateDir(base, "g", name)
		if err := result.WriteReport(dir, &result.Report{Candidate: name}); err != nil {
			t.Fatal(err)
		}
		if err := result.WriteSource(dir, []byte("x = 1\n")); err != nil {
			t.Fatal(err)
		}
	}
	paths, err := result.FindReports(base)
	if err != nil {
		t.Fatalf("FindReports: %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("got %d reports, want 2", len(paths))
	}
}

func TestPassRate(t *testing.T) {
	r := &result.Report{Passed: 3, Failed: 1}
	if got := r.PassRate(); got != 0.75 {
		t.Errorf("got %f, want 0.75", got)
	}
	if got := (&result.Report{}).PassRate(); got != 0 {
		t.Errorf("empty pass rate: got %f", got)
	}
}

package validation_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/signalnine/stratgate/internal/loader"
	"github.com/signalnine/stratgate/internal/validation"
)

func TestParseLintOutput(t *testing.T) {
	output := "candidate.star:3:1: warning: unused variable\nok\ncandidate.star:9: error: bad call\n"
	issues := validation.ParseLintResults(output, 1)
	if len(issues) != 2 {
		t.Fatalf("issues: got %d, want 2", len(issues))
	}
	if issues[1] != "candidate.star:9: error: bad call" {
		t.Errorf("issue: got %q", issues[1])
	}
}

func TestParseLintOutputClean(t *testing.T) {
	if issues := validation.ParseLintResults("", 0); issues != nil {
		t.Errorf("got %v, want none", issues)
	}
}

func TestAnalyzerRunnerHost(t *testing.T) {
	src, err := loader.NewInlineSource("inline", []byte("x = 1\n"))
	if err != nil {
		t.Fatal(err)
	}
	runner := validation.NewAnalyzerRunner([]validation.Analyzer{
		{Name: "echo", Command: []string{"sh", "-c", "echo \"$0: warning: looked\"; exit 2", validation.FilePlaceholder}},
		{Name: "missing", Command: []string{"/nonexistent/analyzer"}},
		{Name: "empty"},
	}, zerolog.Nop())

	reports := runner.Run(context.Background(), src)
	if len(reports) != 3 {
		t.Fatalf("reports: got %d, want 3", len(reports))
	}
	if reports[0].ExitCode != 2 || len(reports[0].Issues) != 1 || reports[0].Error != "" {
		t.Errorf("echo: %+v", reports[0])
	}
	if reports[1].Error == "" {
		t.Error("missing analyzer should report an error")
	}
	if reports[2].Error == "" {
		t.Error("analyzer without command should report an error")
	}
}

func TestAnalyzerRunnerNone(t *testing.T) {
	var runner *validation.AnalyzerRunner
	if got := runner.Run(context.Background(), &loader.Source{}); got != nil {
		t.Errorf("got %v", got)
	}
}

package validation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/signalnine/stratgate/internal/docker"
	"github.com/signalnine/stratgate/internal/loader"
	"github.com/signalnine/stratgate/internal/result"
)

// FilePlaceholder in an analyzer command is replaced by the candidate path.
const FilePlaceholder = "{file}"

const defaultAnalyzerTimeout = 30 * time.Second

// Analyzer is an external linter. With an Image it runs in a container,
// otherwise on the host.
type Analyzer struct {
	Name    string
	Command []string
	Image   string
	Timeout time.Duration
}

// AnalyzerRunner runs the configured analyzers. Container runs share a
// circuit breaker so an unavailable daemon is not retried per candidate.
type AnalyzerRunner struct {
	analyzers []Analyzer
	breaker   *gobreaker.CircuitBreaker
	log       zerolog.Logger
	container func(context.Context, *docker.RunOpts) (*docker.RunResult, error)
}

func NewAnalyzerRunner(analyzers []Analyzer, log zerolog.Logger) *AnalyzerRunner {
	st := gobreaker.Settings{
		Name:    "analyzer-docker",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	}
	return &AnalyzerRunner{
		analyzers: analyzers,
		breaker:   gobreaker.NewCircuitBreaker(st),
		log:       log,
		container: docker.RunContainer,
	}
}

// Run executes every analyzer against src. Failures are logged and kept
// in the report; they never fail the evaluation.
func (r *AnalyzerRunner) Run(ctx context.Context, src *loader.Source) []result.AnalyzerReport {
	if r == nil || len(r.analyzers) == 0 {
		return nil
	}
	path := src.Path
	if path == "" {
		dir, err := os.MkdirTemp("", "stratgate-analyze-")
		if err != nil {
			r.log.Warn().Err(err).Msg("analyzers skipped")
			return nil
		}
		defer os.RemoveAll(dir)
		path = filepath.Join(dir, result.SourceFile)
		if err := os.WriteFile(path, src.Text, 0o644); err != nil {
			r.log.Warn().Err(err).Msg("analyzers skipped")
			return nil
		}
	}
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}

	reports := make([]result.AnalyzerReport, 0, len(r.analyzers))
	for _, a := range r.analyzers {
		rep := r.runOne(ctx, a, path)
		if rep.Error != "" {
			r.log.Warn().Str("analyzer", a.Name).Str("candidate", src.Name).Str("error", rep.Error).Msg("analyzer failed")
		}
		reports = append(reports, rep)
	}
	return reports
}

func (r *AnalyzerRunner) runOne(ctx context.Context, a Analyzer, path string) result.AnalyzerReport {
	rep := result.AnalyzerReport{Name: a.Name}
	if len(a.Command) == 0 {
		rep.Error = "no command configured"
		return rep
	}
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = defaultAnalyzerTimeout
	}

	if a.Image == "" {
		output, exitCode, err := runHost(ctx, substitute(a.Command, path), timeout)
		if err != nil {
			rep.Error = err.Error()
			return rep
		}
		rep.ExitCode = exitCode
		rep.Issues = ParseLintResults(output, exitCode)
		return rep
	}

	cmd := substitute(a.Command, docker.CandidateDir+"/"+filepath.Base(path))
	res, err := r.breaker.Execute(func() (interface{}, error) {
		return r.container(ctx, &docker.RunOpts{
			Image:     a.Image,
			Command:   cmd,
			SourceDir: filepath.Dir(path),
			Timeout:   timeout,
		})
	})
	if err != nil {
		rep.Error = err.Error()
		return rep
	}
	run := res.(*docker.RunResult)
	if run.TimedOut {
		rep.Error = fmt.Sprintf("timed out after %s", timeout)
	}
	rep.ExitCode = run.ExitCode
	rep.Issues = ParseLintResults(run.Output, run.ExitCode)
	return rep
}

func runHost(ctx context.Context, command []string, timeout time.Duration) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return string(out), exitErr.ExitCode(), nil
		}
		return string(out), -1, fmt.Errorf("running %s: %w", command[0], err)
	}
	return string(out), 0, nil
}

func substitute(command []string, path string) []string {
	out := make([]string, len(command))
	for i, arg := range command {
		out[i] = strings.ReplaceAll(arg, FilePlaceholder, path)
	}
	return out
}

// ParseLintResults extracts the error and warning lines of an analyzer's
// output.
func ParseLintResults(output string, exitCode int) []string {
	if exitCode == 0 && output == "" {
		return nil
	}
	var issues []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && (strings.Contains(line, ": error") || strings.Contains(line, ": warning") || strings.Contains(line, "Error:") || strings.Contains(line, "Warning:")) {
			issues = append(issues, line)
		}
	}
	return issues
}

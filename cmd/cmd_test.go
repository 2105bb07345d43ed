package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/stratgate/internal/config"
	"github.com/signalnine/stratgate/internal/result"
	"github.com/signalnine/stratgate/internal/store"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIsCandidate(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"strategy.star", true},
		{"strategy_test.star", false},
		{"strategy.py", false},
		{"README.md", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isCandidate(tt.name); got != tt.want {
				t.Errorf("isCandidate(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestCollectCandidates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "gpt", "a.star"), "")
	writeFile(t, filepath.Join(dir, "gpt", "a_test.star"), "")
	writeFile(t, filepath.Join(dir, "gemini", "b.star"), "")
	writeFile(t, filepath.Join(dir, "gemini", "notes.txt"), "")
	single := filepath.Join(t.TempDir(), "c.star")
	writeFile(t, single, "")

	writeFile(t, filepath.Join(dir, "gpt", "v2", "d.star"), "")
	writeFile(t, filepath.Join(dir, "loose.star"), "")

	queue, err := collectCandidates([]string{dir, single})
	require.NoError(t, err)
	assert.Equal(t, []candidate{
		{path: filepath.Join(dir, "gemini", "b.star"), group: "gemini"},
		{path: filepath.Join(dir, "gpt", "a.star"), group: "gpt"},
		{path: filepath.Join(dir, "gpt", "v2", "d.star"), group: "gpt"},
		{path: filepath.Join(dir, "loose.star"), group: filepath.Base(dir)},
		{path: single, group: filepath.Base(filepath.Dir(single))},
	}, queue)

	_, err = collectCandidates([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}

func TestScoreCandidatesWritesArtifacts(t *testing.T) {
	cfg := config.Default()
	seed := int64(3)
	cfg.Scenarios.Seed = &seed
	cfg.Scenarios.RandomCount = 5
	opts, err := evalOptions(cfg, zerolog.Nop(), nil)
	require.NoError(t, err)

	runDir := t.TempDir()
	queue := []candidate{
		{path: "../testdata/candidates/guarded.star", group: "gpt"},
		{path: "../testdata/candidates/nohooks.star", group: "gpt"},
	}
	failed := scoreCandidates(context.Background(), queue, runDir, opts, nil, zerolog.Nop())
	assert.Equal(t, 1, failed)

	dir := result.CandidateDir(runDir, "gpt", "guarded")
	r, err := result.ReadReport(filepath.Join(dir, result.ReportFile))
	require.NoError(t, err)
	assert.Equal(t, int64(3), r.Seed)
	assert.FileExists(t, filepath.Join(dir, result.SourceFile))
	assert.NoDirExists(t, result.CandidateDir(runDir, "gpt", "nohooks"))
}

func TestScoreCandidatesKeepsSameNamedCandidates(t *testing.T) {
	cfg := config.Default()
	cfg.Scenarios.RandomCount = 2
	opts, err := evalOptions(cfg, zerolog.Nop(), nil)
	require.NoError(t, err)

	guarded, err := os.ReadFile("../testdata/candidates/guarded.star")
	require.NoError(t, err)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "batch1", "gpt", "s.star"), string(guarded))
	writeFile(t, filepath.Join(root, "batch2", "gpt", "s.star"), string(guarded))
	queue := []candidate{
		{path: filepath.Join(root, "batch1", "gpt", "s.star"), group: "gpt"},
		{path: filepath.Join(root, "batch2", "gpt", "s.star"), group: "gpt"},
	}

	runDir := t.TempDir()
	require.Zero(t, scoreCandidates(context.Background(), queue, runDir, opts, nil, zerolog.Nop()))

	reports, err := result.FindReports(runDir)
	require.NoError(t, err)
	assert.Len(t, reports, 2)
	assert.DirExists(t, result.CandidateDir(runDir, "gpt", "s"))
	assert.DirExists(t, result.CandidateDir(runDir, "gpt", "s-2"))

	stored, err := storedCandidates(runDir)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, c := range stored {
		assert.Equal(t, "s", c.name)
	}
}

func TestStoredCandidates(t *testing.T) {
	runDir := t.TempDir()
	withReport := result.CandidateDir(runDir, "gpt", "guarded")
	require.NoError(t, result.WriteSource(withReport, []byte("x = 1\n")))
	require.NoError(t, result.WriteReport(withReport, &result.Report{Candidate: "guarded", Group: "gpt", Seed: 11}))
	bare := result.CandidateDir(runDir, "gemini", "naive")
	require.NoError(t, result.WriteSource(bare, []byte("x = 1\n")))

	queue, err := storedCandidates(runDir)
	require.NoError(t, err)
	require.Len(t, queue, 2)

	byName := map[string]candidate{}
	for _, c := range queue {
		byName[c.name] = c
	}
	require.NotNil(t, byName["guarded"].seed)
	assert.Equal(t, int64(11), *byName["guarded"].seed)
	assert.Equal(t, "gpt", byName["guarded"].group)
	assert.Nil(t, byName["naive"].seed)
	assert.Equal(t, "gemini", byName["naive"].group)
}

func TestResolveRunDir(t *testing.T) {
	base := t.TempDir()
	runDir, err := result.CreateRunDir(base)
	require.NoError(t, err)

	got, err := resolveRunDir(base, nil)
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(runDir)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = resolveRunDir(base, []string{filepath.Join(base, "nope")})
	assert.Error(t, err)
}

func TestWriteHistory(t *testing.T) {
	rows := []store.Summary{{
		RunID:      "run-1",
		Candidate:  "guarded",
		Group:      "gpt",
		SourceHash: "0123456789abcdef0123",
		Seed:       42,
		Robustness: 100,
		Quality:    88.5,
		Overall:    95.4,
		Grade:      "A",
		FinishedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}
	var buf bytes.Buffer
	require.NoError(t, writeHistory(rows, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "ROBUSTNESS")
	for _, want := range []string{"2026-01-02T03:04:05Z", "run-1", "gpt", "42", "88.50", "95.40", "A", "0123456789ab"} {
		assert.Contains(t, lines[1], want)
	}
	assert.NotContains(t, lines[1], "0123456789abc")
}

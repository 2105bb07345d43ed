package runner_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/stratgate/internal/loader"
	"github.com/signalnine/stratgate/internal/metrics"
	"github.com/signalnine/stratgate/internal/runner"
	"github.com/signalnine/stratgate/internal/scenario"
	"github.com/signalnine/stratgate/internal/validation"
)

func evalOpts(m *metrics.Recorder) runner.EvalOpts {
	return runner.EvalOpts{
		TrialOpts: runner.TrialOpts{Parallel: 4, Metrics: m, Log: zerolog.Nop()},
		Scenarios: scenario.Options{RandomCount: 30, Seed: ptr(int64(42))},
	}
}

func TestEvaluateGuardedGradesA(t *testing.T) {
	src, err := loader.ReadSource("../../testdata/candidates/guarded.star")
	require.NoError(t, err)
	m := metrics.New()

	r, err := runner.Evaluate(context.Background(), src, evalOpts(m))
	require.NoError(t, err)

	assert.Equal(t, 100.0, r.Robustness)
	assert.GreaterOrEqual(t, r.Quality, 85.0)
	assert.Equal(t, "A", r.Grade)
	assert.Equal(t, "guarded_dip_buyer", r.Strategy)
	assert.Equal(t, int64(42), r.Seed)
	assert.Equal(t, src.Hash, r.SourceHash)
	assert.NotEmpty(t, r.RunID)
	assert.False(t, r.Interrupted)
	assert.Len(t, r.Dimensions, 5)
	assert.Equal(t, r.Passed, len(r.Executions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evaluations.WithLabelValues("A")))
}

func TestEvaluateNaive(t *testing.T) {
	src, err := loader.ReadSource("../../testdata/candidates/naive.star")
	require.NoError(t, err)

	r, err := runner.Evaluate(context.Background(), src, evalOpts(nil))
	require.NoError(t, err)

	assert.Less(t, r.Robustness, 100.0)
	assert.Positive(t, r.Failed)
	eh, ok := r.Dimension(validation.ErrorHandling)
	require.True(t, ok)
	assert.Less(t, eh.Score, 50.0)
	assert.NotEmpty(t, r.Recommendations)
}

func TestEvaluateIsReproducibleWithSeed(t *testing.T) {
	src, err := loader.ReadSource("../../testdata/candidates/divides.star")
	require.NoError(t, err)

	a, err := runner.Evaluate(context.Background(), src, evalOpts(nil))
	require.NoError(t, err)
	b, err := runner.Evaluate(context.Background(), src, evalOpts(nil))
	require.NoError(t, err)

	assert.Equal(t, a.Robustness, b.Robustness)
	assert.Equal(t, a.Overall, b.Overall)
	require.Len(t, b.Executions, len(a.Executions))
	for i := range a.Executions {
		assert.Equal(t, a.Executions[i].Status, b.Executions[i].Status)
	}
}

func TestEvaluateLoadError(t *testing.T) {
	src, err := loader.ReadSource("../../testdata/candidates/nohooks.star")
	require.NoError(t, err)
	m := metrics.New()

	r, err := runner.Evaluate(context.Background(), src, evalOpts(m))
	assert.Nil(t, r)
	var le *loader.LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadFailures.WithLabelValues(string(le.Reason))))
}

func TestGroupOf(t *testing.T) {
	tests := map[string]string{
		"candidates/gemini/a.star": "gemini",
		"a.star":                   "",
		"/abs/gpt/b.star":          "gpt",
	}
	for path, want := range tests {
		if got := runner.GroupOf(path); got != want {
			t.Errorf("GroupOf(%q) = %q, want %q", path, got, want)
		}
	}
}

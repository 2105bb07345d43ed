package metrics_test

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/stratgate/internal/metrics"
	"github.com/signalnine/stratgate/internal/result"
	"github.com/signalnine/stratgate/internal/scenario"
)

func TestObserveScenario(t *testing.T) {
	r := metrics.New()
	r.ObserveScenario(result.ExecutionResult{Category: scenario.Boundary, Status: result.StatusPass, DurationMS: 2})
	r.ObserveScenario(result.ExecutionResult{Category: scenario.Boundary, Status: result.StatusError, DurationMS: 3})
	r.ObserveScenario(result.ExecutionResult{Category: scenario.Random, Status: result.StatusPass, DurationMS: 1})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Scenarios.WithLabelValues("boundary", "pass")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Scenarios.WithLabelValues("boundary", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Scenarios.WithLabelValues("random", "pass")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.ScenarioDuration))
}

func TestObserveReport(t *testing.T) {
	r := metrics.New()
	r.ObserveReport(&result.Report{Grade: "A", Overall: 95, Interrupted: true})
	r.ObserveLoadFailure("no_strategy")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Evaluations.WithLabelValues("A")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Interrupted))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.LoadFailures.WithLabelValues("no_strategy")))
}

func TestNilRecorder(t *testing.T) {
	var r *metrics.Recorder
	r.ObserveScenario(result.ExecutionResult{})
	r.ObserveReport(&result.Report{})
	r.ObserveLoadFailure("x")
	assert.NoError(t, r.WriteTextfile("/nonexistent/x.prom"))
}

func TestWriteTextfileAndHandler(t *testing.T) {
	r := metrics.New()
	r.ObserveLoadFailure("syntax")

	path := filepath.Join(t.TempDir(), "stratgate.prom")
	require.NoError(t, r.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `stratgate_load_failures_total{reason="syntax"} 1`)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "stratgate_load_failures_total"))
}

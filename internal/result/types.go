package result

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/signalnine/stratgate/internal/scenario"
)

type Status string

const (
	StatusPass  Status = "pass"
	StatusFail  Status = "fail"
	StatusError Status = "error"
)

// Failure explains a fail or error outcome. It never carries a backtrace.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Hook    string `json:"hook,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ExecutionResult is the outcome of one scenario.
type ExecutionResult struct {
	ScenarioID int               `json:"scenario_id"`
	Scenario   string            `json:"scenario"`
	Category   scenario.Category `json:"category"`
	Status     Status            `json:"status"`
	Failure    *Failure          `json:"failure,omitempty"`
	Violations []string          `json:"violations,omitempty"`
	Orders     int               `json:"orders"`
	DurationMS float64           `json:"duration_ms"`
	Steps      uint64            `json:"steps"`

	// Ledger summary of what the strategy did in the scenario.
	StrategyType    string          `json:"strategy_type,omitempty"`
	Notional        decimal.Decimal `json:"notional"`
	DegenerateReads int             `json:"degenerate_reads,omitempty"`
	Alerts          int             `json:"alerts,omitempty"`
}

// Span locates a finding in the candidate source. Lines are 1-based.
type Span struct {
	Line    int `json:"line"`
	Col     int `json:"col"`
	EndLine int `json:"end_line,omitempty"`
	EndCol  int `json:"end_col,omitempty"`
}

type Finding struct {
	Rule    string  `json:"rule"`
	Message string  `json:"message"`
	Span    Span    `json:"span"`
	Points  float64 `json:"points"`
}

// DimensionScore is one quality axis, normalized to [0,100]. Warning is
// set when the analysis for the dimension could not complete.
type DimensionScore struct {
	Name     string    `json:"name"`
	Score    float64   `json:"score"`
	Findings []Finding `json:"findings,omitempty"`
	Warning  string    `json:"warning,omitempty"`
}

// AnalyzerReport is the raw outcome of an optional external analyzer. It
// does not feed the quality score.
type AnalyzerReport struct {
	Name     string   `json:"name"`
	ExitCode int      `json:"exit_code"`
	Issues   []string `json:"issues,omitempty"`
	Error    string   `json:"error,omitempty"`
}

type DurationStats struct {
	MeanMS   float64 `json:"mean_ms"`
	MedianMS float64 `json:"median_ms"`
	P95MS    float64 `json:"p95_ms"`
	MaxMS    float64 `json:"max_ms"`
}

// Report is the complete evaluation of one candidate.
type Report struct {
	RunID     string `json:"run_id"`
	Candidate string `json:"candidate"`
	Group     string `json:"group"`
	Strategy  string `json:"strategy"`
	// StrategyType is what the candidate passed to declare_strategy_type.
	StrategyType string    `json:"strategy_type,omitempty"`
	SourcePath   string    `json:"source_path"`
	SourceHash   string    `json:"source_hash"`
	Seed         int64     `json:"seed"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`

	Robustness       float64 `json:"robustness"`
	BoundaryPassRate float64 `json:"boundary_pass_rate"`
	RandomPassRate   float64 `json:"random_pass_rate"`
	Quality          float64 `json:"quality"`
	Overall          float64 `json:"overall"`
	Grade            string  `json:"grade"`

	Passed      int  `json:"passed"`
	Failed      int  `json:"failed"`
	Errored     int  `json:"errored"`
	Interrupted bool `json:"interrupted,omitempty"`

	Executions      []ExecutionResult `json:"executions"`
	Dimensions      []DimensionScore  `json:"dimensions"`
	External        []AnalyzerReport  `json:"external,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty"`
	Durations       DurationStats     `json:"durations"`
}

// Dimension looks up a quality dimension by name.
func (r *Report) Dimension(name string) (DimensionScore, bool) {
	for _, d := range r.Dimensions {
		if d.Name == name {
			return d, true
		}
	}
	return DimensionScore{}, false
}

// PassRate is the fraction of executions that passed.
func (r *Report) PassRate() float64 {
	total := r.Passed + r.Failed + r.Errored
	if total == 0 {
		return 0
	}
	return float64(r.Passed) / float64(total)
}

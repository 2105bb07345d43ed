package validation

import (
	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"

	"github.com/signalnine/stratgate/internal/result"
	"github.com/signalnine/stratgate/internal/scenario"
)

// Robustness and overall weights.
const (
	BoundaryWeight   = 0.6
	RandomWeight     = 0.4
	RobustnessWeight = 0.4
	QualityWeight    = 0.6
)

// RobustnessScore weights the boundary and random pass rates. A category
// without results hands its weight to the other.
func RobustnessScore(results []result.ExecutionResult) (score, boundaryRate, randomRate float64) {
	var bPass, bTotal, rPass, rTotal int
	for _, r := range results {
		pass := r.Status == result.StatusPass
		switch r.Category {
		case scenario.Boundary:
			bTotal++
			if pass {
				bPass++
			}
		case scenario.Random:
			rTotal++
			if pass {
				rPass++
			}
		}
	}
	if bTotal > 0 {
		boundaryRate = float64(bPass) / float64(bTotal)
	}
	if rTotal > 0 {
		randomRate = float64(rPass) / float64(rTotal)
	}
	switch {
	case bTotal > 0 && rTotal > 0:
		score = 100 * (BoundaryWeight*boundaryRate + RandomWeight*randomRate)
	case bTotal > 0:
		score = 100 * boundaryRate
	case rTotal > 0:
		score = 100 * randomRate
	}
	return Round(score), boundaryRate, randomRate
}

func OverallScore(robustness, quality float64) float64 {
	return Round(RobustnessWeight*robustness + QualityWeight*quality)
}

// Grade maps a rounded overall score to a letter. Thresholds are inclusive.
func Grade(overall float64) string {
	switch {
	case overall >= 90:
		return "A"
	case overall >= 80:
		return "B"
	case overall >= 70:
		return "C"
	case overall >= 60:
		return "D"
	}
	return "F"
}

// Round clamps v to [0,100] and rounds half away from zero to two places.
func Round(v float64) float64 {
	return decimal.NewFromFloat(clamp(v)).Round(2).InexactFloat64()
}

func DurationStatistics(results []result.ExecutionResult) result.DurationStats {
	if len(results) == 0 {
		return result.DurationStats{}
	}
	data := make(stats.Float64Data, 0, len(results))
	for _, r := range results {
		data = append(data, r.DurationMS)
	}
	var out result.DurationStats
	out.MeanMS, _ = stats.Mean(data)
	out.MedianMS, _ = stats.Median(data)
	out.P95MS, _ = stats.Percentile(data, 95)
	out.MaxMS, _ = stats.Max(data)
	return out
}

var recommendationRules = []struct {
	dimension string
	below     float64
	text      string
}{
	{"", 80, "Improve robustness: check every platform read for None and NaN before using it"},
	{ErrorHandling, 60, "Guard data reads, divisions and order arguments; Starlark has no exception handling"},
	{Documentation, 50, "Add docstrings to the module, hooks and helpers, and comment each branch"},
	{Complexity, 60, "Reduce complexity by moving branch logic out of hooks into helpers"},
	{BestPractices, 60, "Name constants instead of using magic numbers and remove debug prints"},
	{Structure, 70, "Declare a Strategy with initialize and handle_data and declare the strategy type and symbol"},
}

// Recommendations returns a fixed hint for every score below its bar.
func Recommendations(r *result.Report) []string {
	var out []string
	for _, rule := range recommendationRules {
		score := r.Robustness
		if rule.dimension != "" {
			d, ok := r.Dimension(rule.dimension)
			if !ok {
				continue
			}
			score = d.Score
		}
		if score < rule.below {
			out = append(out, rule.text)
		}
	}
	return out
}

// Aggregate fills r's scores, counts and grade from the execution results
// and quality dimensions.
func Aggregate(r *result.Report, results []result.ExecutionResult, q Quality) {
	r.Executions = results
	r.Passed, r.Failed, r.Errored = 0, 0, 0
	for _, e := range results {
		if r.StrategyType == "" {
			r.StrategyType = e.StrategyType
		}
		switch e.Status {
		case result.StatusPass:
			r.Passed++
		case result.StatusFail:
			r.Failed++
		case result.StatusError:
			r.Errored++
		}
	}
	r.Robustness, r.BoundaryPassRate, r.RandomPassRate = RobustnessScore(results)
	r.Dimensions = make([]result.DimensionScore, len(q.Dimensions))
	for i, d := range q.Dimensions {
		d.Score = Round(d.Score)
		r.Dimensions[i] = d
	}
	r.Quality = Round(q.Score)
	r.Overall = OverallScore(r.Robustness, r.Quality)
	r.Grade = Grade(r.Overall)
	r.Durations = DurationStatistics(results)
	r.Recommendations = Recommendations(r)
}

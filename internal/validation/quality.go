// Package validation scores candidate strategies: static quality analysis
// over the Starlark source, optional external analyzers, and the
// aggregation of robustness and quality into an overall grade.
package validation

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/signalnine/stratgate/internal/loader"
	"github.com/signalnine/stratgate/internal/result"
	"github.com/signalnine/stratgate/internal/rules"
)

// Dimension names.
const (
	Structure     = "structure"
	ErrorHandling = "error_handling"
	Documentation = "documentation"
	Complexity    = "complexity"
	BestPractices = "best_practices"
)

// DefaultBranchThreshold is the cyclomatic complexity a hook may reach
// before it loses points.
const DefaultBranchThreshold = 10

// QualityWeights are fixed.
var QualityWeights = map[string]float64{
	Structure:     0.20,
	ErrorHandling: 0.25,
	Documentation: 0.15,
	Complexity:    0.15,
	BestPractices: 0.25,
}

var dimensionOrder = []string{Structure, ErrorHandling, Documentation, Complexity, BestPractices}

type Quality struct {
	Score      float64
	Dimensions []result.DimensionScore
}

type Scorer struct {
	rules           *rules.Table
	branchThreshold int
	log             zerolog.Logger
}

func NewScorer(tbl *rules.Table, branchThreshold int, log zerolog.Logger) *Scorer {
	if tbl == nil {
		tbl = rules.Default()
	}
	if branchThreshold <= 0 {
		branchThreshold = DefaultBranchThreshold
	}
	return &Scorer{rules: tbl, branchThreshold: branchThreshold, log: log}
}

// Score analyzes src and never fails: a dimension whose analysis panics
// scores zero and carries a warning.
func (s *Scorer) Score(src *loader.Source) Quality {
	a, err := s.analyze(src)
	dims := make([]result.DimensionScore, 0, len(dimensionOrder))
	for _, name := range dimensionOrder {
		if err != nil {
			dims = append(dims, result.DimensionScore{Name: name, Warning: err.Error()})
			continue
		}
		dims = append(dims, s.dimension(name, a))
	}
	return Quality{Score: WeightedQuality(dims), Dimensions: dims}
}

func (s *Scorer) analyze(src *loader.Source) (a *analysis, err error) {
	if src == nil || src.File == nil {
		return nil, fmt.Errorf("analysis unavailable: source not parsed")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analysis failed: %v", r)
			s.log.Warn().Str("candidate", src.Name).Interface("panic", r).Msg("quality analysis failed")
		}
	}()
	return newAnalysis(src, s.rules), nil
}

func (s *Scorer) dimension(name string, a *analysis) (d result.DimensionScore) {
	defer func() {
		if r := recover(); r != nil {
			d = result.DimensionScore{Name: name, Warning: fmt.Sprintf("analysis failed: %v", r)}
			s.log.Warn().Str("candidate", a.src.Name).Str("dimension", name).Interface("panic", r).Msg("dimension analysis failed")
		}
	}()
	switch name {
	case Structure:
		d = scoreStructure(a)
	case ErrorHandling:
		d = scoreErrorHandling(a)
	case Documentation:
		d = scoreDocumentation(a)
	case Complexity:
		d = scoreComplexity(a, s.branchThreshold)
	case BestPractices:
		d = scoreBestPractices(a)
	}
	d.Name = name
	d.Score = clamp(d.Score)
	return d
}

// WeightedQuality combines dimension scores with the fixed weights.
func WeightedQuality(dims []result.DimensionScore) float64 {
	total := 0.0
	for _, d := range dims {
		total += QualityWeights[d.Name] * d.Score
	}
	return clamp(total)
}

// deduct returns 100 minus the findings' points, honoring each rule's cap.
func deduct(tbl *rules.Table, findings []result.Finding) float64 {
	perRule := map[string]float64{}
	for _, f := range findings {
		perRule[f.Rule] += f.Points
	}
	score := 100.0
	for id, pts := range perRule {
		if c := tbl.Cap(id); c > 0 && pts > c {
			pts = c
		}
		score -= pts
	}
	return clamp(score)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

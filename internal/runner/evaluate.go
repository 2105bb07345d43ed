package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/signalnine/stratgate/internal/loader"
	"github.com/signalnine/stratgate/internal/result"
	"github.com/signalnine/stratgate/internal/scenario"
	"github.com/signalnine/stratgate/internal/validation"
)

type EvalOpts struct {
	TrialOpts
	Load      loader.Options
	Scenarios scenario.Options
	Scorer    *validation.Scorer
	Analyzers *validation.AnalyzerRunner
	RunID     string
	Group     string
}

// Evaluate loads src, then runs the scenario harness, the quality scorer
// and the external analyzers concurrently and aggregates a report. Only a
// LoadError is returned; everything else is recorded in the report.
func Evaluate(ctx context.Context, src *loader.Source, opts EvalOpts) (*result.Report, error) {
	started := time.Now().UTC()
	if opts.Load.Symbol == "" {
		opts.Load.Symbol = opts.Symbol
	}
	h, err := loader.Load(ctx, src, opts.Load)
	if err != nil {
		var le *loader.LoadError
		if errors.As(err, &le) {
			opts.Metrics.ObserveLoadFailure(string(le.Reason))
		}
		opts.Log.Warn().Str("candidate", src.Name).Err(err).Msg("candidate rejected")
		return nil, err
	}

	scorer := opts.Scorer
	if scorer == nil {
		scorer = validation.NewScorer(nil, 0, opts.Log)
	}
	gen := scenario.NewGenerator(opts.Scenarios)

	var (
		results     []result.ExecutionResult
		interrupted bool
		quality     validation.Quality
		external    []result.AnalyzerReport
		g           errgroup.Group
	)
	g.Go(stage("scenarios", func() {
		results, interrupted = RunScenarios(ctx, h, gen.All(), opts.TrialOpts)
	}))
	g.Go(stage("quality", func() {
		quality = scorer.Score(src)
	}))
	g.Go(stage("analyzers", func() {
		external = opts.Analyzers.Run(ctx, src)
	}))
	if err := g.Wait(); err != nil {
		opts.Log.Error().Str("candidate", src.Name).Err(err).Msg("evaluation aborted")
		return nil, err
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	r := &result.Report{
		RunID:       runID,
		Candidate:   src.Name,
		Group:       opts.Group,
		Strategy:    h.Name(),
		SourcePath:  src.Path,
		SourceHash:  src.Hash,
		Seed:        gen.Seed(),
		StartedAt:   started,
		Interrupted: interrupted,
		External:    external,
	}
	validation.Aggregate(r, results, quality)
	r.FinishedAt = time.Now().UTC()
	opts.Metrics.ObserveReport(r)

	opts.Log.Info().
		Str("candidate", src.Name).
		Float64("robustness", r.Robustness).
		Float64("quality", r.Quality).
		Float64("overall", r.Overall).
		Str("grade", r.Grade).
		Bool("interrupted", r.Interrupted).
		Msg("candidate evaluated")
	return r, nil
}

// stage runs one branch of an evaluation. Branches record problems in
// the report, so only a panic surfaces as an error.
func stage(name string, fn func()) func() error {
	return func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("%s stage: panic: %v", name, p)
			}
		}()
		fn()
		return nil
	}
}

// GroupOf is the directory a candidate file sits in.
func GroupOf(path string) string {
	dir := filepath.Base(filepath.Dir(path))
	if dir == "." || dir == string(filepath.Separator) {
		return ""
	}
	return dir
}

package cmd

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/signalnine/stratgate/internal/config"
	"github.com/signalnine/stratgate/internal/loader"
	"github.com/signalnine/stratgate/internal/metrics"
	"github.com/signalnine/stratgate/internal/rules"
	"github.com/signalnine/stratgate/internal/runner"
	"github.com/signalnine/stratgate/internal/scenario"
	"github.com/signalnine/stratgate/internal/store"
	"github.com/signalnine/stratgate/internal/validation"
)

func evalOptions(cfg *config.Config, log zerolog.Logger, m *metrics.Recorder) (runner.EvalOpts, error) {
	tbl := rules.Default()
	if cfg.Quality.RulesFile != "" {
		var err error
		if tbl, err = rules.Load(cfg.Quality.RulesFile); err != nil {
			return runner.EvalOpts{}, err
		}
	}
	analyzers := make([]validation.Analyzer, 0, len(cfg.Analyzers))
	for _, a := range cfg.Analyzers {
		analyzers = append(analyzers, validation.Analyzer{Name: a.Name, Command: a.Command, Image: a.Image, Timeout: a.Timeout})
	}
	return runner.EvalOpts{
		TrialOpts: runner.TrialOpts{
			Timeout:  cfg.Harness.Timeout,
			Parallel: cfg.Harness.Parallel,
			Symbol:   cfg.Scenarios.Symbol,
			Metrics:  m,
			Log:      log,
		},
		Load: loader.Options{
			Timeout:  cfg.Harness.LoadTimeout,
			MaxSteps: cfg.Harness.MaxSteps,
			Symbol:   cfg.Scenarios.Symbol,
		},
		Scenarios: scenarioOptions(cfg),
		Scorer:    validation.NewScorer(tbl, cfg.Quality.BranchThreshold, log),
		Analyzers: validation.NewAnalyzerRunner(analyzers, log),
	}, nil
}

func scenarioOptions(cfg *config.Config) scenario.Options {
	return scenario.Options{
		RandomCount:    cfg.Scenarios.RandomCount,
		Seed:           cfg.Scenarios.Seed,
		NullRate:       cfg.Scenarios.NullRate,
		NaNRate:        cfg.Scenarios.NaNRate,
		PositionStates: cfg.Scenarios.PositionStates,
	}
}

// openStore connects to the report history when a DSN is configured.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if cfg.Store.DSN == "" {
		return nil, nil
	}
	s, err := store.Open(ctx, cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

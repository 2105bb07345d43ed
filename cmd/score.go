package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/signalnine/stratgate/internal/config"
	"github.com/signalnine/stratgate/internal/loader"
	"github.com/signalnine/stratgate/internal/metrics"
	"github.com/signalnine/stratgate/internal/report"
	"github.com/signalnine/stratgate/internal/result"
	"github.com/signalnine/stratgate/internal/runner"
)

var (
	flagSeed     int64
	flagRandom   int
	flagParallel int
)

type reportSaver interface {
	SaveReport(ctx context.Context, r *result.Report) error
}

// candidate is one script queued for scoring.
type candidate struct {
	path  string
	name  string
	group string
	seed  *int64
}

func newScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score [paths...]",
		Short: "Score candidate strategy scripts",
		Long:  "Score every .star file named or found under the given directories. Inside a directory the group of a candidate is the first directory below it.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runScore,
	}
	cmd.Flags().Int64Var(&flagSeed, "seed", 0, "seed for the random scenarios (default: config or random)")
	cmd.Flags().IntVar(&flagRandom, "random", -1, "override random scenario count")
	cmd.Flags().IntVar(&flagParallel, "parallel", 0, "override concurrent scenario executions")
	return cmd
}

func runScore(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("seed") {
		cfg.Scenarios.Seed = &flagSeed
	}
	if flagRandom >= 0 {
		cfg.Scenarios.RandomCount = flagRandom
	}
	if flagParallel > 0 {
		cfg.Harness.Parallel = flagParallel
	}

	queue, err := collectCandidates(args)
	if err != nil {
		return err
	}
	if len(queue) == 0 {
		return errors.New("no candidate scripts found")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return scoreAndReport(ctx, cfg, log, queue)
}

// scoreAndReport evaluates the queue into a fresh run directory and prints
// the summary. Shared by score and rescore.
func scoreAndReport(ctx context.Context, cfg *config.Config, log zerolog.Logger, queue []candidate) error {
	m := metrics.New()
	opts, err := evalOptions(cfg, log, m)
	if err != nil {
		return err
	}
	var saver reportSaver
	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("report store unavailable, continuing without it")
	} else if st != nil {
		defer st.Close()
		saver = st
	}

	runDir, err := result.CreateRunDir(cfg.Results.Dir)
	if err != nil {
		return err
	}
	fmt.Printf("Run directory: %s\n", runDir)

	failed := scoreCandidates(ctx, queue, runDir, opts, saver, log)

	if cfg.Metrics.Textfile != "" {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.Warn().Err(err).Msg("writing metrics textfile")
		}
	}

	fmt.Println("\n--- Results ---")
	if err := report.Generate(runDir, "table", os.Stdout); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d candidates failed to load", failed, len(queue))
	}
	return nil
}

// scoreCandidates evaluates each candidate in turn and stores its artifacts.
// It returns how many candidates could not be loaded.
func scoreCandidates(ctx context.Context, queue []candidate, runDir string, opts runner.EvalOpts, saver reportSaver, log zerolog.Logger) int {
	failed := 0
	for i, c := range queue {
		if ctx.Err() != nil {
			fmt.Printf("Interrupted, %d candidates not scored\n", len(queue)-i)
			break
		}
		src, err := loader.ReadSource(c.path)
		if err != nil {
			var le *loader.LoadError
			if errors.As(err, &le) {
				opts.Metrics.ObserveLoadFailure(string(le.Reason))
			}
			fmt.Printf("[%d/%d] %s: %v\n", i+1, len(queue), c.path, err)
			failed++
			continue
		}
		if c.name != "" {
			src.Name = c.name
		}
		o := opts
		o.Group = c.group
		if c.seed != nil {
			o.Scenarios.Seed = c.seed
		}
		fmt.Printf("[%d/%d] Scoring %s...\n", i+1, len(queue), src.Name)
		r, err := runner.Evaluate(ctx, src, o)
		if err != nil {
			fmt.Printf("  REJECTED: %v\n", err)
			failed++
			continue
		}
		fmt.Printf("  %s overall %.2f (robustness %.2f, quality %.2f)\n", r.Grade, r.Overall, r.Robustness, r.Quality)

		dir, err := candidateDir(runDir, c.group, src.Name)
		if err != nil {
			log.Error().Err(err).Str("candidate", src.Name).Msg("creating candidate dir")
			continue
		}
		if err := result.WriteReport(dir, r); err != nil {
			log.Error().Err(err).Str("candidate", src.Name).Msg("writing report")
		}
		if err := result.WriteSource(dir, src.Text); err != nil {
			log.Error().Err(err).Str("candidate", src.Name).Msg("writing source copy")
		}
		if saver != nil {
			if err := saver.SaveReport(ctx, r); err != nil {
				log.Warn().Err(err).Str("candidate", src.Name).Msg("persisting report")
			}
		}
	}
	return failed
}

// candidateDir claims a fresh artifact directory so that two candidates
// with the same name and group never overwrite each other.
func candidateDir(runDir, group, name string) (string, error) {
	dir := result.CandidateDir(runDir, group, name)
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", err
	}
	return result.ClaimDir(dir)
}

// collectCandidates expands files and directories into candidates,
// skipping test scripts. Inside a directory argument the group is the
// first directory below it; a file named directly takes its parent.
func collectCandidates(args []string) ([]candidate, error) {
	var queue []candidate
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", arg, err)
		}
		if !info.IsDir() {
			queue = append(queue, candidate{path: arg, group: runner.GroupOf(arg)})
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !isCandidate(d.Name()) {
				return nil
			}
			queue = append(queue, candidate{path: path, group: groupUnder(arg, path)})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", arg, err)
		}
	}
	return queue, nil
}

func groupUnder(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return runner.GroupOf(path)
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return runner.GroupOf(path)
	}
	return parts[0]
}

func isCandidate(name string) bool {
	return strings.HasSuffix(name, ".star") && !strings.HasSuffix(name, "_test.star")
}

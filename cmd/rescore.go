package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/signalnine/stratgate/internal/result"
)

func newRescoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rescore [run-dir]",
		Short: "Score the candidates of a previous run again",
		Long:  "Re-evaluate every stored candidate.star of a run into a new run, reusing each candidate's recorded seed so results are comparable.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			runDir, err := resolveRunDir(cfg.Results.Dir, args)
			if err != nil {
				return err
			}
			queue, err := storedCandidates(runDir)
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				return fmt.Errorf("no stored candidates under %s", runDir)
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return scoreAndReport(ctx, cfg, log, queue)
		},
	}
}

// storedCandidates finds the candidate copies a run kept. Name and group
// come from the candidates/<group>/<name>/ layout; the seed from the
// report next to the copy when there is one.
func storedCandidates(runDir string) ([]candidate, error) {
	var queue []candidate
	err := filepath.WalkDir(runDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != result.SourceFile {
			return nil
		}
		dir := filepath.Dir(path)
		c := candidate{
			path:  path,
			name:  filepath.Base(dir),
			group: filepath.Base(filepath.Dir(dir)),
		}
		r, err := result.ReadReport(filepath.Join(dir, result.ReportFile))
		switch {
		case err == nil:
			seed := r.Seed
			c.seed = &seed
			c.group = r.Group
			if r.Candidate != "" {
				c.name = r.Candidate
			}
		case !errors.Is(err, fs.ErrNotExist):
			return err
		}
		queue = append(queue, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading run %s: %w", runDir, err)
	}
	return queue, nil
}

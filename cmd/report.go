package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/signalnine/stratgate/internal/report"
	"github.com/signalnine/stratgate/internal/result"
)

var (
	flagFormat    string
	flagCandidate string
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Summarize stored results per group, or detail one candidate",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			runDir, err := resolveRunDir(cfg.Results.Dir, args)
			if err != nil {
				return err
			}
			if flagCandidate != "" {
				return writeCandidateDetail(runDir, flagCandidate)
			}
			return report.Generate(runDir, flagFormat, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json, xlsx)")
	cmd.Flags().StringVar(&flagCandidate, "candidate", "", "print the detailed report of one candidate")
	return cmd
}

// resolveRunDir defaults to the latest run and follows its symlink.
func resolveRunDir(resultsDir string, args []string) (string, error) {
	runDir := filepath.Join(resultsDir, "latest")
	if len(args) > 0 {
		runDir = args[0]
	}
	resolved, err := filepath.EvalSymlinks(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	return resolved, nil
}

func writeCandidateDetail(runDir, name string) error {
	paths, err := result.FindReports(runDir)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if filepath.Base(filepath.Dir(p)) != name {
			continue
		}
		r, err := result.ReadReport(p)
		if err != nil {
			return err
		}
		return report.WriteDetail(r, os.Stdout)
	}
	return fmt.Errorf("candidate %s not found in %s", name, runDir)
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalnine/stratgate/internal/store"
)

var flagLimit int

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <candidate>",
		Short: "List a candidate's stored evaluations, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			if cfg.Store.DSN == "" {
				return errors.New("history needs store.dsn or STRATGATE_DATABASE_URL")
			}
			ctx := context.Background()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			rows, err := st.History(ctx, args[0], flagLimit)
			if err != nil {
				return err
			}
			return writeHistory(rows, os.Stdout)
		},
	}
	cmd.Flags().IntVar(&flagLimit, "limit", 20, "maximum evaluations to list")
	return cmd
}

func writeHistory(rows []store.Summary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FINISHED\tRUN\tGROUP\tSEED\tROBUSTNESS\tQUALITY\tOVERALL\tGRADE\tHASH")
	for _, r := range rows {
		hash := r.SourceHash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.2f\t%.2f\t%.2f\t%s\t%s\n",
			r.FinishedAt.Format(time.RFC3339), r.RunID, r.Group, r.Seed, r.Robustness, r.Quality, r.Overall, r.Grade, hash)
	}
	return tw.Flush()
}

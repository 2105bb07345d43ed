package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/signalnine/stratgate/internal/metrics"
	"github.com/signalnine/stratgate/internal/server"
)

var flagAddr string

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scoring API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			if flagAddr != "" {
				cfg.Server.Addr = flagAddr
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts, err := evalOptions(cfg, log, metrics.New())
			if err != nil {
				return err
			}
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			var reports server.Reports
			if st != nil {
				defer st.Close()
				reports = st
			}
			srv := server.New(opts, server.Options{
				RatePerSec:   cfg.Server.RatePerSec,
				Burst:        cfg.Server.Burst,
				MaxBodyBytes: cfg.Server.MaxBodyBytes,
			}, reports)
			return srv.ListenAndServe(ctx, cfg.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (default: config server.addr)")
	return cmd
}

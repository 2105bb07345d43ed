package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/signalnine/stratgate/internal/config"
	"github.com/signalnine/stratgate/internal/logger"
)

var (
	cfgFile  string
	logLevel string
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "stratgate",
		Short:        "Robustness and quality gate for generated trading strategies",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.AddCommand(newScoreCmd())
	root.AddCommand(newScenariosCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newRescoreCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newHistoryCmd())
	return root
}

// setup loads the config and builds the logger every command shares.
func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr), nil
}

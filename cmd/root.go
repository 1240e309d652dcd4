package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/equitee/equitee-api/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:          "equitee",
	Short:        "Golf accessibility scoring engine",
	Long:         "Scores how affordable and reachable golf is across South Florida zip codes, serves nearby course, mentor and youth program search, and rebuilds the precomputed score table.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the store schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		// initEnv migrates on open.
		env, err := initEnv(cmd.Context(), cfg, "migrate")
		if err != nil {
			return err
		}
		defer env.Close()

		zap.L().Info("schema up to date", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/equitee/equitee-api/internal/seed"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the South Florida reference dataset into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), cfg, "seed")
		if err != nil {
			return err
		}
		defer env.Close()

		return runSeed(cmd.Context(), env, seedFile, cmd.OutOrStdout())
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "YAML dataset to load (default: embedded dataset)")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(ctx context.Context, env *appEnv, path string, out io.Writer) error {
	var (
		d   *seed.Dataset
		err error
	)
	if path == "" {
		d, err = seed.Default()
	} else {
		d, err = seed.Load(path)
	}
	if err != nil {
		return err
	}

	res, err := seed.Apply(ctx, env.Store, d)
	if err != nil {
		return err
	}
	return printJSON(out, res)
}

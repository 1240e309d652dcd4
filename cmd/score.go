package main

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/equitee/equitee-api/internal/model"
	"github.com/equitee/equitee-api/internal/service"
)

var (
	scoreLat float64
	scoreLng float64
	scoreZip string
)

var scoreCmd = &cobra.Command{
	Use:     "score",
	Short:   "Score the golf accessibility of a single location",
	Example: "  equitee score --lat 25.7617 --lng -80.1918\n  equitee score --zip 33311",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		if scoreZip == "" && (!f.Changed("lat") || !f.Changed("lng")) {
			return eris.New("either --zip or both --lat and --lng are required")
		}

		env, err := initEnv(cmd.Context(), cfg, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		return runScore(cmd.Context(), env, model.Coordinate{Lat: scoreLat, Lng: scoreLng}, scoreZip, cmd.OutOrStdout())
	},
}

func init() {
	f := scoreCmd.Flags()
	f.Float64Var(&scoreLat, "lat", 0, "latitude")
	f.Float64Var(&scoreLng, "lng", 0, "longitude")
	f.StringVar(&scoreZip, "zip", "", "score this zip code with its own demographic row instead of a coordinate")
	rootCmd.AddCommand(scoreCmd)
}

// runScore scores zip when set, otherwise origin.
func runScore(ctx context.Context, env *appEnv, origin model.Coordinate, zip string, out io.Writer) error {
	svc := env.Service()

	var (
		ls  *service.LocationScore
		err error
	)
	if zip != "" {
		ls, err = svc.ScoreZip(ctx, zip)
	} else {
		ls, err = svc.ScoreLocation(ctx, origin)
	}
	if err != nil {
		return err
	}
	return printJSON(out, ls)
}

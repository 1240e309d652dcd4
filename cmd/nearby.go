package main

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/equitee/equitee-api/internal/model"
)

var (
	nearbyKind     string
	nearbyLat      float64
	nearbyLng      float64
	nearbyRadius   float64
	nearbyMaxPrice float64
	nearbyLimit    int
)

var nearbyCmd = &cobra.Command{
	Use:   "nearby",
	Short: "List facilities near a location, nearest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, ok := model.ParseKind(nearbyKind)
		if !ok {
			return eris.Errorf("unknown facility kind %q", nearbyKind)
		}
		f := cmd.Flags()
		if !f.Changed("lat") || !f.Changed("lng") {
			return eris.New("--lat and --lng are required")
		}

		env, err := initEnv(cmd.Context(), cfg, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		var radius, maxPrice *float64
		if f.Changed("radius") {
			radius = &nearbyRadius
		}
		if f.Changed("max-price") {
			maxPrice = &nearbyMaxPrice
		}
		return runNearby(cmd.Context(), env, kind, model.Coordinate{Lat: nearbyLat, Lng: nearbyLng}, radius, maxPrice, nearbyLimit, cmd.OutOrStdout())
	},
}

func init() {
	f := nearbyCmd.Flags()
	f.StringVar(&nearbyKind, "kind", "course", "facility kind: course, mentor, youth_program")
	f.Float64Var(&nearbyLat, "lat", 0, "latitude")
	f.Float64Var(&nearbyLng, "lng", 0, "longitude")
	f.Float64Var(&nearbyRadius, "radius", 0, "search radius in miles (default per kind)")
	f.Float64Var(&nearbyMaxPrice, "max-price", 0, "highest representative price (default per kind)")
	f.IntVar(&nearbyLimit, "limit", 0, "maximum results (default: no limit)")
	rootCmd.AddCommand(nearbyCmd)
}

// runNearby overlays radius, maxPrice and limit on the kind defaults when set.
func runNearby(ctx context.Context, env *appEnv, kind model.Kind, origin model.Coordinate, radius, maxPrice *float64, limit int, out io.Writer) error {
	svc := env.Service()

	c := svc.Criteria(kind)
	if radius != nil {
		c.RadiusMiles = *radius
	}
	if maxPrice != nil {
		c.MaxPrice = maxPrice
	}
	if limit > 0 {
		c.Limit = limit
	}

	ranked, err := svc.Nearby(ctx, kind, origin, c)
	if err != nil {
		return err
	}
	return printJSON(out, ranked)
}

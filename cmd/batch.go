package main

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/equitee/equitee-api/internal/batch"
	"github.com/equitee/equitee-api/internal/model"
	"github.com/equitee/equitee-api/internal/monitoring"
)

// errPartialRun makes the process exit non-zero when some score batches
// could not be written.
var errPartialRun = eris.New("batch run completed with failed batches")

var (
	batchMaxDistance float64
	batchSize        int
	batchWorkers     int
	batchKinds       []string
	batchSummaryN    int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Rebuild the precomputed accessibility score table",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyBatchFlags(cmd); err != nil {
			return err
		}

		env, err := initEnv(cmd.Context(), cfg, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		return runBatch(cmd.Context(), env, monitoring.NewMetrics(), batchSummaryN, cmd.OutOrStdout())
	},
}

func init() {
	f := batchCmd.Flags()
	f.Float64Var(&batchMaxDistance, "max-distance", 0, "skip pairs farther apart than this many miles (default from config)")
	f.IntVar(&batchSize, "batch-size", 0, "records per insert (default from config)")
	f.IntVar(&batchWorkers, "workers", 0, "concurrent scoring workers (default from config)")
	f.StringSliceVar(&batchKinds, "kinds", nil, "facility kinds to pair: course, mentor, youth_program (default from config)")
	f.IntVar(&batchSummaryN, "summary", 5, "number of top and bottom records to print")
	rootCmd.AddCommand(batchCmd)
}

// applyBatchFlags overlays explicitly set flags on the loaded config.
func applyBatchFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	if f.Changed("max-distance") {
		cfg.Batch.MaxDistanceMiles = batchMaxDistance
	}
	if f.Changed("batch-size") {
		cfg.Batch.BatchSize = batchSize
	}
	if f.Changed("workers") {
		cfg.Batch.Workers = batchWorkers
	}
	if f.Changed("kinds") {
		kinds := make([]model.Kind, 0, len(batchKinds))
		for _, s := range batchKinds {
			k, ok := model.ParseKind(s)
			if !ok {
				return eris.Errorf("unknown facility kind %q", s)
			}
			kinds = append(kinds, k)
		}
		cfg.Batch.Kinds = kinds
	}
	return nil
}

type batchOutput struct {
	Report  *batch.Report      `json:"report"`
	Partial bool               `json:"partial"`
	Summary *batch.Summary     `json:"summary,omitempty"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

func runBatch(ctx context.Context, env *appEnv, metrics *monitoring.Metrics, summaryN int, out io.Writer) error {
	job := batch.New(env.Store, env.Model, env.Resolver, env.Config.Batch, metrics)

	report, err := job.Run(ctx)
	if err != nil {
		return err
	}

	res := batchOutput{Report: report, Partial: report.Partial()}
	// Nothing scrapes a one-shot run, so the counters are reported here.
	if metrics != nil {
		snap, err := metrics.Snapshot("equitee_batch_")
		if err != nil {
			zap.L().Warn("batch metrics snapshot failed", zap.Error(err))
		} else {
			zap.L().Info("batch metrics", zap.Any("metrics", snap))
			res.Metrics = snap
		}
	}
	if summaryN > 0 {
		s, err := batch.Summarize(ctx, env.Store, summaryN)
		if err != nil {
			zap.L().Warn("batch summary failed", zap.Error(err))
		} else {
			res.Summary = s
		}
	}
	if err := printJSON(out, res); err != nil {
		return err
	}

	if report.Partial() {
		return eris.Wrapf(errPartialRun, "%d of %d batches failed (%d records)",
			report.FailedBatches, report.Batches, report.FailedRecords)
	}
	return nil
}

// Package batch implements the full-refresh pairing job: every demographic
// area is scored against every facility within range and the results replace
// the previous generation of score records.
package batch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/equitee/equitee-api/internal/accessibility"
	"github.com/equitee/equitee-api/internal/geo"
	"github.com/equitee/equitee-api/internal/model"
	"github.com/equitee/equitee-api/internal/monitoring"
	"github.com/equitee/equitee-api/internal/resilience"
	"github.com/equitee/equitee-api/internal/store"
)

// Config controls a batch run.
type Config struct {
	MaxDistanceMiles float64                         `mapstructure:"max_distance_miles"`
	BatchSize        int                             `mapstructure:"batch_size"`
	ProgressEvery    int                             `mapstructure:"progress_every"`
	Workers          int                             `mapstructure:"workers"`
	Kinds            []model.Kind                    `mapstructure:"kinds"`
	Breaker          resilience.CircuitBreakerConfig `mapstructure:"breaker"`

	// Retry is filled from the top-level retry section.
	Retry resilience.RetryConfig `mapstructure:"-"`
}

// DefaultConfig returns the production batch settings.
func DefaultConfig() Config {
	return Config{
		MaxDistanceMiles: 50,
		BatchSize:        500,
		ProgressEvery:    100,
		Workers:          4,
		Kinds:            []model.Kind{model.KindCourse},
		Retry:            resilience.DefaultRetryConfig(),
		Breaker:          resilience.DefaultCircuitBreakerConfig(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxDistanceMiles <= 0 {
		c.MaxDistanceMiles = def.MaxDistanceMiles
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = def.ProgressEvery
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if len(c.Kinds) == 0 {
		c.Kinds = def.Kinds
	}
	return c
}

// Report summarizes a run. Written < Staged means some batches were lost.
// DurationSeconds mirrors Duration for JSON output.
type Report struct {
	RunID           string        `json:"run_id"`
	Areas           int           `json:"areas"`
	Facilities      int           `json:"facilities"`
	Deleted         int64         `json:"deleted"`
	Pairs           int64         `json:"pairs"`
	Skipped         int64         `json:"skipped"`
	Invalid         int64         `json:"invalid"`
	Staged          int           `json:"staged"`
	Written         int64         `json:"written"`
	Batches         int           `json:"batches"`
	FailedBatches   int           `json:"failed_batches"`
	FailedRecords   int           `json:"failed_records"`
	DegradedAreas   int64         `json:"degraded_areas"`
	Duration        time.Duration `json:"-"`
	DurationSeconds float64       `json:"duration_seconds"`
}

// Partial reports whether any batch failed to persist.
func (r Report) Partial() bool {
	return r.FailedBatches > 0
}

// Job pairs areas with facilities and persists the scores.
type Job struct {
	Areas      store.DemographicStore
	Facilities store.FacilityStore
	Records    store.ScoreRecordStore
	Model      *accessibility.Model
	Resolver   *geo.Resolver
	Config     Config

	// Metrics is optional.
	Metrics *monitoring.Metrics

	now func() time.Time
}

// New creates a Job over a single store.
func New(st store.Store, m *accessibility.Model, r *geo.Resolver, cfg Config, metrics *monitoring.Metrics) *Job {
	return &Job{
		Areas:      st,
		Facilities: st,
		Records:    st,
		Model:      m,
		Resolver:   r,
		Config:     cfg,
		Metrics:    metrics,
	}
}

// Run clears the score records and rebuilds them. Load and clear failures
// abort the run; failed writes are logged, counted in the report, and do not
// stop the remaining batches.
func (j *Job) Run(ctx context.Context) (*Report, error) {
	cfg := j.Config.withDefaults()
	now := j.now
	if now == nil {
		now = time.Now
	}
	start := now()
	report := &Report{RunID: uuid.New().String()}
	log := zap.L().With(zap.String("run_id", report.RunID))

	areas, err := j.Areas.ListAreas(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "batch: load areas")
	}
	var facilities []model.Facility
	for _, kind := range cfg.Kinds {
		fs, err := j.Facilities.ListFacilities(ctx, kind, store.FacilityFilter{})
		if err != nil {
			return nil, eris.Wrapf(err, "batch: load %s facilities", kind)
		}
		facilities = append(facilities, fs...)
	}
	report.Areas = len(areas)
	report.Facilities = len(facilities)

	log.Info("batch: starting",
		zap.Int("areas", len(areas)),
		zap.Int("facilities", len(facilities)),
		zap.Float64("max_distance_miles", cfg.MaxDistanceMiles),
		zap.Int("workers", cfg.Workers),
	)

	deleted, err := j.Records.DeleteAll(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "batch: clear score records")
	}
	report.Deleted = deleted

	staged, err := j.score(ctx, cfg, areas, facilities, now().UTC(), report, log)
	if err != nil {
		return nil, err
	}
	report.Staged = len(staged)

	j.write(ctx, cfg, staged, report, log)

	report.Duration = now().Sub(start)
	report.DurationSeconds = report.Duration.Seconds()
	j.observe(report)

	log.Info("batch: complete",
		zap.Int64("pairs", report.Pairs),
		zap.Int("staged", report.Staged),
		zap.Int64("written", report.Written),
		zap.Int("failed_batches", report.FailedBatches),
		zap.Int64("degraded_areas", report.DegradedAreas),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// score fans out over areas. Each worker fills its own slot so the staged
// order is the area order regardless of scheduling.
func (j *Job) score(ctx context.Context, cfg Config, areas []model.DemographicArea, facilities []model.Facility, computedAt time.Time, report *Report, log *zap.Logger) ([]model.AccessibilityScoreRecord, error) {
	perArea := make([][]model.AccessibilityScoreRecord, len(areas))

	var pairs, skipped, invalid, degraded atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for i, area := range areas {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			res := j.Resolver.ResolveArea(area)
			if res.Degraded() {
				degraded.Add(1)
				log.Debug("batch: degraded area centroid",
					zap.String("zip", area.ZipCode),
					zap.String("precision", string(res.Precision)),
				)
			}

			var out []model.AccessibilityScoreRecord
			for _, f := range facilities {
				n := pairs.Add(1)
				if n%int64(cfg.ProgressEvery) == 0 {
					log.Info("batch: progress", zap.Int64("pairs", n))
				}

				if f.Location == nil {
					skipped.Add(1)
					continue
				}
				d := geo.Distance(res.Coordinate, *f.Location)
				if d > cfg.MaxDistanceMiles {
					skipped.Add(1)
					continue
				}

				result, err := j.Model.ScoreBatchVariant(area.MedianIncome, accessibility.InputFromFacility(f), d)
				if err != nil {
					invalid.Add(1)
					log.Warn("batch: unscorable pair",
						zap.String("zip", area.ZipCode),
						zap.String("facility_id", f.ID),
						zap.Error(err),
					)
					continue
				}
				out = append(out, model.AccessibilityScoreRecord{
					ZipCode:      area.ZipCode,
					FacilityID:   f.ID,
					FacilityKind: f.Kind,
					ComputedAt:   computedAt,
					ScoreResult:  result,
				})
			}
			perArea[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "batch: scoring")
	}

	report.Pairs = pairs.Load()
	report.Skipped = skipped.Load()
	report.Invalid = invalid.Load()
	report.DegradedAreas = degraded.Load()

	var staged []model.AccessibilityScoreRecord
	for _, recs := range perArea {
		staged = append(staged, recs...)
	}
	return staged, nil
}

// write persists staged records in BatchSize chunks. Each chunk is retried on
// transient errors. Every chunk is attempted: while the breaker is open the
// writer pauses for its reset window instead of dropping chunks.
func (j *Job) write(ctx context.Context, cfg Config, staged []model.AccessibilityScoreRecord, report *Report, log *zap.Logger) {
	breaker := resilience.NewCircuitBreaker(cfg.Breaker)
	retry := cfg.Retry

	for start := 0; start < len(staged); start += cfg.BatchSize {
		end := min(start+cfg.BatchSize, len(staged))
		chunk := staged[start:end]
		report.Batches++

		retry.OnRetry = resilience.RetryLogger("batch: insert scores", zap.Int("offset", start), zap.Int("size", len(chunk)))

		var written int64
		err := breaker.Wait(ctx)
		if err == nil {
			err = breaker.Execute(ctx, func(ctx context.Context) error {
				n, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (int64, error) {
					return j.Records.InsertBatch(ctx, chunk)
				})
				written = n
				return err
			})
		}
		if err != nil {
			report.FailedBatches++
			report.FailedRecords += len(chunk)
			log.Error("batch: insert failed, skipping batch",
				zap.Int("offset", start),
				zap.Int("size", len(chunk)),
				zap.Error(err),
			)
			continue
		}
		report.Written += written
	}
}

func (j *Job) observe(r *Report) {
	if j.Metrics == nil {
		return
	}
	j.Metrics.BatchPairs.Add(float64(r.Pairs))
	j.Metrics.BatchRecords.Add(float64(r.Written))
	j.Metrics.BatchFailedBatches.Add(float64(r.FailedBatches))
	j.Metrics.BatchDegradedAreas.Add(float64(r.DegradedAreas))
	j.Metrics.BatchDuration.Observe(r.Duration.Seconds())
}

// Summary is the verification view of a finished run.
type Summary struct {
	Top    []model.AccessibilityScoreRecord `json:"top"`
	Bottom []model.AccessibilityScoreRecord `json:"bottom"`
}

// Summarize returns the n best and n worst persisted records.
func Summarize(ctx context.Context, records store.ScoreRecordStore, n int) (*Summary, error) {
	top, err := records.ListByScore(ctx, false, n)
	if err != nil {
		return nil, eris.Wrap(err, "batch: list top scores")
	}
	bottom, err := records.ListByScore(ctx, true, n)
	if err != nil {
		return nil, eris.Wrap(err, "batch: list bottom scores")
	}
	return &Summary{Top: top, Bottom: bottom}, nil
}

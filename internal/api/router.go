// Package api serves the accessibility engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/equitee/equitee-api/internal/matching"
	"github.com/equitee/equitee-api/internal/model"
	"github.com/equitee/equitee-api/internal/monitoring"
	"github.com/equitee/equitee-api/internal/service"
)

// Service is the subset of *service.Service the handlers call.
type Service interface {
	Criteria(kind model.Kind) matching.Criteria
	Nearby(ctx context.Context, kind model.Kind, origin model.Coordinate, c matching.Criteria) ([]matching.Ranked, error)
	ScoreLocation(ctx context.Context, origin model.Coordinate) (*service.LocationScore, error)
	ScoreZip(ctx context.Context, zip string) (*service.LocationScore, error)
	ScorePair(ctx context.Context, zip, facilityID string) (*service.PairScore, error)
	ZipScores(ctx context.Context, zip string) ([]model.AccessibilityScoreRecord, error)
	Heatmap(ctx context.Context) ([]service.HeatmapEntry, error)
	Area(ctx context.Context, zip string) (*model.DemographicArea, error)

	Facility(ctx context.Context, kind model.Kind, id string) (*model.Facility, error)
	Specialties(ctx context.Context) ([]string, error)
	MentorStats(ctx context.Context) (*service.MentorStats, error)
	YouthProgramStats(ctx context.Context) (*service.YouthProgramStats, error)
	FreeYouthPrograms(ctx context.Context) ([]model.Facility, error)
}

var _ Service = (*service.Service)(nil)

// Config controls the HTTP middleware stack.
type Config struct {
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DefaultConfig returns permissive CORS, 20 req/s with a burst of 40, and a
// 15s handler timeout.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
		RateLimit:      20,
		RateBurst:      40,
		RequestTimeout: 15 * time.Second,
	}
}

type handler struct {
	svc Service
}

// NewRouter builds the HTTP handler. metrics may be nil, in which case
// request metrics and /metrics are disabled.
func NewRouter(svc Service, metrics *monitoring.Metrics, cfg Config) http.Handler {
	h := &handler{svc: svc}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if metrics != nil {
		r.Use(instrument(metrics))
	}
	if cfg.RateLimit > 0 {
		r.Use(rateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.RateBurst, 1))))
	}
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", h.health)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/courses/nearby", h.nearbyCourses)
		r.Get("/courses/{id}", h.facility(model.KindCourse))

		r.Get("/mentors/nearby", h.nearbyMentors)
		r.Get("/mentors/specialties", h.specialties)
		r.Get("/mentors/stats", h.mentorStats)
		r.Get("/mentors/{id}", h.facility(model.KindMentor))

		r.Get("/youth-programs/nearby", h.nearbyYouthPrograms)
		r.Get("/youth-programs/free", h.freeYouthPrograms)
		r.Get("/youth-programs/stats", h.youthProgramStats)
		r.Get("/youth-programs/{id}", h.facility(model.KindYouthProgram))

		r.Get("/accessibility/score", h.scoreLocation)
		r.Get("/accessibility/zip/{zip}", h.zipScores)
		r.Get("/accessibility/zip/{zip}/facility/{id}", h.scorePair)

		r.Get("/demographics/heatmap", h.heatmap)
		r.Get("/demographics/zip/{zip}", h.area)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "route not found"})
	})
	return r
}

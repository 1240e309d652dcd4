// Package service answers request-time accessibility questions on top of the
// stores: nearby facility search, single-location scores, persisted pair
// scores and the demographic heatmap.
package service

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/equitee/equitee-api/internal/accessibility"
	"github.com/equitee/equitee-api/internal/geo"
	"github.com/equitee/equitee-api/internal/matching"
	"github.com/equitee/equitee-api/internal/model"
	"github.com/equitee/equitee-api/internal/store"
)

// Config holds the request-time scoring knobs and cache lifetimes.
type Config struct {
	// LocationRadiusMiles bounds the affordable-course search of ScoreLocation.
	LocationRadiusMiles float64 `mapstructure:"location_radius_miles"`
	// AffordablePrice is the highest representative price still considered
	// affordable.
	AffordablePrice float64 `mapstructure:"affordable_price"`

	// Cache lifetimes come from the top-level cache section.
	CacheTTL     time.Duration `mapstructure:"-"`
	CacheCleanup time.Duration `mapstructure:"-"`
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		LocationRadiusMiles: 25,
		AffordablePrice:     100,
		CacheTTL:            5 * time.Minute,
		CacheCleanup:        10 * time.Minute,
	}
}

// LocationScore is the accessibility of a single point.
type LocationScore struct {
	ZipCode                 string           `json:"zipCode"`
	AccessibilityScore      float64          `json:"accessibilityScore"`
	NearestAffordableCourse *matching.Ranked `json:"nearestAffordableCourse"`
	EstimatedAnnualCost     int              `json:"estimatedAnnualCost"`
	TransportationOptions   []string         `json:"transportationOptions"`
	// Degraded is set when the matched area's centroid came from a fallback.
	Degraded bool `json:"degraded"`
}

// PairScore is the score of one (zip, facility) pair.
type PairScore struct {
	ZipCode    string     `json:"zip_code"`
	FacilityID string     `json:"facility_id"`
	Persisted  bool       `json:"persisted"`
	ComputedAt *time.Time `json:"computed_at,omitempty"`
	model.ScoreResult
}

// HeatmapEntry is one area on the heatmap. AccessibilityScore is the mean
// persisted score for the zip and is omitted when the zip has no records.
type HeatmapEntry struct {
	ZipCode            string   `json:"zipCode"`
	MedianIncome       float64  `json:"medianIncome"`
	Population         int      `json:"population"`
	County             string   `json:"county"`
	AccessibilityScore *float64 `json:"accessibilityScore,omitempty"`
}

// Service is safe for concurrent use.
type Service struct {
	facilities store.FacilityStore
	areas      store.DemographicStore
	records    store.ScoreRecordStore

	model    *accessibility.Model
	resolver *geo.Resolver
	defaults matching.Settings
	cfg      Config

	cache *cache.Cache
}

// New creates a Service over st.
func New(st store.Store, m *accessibility.Model, r *geo.Resolver, defaults matching.Settings, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.LocationRadiusMiles <= 0 {
		cfg.LocationRadiusMiles = def.LocationRadiusMiles
	}
	if cfg.AffordablePrice <= 0 {
		cfg.AffordablePrice = def.AffordablePrice
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.CacheCleanup <= 0 {
		cfg.CacheCleanup = def.CacheCleanup
	}
	return &Service{
		facilities: st,
		areas:      st,
		records:    st,
		model:      m,
		resolver:   r,
		defaults:   defaults,
		cfg:        cfg,
		cache:      cache.New(cfg.CacheTTL, cfg.CacheCleanup),
	}
}

// Criteria returns the default search criteria for kind.
func (s *Service) Criteria(kind model.Kind) matching.Criteria {
	return s.defaults.Criteria(kind)
}

// Nearby ranks facilities of kind around origin. Flag and availability
// filters are pushed down to the store.
func (s *Service) Nearby(ctx context.Context, kind model.Kind, origin model.Coordinate, c matching.Criteria) ([]matching.Ranked, error) {
	if err := geo.Validate(origin); err != nil {
		return nil, err
	}
	candidates, err := s.facilities.ListFacilities(ctx, kind, store.FacilityFilter{
		Flags:         c.Flags,
		AvailableOnly: c.AvailableOnly,
		Within:        &store.Circle{Center: origin, RadiusMiles: c.RadiusMiles},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "service: list %s facilities", kind)
	}
	return matching.Rank(origin, candidates, c)
}

// ScoreLocation scores origin against the nearest affordable course using
// the income of the nearest demographic area. No course in range yields a
// zero score, not an error.
func (s *Service) ScoreLocation(ctx context.Context, origin model.Coordinate) (*LocationScore, error) {
	if err := geo.Validate(origin); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("score:%.5f:%.5f", origin.Lat, origin.Lng)
	if v, ok := s.cache.Get(key); ok {
		return v.(*LocationScore).clone(), nil
	}

	areas, err := s.listAreas(ctx)
	if err != nil {
		return nil, err
	}
	area, res, ok := s.nearestArea(areas, origin)
	if !ok {
		return nil, eris.Wrap(store.ErrNotFound, "service: no demographic data")
	}

	ls, err := s.scoreArea(ctx, origin, area, res)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, ls)
	return ls.clone(), nil
}

// ScoreZip scores zip with its own demographic row, searching for courses
// around the zip's resolved centroid. Unknown zips are ErrNotFound.
func (s *Service) ScoreZip(ctx context.Context, zip string) (*LocationScore, error) {
	key := "zip:" + zip
	if v, ok := s.cache.Get(key); ok {
		return v.(*LocationScore).clone(), nil
	}

	area, err := s.areas.GetArea(ctx, zip)
	if err != nil {
		return nil, eris.Wrapf(err, "service: get area %s", zip)
	}
	res := s.resolver.ResolveArea(*area)

	ls, err := s.scoreArea(ctx, res.Coordinate, *area, res)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, ls)
	return ls.clone(), nil
}

func (s *Service) scoreArea(ctx context.Context, origin model.Coordinate, area model.DemographicArea, res geo.Resolution) (*LocationScore, error) {
	courses, err := s.Nearby(ctx, model.KindCourse, origin, matching.Criteria{
		RadiusMiles: s.cfg.LocationRadiusMiles,
		MaxPrice:    model.Float(s.cfg.AffordablePrice),
		Limit:       1,
	})
	if err != nil {
		return nil, err
	}

	ls := &LocationScore{
		ZipCode:               area.ZipCode,
		TransportationOptions: []string{},
		Degraded:              res.Degraded(),
	}
	if len(courses) == 0 {
		return ls, nil
	}

	nearest := courses[0]
	avg, _ := nearest.RepresentativePrice()
	score, err := s.model.ScoreRequestVariant(accessibility.RequestInput{
		MedianIncome:  area.MedianIncome,
		AvgPrice:      avg,
		DistanceMiles: nearest.DistanceMiles,
		YouthPrograms: nearest.YouthPrograms,
	})
	if err != nil {
		return nil, err
	}
	ls.AccessibilityScore = score
	ls.NearestAffordableCourse = &nearest
	ls.EstimatedAnnualCost = int(math.Round(s.model.AnnualCost(avg)))
	ls.TransportationOptions = geo.TransportOptions(nearest.DistanceMiles)
	return ls, nil
}

// clone copies ls deeply enough that callers cannot reach the cached value.
func (ls *LocationScore) clone() *LocationScore {
	out := *ls
	out.TransportationOptions = slices.Clone(ls.TransportationOptions)
	if ls.NearestAffordableCourse != nil {
		c := *ls.NearestAffordableCourse
		c.Facility = c.Facility.Clone()
		out.NearestAffordableCourse = &c
	}
	return &out
}

// ScorePair returns the persisted score for (zip, facilityID) when the batch
// job produced one, and computes the batch formula on the fly otherwise.
func (s *Service) ScorePair(ctx context.Context, zip, facilityID string) (*PairScore, error) {
	rec, err := s.records.GetRecord(ctx, zip, facilityID)
	if err == nil {
		computedAt := rec.ComputedAt
		return &PairScore{
			ZipCode:     rec.ZipCode,
			FacilityID:  rec.FacilityID,
			Persisted:   true,
			ComputedAt:  &computedAt,
			ScoreResult: rec.ScoreResult,
		}, nil
	}
	if !eris.Is(err, store.ErrNotFound) {
		return nil, eris.Wrap(err, "service: get score record")
	}

	area, err := s.areas.GetArea(ctx, zip)
	if err != nil {
		return nil, eris.Wrapf(err, "service: get area %s", zip)
	}
	f, err := s.facilities.GetFacility(ctx, facilityID)
	if err != nil {
		return nil, eris.Wrapf(err, "service: get facility %s", facilityID)
	}
	if f.Location == nil {
		return nil, eris.Wrapf(geo.ErrInvalidInput, "service: facility %s has no location", facilityID)
	}

	res := s.resolver.ResolveArea(*area)
	result, err := s.model.ScoreBatchVariant(area.MedianIncome, accessibility.InputFromFacility(*f), geo.Distance(res.Coordinate, *f.Location))
	if err != nil {
		return nil, err
	}
	zap.L().Debug("service: computed pair score on demand",
		zap.String("zip", zip),
		zap.String("facility_id", facilityID),
	)
	return &PairScore{ZipCode: zip, FacilityID: facilityID, ScoreResult: result}, nil
}

// ZipScores returns the persisted records for zip, best first.
func (s *Service) ZipScores(ctx context.Context, zip string) ([]model.AccessibilityScoreRecord, error) {
	if _, err := s.areas.GetArea(ctx, zip); err != nil {
		return nil, eris.Wrapf(err, "service: get area %s", zip)
	}
	recs, err := s.records.ListByZip(ctx, zip)
	if err != nil {
		return nil, eris.Wrapf(err, "service: list scores for %s", zip)
	}
	if recs == nil {
		recs = []model.AccessibilityScoreRecord{}
	}
	return recs, nil
}

// Heatmap returns every area with its mean persisted score.
func (s *Service) Heatmap(ctx context.Context) ([]HeatmapEntry, error) {
	if v, ok := s.cache.Get("heatmap"); ok {
		return cloneHeatmap(v.([]HeatmapEntry)), nil
	}

	areas, err := s.listAreas(ctx)
	if err != nil {
		return nil, err
	}
	avg, err := s.records.AverageByZip(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "service: average scores")
	}

	out := make([]HeatmapEntry, 0, len(areas))
	for _, a := range areas {
		e := HeatmapEntry{
			ZipCode:      a.ZipCode,
			MedianIncome: a.MedianIncome,
			County:       a.County,
		}
		if a.Population != nil {
			e.Population = *a.Population
		}
		if v, ok := avg[a.ZipCode]; ok {
			e.AccessibilityScore = model.Float(math.Round(v*100) / 100)
		}
		out = append(out, e)
	}

	s.cache.SetDefault("heatmap", out)
	return cloneHeatmap(out), nil
}

func cloneHeatmap(entries []HeatmapEntry) []HeatmapEntry {
	out := slices.Clone(entries)
	for i, e := range out {
		if e.AccessibilityScore != nil {
			out[i].AccessibilityScore = model.Float(*e.AccessibilityScore)
		}
	}
	return out
}

// Area returns the demographic row for zip.
func (s *Service) Area(ctx context.Context, zip string) (*model.DemographicArea, error) {
	a, err := s.areas.GetArea(ctx, zip)
	if err != nil {
		return nil, eris.Wrapf(err, "service: get area %s", zip)
	}
	return a, nil
}

func (s *Service) listAreas(ctx context.Context) ([]model.DemographicArea, error) {
	if v, ok := s.cache.Get("areas"); ok {
		return v.([]model.DemographicArea), nil
	}
	areas, err := s.areas.ListAreas(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "service: list areas")
	}
	s.cache.SetDefault("areas", areas)
	return areas, nil
}

// nearestArea picks the area whose resolved centroid is closest to origin.
// Areas arrive ordered by zip, so ties go to the lowest zip.
func (s *Service) nearestArea(areas []model.DemographicArea, origin model.Coordinate) (model.DemographicArea, geo.Resolution, bool) {
	var (
		best    model.DemographicArea
		bestRes geo.Resolution
		bestD   = math.Inf(1)
		found   bool
	)
	for _, a := range areas {
		res := s.resolver.ResolveArea(a)
		if d := geo.Distance(origin, res.Coordinate); d < bestD {
			best, bestRes, bestD, found = a, res, d, true
		}
	}
	return best, bestRes, found
}

package service

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equitee/equitee-api/internal/accessibility"
	"github.com/equitee/equitee-api/internal/geo"
	"github.com/equitee/equitee-api/internal/matching"
	"github.com/equitee/equitee-api/internal/model"
	"github.com/equitee/equitee-api/internal/store"
)

var miami = model.Coordinate{Lat: 25.7617, Lng: -80.1918}

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()

	_, err := st.UpsertAreas(ctx, []model.DemographicArea{
		{ZipCode: "33101", MedianIncome: 45000, Population: model.Int(28000), County: "Miami-Dade"},
		{ZipCode: "33301", MedianIncome: 62000, County: "Broward"},
	})
	require.NoError(t, err)

	_, err = st.UpsertFacilities(ctx, []model.Facility{
		{ID: "cheap", Kind: model.KindCourse, Name: "Cheap Links", Location: &model.Coordinate{Lat: 25.79, Lng: -80.13},
			PriceMin: model.Float(25), PriceMax: model.Float(45), YouthPrograms: true},
		{ID: "pricey", Kind: model.KindCourse, Name: "Country Club", Location: &model.Coordinate{Lat: 25.77, Lng: -80.19},
			PriceMin: model.Float(150), PriceMax: model.Float(250), EquipmentRental: true},
		{ID: "unplaced", Kind: model.KindCourse, Name: "Unplaced"},
		{ID: "coach", Kind: model.KindMentor, Name: "Coach", Location: &model.Coordinate{Lat: 25.77, Lng: -80.2},
			Price: model.Float(80), Available: true, Specialties: []string{"putting"}},
	})
	require.NoError(t, err)

	svc := New(st, accessibility.Default(), geo.DefaultResolver(), matching.DefaultSettings(), DefaultConfig())
	return svc, st
}

func TestNearby(t *testing.T) {
	svc, _ := newTestService(t)

	got, err := svc.Nearby(context.Background(), model.KindCourse, miami, svc.Criteria(model.KindCourse))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "pricey", got[0].ID)
	assert.Equal(t, "cheap", got[1].ID)

	c := svc.Criteria(model.KindCourse)
	c.Flags = map[model.Flag]bool{model.FlagYouthPrograms: true}
	got, err = svc.Nearby(context.Background(), model.KindCourse, miami, c)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "cheap", got[0].ID)
}

func TestNearby_NoImplicitCap(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	courses := make([]model.Facility, 25)
	for i := range courses {
		courses[i] = model.Facility{
			ID:       fmt.Sprintf("c-%02d", i),
			Kind:     model.KindCourse,
			Name:     fmt.Sprintf("Course %02d", i),
			Location: &model.Coordinate{Lat: miami.Lat + float64(i)*0.01, Lng: miami.Lng},
		}
	}
	_, err := st.UpsertFacilities(ctx, courses)
	require.NoError(t, err)

	svc := New(st, accessibility.Default(), geo.DefaultResolver(), matching.DefaultSettings(), DefaultConfig())

	got, err := svc.Nearby(ctx, model.KindCourse, miami, svc.Criteria(model.KindCourse))
	require.NoError(t, err)
	assert.Len(t, got, 25)

	c := svc.Criteria(model.KindCourse)
	c.Limit = 5
	got, err = svc.Nearby(ctx, model.KindCourse, miami, c)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

// filterRecorder remembers the last filter passed to ListFacilities.
type filterRecorder struct {
	store.Store
	last store.FacilityFilter
}

func (r *filterRecorder) ListFacilities(ctx context.Context, kind model.Kind, filter store.FacilityFilter) ([]model.Facility, error) {
	r.last = filter
	return r.Store.ListFacilities(ctx, kind, filter)
}

func TestNearby_PassesSearchCircle(t *testing.T) {
	rec := &filterRecorder{Store: store.NewMemory()}
	svc := New(rec, accessibility.Default(), geo.DefaultResolver(), matching.DefaultSettings(), DefaultConfig())

	c := svc.Criteria(model.KindMentor)
	c.RadiusMiles = 12
	_, err := svc.Nearby(context.Background(), model.KindMentor, miami, c)
	require.NoError(t, err)

	require.NotNil(t, rec.last.Within)
	assert.Equal(t, miami, rec.last.Within.Center)
	assert.Equal(t, 12.0, rec.last.Within.RadiusMiles)
	assert.True(t, rec.last.AvailableOnly)
}

func TestNearby_Mentors(t *testing.T) {
	svc, _ := newTestService(t)

	got, err := svc.Nearby(context.Background(), model.KindMentor, miami, svc.Criteria(model.KindMentor))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "coach", got[0].ID)
}

func TestNearby_InvalidOrigin(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Nearby(context.Background(), model.KindCourse, model.Coordinate{Lat: math.NaN()}, matching.Criteria{RadiusMiles: 5})
	assert.ErrorIs(t, err, geo.ErrInvalidInput)
}

func TestScoreLocation(t *testing.T) {
	svc, _ := newTestService(t)

	ls, err := svc.ScoreLocation(context.Background(), miami)
	require.NoError(t, err)

	assert.Equal(t, "33101", ls.ZipCode)
	assert.False(t, ls.Degraded)
	require.NotNil(t, ls.NearestAffordableCourse)
	assert.Equal(t, "cheap", ls.NearestAffordableCourse.ID)
	assert.InDelta(t, 4.3, ls.NearestAffordableCourse.DistanceMiles, 0.2)
	// 35 * 24 + 500 + 800
	assert.Equal(t, 2140, ls.EstimatedAnnualCost)
	assert.Equal(t, 100.0, ls.AccessibilityScore)
	assert.Equal(t, []string{geo.ModeBiking, geo.ModeRideshare, geo.ModeDriving, geo.ModePublicTransit}, ls.TransportationOptions)
}

func TestScoreLocation_NoCourseInRange(t *testing.T) {
	svc, _ := newTestService(t)

	orlando := model.Coordinate{Lat: 28.5383, Lng: -81.3792}
	ls, err := svc.ScoreLocation(context.Background(), orlando)
	require.NoError(t, err)

	assert.Equal(t, "33301", ls.ZipCode)
	assert.Zero(t, ls.AccessibilityScore)
	assert.Nil(t, ls.NearestAffordableCourse)
	assert.Zero(t, ls.EstimatedAnnualCost)
	assert.NotNil(t, ls.TransportationOptions)
	assert.Empty(t, ls.TransportationOptions)
}

func TestScoreLocation_NoAreas(t *testing.T) {
	svc := New(store.NewMemory(), accessibility.Default(), geo.DefaultResolver(), matching.DefaultSettings(), DefaultConfig())

	_, err := svc.ScoreLocation(context.Background(), miami)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestScoreLocation_InvalidOrigin(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ScoreLocation(context.Background(), model.Coordinate{Lat: 95, Lng: 0})
	assert.ErrorIs(t, err, geo.ErrInvalidInput)
}

func TestScoreLocation_Cached(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	first, err := svc.ScoreLocation(ctx, miami)
	require.NoError(t, err)

	_, err = st.UpsertFacilities(ctx, []model.Facility{{ID: "cheap", Kind: model.KindCourse, Name: "Cheap Links",
		Location: &model.Coordinate{Lat: 25.79, Lng: -80.13}, PriceMin: model.Float(500), PriceMax: model.Float(600)}})
	require.NoError(t, err)

	second, err := svc.ScoreLocation(ctx, miami)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Callers get their own copy.
	second.ZipCode = "mutated"
	third, err := svc.ScoreLocation(ctx, miami)
	require.NoError(t, err)
	assert.Equal(t, "33101", third.ZipCode)
}

func TestScoreZip_UsesOwnArea(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	// Both zips resolve to the same Miami-Dade centroid.
	_, err := st.UpsertAreas(ctx, []model.DemographicArea{
		{ZipCode: "33101", MedianIncome: 20000, County: "Miami-Dade"},
		{ZipCode: "33156", MedianIncome: 150000, County: "Miami-Dade"},
	})
	require.NoError(t, err)
	_, err = st.UpsertFacilities(ctx, []model.Facility{
		{ID: "mid", Kind: model.KindCourse, Name: "Midtown Links", Location: &model.Coordinate{Lat: 25.79, Lng: -80.13},
			PriceMin: model.Float(90), PriceMax: model.Float(108)},
	})
	require.NoError(t, err)

	m := accessibility.Default()
	svc := New(st, m, geo.DefaultResolver(), matching.DefaultSettings(), DefaultConfig())

	score := func(income float64, ls *LocationScore) float64 {
		t.Helper()
		require.NotNil(t, ls.NearestAffordableCourse)
		want, err := m.ScoreRequestVariant(accessibility.RequestInput{
			MedianIncome:  income,
			AvgPrice:      99,
			DistanceMiles: ls.NearestAffordableCourse.DistanceMiles,
		})
		require.NoError(t, err)
		return want
	}

	rich, err := svc.ScoreZip(ctx, "33156")
	require.NoError(t, err)
	assert.Equal(t, "33156", rich.ZipCode)
	assert.Equal(t, score(150000, rich), rich.AccessibilityScore)

	poor, err := svc.ScoreZip(ctx, "33101")
	require.NoError(t, err)
	assert.Equal(t, "33101", poor.ZipCode)
	assert.Equal(t, score(20000, poor), poor.AccessibilityScore)

	assert.Greater(t, rich.AccessibilityScore, poor.AccessibilityScore)
}

func TestScoreZip_Errors(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ScoreZip(context.Background(), "32801")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestScoreLocation_CachedCopyIsDeep(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.ScoreLocation(ctx, miami)
	require.NoError(t, err)
	require.NotNil(t, first.NearestAffordableCourse)
	require.NotEmpty(t, first.TransportationOptions)

	first.TransportationOptions[0] = "teleport"
	first.NearestAffordableCourse.Name = "mutated"
	first.NearestAffordableCourse.Location.Lat = 0

	second, err := svc.ScoreLocation(ctx, miami)
	require.NoError(t, err)
	assert.Equal(t, geo.ModeBiking, second.TransportationOptions[0])
	assert.Equal(t, "Cheap Links", second.NearestAffordableCourse.Name)
	assert.Equal(t, 25.79, second.NearestAffordableCourse.Location.Lat)
}

func TestScorePair_Persisted(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	_, err := st.InsertBatch(ctx, []model.AccessibilityScoreRecord{{
		ZipCode: "33101", FacilityID: "cheap", FacilityKind: model.KindCourse, ComputedAt: at,
		ScoreResult: model.ScoreResult{AccessibilityScore: 77.5, DistanceMiles: 4.32, EstimatedAnnualCost: 2140, TransportScore: 8},
	}})
	require.NoError(t, err)

	ps, err := svc.ScorePair(ctx, "33101", "cheap")
	require.NoError(t, err)
	assert.True(t, ps.Persisted)
	require.NotNil(t, ps.ComputedAt)
	assert.Equal(t, at, *ps.ComputedAt)
	assert.Equal(t, 77.5, ps.AccessibilityScore)
}

func TestScorePair_OnDemand(t *testing.T) {
	svc, _ := newTestService(t)

	ps, err := svc.ScorePair(context.Background(), "33301", "pricey")
	require.NoError(t, err)
	assert.False(t, ps.Persisted)
	assert.Nil(t, ps.ComputedAt)

	fortLauderdale := model.Coordinate{Lat: 26.1224, Lng: -80.1373}
	want, err := accessibility.Default().ScoreBatchVariant(62000,
		accessibility.Input{PriceMin: 150, PriceMax: 250, EquipmentRental: true},
		geo.Distance(fortLauderdale, model.Coordinate{Lat: 25.77, Lng: -80.19}))
	require.NoError(t, err)
	assert.Equal(t, want, ps.ScoreResult)
}

func TestScorePair_Errors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ScorePair(ctx, "33101", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.ScorePair(ctx, "00000", "cheap")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.ScorePair(ctx, "33101", "unplaced")
	assert.ErrorIs(t, err, geo.ErrInvalidInput)
}

func TestZipScores(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	got, err := svc.ZipScores(ctx, "33101")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = st.InsertBatch(ctx, []model.AccessibilityScoreRecord{
		{ZipCode: "33101", FacilityID: "cheap", ScoreResult: model.ScoreResult{AccessibilityScore: 40}},
		{ZipCode: "33101", FacilityID: "pricey", ScoreResult: model.ScoreResult{AccessibilityScore: 90}},
	})
	require.NoError(t, err)

	got, err = svc.ZipScores(ctx, "33101")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "pricey", got[0].FacilityID)

	_, err = svc.ZipScores(ctx, "00000")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHeatmap(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	_, err := st.InsertBatch(ctx, []model.AccessibilityScoreRecord{
		{ZipCode: "33101", FacilityID: "cheap", ScoreResult: model.ScoreResult{AccessibilityScore: 40}},
		{ZipCode: "33101", FacilityID: "pricey", ScoreResult: model.ScoreResult{AccessibilityScore: 60.56}},
	})
	require.NoError(t, err)

	got, err := svc.Heatmap(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "33101", got[0].ZipCode)
	assert.Equal(t, 28000, got[0].Population)
	require.NotNil(t, got[0].AccessibilityScore)
	assert.InDelta(t, 50.28, *got[0].AccessibilityScore, 1e-9)

	assert.Equal(t, "33301", got[1].ZipCode)
	assert.Equal(t, "Broward", got[1].County)
	assert.Nil(t, got[1].AccessibilityScore)
}

func TestHeatmap_CachedCopy(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	_, err := st.InsertBatch(ctx, []model.AccessibilityScoreRecord{
		{ZipCode: "33101", FacilityID: "cheap", ScoreResult: model.ScoreResult{AccessibilityScore: 40}},
	})
	require.NoError(t, err)

	got, err := svc.Heatmap(ctx)
	require.NoError(t, err)
	got[0].ZipCode = "mutated"
	*got[0].AccessibilityScore = -1

	again, err := svc.Heatmap(ctx)
	require.NoError(t, err)
	assert.Equal(t, "33101", again[0].ZipCode)
	assert.Equal(t, 40.0, *again[0].AccessibilityScore)
}

func TestArea(t *testing.T) {
	svc, _ := newTestService(t)

	a, err := svc.Area(context.Background(), "33301")
	require.NoError(t, err)
	assert.Equal(t, 62000.0, a.MedianIncome)

	_, err = svc.Area(context.Background(), "99999")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestNew_Defaults(t *testing.T) {
	svc := New(store.NewMemory(), accessibility.Default(), geo.DefaultResolver(), matching.DefaultSettings(), Config{})
	assert.Equal(t, DefaultConfig(), svc.cfg)
}

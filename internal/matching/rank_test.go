package matching

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equitee/equitee-api/internal/geo"
	"github.com/equitee/equitee-api/internal/model"
)

var origin = model.Coordinate{Lat: 25.7617, Lng: -80.1918}

// north returns a point roughly miles north of origin.
func north(miles float64) *model.Coordinate {
	return &model.Coordinate{Lat: origin.Lat + miles/69.09, Lng: origin.Lng}
}

func course(id string, miles float64) model.Facility {
	return model.Facility{ID: id, Kind: model.KindCourse, Name: id, Location: north(miles)}
}

func ids(rs []Ranked) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestRank_OrdersByDistance(t *testing.T) {
	t.Parallel()
	candidates := []model.Facility{course("far", 20), course("near", 2), course("mid", 8)}

	got, err := Rank(origin, candidates, Criteria{RadiusMiles: 25})
	require.NoError(t, err)
	assert.Equal(t, []string{"near", "mid", "far"}, ids(got))
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].DistanceMiles, got[i].DistanceMiles)
	}
}

func TestRank_StableOnTies(t *testing.T) {
	t.Parallel()
	a := course("a", 5)
	b := course("b", 5)
	c := course("c", 5)

	got, err := Rank(origin, []model.Facility{b, c, a}, Criteria{RadiusMiles: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, ids(got))
}

func TestRank_RadiusFilter(t *testing.T) {
	t.Parallel()
	candidates := []model.Facility{course("in", 4), course("out", 12)}

	got, err := Rank(origin, candidates, Criteria{RadiusMiles: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"in"}, ids(got))
	for _, r := range got {
		assert.LessOrEqual(t, r.DistanceMiles, 10.0)
		assert.InDelta(t, geo.Distance(origin, *r.Location), r.DistanceMiles, 1e-9)
	}
}

func TestRank_SkipsMissingLocation(t *testing.T) {
	t.Parallel()
	noLoc := model.Facility{ID: "ghost", Kind: model.KindCourse}

	got, err := Rank(origin, []model.Facility{noLoc, course("real", 1)}, Criteria{RadiusMiles: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"real"}, ids(got))
}

func TestRank_PriceFilter(t *testing.T) {
	t.Parallel()

	cheap := course("cheap", 1)
	cheap.PriceMin, cheap.PriceMax = model.Float(20), model.Float(40)
	pricey := course("pricey", 2)
	pricey.PriceMin, pricey.PriceMax = model.Float(150), model.Float(250)
	unpriced := course("unpriced", 3)
	onlyMax := course("only_max", 4)
	onlyMax.PriceMax = model.Float(60)

	got, err := Rank(origin, []model.Facility{cheap, pricey, unpriced, onlyMax}, Criteria{
		RadiusMiles: 10,
		MaxPrice:    model.Float(50),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"cheap", "unpriced"}, ids(got))
}

func TestRank_FlagFilters(t *testing.T) {
	t.Parallel()

	youth := course("youth", 1)
	youth.YouthPrograms = true
	rental := course("rental", 2)
	rental.EquipmentRental = true
	both := course("both", 3)
	both.YouthPrograms, both.EquipmentRental = true, true

	all := []model.Facility{youth, rental, both}

	got, err := Rank(origin, all, Criteria{RadiusMiles: 10, Flags: map[model.Flag]bool{model.FlagYouthPrograms: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"youth", "both"}, ids(got))

	got, err = Rank(origin, all, Criteria{RadiusMiles: 10, Flags: map[model.Flag]bool{model.FlagYouthPrograms: false}})
	require.NoError(t, err)
	assert.Equal(t, []string{"rental"}, ids(got))

	got, err = Rank(origin, all, Criteria{RadiusMiles: 10})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestRank_Limit(t *testing.T) {
	t.Parallel()
	candidates := []model.Facility{course("a", 1), course("b", 2), course("c", 3), course("d", 4)}

	got, err := Rank(origin, candidates, Criteria{RadiusMiles: 10, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func TestRank_EmptyResult(t *testing.T) {
	t.Parallel()

	got, err := Rank(origin, []model.Facility{course("far", 40)}, Criteria{RadiusMiles: 10})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = Rank(origin, nil, Criteria{RadiusMiles: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRank_InvalidInput(t *testing.T) {
	t.Parallel()

	_, err := Rank(model.Coordinate{Lat: math.NaN()}, nil, Criteria{RadiusMiles: 10})
	assert.ErrorIs(t, err, geo.ErrInvalidInput)

	_, err = Rank(model.Coordinate{Lat: 91}, nil, Criteria{RadiusMiles: 10})
	assert.ErrorIs(t, err, geo.ErrInvalidInput)

	_, err = Rank(origin, nil, Criteria{RadiusMiles: -1})
	assert.ErrorIs(t, err, geo.ErrInvalidInput)
}

func TestRank_MentorCriteria(t *testing.T) {
	t.Parallel()

	putting := model.Facility{ID: "putting", Kind: model.KindMentor, Location: north(3), Available: true,
		Specialties: []string{"Putting", "short game"}, Price: model.Float(80)}
	swing := model.Facility{ID: "swing", Kind: model.KindMentor, Location: north(4), Available: true,
		Specialties: []string{"swing"}, Price: model.Float(90)}
	busy := model.Facility{ID: "busy", Kind: model.KindMentor, Location: north(1), Available: false,
		Specialties: []string{"putting"}, Price: model.Float(60)}
	pricey := model.Facility{ID: "pricey", Kind: model.KindMentor, Location: north(2), Available: true,
		Specialties: []string{"putting"}, Price: model.Float(300)}

	c := DefaultCriteria(model.KindMentor)
	c.Specialties = []string{"putting"}

	got, err := Rank(origin, []model.Facility{putting, swing, busy, pricey}, c)
	require.NoError(t, err)
	assert.Equal(t, []string{"putting"}, ids(got))
}

func TestRank_YouthProgramCriteria(t *testing.T) {
	t.Parallel()

	teens := model.Facility{ID: "teens", Kind: model.KindYouthProgram, Location: north(2),
		Organization: "First Tee Miami", AgeMin: model.Int(13), AgeMax: model.Int(17)}
	tots := model.Facility{ID: "tots", Kind: model.KindYouthProgram, Location: north(3),
		Organization: "Junior Golf Club", AgeMin: model.Int(3), AgeMax: model.Int(6)}
	open := model.Facility{ID: "open", Kind: model.KindYouthProgram, Location: north(4),
		Organization: "First Tee Broward"}

	c := DefaultCriteria(model.KindYouthProgram)
	c.MinAge, c.MaxAge = model.Int(12), model.Int(14)
	got, err := Rank(origin, []model.Facility{teens, tots, open}, c)
	require.NoError(t, err)
	assert.Equal(t, []string{"teens", "open"}, ids(got))

	c = DefaultCriteria(model.KindYouthProgram)
	c.Organization = "first tee"
	got, err = Rank(origin, []model.Facility{teens, tots, open}, c)
	require.NoError(t, err)
	assert.Equal(t, []string{"teens", "open"}, ids(got))
}

func TestRank_MaxDifficulty(t *testing.T) {
	t.Parallel()

	easy := course("easy", 1)
	easy.DifficultyRating = model.Float(2.5)
	hard := course("hard", 2)
	hard.DifficultyRating = model.Float(4.5)
	unrated := course("unrated", 3)

	got, err := Rank(origin, []model.Facility{easy, hard, unrated}, Criteria{RadiusMiles: 10, MaxDifficulty: model.Float(3)})
	require.NoError(t, err)
	assert.Equal(t, []string{"easy", "unrated"}, ids(got))
}

func TestDefaultCriteria(t *testing.T) {
	t.Parallel()

	c := DefaultCriteria(model.KindCourse)
	assert.Equal(t, 25.0, c.RadiusMiles)
	assert.Nil(t, c.MaxPrice)
	assert.Zero(t, c.Limit)

	m := DefaultCriteria(model.KindMentor)
	assert.Equal(t, 30.0, m.RadiusMiles)
	require.NotNil(t, m.MaxPrice)
	assert.Equal(t, 200.0, *m.MaxPrice)
	assert.True(t, m.AvailableOnly)

	y := DefaultCriteria(model.KindYouthProgram)
	assert.Equal(t, 25.0, y.RadiusMiles)
	assert.Equal(t, 100.0, *y.MaxPrice)
	assert.Equal(t, 5, *y.MinAge)
	assert.Equal(t, 17, *y.MaxAge)
}

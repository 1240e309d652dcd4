package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/equitee/equitee-api/internal/model"
)

var (
	downtownMiami  = model.Coordinate{Lat: 25.7617, Lng: -80.1918}
	ftLauderdale   = model.Coordinate{Lat: 26.1224, Lng: -80.1373}
	sandhillCrane  = model.Coordinate{Lat: 26.8622, Lng: -80.1373}
	antipodeOfZero = model.Coordinate{Lat: 0, Lng: 180}
)

func TestDistance_KnownPairs(t *testing.T) {
	// Miami to Fort Lauderdale is roughly 25 miles.
	assert.InDelta(t, 25.1, Distance(downtownMiami, ftLauderdale), 0.5)

	// One degree of latitude is ~69.1 miles.
	d := Distance(model.Coordinate{Lat: 25, Lng: -80}, model.Coordinate{Lat: 26, Lng: -80})
	assert.InDelta(t, 69.1, d, 0.1)

	// Half the circumference.
	assert.InDelta(t, math.Pi*EarthRadiusMiles, Distance(model.Coordinate{}, antipodeOfZero), 1e-6)
}

func TestDistance_Identity(t *testing.T) {
	for _, c := range []model.Coordinate{downtownMiami, ftLauderdale, sandhillCrane, {}} {
		assert.Zero(t, Distance(c, c))
	}
}

func TestDistance_Symmetric(t *testing.T) {
	pts := []model.Coordinate{
		downtownMiami, ftLauderdale, sandhillCrane, antipodeOfZero,
		{Lat: -33.8688, Lng: 151.2093},
		{Lat: 89.9, Lng: 0},
	}
	for _, a := range pts {
		for _, b := range pts {
			assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9)
			assert.GreaterOrEqual(t, Distance(a, b), 0.0)
		}
	}
}

func TestDistanceKM(t *testing.T) {
	miles := Distance(downtownMiami, sandhillCrane)
	assert.InDelta(t, miles*1.609344, DistanceKM(downtownMiami, sandhillCrane), 0.01)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		c       model.Coordinate
		wantErr bool
	}{
		{"valid", downtownMiami, false},
		{"poles and antimeridian", model.Coordinate{Lat: 90, Lng: -180}, false},
		{"nan lat", model.Coordinate{Lat: math.NaN(), Lng: 0}, true},
		{"inf lng", model.Coordinate{Lat: 0, Lng: math.Inf(1)}, true},
		{"lat too large", model.Coordinate{Lat: 91, Lng: 0}, true},
		{"lng too small", model.Coordinate{Lat: 0, Lng: -180.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.c)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPointEWKB_RoundTrip(t *testing.T) {
	data, err := PointEWKB(downtownMiami)
	require.NoError(t, err)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	pt, ok := g.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, 4326, pt.SRID())
	assert.InDelta(t, downtownMiami.Lng, pt.X(), 1e-9)
	assert.InDelta(t, downtownMiami.Lat, pt.Y(), 1e-9)
}

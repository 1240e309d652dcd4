// Package geo provides great-circle distance, coordinate validation, the
// zip-code centroid resolver, and distance-band classification.
package geo

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/equitee/equitee-api/internal/model"
)

// EarthRadiusMiles is the mean Earth radius used by Distance.
const EarthRadiusMiles = 3959.0

const milesPerKM = 0.621371

// ErrInvalidInput marks coordinates or numeric inputs that cannot be scored.
var ErrInvalidInput = eris.New("invalid input")

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Distance returns the Haversine great-circle distance in miles between a and b.
// Inputs are not validated; see Validate.
func Distance(a, b model.Coordinate) float64 {
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Lat))*math.Cos(toRadians(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * EarthRadiusMiles * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// DistanceKM is Distance expressed in kilometers.
func DistanceKM(a, b model.Coordinate) float64 {
	return Distance(a, b) / milesPerKM
}

// Validate rejects non-finite or out-of-range coordinates.
func Validate(c model.Coordinate) error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lng) || math.IsInf(c.Lng, 0) {
		return eris.Wrapf(ErrInvalidInput, "geo: non-finite coordinate (%v, %v)", c.Lat, c.Lng)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return eris.Wrapf(ErrInvalidInput, "geo: latitude %v out of range", c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return eris.Wrapf(ErrInvalidInput, "geo: longitude %v out of range", c.Lng)
	}
	return nil
}

// PointEWKB encodes c as an SRID 4326 EWKB point for PostGIS geometry columns.
func PointEWKB(c model.Coordinate) ([]byte, error) {
	pt := geom.NewPointFlat(geom.XY, []float64{c.Lng, c.Lat}).SetSRID(4326)
	data, err := ewkb.Marshal(pt, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode point EWKB")
	}
	return data, nil
}

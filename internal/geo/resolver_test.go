package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/equitee/equitee-api/internal/model"
)

func TestParseCounty(t *testing.T) {
	tests := map[string]County{
		"Miami-Dade":        MiamiDade,
		"miami dade":        MiamiDade,
		"MIAMI-DADE COUNTY": MiamiDade,
		"Broward":           Broward,
		"Broward County":    Broward,
		"Palm Beach":        PalmBeach,
		"palm-beach":        PalmBeach,
		"PalmBeach":         PalmBeach,
		"Monroe":            UnknownCounty,
		"":                  UnknownCounty,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, ParseCounty(in))
		})
	}
}

func TestResolve(t *testing.T) {
	r := DefaultResolver()

	tests := []struct {
		name      string
		zip       string
		county    County
		want      model.Coordinate
		precision Precision
	}{
		{"miami 331 prefix", "33156", MiamiDade, miami, PrecisionPrefix},
		{"north miami 330 prefix", "33054", MiamiDade, northMiami, PrecisionPrefix},
		{"miami-dade fallback", "34101", MiamiDade, miami, PrecisionCountyDefault},
		{"fort lauderdale 333 prefix", "33324", Broward, fortLauderdale, PrecisionPrefix},
		{"deerfield 334 prefix", "33441", Broward, deerfieldBeach, PrecisionPrefix},
		{"broward fallback", "33009", Broward, fortLauderdale, PrecisionCountyDefault},
		{"palm beach 334 prefix", "33480", PalmBeach, palmBeach, PrecisionPrefix},
		{"west palm 335 prefix", "33510", PalmBeach, westPalmBeach, PrecisionPrefix},
		{"palm beach fallback", "32001", PalmBeach, palmBeach, PrecisionCountyDefault},
		{"unknown county", "33040", UnknownCounty, miami, PrecisionRegionDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(tt.zip, tt.county)
			assert.Equal(t, tt.want, res.Coordinate)
			assert.Equal(t, tt.precision, res.Precision)
			assert.Equal(t, tt.precision != PrecisionPrefix, res.Degraded())
		})
	}
}

func TestResolve_SamePrefixDependsOnCounty(t *testing.T) {
	r := DefaultResolver()
	broward := r.Resolve("33441", Broward)
	palm := r.Resolve("33441", PalmBeach)
	assert.NotEqual(t, broward.Coordinate, palm.Coordinate)
}

func TestResolveArea(t *testing.T) {
	r := DefaultResolver()
	res := r.ResolveArea(model.DemographicArea{ZipCode: "33324", County: "Broward County"})
	assert.Equal(t, fortLauderdale, res.Coordinate)
	assert.False(t, res.Degraded())
}

func TestNewResolver_CustomTable(t *testing.T) {
	keyWest := model.Coordinate{Lat: 24.5551, Lng: -81.78}
	r := NewResolver(map[County]CountyTable{
		County("Monroe"): {Default: keyWest},
	}, miami)

	assert.Equal(t, keyWest, r.Resolve("33040", County("Monroe")).Coordinate)
	assert.Equal(t, PrecisionRegionDefault, r.Resolve("33156", MiamiDade).Precision)
}

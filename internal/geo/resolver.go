package geo

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/equitee/equitee-api/internal/model"
)

// County identifies one of the supported South Florida counties.
type County string

const (
	MiamiDade     County = "Miami-Dade"
	Broward       County = "Broward"
	PalmBeach     County = "Palm Beach"
	UnknownCounty County = ""
)

var countyFolder = cases.Fold()

// ParseCounty maps free-form county names ("palm-beach", "PalmBeach",
// "Broward County") onto a County. Unrecognized names yield UnknownCounty.
func ParseCounty(s string) County {
	norm := countyFolder.String(strings.TrimSpace(s))
	norm = strings.TrimSuffix(norm, " county")
	norm = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(norm)
	switch norm {
	case "miamidade", "dade":
		return MiamiDade
	case "broward":
		return Broward
	case "palmbeach":
		return PalmBeach
	}
	return UnknownCounty
}

// Precision describes how a zip code was resolved.
type Precision string

const (
	PrecisionPrefix        Precision = "prefix"
	PrecisionCountyDefault Precision = "county_default"
	PrecisionRegionDefault Precision = "region_default"
)

// Resolution is the centroid chosen for a zip code.
type Resolution struct {
	Coordinate model.Coordinate `json:"coordinate"`
	Precision  Precision        `json:"precision"`
}

// Degraded reports whether the resolver had to fall back to a default centroid.
func (r Resolution) Degraded() bool {
	return r.Precision != PrecisionPrefix
}

// PrefixRule maps a zip-code prefix to a centroid.
type PrefixRule struct {
	Prefix   string
	Centroid model.Coordinate
}

// CountyTable holds the prefix rules and fallback centroid for one county.
// Rules are evaluated in order; the first matching prefix wins.
type CountyTable struct {
	Rules   []PrefixRule
	Default model.Coordinate
}

// Resolver maps (zip, county) pairs to representative centroids. It is a
// coarse lookup: whole prefixes share one point.
type Resolver struct {
	counties map[County]CountyTable
	region   model.Coordinate
}

var (
	miami           = model.Coordinate{Lat: 25.7617, Lng: -80.1918}
	northMiami      = model.Coordinate{Lat: 25.8659, Lng: -80.2078}
	fortLauderdale  = model.Coordinate{Lat: 26.1224, Lng: -80.1373}
	deerfieldBeach  = model.Coordinate{Lat: 26.4615, Lng: -80.0728}
	palmBeach       = model.Coordinate{Lat: 26.7056, Lng: -80.0364}
	westPalmBeach   = model.Coordinate{Lat: 26.5284, Lng: -80.1456}
	southFloridaHub = miami
)

// DefaultTable returns the South Florida centroid table.
func DefaultTable() map[County]CountyTable {
	return map[County]CountyTable{
		MiamiDade: {
			Rules:   []PrefixRule{{"331", miami}, {"330", northMiami}},
			Default: miami,
		},
		Broward: {
			Rules:   []PrefixRule{{"333", fortLauderdale}, {"334", deerfieldBeach}},
			Default: fortLauderdale,
		},
		PalmBeach: {
			Rules:   []PrefixRule{{"334", palmBeach}, {"335", westPalmBeach}},
			Default: palmBeach,
		},
	}
}

// NewResolver creates a Resolver from a county table and a region-wide
// fallback used when the county is not in the table.
func NewResolver(table map[County]CountyTable, region model.Coordinate) *Resolver {
	return &Resolver{counties: table, region: region}
}

// DefaultResolver returns a Resolver over DefaultTable with a Miami fallback.
func DefaultResolver() *Resolver {
	return NewResolver(DefaultTable(), southFloridaHub)
}

// Resolve returns the centroid for zip within county. It never fails:
// unknown prefixes fall back to the county default and unknown counties to
// the region default.
func (r *Resolver) Resolve(zip string, county County) Resolution {
	zip = strings.TrimSpace(zip)

	tbl, ok := r.counties[county]
	if !ok {
		zap.L().Debug("geo: unknown county, using region centroid",
			zap.String("zip", zip),
			zap.String("county", string(county)),
		)
		return Resolution{Coordinate: r.region, Precision: PrecisionRegionDefault}
	}

	for _, rule := range tbl.Rules {
		if strings.HasPrefix(zip, rule.Prefix) {
			return Resolution{Coordinate: rule.Centroid, Precision: PrecisionPrefix}
		}
	}

	zap.L().Debug("geo: unmatched zip prefix, using county centroid",
		zap.String("zip", zip),
		zap.String("county", string(county)),
	)
	return Resolution{Coordinate: tbl.Default, Precision: PrecisionCountyDefault}
}

// ResolveArea resolves the centroid of a demographic area.
func (r *Resolver) ResolveArea(a model.DemographicArea) Resolution {
	return r.Resolve(a.ZipCode, ParseCounty(a.County))
}

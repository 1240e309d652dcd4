// Package store persists facilities, demographic areas, and accessibility
// score records. PostgresStore (PostGIS), SQLiteStore, and MemoryStore all
// satisfy Store.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/equitee/equitee-api/internal/geo"
	"github.com/equitee/equitee-api/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("not found")

// FacilityFilter narrows ListFacilities. Within is a coarse prefilter: stores
// may return facilities slightly outside it, so the ranker still applies the
// exact distance cut. Price filtering happens in the ranker only.
type FacilityFilter struct {
	Flags         map[model.Flag]bool `json:"flags,omitempty"`
	AvailableOnly bool                `json:"available_only,omitempty"`
	Within        *Circle             `json:"within,omitempty"`
}

// Circle is a search area around Center.
type Circle struct {
	Center      model.Coordinate `json:"center"`
	RadiusMiles float64          `json:"radius_miles"`
}

// withinSlack pads pushed-down radii so differences between PostGIS's sphere
// and geo.Distance never drop a facility the ranker would keep.
const withinSlack = 1.01

const metersPerMile = 1609.344

// active reports whether the circle should constrain a query.
func (c *Circle) active() bool {
	return c != nil && c.RadiusMiles > 0
}

// meters is the padded radius in meters.
func (c *Circle) meters() float64 {
	return c.RadiusMiles * withinSlack * metersPerMile
}

// contains applies the padded radius in memory. Facilities without a
// location are outside every circle.
func (c *Circle) contains(f model.Facility) bool {
	if !c.active() {
		return true
	}
	if f.Location == nil {
		return false
	}
	return geo.Distance(c.Center, *f.Location) <= c.RadiusMiles*withinSlack
}

// FacilityStore reads and writes facilities of every kind.
type FacilityStore interface {
	ListFacilities(ctx context.Context, kind model.Kind, filter FacilityFilter) ([]model.Facility, error)
	GetFacility(ctx context.Context, id string) (*model.Facility, error)
	UpsertFacilities(ctx context.Context, facilities []model.Facility) (int64, error)
}

// DemographicStore reads and writes zip-code income baselines.
type DemographicStore interface {
	// ListAreas returns every area ordered by zip code.
	ListAreas(ctx context.Context) ([]model.DemographicArea, error)
	GetArea(ctx context.Context, zip string) (*model.DemographicArea, error)
	UpsertAreas(ctx context.Context, areas []model.DemographicArea) (int64, error)
}

// ScoreRecordStore holds the output of the batch pairing job.
type ScoreRecordStore interface {
	// DeleteAll clears every score record and returns how many were removed.
	DeleteAll(ctx context.Context) (int64, error)
	// InsertBatch writes records atomically: either all are stored or none.
	InsertBatch(ctx context.Context, records []model.AccessibilityScoreRecord) (int64, error)
	// ListByScore returns up to limit records ordered by score. limit <= 0
	// returns every record.
	ListByScore(ctx context.Context, ascending bool, limit int) ([]model.AccessibilityScoreRecord, error)
	// ListByZip returns the records for zip, best score first.
	ListByZip(ctx context.Context, zip string) ([]model.AccessibilityScoreRecord, error)
	GetRecord(ctx context.Context, zip, facilityID string) (*model.AccessibilityScoreRecord, error)
	// AverageByZip returns the mean score per zip code that has records.
	AverageByZip(ctx context.Context) (map[string]float64, error)
}

// Store is the full persistence surface.
type Store interface {
	FacilityStore
	DemographicStore
	ScoreRecordStore

	Migrate(ctx context.Context) error
	Close() error
}

// flagColumns maps capability flags to their column names in both SQL
// schemas.
var flagColumns = map[model.Flag]string{
	model.FlagYouthPrograms:           "youth_programs",
	model.FlagEquipmentRental:         "equipment_rental",
	model.FlagTransportationAvailable: "transportation_available",
}

func flagColumn(f model.Flag) (string, error) {
	col, ok := flagColumns[f]
	if !ok {
		return "", eris.Errorf("store: unknown flag %q", f)
	}
	return col, nil
}

// matches applies filter in memory.
func (filter FacilityFilter) matches(f model.Facility) bool {
	if filter.AvailableOnly && !f.Available {
		return false
	}
	for flag, want := range filter.Flags {
		if f.HasFlag(flag) != want {
			return false
		}
	}
	return filter.Within.contains(f)
}

// sortedFlags returns the filter's flags in a stable order so generated SQL
// is deterministic.
func (filter FacilityFilter) sortedFlags() []model.Flag {
	out := make([]model.Flag, 0, len(filter.Flags))
	for _, f := range []model.Flag{model.FlagYouthPrograms, model.FlagEquipmentRental, model.FlagTransportationAvailable} {
		if _, ok := filter.Flags[f]; ok {
			out = append(out, f)
		}
	}
	for f := range filter.Flags {
		if _, known := flagColumns[f]; !known {
			out = append(out, f)
		}
	}
	return out
}

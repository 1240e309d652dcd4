// Package model defines the domain types shared by the scoring engine, the
// stores, and the HTTP surface.
package model

import (
	"slices"
	"strings"
)

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Kind identifies what sort of facility a record describes.
type Kind string

const (
	KindCourse       Kind = "course"
	KindMentor       Kind = "mentor"
	KindYouthProgram Kind = "youth_program"
)

// Kinds lists every facility kind in a stable order.
var Kinds = []Kind{KindCourse, KindMentor, KindYouthProgram}

// ParseKind maps user input such as "youth-programs" or "Courses" to a Kind.
func ParseKind(s string) (Kind, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")
	norm = strings.TrimSuffix(norm, "s")
	switch norm {
	case "course":
		return KindCourse, true
	case "mentor":
		return KindMentor, true
	case "youth_program", "youth":
		return KindYouthProgram, true
	}
	return "", false
}

// Flag names a boolean capability a facility may advertise.
type Flag string

const (
	FlagYouthPrograms           Flag = "youth_programs"
	FlagEquipmentRental         Flag = "equipment_rental"
	FlagTransportationAvailable Flag = "transportation_available"
)

// Facility generalizes golf courses, mentors, and youth programs: anything
// with a location, a price, and capability flags.
type Facility struct {
	ID       string      `json:"id" yaml:"id"`
	Kind     Kind        `json:"kind" yaml:"kind"`
	Name     string      `json:"name" yaml:"name"`
	Address  string      `json:"address,omitempty" yaml:"address"`
	County   string      `json:"county,omitempty" yaml:"county"`
	Location *Coordinate `json:"location,omitempty" yaml:"location"`

	PriceMin *float64 `json:"price_min,omitempty" yaml:"price_min"`
	PriceMax *float64 `json:"price_max,omitempty" yaml:"price_max"`
	Price    *float64 `json:"price,omitempty" yaml:"price"`

	YouthPrograms           bool `json:"youth_programs" yaml:"youth_programs"`
	EquipmentRental         bool `json:"equipment_rental" yaml:"equipment_rental"`
	TransportationAvailable bool `json:"transportation_available" yaml:"transportation_available"`

	// Courses.
	DifficultyRating *float64 `json:"difficulty_rating,omitempty" yaml:"difficulty_rating"`
	Website          string   `json:"website,omitempty" yaml:"website"`

	// Mentors.
	Specialties     []string `json:"specialties,omitempty" yaml:"specialties"`
	ExperienceYears *int     `json:"experience_years,omitempty" yaml:"experience_years"`
	Available       bool     `json:"available" yaml:"available"`

	// Youth programs.
	Organization string `json:"organization,omitempty" yaml:"organization"`
	AgeMin       *int   `json:"age_min,omitempty" yaml:"age_min"`
	AgeMax       *int   `json:"age_max,omitempty" yaml:"age_max"`
}

// RepresentativePrice returns the midpoint of the price range when both
// bounds exist, the single bound when only one does, and otherwise the flat
// price. ok is false when the facility carries no price at all.
func (f Facility) RepresentativePrice() (price float64, ok bool) {
	switch {
	case f.PriceMin != nil && f.PriceMax != nil:
		return (*f.PriceMin + *f.PriceMax) / 2, true
	case f.PriceMin != nil:
		return *f.PriceMin, true
	case f.PriceMax != nil:
		return *f.PriceMax, true
	case f.Price != nil:
		return *f.Price, true
	}
	return 0, false
}

// PriceBounds returns the (min, max) pair fed to the scoring model. A flat
// price is used for both bounds; a missing price scores as free.
func (f Facility) PriceBounds() (lo, hi float64) {
	switch {
	case f.PriceMin != nil && f.PriceMax != nil:
		return *f.PriceMin, *f.PriceMax
	case f.PriceMin != nil || f.PriceMax != nil || f.Price != nil:
		p, _ := f.RepresentativePrice()
		return p, p
	}
	return 0, 0
}

// HasFlag reports the value of a capability flag. Unknown flags are false.
func (f Facility) HasFlag(flag Flag) bool {
	switch flag {
	case FlagYouthPrograms:
		return f.YouthPrograms
	case FlagEquipmentRental:
		return f.EquipmentRental
	case FlagTransportationAvailable:
		return f.TransportationAvailable
	}
	return false
}

// Clone returns a copy of f that shares no pointers or slices with f.
func (f Facility) Clone() Facility {
	out := f
	if f.Location != nil {
		loc := *f.Location
		out.Location = &loc
	}
	out.PriceMin = cloneFloat(f.PriceMin)
	out.PriceMax = cloneFloat(f.PriceMax)
	out.Price = cloneFloat(f.Price)
	out.DifficultyRating = cloneFloat(f.DifficultyRating)
	out.ExperienceYears = cloneInt(f.ExperienceYears)
	out.AgeMin = cloneInt(f.AgeMin)
	out.AgeMax = cloneInt(f.AgeMax)
	out.Specialties = slices.Clone(f.Specialties)
	return out
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	return Float(*p)
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	return Int(*p)
}

// Float returns a pointer to v. Handy for optional price fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

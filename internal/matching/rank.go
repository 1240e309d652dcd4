// Package matching filters candidate facilities around an origin and ranks
// them by great-circle distance.
package matching

import (
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/equitee/equitee-api/internal/geo"
	"github.com/equitee/equitee-api/internal/model"
)

// Criteria constrains which candidates Rank keeps. Zero values mean "no
// constraint" except RadiusMiles, which is always enforced.
type Criteria struct {
	RadiusMiles float64
	MaxPrice    *float64
	Flags       map[model.Flag]bool
	Limit       int

	// Kind-specific constraints. Each applies only when set.
	Specialties   []string
	MinAge        *int
	MaxAge        *int
	Organization  string
	MaxDifficulty *float64
	AvailableOnly bool
}

// Ranked is a candidate that passed every filter, with its distance from
// the origin.
type Ranked struct {
	model.Facility
	DistanceMiles float64 `json:"distance"`
}

// Rank returns the candidates within criteria.RadiusMiles of origin that
// satisfy every other constraint, nearest first. Candidates at equal
// distance keep their input order. Candidates without a location are
// dropped. An empty match is an empty slice, not an error.
func Rank(origin model.Coordinate, candidates []model.Facility, c Criteria) ([]Ranked, error) {
	if err := geo.Validate(origin); err != nil {
		return nil, err
	}
	if math.IsNaN(c.RadiusMiles) || c.RadiusMiles < 0 {
		return nil, eris.Wrapf(geo.ErrInvalidInput, "matching: radius %v", c.RadiusMiles)
	}

	out := make([]Ranked, 0)
	for _, f := range candidates {
		if f.Location == nil {
			continue
		}
		d := geo.Distance(origin, *f.Location)
		if d > c.RadiusMiles || !c.accepts(f) {
			continue
		}
		out = append(out, Ranked{Facility: f, DistanceMiles: d})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceMiles < out[j].DistanceMiles
	})

	if c.Limit > 0 && len(out) > c.Limit {
		out = out[:c.Limit]
	}
	return out, nil
}

func (c Criteria) accepts(f model.Facility) bool {
	if c.MaxPrice != nil {
		// A facility with no price is never rejected on price.
		if p, ok := f.RepresentativePrice(); ok && p > *c.MaxPrice {
			return false
		}
	}
	for flag, want := range c.Flags {
		if f.HasFlag(flag) != want {
			return false
		}
	}
	if c.AvailableOnly && !f.Available {
		return false
	}
	if len(c.Specialties) > 0 && !overlaps(f.Specialties, c.Specialties) {
		return false
	}
	if c.MinAge != nil && f.AgeMax != nil && *f.AgeMax < *c.MinAge {
		return false
	}
	if c.MaxAge != nil && f.AgeMin != nil && *f.AgeMin > *c.MaxAge {
		return false
	}
	if c.Organization != "" && !strings.Contains(strings.ToLower(f.Organization), strings.ToLower(c.Organization)) {
		return false
	}
	if c.MaxDifficulty != nil && f.DifficultyRating != nil && *f.DifficultyRating > *c.MaxDifficulty {
		return false
	}
	return true
}

func overlaps(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}

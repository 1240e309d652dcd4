package matching

import "github.com/equitee/equitee-api/internal/model"

// Settings holds the per-kind search defaults applied when a caller does not
// supply its own radius or budget.
type Settings struct {
	CourseRadiusMiles float64 `mapstructure:"course_radius_miles"`
	MentorRadiusMiles float64 `mapstructure:"mentor_radius_miles"`
	MentorBudget      float64 `mapstructure:"mentor_budget"`
	YouthRadiusMiles  float64 `mapstructure:"youth_radius_miles"`
	YouthBudget       float64 `mapstructure:"youth_budget"`
	YouthMinAge       int     `mapstructure:"youth_min_age"`
	YouthMaxAge       int     `mapstructure:"youth_max_age"`
}

// DefaultSettings returns the defaults the public search endpoints use.
func DefaultSettings() Settings {
	return Settings{
		CourseRadiusMiles: 25,
		MentorRadiusMiles: 30,
		MentorBudget:      200,
		YouthRadiusMiles:  25,
		YouthBudget:       100,
		YouthMinAge:       5,
		YouthMaxAge:       17,
	}
}

// Criteria returns the default search criteria for kind. Results are not
// capped unless the caller sets Limit.
func (s Settings) Criteria(kind model.Kind) Criteria {
	var c Criteria
	switch kind {
	case model.KindMentor:
		c.RadiusMiles = s.MentorRadiusMiles
		c.MaxPrice = model.Float(s.MentorBudget)
		c.AvailableOnly = true
	case model.KindYouthProgram:
		c.RadiusMiles = s.YouthRadiusMiles
		c.MaxPrice = model.Float(s.YouthBudget)
		c.MinAge = model.Int(s.YouthMinAge)
		c.MaxAge = model.Int(s.YouthMaxAge)
	default:
		c.RadiusMiles = s.CourseRadiusMiles
	}
	return c
}

// DefaultCriteria is DefaultSettings().Criteria(kind).
func DefaultCriteria(kind model.Kind) Criteria {
	return DefaultSettings().Criteria(kind)
}

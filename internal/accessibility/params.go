// Package accessibility implements the golf accessibility scoring model.
//
// Two formulas coexist. ScoreBatchVariant is the pair-scoring formula used
// by the offline batch job: it adds fixed equipment and instruction
// allowances to the annual cost, applies youth, equipment and affordable
// course bonuses, and derives the transport score from distance bands.
// ScoreRequestVariant is the single-location formula served at request time:
// it prices only the rounds, folds in a caller-supplied transportation score,
// and applies a flat youth bonus. They are kept separate because existing
// consumers depend on each.
package accessibility

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Params holds the calibration constants of the model. The defaults were
// tuned against South Florida green fees and incomes and should be revisited
// for other regions.
type Params struct {
	RoundsPerYear        float64 `yaml:"rounds_per_year" mapstructure:"rounds_per_year"`
	EquipmentAllowance   float64 `yaml:"equipment_allowance" mapstructure:"equipment_allowance"`
	InstructionAllowance float64 `yaml:"instruction_allowance" mapstructure:"instruction_allowance"`

	DistanceDecayMiles float64 `yaml:"distance_decay_miles" mapstructure:"distance_decay_miles"`
	DistanceFloor      float64 `yaml:"distance_floor" mapstructure:"distance_floor"`

	YouthBonus             float64 `yaml:"youth_bonus" mapstructure:"youth_bonus"`
	EquipmentBonus         float64 `yaml:"equipment_bonus" mapstructure:"equipment_bonus"`
	AffordablePriceCeiling float64 `yaml:"affordable_price_ceiling" mapstructure:"affordable_price_ceiling"`
	AffordableBonus        float64 `yaml:"affordable_bonus" mapstructure:"affordable_bonus"`

	ScaleFactor float64 `yaml:"scale_factor" mapstructure:"scale_factor"`
	MaxScore    float64 `yaml:"max_score" mapstructure:"max_score"`

	// Request-time variant.
	RequestYouthBonus          float64 `yaml:"request_youth_bonus" mapstructure:"request_youth_bonus"`
	DefaultTransportationScore float64 `yaml:"default_transportation_score" mapstructure:"default_transportation_score"`

	// Transport score bands (miles), scored 8/6/4 within each band and 2 beyond.
	TransportBands [3]float64 `yaml:"transport_bands" mapstructure:"transport_bands"`
}

// DefaultParams returns the South Florida calibration.
func DefaultParams() Params {
	return Params{
		RoundsPerYear:        24,
		EquipmentAllowance:   500,
		InstructionAllowance: 800,

		DistanceDecayMiles: 30,
		DistanceFloor:      0.1,

		YouthBonus:             1.3,
		EquipmentBonus:         1.1,
		AffordablePriceCeiling: 50,
		AffordableBonus:        1.2,

		ScaleFactor: 5,
		MaxScore:    100,

		RequestYouthBonus:          1.2,
		DefaultTransportationScore: 5,

		TransportBands: [3]float64{5, 15, 25},
	}
}

// Validate checks that the parameters describe a usable model.
func (p Params) Validate() error {
	var errs []string

	if p.RoundsPerYear <= 0 {
		errs = append(errs, "rounds_per_year must be > 0")
	}
	if p.EquipmentAllowance < 0 || p.InstructionAllowance < 0 {
		errs = append(errs, "allowances must be >= 0")
	}
	if p.DistanceDecayMiles <= 0 {
		errs = append(errs, "distance_decay_miles must be > 0")
	}
	if p.DistanceFloor <= 0 || p.DistanceFloor > 1 {
		errs = append(errs, "distance_floor must be in (0, 1]")
	}
	for name, b := range map[string]float64{
		"youth_bonus":         p.YouthBonus,
		"equipment_bonus":     p.EquipmentBonus,
		"affordable_bonus":    p.AffordableBonus,
		"request_youth_bonus": p.RequestYouthBonus,
	} {
		if b <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be > 0", name))
		}
	}
	if p.ScaleFactor <= 0 {
		errs = append(errs, "scale_factor must be > 0")
	}
	if p.MaxScore <= 0 {
		errs = append(errs, "max_score must be > 0")
	}
	if p.DefaultTransportationScore < 0 {
		errs = append(errs, "default_transportation_score must be >= 0")
	}
	if !(p.TransportBands[0] < p.TransportBands[1] && p.TransportBands[1] < p.TransportBands[2]) {
		errs = append(errs, "transport_bands must be strictly increasing")
	}

	if len(errs) > 0 {
		return eris.Errorf("accessibility: params validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

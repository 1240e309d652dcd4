package accessibility

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/equitee/equitee-api/internal/geo"
	"github.com/equitee/equitee-api/internal/model"
)

// Input describes the facility side of a batch pair score.
type Input struct {
	PriceMin        float64
	PriceMax        float64
	YouthPrograms   bool
	EquipmentRental bool
}

// InputFromFacility extracts the scoring inputs of a facility. Youth programs
// count as a youth offering regardless of the youth_programs flag.
func InputFromFacility(f model.Facility) Input {
	lo, hi := f.PriceBounds()
	return Input{
		PriceMin:        lo,
		PriceMax:        hi,
		YouthPrograms:   f.YouthPrograms || f.Kind == model.KindYouthProgram,
		EquipmentRental: f.EquipmentRental,
	}
}

// RequestInput describes a request-time location score.
type RequestInput struct {
	MedianIncome  float64
	AvgPrice      float64
	DistanceMiles float64
	YouthPrograms bool

	// TransportationScore is on a 0-10 scale; nil uses the configured default.
	TransportationScore *float64
}

// Model scores accessibility with a fixed set of Params.
type Model struct {
	p Params
}

// New creates a Model after validating p.
func New(p Params) (*Model, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Model{p: p}, nil
}

// Default returns a Model with DefaultParams.
func Default() *Model {
	return &Model{p: DefaultParams()}
}

// Params returns the model's calibration.
func (m *Model) Params() Params { return m.p }

// AnnualCost estimates a year of participation at avgPrice per round,
// including the fixed equipment and instruction allowances.
func (m *Model) AnnualCost(avgPrice float64) float64 {
	return avgPrice*m.p.RoundsPerYear + m.p.EquipmentAllowance + m.p.InstructionAllowance
}

// DistancePenalty decays linearly from 1 at zero miles to the floor at the
// decay distance and stays at the floor beyond it.
func (m *Model) DistancePenalty(distanceMiles float64) float64 {
	return math.Max(m.p.DistanceFloor, 1-distanceMiles/m.p.DistanceDecayMiles)
}

// TransportScore maps distance onto the ordinal 8/6/4/2 scale.
func (m *Model) TransportScore(distanceMiles float64) int {
	b := m.p.TransportBands
	switch {
	case distanceMiles <= b[0]:
		return 8
	case distanceMiles <= b[1]:
		return 6
	case distanceMiles <= b[2]:
		return 4
	default:
		return 2
	}
}

// ScoreBatchVariant scores one (area, facility) pair.
func (m *Model) ScoreBatchVariant(medianIncome float64, in Input, distanceMiles float64) (model.ScoreResult, error) {
	if err := checkInputs(medianIncome, distanceMiles, in.PriceMin, in.PriceMax); err != nil {
		return model.ScoreResult{}, err
	}

	avgPrice := (in.PriceMin + in.PriceMax) / 2
	annualCost := m.AnnualCost(avgPrice)

	bonus := 1.0
	if in.YouthPrograms {
		bonus *= m.p.YouthBonus
	}
	if in.EquipmentRental {
		bonus *= m.p.EquipmentBonus
	}
	if avgPrice <= m.p.AffordablePriceCeiling {
		bonus *= m.p.AffordableBonus
	}

	raw := m.affordability(medianIncome, annualCost) * m.DistancePenalty(distanceMiles) * bonus

	return model.ScoreResult{
		AccessibilityScore:  m.normalize(raw),
		DistanceMiles:       round2(distanceMiles),
		EstimatedAnnualCost: int(math.Round(annualCost)),
		TransportScore:      m.TransportScore(distanceMiles),
	}, nil
}

// ScoreRequestVariant scores a single location against its nearest
// affordable course. Annual cost here covers rounds only.
func (m *Model) ScoreRequestVariant(in RequestInput) (float64, error) {
	if err := checkInputs(in.MedianIncome, in.DistanceMiles, in.AvgPrice); err != nil {
		return 0, err
	}

	ts := m.p.DefaultTransportationScore
	if in.TransportationScore != nil {
		ts = *in.TransportationScore
		if math.IsNaN(ts) || math.IsInf(ts, 0) || ts < 0 {
			return 0, eris.Wrapf(geo.ErrInvalidInput, "accessibility: transportation score %v", ts)
		}
	}

	youth := 1.0
	if in.YouthPrograms {
		youth = m.p.RequestYouthBonus
	}

	annualCost := in.AvgPrice * m.p.RoundsPerYear
	raw := m.affordability(in.MedianIncome, annualCost) * m.DistancePenalty(in.DistanceMiles) * (ts / 10) * youth

	return m.normalize(raw), nil
}

// affordability is income over annual cost. A zero cost is treated as
// unbounded affordability so the score saturates instead of dividing by zero.
func (m *Model) affordability(income, annualCost float64) float64 {
	if annualCost <= 0 {
		if income > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return income / annualCost
}

func (m *Model) normalize(raw float64) float64 {
	if math.IsNaN(raw) {
		return 0
	}
	scaled := raw * m.p.ScaleFactor
	if math.IsNaN(scaled) {
		// Inf * 0 from a zero transportation score.
		return 0
	}
	return round2(math.Min(m.p.MaxScore, math.Max(0, scaled)))
}

func checkInputs(income, distance float64, prices ...float64) error {
	if !finite(income) || income < 0 {
		return eris.Wrapf(geo.ErrInvalidInput, "accessibility: median income %v", income)
	}
	if !finite(distance) || distance < 0 {
		return eris.Wrapf(geo.ErrInvalidInput, "accessibility: distance %v", distance)
	}
	for _, p := range prices {
		if !finite(p) || p < 0 {
			return eris.Wrapf(geo.ErrInvalidInput, "accessibility: price %v", p)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

package service

import (
	"context"
	"math"
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/equitee/equitee-api/internal/model"
	"github.com/equitee/equitee-api/internal/store"
)

// Range is an inclusive integer span.
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// MentorStats aggregates the available mentors.
type MentorStats struct {
	TotalMentors         int      `json:"totalMentors"`
	AverageHourlyRate    int      `json:"averageHourlyRate"`
	AvailableSpecialties []string `json:"availableSpecialties"`
	ExperienceRange      Range    `json:"experienceRange"`
}

// YouthProgramStats aggregates every youth program.
type YouthProgramStats struct {
	TotalPrograms           int      `json:"totalPrograms"`
	FreePrograms            int      `json:"freePrograms"`
	AverageCost             float64  `json:"averageCost"`
	Organizations           []string `json:"organizations"`
	AgeRanges               Range    `json:"ageRanges"`
	ProvidingEquipment      int      `json:"providingEquipment"`
	ProvidingTransportation int      `json:"providingTransportation"`
}

// Facility returns the facility id of kind. A facility of another kind is
// reported as not found.
func (s *Service) Facility(ctx context.Context, kind model.Kind, id string) (*model.Facility, error) {
	f, err := s.facilities.GetFacility(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "service: get %s %s", kind, id)
	}
	if f.Kind != kind {
		return nil, eris.Wrapf(store.ErrNotFound, "service: %s is not a %s", id, kind)
	}
	return f, nil
}

// Specialties lists the distinct specialties of available mentors, lower
// cased and sorted.
func (s *Service) Specialties(ctx context.Context) ([]string, error) {
	mentors, err := s.availableMentors(ctx)
	if err != nil {
		return nil, err
	}
	return specialties(mentors), nil
}

// MentorStats summarizes the available mentors. The hourly rate average is
// rounded to whole dollars and ignores mentors without a rate.
func (s *Service) MentorStats(ctx context.Context) (*MentorStats, error) {
	mentors, err := s.availableMentors(ctx)
	if err != nil {
		return nil, err
	}

	st := &MentorStats{
		TotalMentors:         len(mentors),
		AvailableSpecialties: specialties(mentors),
	}

	var sum float64
	var rated int
	first := true
	for _, m := range mentors {
		if p, ok := m.RepresentativePrice(); ok && p > 0 {
			sum += p
			rated++
		}
		if m.ExperienceYears == nil {
			continue
		}
		y := *m.ExperienceYears
		if first {
			st.ExperienceRange = Range{Min: y, Max: y}
			first = false
			continue
		}
		st.ExperienceRange.Min = min(st.ExperienceRange.Min, y)
		st.ExperienceRange.Max = max(st.ExperienceRange.Max, y)
	}
	if rated > 0 {
		st.AverageHourlyRate = int(math.Round(sum / float64(rated)))
	}
	return st, nil
}

// YouthProgramStats summarizes every youth program. Free programs are left
// out of the average cost. Without any age data the range is the default
// 5 to 17.
func (s *Service) YouthProgramStats(ctx context.Context) (*YouthProgramStats, error) {
	programs, err := s.facilities.ListFacilities(ctx, model.KindYouthProgram, store.FacilityFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "service: list youth programs")
	}

	st := &YouthProgramStats{
		TotalPrograms: len(programs),
		Organizations: []string{},
		AgeRanges:     Range{Min: s.defaults.YouthMinAge, Max: s.defaults.YouthMaxAge},
	}

	var sum float64
	var paid int
	seen := make(map[string]bool)
	aged := false
	for _, p := range programs {
		switch price, ok := p.RepresentativePrice(); {
		case !ok:
		case price == 0:
			st.FreePrograms++
		default:
			sum += price
			paid++
		}
		if p.EquipmentRental {
			st.ProvidingEquipment++
		}
		if p.TransportationAvailable {
			st.ProvidingTransportation++
		}
		if org := strings.TrimSpace(p.Organization); org != "" && !seen[org] {
			seen[org] = true
			st.Organizations = append(st.Organizations, org)
		}
		if p.AgeMin != nil && p.AgeMax != nil {
			if !aged {
				st.AgeRanges = Range{Min: *p.AgeMin, Max: *p.AgeMax}
				aged = true
			}
			st.AgeRanges.Min = min(st.AgeRanges.Min, *p.AgeMin)
			st.AgeRanges.Max = max(st.AgeRanges.Max, *p.AgeMax)
		}
	}
	if paid > 0 {
		st.AverageCost = math.Round(sum/float64(paid)*100) / 100
	}
	slices.Sort(st.Organizations)
	return st, nil
}

// FreeYouthPrograms returns the youth programs priced at zero, ordered by
// name. Programs without a listed price are not assumed free.
func (s *Service) FreeYouthPrograms(ctx context.Context) ([]model.Facility, error) {
	programs, err := s.facilities.ListFacilities(ctx, model.KindYouthProgram, store.FacilityFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "service: list youth programs")
	}

	free := make([]model.Facility, 0, len(programs))
	for _, p := range programs {
		if price, ok := p.RepresentativePrice(); ok && price == 0 {
			free = append(free, p)
		}
	}
	slices.SortStableFunc(free, func(a, b model.Facility) int {
		return strings.Compare(a.Name, b.Name)
	})
	return free, nil
}

func (s *Service) availableMentors(ctx context.Context) ([]model.Facility, error) {
	mentors, err := s.facilities.ListFacilities(ctx, model.KindMentor, store.FacilityFilter{AvailableOnly: true})
	if err != nil {
		return nil, eris.Wrap(err, "service: list mentors")
	}
	return mentors, nil
}

func specialties(mentors []model.Facility) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, m := range mentors {
		for _, sp := range m.Specialties {
			sp = strings.ToLower(strings.TrimSpace(sp))
			if sp != "" && !seen[sp] {
				seen[sp] = true
				out = append(out, sp)
			}
		}
	}
	slices.Sort(out)
	return out
}

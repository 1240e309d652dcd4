// Package seed loads the South Florida reference dataset of courses,
// mentors, youth programs and demographic areas.
package seed

import (
	"context"
	_ "embed"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/equitee/equitee-api/internal/geo"
	"github.com/equitee/equitee-api/internal/model"
	"github.com/equitee/equitee-api/internal/store"
)

//go:embed seed.yaml
var embedded []byte

// idNamespace scopes the name-derived facility IDs so reseeding the same
// file updates rows instead of duplicating them.
var idNamespace = uuid.MustParse("6f1d7c1e-4b7a-4d0e-9a55-3c2f0e9b8a10")

// Dataset is the parsed seed file.
type Dataset struct {
	Courses       []model.Facility        `yaml:"courses"`
	Mentors       []model.Facility        `yaml:"mentors"`
	YouthPrograms []model.Facility        `yaml:"youth_programs"`
	Demographics  []model.DemographicArea `yaml:"demographics"`
}

// Default returns the embedded dataset.
func Default() (*Dataset, error) {
	return Parse(embedded)
}

// Load reads a dataset from path.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML dataset. Facilities get their kind from
// the section they appear in and a stable ID derived from kind and name when
// none is given.
func Parse(data []byte) (*Dataset, error) {
	var d Dataset
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, eris.Wrap(err, "seed: parse")
	}

	for _, sec := range []struct {
		kind model.Kind
		fs   []model.Facility
	}{
		{model.KindCourse, d.Courses},
		{model.KindMentor, d.Mentors},
		{model.KindYouthProgram, d.YouthPrograms},
	} {
		for i := range sec.fs {
			f := &sec.fs[i]
			f.Kind = sec.kind
			if err := prepare(f); err != nil {
				return nil, err
			}
		}
	}

	seen := make(map[string]bool, len(d.Demographics))
	for _, a := range d.Demographics {
		if strings.TrimSpace(a.ZipCode) == "" {
			return nil, eris.New("seed: demographic area without zip_code")
		}
		if seen[a.ZipCode] {
			return nil, eris.Errorf("seed: duplicate zip_code %s", a.ZipCode)
		}
		seen[a.ZipCode] = true
		if a.MedianIncome < 0 {
			return nil, eris.Errorf("seed: zip %s has negative median_income", a.ZipCode)
		}
	}
	return &d, nil
}

func prepare(f *model.Facility) error {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return eris.Errorf("seed: %s without a name", f.Kind)
	}
	if f.ID == "" {
		f.ID = uuid.NewSHA1(idNamespace, []byte(string(f.Kind)+"/"+f.Name)).String()
	}
	if f.Location != nil {
		if err := geo.Validate(*f.Location); err != nil {
			return eris.Wrapf(err, "seed: %s %q", f.Kind, f.Name)
		}
	}
	for _, p := range []*float64{f.PriceMin, f.PriceMax, f.Price} {
		if p != nil && *p < 0 {
			return eris.Wrapf(geo.ErrInvalidInput, "seed: %s %q has a negative price", f.Kind, f.Name)
		}
	}
	return nil
}

// Facilities returns every facility in the dataset, courses first.
func (d *Dataset) Facilities() []model.Facility {
	out := make([]model.Facility, 0, len(d.Courses)+len(d.Mentors)+len(d.YouthPrograms))
	out = append(out, d.Courses...)
	out = append(out, d.Mentors...)
	return append(out, d.YouthPrograms...)
}

// Writer is the store surface Apply needs.
type Writer interface {
	UpsertFacilities(ctx context.Context, facilities []model.Facility) (int64, error)
	UpsertAreas(ctx context.Context, areas []model.DemographicArea) (int64, error)
}

var _ Writer = (store.Store)(nil)

// Result counts the rows Apply wrote.
type Result struct {
	Facilities int64 `json:"facilities"`
	Areas      int64 `json:"areas"`
}

// Apply upserts the dataset into w.
func Apply(ctx context.Context, w Writer, d *Dataset) (*Result, error) {
	facilities, err := w.UpsertFacilities(ctx, d.Facilities())
	if err != nil {
		return nil, eris.Wrap(err, "seed: upsert facilities")
	}
	areas, err := w.UpsertAreas(ctx, d.Demographics)
	if err != nil {
		return nil, eris.Wrap(err, "seed: upsert areas")
	}

	zap.L().Info("seed: applied",
		zap.Int("courses", len(d.Courses)),
		zap.Int("mentors", len(d.Mentors)),
		zap.Int("youth_programs", len(d.YouthPrograms)),
		zap.Int64("areas", areas),
	)
	return &Result{Facilities: facilities, Areas: areas}, nil
}

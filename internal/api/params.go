package api

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/equitee/equitee-api/internal/geo"
	"github.com/equitee/equitee-api/internal/model"
)

// query wraps url.Values and remembers the first parse failure so handlers
// can read every parameter and check once.
type query struct {
	v   url.Values
	err error
}

func newQuery(v url.Values) *query { return &query{v: v} }

func (q *query) fail(name, raw string) {
	if q.err == nil {
		q.err = eris.Wrapf(geo.ErrInvalidInput, "parameter %s=%q", name, raw)
	}
}

func (q *query) float(name string) *float64 {
	raw := strings.TrimSpace(q.v.Get(name))
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		q.fail(name, raw)
		return nil
	}
	return &f
}

func (q *query) int(name string) *int {
	raw := strings.TrimSpace(q.v.Get(name))
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		q.fail(name, raw)
		return nil
	}
	return &n
}

func (q *query) bool(name string) *bool {
	raw := strings.TrimSpace(q.v.Get(name))
	if raw == "" {
		return nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		q.fail(name, raw)
		return nil
	}
	return &b
}

func (q *query) string(name string) string {
	return strings.TrimSpace(q.v.Get(name))
}

// list splits a comma-separated parameter, dropping empty entries.
func (q *query) list(name string) []string {
	var out []string
	for _, s := range strings.Split(q.v.Get(name), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// origin reads the required lat/lng pair.
func (q *query) origin() model.Coordinate {
	lat, lng := q.float("lat"), q.float("lng")
	if lat == nil || lng == nil {
		if q.err == nil {
			q.err = eris.Wrap(geo.ErrInvalidInput, "lat and lng are required")
		}
		return model.Coordinate{}
	}
	return model.Coordinate{Lat: *lat, Lng: *lng}
}

func (q *query) flag(flags map[model.Flag]bool, name string, f model.Flag) map[model.Flag]bool {
	b := q.bool(name)
	if b == nil {
		return flags
	}
	if flags == nil {
		flags = make(map[model.Flag]bool)
	}
	flags[f] = *b
	return flags
}

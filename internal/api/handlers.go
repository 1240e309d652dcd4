package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/equitee/equitee-api/internal/geo"
	"github.com/equitee/equitee-api/internal/matching"
	"github.com/equitee/equitee-api/internal/model"
	"github.com/equitee/equitee-api/internal/service"
)

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// applyCommon overlays radius and limit on the kind defaults.
func applyCommon(q *query, c *matching.Criteria) {
	if v := q.float("radius"); v != nil {
		c.RadiusMiles = *v
	}
	if v := q.int("limit"); v != nil {
		if *v < 0 {
			q.fail("limit", q.string("limit"))
		}
		c.Limit = *v
	}
}

func (h *handler) nearby(w http.ResponseWriter, r *http.Request, kind model.Kind, q *query, c matching.Criteria) {
	origin := q.origin()
	if q.err != nil {
		writeError(w, r, q.err)
		return
	}
	ranked, err := h.svc.Nearby(r.Context(), kind, origin, c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ranked)
}

func (h *handler) nearbyCourses(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r.URL.Query())
	c := h.svc.Criteria(model.KindCourse)
	applyCommon(q, &c)
	if v := q.float("price"); v != nil {
		c.MaxPrice = v
	}
	c.Flags = q.flag(c.Flags, "youth_programs", model.FlagYouthPrograms)
	c.Flags = q.flag(c.Flags, "equipment_rental", model.FlagEquipmentRental)
	if v := q.float("max_difficulty"); v != nil {
		c.MaxDifficulty = v
	}
	h.nearby(w, r, model.KindCourse, q, c)
}

func (h *handler) nearbyMentors(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r.URL.Query())
	c := h.svc.Criteria(model.KindMentor)
	applyCommon(q, &c)
	if v := q.float("budget"); v != nil {
		c.MaxPrice = v
	}
	c.Specialties = q.list("specialties")
	h.nearby(w, r, model.KindMentor, q, c)
}

func (h *handler) nearbyYouthPrograms(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r.URL.Query())
	c := h.svc.Criteria(model.KindYouthProgram)
	applyCommon(q, &c)
	if v := q.float("budget"); v != nil {
		c.MaxPrice = v
	}
	if v := q.int("min_age"); v != nil {
		c.MinAge = v
	}
	if v := q.int("max_age"); v != nil {
		c.MaxAge = v
	}
	c.Organization = q.string("organization")
	c.Flags = q.flag(c.Flags, "equipment_provided", model.FlagEquipmentRental)
	c.Flags = q.flag(c.Flags, "transportation_available", model.FlagTransportationAvailable)
	h.nearby(w, r, model.KindYouthProgram, q, c)
}

// scoreLocation scores lat/lng against the nearest area, or a zip code
// against its own area.
func (h *handler) scoreLocation(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r.URL.Query())

	var (
		ls  *service.LocationScore
		err error
	)
	if zip := q.string("zip"); zip != "" {
		ls, err = h.svc.ScoreZip(r.Context(), zip)
	} else {
		origin := q.origin()
		if q.err != nil {
			writeError(w, r, q.err)
			return
		}
		ls, err = h.svc.ScoreLocation(r.Context(), origin)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ls)
}

func (h *handler) zipScores(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.ZipScores(r.Context(), chi.URLParam(r, "zip"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *handler) scorePair(w http.ResponseWriter, r *http.Request) {
	zip, id := chi.URLParam(r, "zip"), chi.URLParam(r, "id")
	if zip == "" || id == "" {
		writeError(w, r, eris.Wrap(geo.ErrInvalidInput, "zip and facility id are required"))
		return
	}
	ps, err := h.svc.ScorePair(r.Context(), zip, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *handler) heatmap(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Heatmap(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handler) area(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Area(r.Context(), chi.URLParam(r, "zip"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *handler) facility(kind model.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := h.svc.Facility(r.Context(), kind, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

func (h *handler) specialties(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Specialties(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) mentorStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.MentorStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) youthProgramStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.YouthProgramStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) freeYouthPrograms(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.FreeYouthPrograms(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

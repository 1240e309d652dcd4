package api

import (
	"encoding/json"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/equitee/equitee-api/internal/geo"
	"github.com/equitee/equitee-api/internal/store"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

// writeError maps invalid input to 400, missing rows to 404 and everything
// else to 500. Internal errors are logged but not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case eris.Is(err, geo.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case eris.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	default:
		zap.L().Error("api: request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}

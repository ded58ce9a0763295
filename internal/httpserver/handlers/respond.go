package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"warranty/internal/apperr"
	"warranty/internal/models"
)

// Paging carries the configured page size bounds.
type Paging struct {
	Default int
	Max     int
}

func respondJSON(w http.ResponseWriter, v interface{}) {
	respondStatus(w, http.StatusOK, v)
}

func respondStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondStatus(w, status, map[string]string{"error": msg})
}

// writeError turns domain rule violations into 400 with their literal message.
// Anything else is logged and hidden behind a 500.
func writeError(w http.ResponseWriter, r *http.Request, lg *zap.SugaredLogger, err error) {
	var ae *apperr.Error
	switch {
	case errors.Is(err, apperr.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &ae):
		respondError(w, http.StatusBadRequest, ae.Message)
	default:
		lg.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// pageParams reads 1-based ?page and ?size; bad values fall back to defaults.
func pageParams(r *http.Request, p Paging) models.PageRequest {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))
	return models.PageRequest{Page: page, Size: size}.Normalize(p.Default, p.Max)
}

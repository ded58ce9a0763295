package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"warranty/internal/store"
)

const (
	defaultLogLimit = 200
	maxLogLimit     = 1000
)

// AuditLogs returns recent audit entries, newest first. ?actorId narrows the
// result to one user.
func AuditLogs(audit store.AuditStore, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, err := strconv.Atoi(q.Get("limit"))
		if err != nil || limit <= 0 {
			limit = defaultLogLimit
		}
		if limit > maxLogLimit {
			limit = maxLogLimit
		}
		var actor *int64
		if v := q.Get("actorId"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				respondError(w, http.StatusBadRequest, "invalid actorId")
				return
			}
			actor = &id
		}
		logs, err := audit.Recent(r.Context(), actor, limit)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, logs)
	}
}

package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"warranty/internal/auth"
	"warranty/internal/models"
	"warranty/internal/services/user"
	"warranty/internal/store"
)

func RegisterUser(svc *user.Service, audit store.AuditStore, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req user.RegisterRequest
		if !decode(w, r, &req) {
			return
		}
		u, err := svc.Register(r.Context(), req)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		actor := u.ID
		if err := audit.Append(r.Context(), &models.AuditLog{ActorID: &actor, Action: "USER_REGISTER", Subject: u.Email, Metadata: models.Metadata{}}); err != nil {
			lg.Warnw("audit append failed", "action", "USER_REGISTER", "err", err)
		}
		respondJSON(w, u)
	}
}

// UpdateUser lets callers edit themselves; editing others needs users:manage.
func UpdateUser(svc *user.Service, audit store.AuditStore, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		claims := auth.FromContext(r.Context())
		if claims.UserID() != id && !auth.Can(claims.Role, auth.UsersManage) {
			respondError(w, http.StatusForbidden, "forbidden")
			return
		}
		var req user.UpdateRequest
		if !decode(w, r, &req) {
			return
		}
		u, err := svc.UpdateUser(r.Context(), id, req)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		record(r, audit, lg, "USER_UPDATE", strconv.FormatInt(id, 10), nil)
		respondJSON(w, u)
	}
}

func ListUsers(svc *user.Service, paging Paging, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := svc.ListUsers(r.Context(), pageParams(r, paging))
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, page)
	}
}

func ChangePassword(svc *user.Service, audit store.AuditStore, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req user.ChangePasswordRequest
		if !decode(w, r, &req) {
			return
		}
		uid := auth.UserID(r.Context())
		if err := svc.ChangePassword(r.Context(), uid, req); err != nil {
			writeError(w, r, lg, err)
			return
		}
		record(r, audit, lg, "USER_CHANGE_PASSWORD", strconv.FormatInt(uid, 10), nil)
		respondJSON(w, map[string]any{"changed": true})
	}
}

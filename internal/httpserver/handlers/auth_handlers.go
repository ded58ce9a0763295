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

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login accepts an email or phone number as username.
func Login(svc *user.Service, sm *auth.SessionManager, audit store.AuditStore, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginReq
		if !decode(w, r, &req) {
			return
		}
		u, err := svc.Authenticate(r.Context(), req.Username, req.Password)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		tok, exp, err := sm.Issue(r.Context(), u)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		actor := u.ID
		if err := audit.Append(r.Context(), &models.AuditLog{ActorID: &actor, Action: "LOGIN", Subject: strconv.FormatInt(u.ID, 10), Metadata: models.Metadata{}}); err != nil {
			lg.Warnw("audit append failed", "action", "LOGIN", "err", err)
		}
		respondJSON(w, map[string]any{"token": tok, "expiresAt": exp, "role": u.Role})
	}
}

func Logout(sm *auth.SessionManager, audit store.AuditStore, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.FromContext(r.Context())
		if err := sm.Revoke(r.Context(), claims.JWTID); err != nil {
			writeError(w, r, lg, err)
			return
		}
		record(r, audit, lg, "LOGOUT", claims.Subject, nil)
		respondJSON(w, map[string]any{"revoked": true})
	}
}

func Me(svc *user.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := svc.Get(r.Context(), auth.UserID(r.Context()))
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, u)
	}
}

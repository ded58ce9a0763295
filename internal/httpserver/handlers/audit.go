package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"warranty/internal/auth"
	"warranty/internal/models"
	"warranty/internal/store"
)

// record appends an audit entry for the caller. Failures are logged, never
// surfaced to the client.
func record(r *http.Request, audit store.AuditStore, lg *zap.SugaredLogger, action, subject string, md models.Metadata) {
	entry := &models.AuditLog{Action: action, Subject: subject, Metadata: md}
	if uid := auth.UserID(r.Context()); uid != 0 {
		entry.ActorID = &uid
	}
	if entry.Metadata == nil {
		entry.Metadata = models.Metadata{}
	}
	if err := audit.Append(r.Context(), entry); err != nil {
		lg.Warnw("audit append failed", "action", action, "err", err)
	}
}

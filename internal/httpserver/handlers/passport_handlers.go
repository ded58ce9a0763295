package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"warranty/internal/models"
	"warranty/internal/services/passport"
	"warranty/internal/store"
)

func CreatePassport(svc *passport.Service, audit store.AuditStore, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req passport.Request
		if !decode(w, r, &req) {
			return
		}
		p, err := svc.Create(r.Context(), req)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		record(r, audit, lg, "PASSPORT_CREATE", strconv.FormatInt(p.ID, 10), models.Metadata{
			"prefix": p.SerialPrefix, "from": p.FromSerialNumber, "to": p.ToSerialNumber,
		})
		respondStatus(w, http.StatusCreated, p)
	}
}

func UpdatePassport(svc *passport.Service, audit store.AuditStore, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		var req passport.Request
		if !decode(w, r, &req) {
			return
		}
		p, err := svc.Update(r.Context(), id, req)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		record(r, audit, lg, "PASSPORT_UPDATE", strconv.FormatInt(id, 10), models.Metadata{
			"name": p.Name, "prefix": p.SerialPrefix, "from": p.FromSerialNumber, "to": p.ToSerialNumber,
		})
		respondJSON(w, p)
	}
}

func DeletePassport(svc *passport.Service, audit store.AuditStore, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			writeError(w, r, lg, err)
			return
		}
		record(r, audit, lg, "PASSPORT_DELETE", strconv.FormatInt(id, 10), nil)
		respondJSON(w, map[string]any{"deleted": true})
	}
}

func GetPassport(svc *passport.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		p, err := svc.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, p)
	}
}

func ListPassports(svc *passport.Service, paging Paging, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := svc.List(r.Context(), pageParams(r, paging))
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, page)
	}
}

func PassportBySerial(svc *passport.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.FindBySerial(r.Context(), chi.URLParam(r, "serial"))
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, p)
	}
}

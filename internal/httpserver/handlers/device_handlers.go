package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"warranty/internal/apperr"
	"warranty/internal/auth"
	"warranty/internal/models"
	"warranty/internal/services/device"
	"warranty/internal/services/user"
	"warranty/internal/store"
)

// DeviceExists is public so a buyer can check registration by serial alone.
func DeviceExists(svc *device.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := svc.Get(r.Context(), chi.URLParam(r, "serial"))
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, d)
	}
}

func GetDevice(svc *device.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return DeviceExists(svc, lg)
}

func ListDevices(svc *device.Service, paging Paging, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := svc.ListDevices(r.Context(), r.URL.Query().Get("query"), pageParams(r, paging))
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, page)
	}
}

func MyDevices(svc *device.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		devices, err := svc.ListForUser(r.Context(), auth.UserID(r.Context()))
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, devices)
	}
}

// RegisterDevice registers a device to the calling user.
func RegisterDevice(svc *device.Service, users *user.Service, audit store.AuditStore, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req device.RegisterRequest
		if !decode(w, r, &req) {
			return
		}
		owner, err := users.Get(r.Context(), auth.UserID(r.Context()))
		if err != nil && !errors.Is(err, apperr.ErrUserNotFound) {
			writeError(w, r, lg, err)
			return
		}
		d, err := svc.RegisterNewDevice(r.Context(), req, owner)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		record(r, audit, lg, "DEVICE_REGISTER", d.SerialNumber, models.Metadata{
			"passportId": d.PassportID, "warrantyExpirationDate": d.WarrantyExpirationDate.String(),
		})
		respondStatus(w, http.StatusCreated, d)
	}
}

func ListRenovations(svc *device.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.Renovations(r.Context(), chi.URLParam(r, "serial"))
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, list)
	}
}

func AddRenovation(svc *device.Service, audit store.AuditStore, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req device.RenovationRequest
		if !decode(w, r, &req) {
			return
		}
		serial := chi.URLParam(r, "serial")
		ren, err := svc.AddRenovation(r.Context(), serial, req)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		record(r, audit, lg, "DEVICE_RENOVATION", serial, models.Metadata{"renovationId": ren.ID})
		respondStatus(w, http.StatusCreated, ren)
	}
}

package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"warranty/internal/auth"
	"warranty/internal/httpserver/handlers"
	"warranty/internal/metrics"
	"warranty/internal/services/device"
	"warranty/internal/services/passport"
	"warranty/internal/services/user"
	"warranty/internal/store"
)

type Deps struct {
	Audit     store.AuditStore
	Passports *passport.Service
	Devices   *device.Service
	Users     *user.Service
	Sessions  *auth.SessionManager
	Metrics   *metrics.Metrics
	Paging    handlers.Paging
	Logger    *zap.SugaredLogger
}

func NewRouter(d Deps) http.Handler {
	lg := d.Logger
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/users/registration", handlers.RegisterUser(d.Users, d.Audit, lg))
		api.Post("/users/login", handlers.Login(d.Users, d.Sessions, d.Audit, lg))
		api.Get("/devices/exists/{serial}", handlers.DeviceExists(d.Devices, lg))

		api.Group(func(protected chi.Router) {
			protected.Use(auth.JWTAuth(d.Sessions))
			protected.Post("/users/logout", handlers.Logout(d.Sessions, d.Audit, lg))
			protected.Get("/users/me", handlers.Me(d.Users, lg))
			protected.Put("/users/changePassword", handlers.ChangePassword(d.Users, d.Audit, lg))
			protected.Put("/users/{id}", handlers.UpdateUser(d.Users, d.Audit, lg))
			protected.With(auth.Require(auth.UsersManage)).Get("/users", handlers.ListUsers(d.Users, d.Paging, lg))

			protected.Get("/devices/mine", handlers.MyDevices(d.Devices, lg))
			protected.With(auth.Require(auth.DevicesRegister)).Post("/devices", handlers.RegisterDevice(d.Devices, d.Users, d.Audit, lg))
			protected.Group(func(admin chi.Router) {
				admin.Use(auth.Require(auth.DevicesManage))
				admin.Get("/devices", handlers.ListDevices(d.Devices, d.Paging, lg))
				admin.Get("/devices/{serial}", handlers.GetDevice(d.Devices, lg))
				admin.Get("/devices/{serial}/renovations", handlers.ListRenovations(d.Devices, lg))
				admin.Post("/devices/{serial}/renovations", handlers.AddRenovation(d.Devices, d.Audit, lg))
			})

			protected.With(auth.Require(auth.PassportsLookup)).Get("/passports/getBySerialId/{serial}", handlers.PassportBySerial(d.Passports, lg))
			protected.Group(func(admin chi.Router) {
				admin.Use(auth.Require(auth.PassportsManage))
				admin.Post("/passports", handlers.CreatePassport(d.Passports, d.Audit, lg))
				admin.Get("/passports", handlers.ListPassports(d.Passports, d.Paging, lg))
				admin.Get("/passports/{id}", handlers.GetPassport(d.Passports, lg))
				admin.Put("/passports/{id}", handlers.UpdatePassport(d.Passports, d.Audit, lg))
				admin.Delete("/passports/{id}", handlers.DeletePassport(d.Passports, d.Audit, lg))
			})

			protected.With(auth.Require(auth.AuditRead)).Get("/logs", handlers.AuditLogs(d.Audit, lg))
		})
	})
	return r
}

package auth

import (
	"net/http"

	"warranty/internal/models"
)

type Permission string

const (
	PassportsManage Permission = "passports:manage"
	PassportsLookup Permission = "passports:lookup"
	DevicesManage   Permission = "devices:manage"
	DevicesRegister Permission = "devices:register"
	UsersManage     Permission = "users:manage"
	AuditRead       Permission = "audit:read"
)

var grants = map[models.Role]map[Permission]bool{
	models.RoleAdmin: {
		PassportsManage: true,
		PassportsLookup: true,
		DevicesManage:   true,
		DevicesRegister: true,
		UsersManage:     true,
		AuditRead:       true,
	},
	models.RoleUser: {
		PassportsLookup: true,
		DevicesRegister: true,
	},
}

// Can reports whether role holds perm. Unknown roles hold nothing.
func Can(role models.Role, perm Permission) bool {
	return grants[role][perm]
}

// Require must run after JWTAuth.
func Require(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !Can(FromContext(r.Context()).Role, perm) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

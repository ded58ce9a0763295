package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"warranty/internal/auth"
	"warranty/internal/httpserver/handlers"
	"warranty/internal/metrics"
	"warranty/internal/services/device"
	"warranty/internal/services/passport"
	"warranty/internal/services/user"
	"warranty/internal/store"
)

type RouterSuite struct {
	suite.Suite
	srv        *httptest.Server
	adminToken string
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	lg := zap.NewNop().Sugar()
	st := store.NewMemory()
	m := metrics.New(prometheus.NewRegistry())
	passports := passport.New(st, lg, passport.WithMetrics(m))
	users := user.New(st, auth.Hasher{Cost: 4}, lg, user.WithMetrics(m))
	_, err := users.EnsureAdmin(context.Background(), user.AdminSeed{FullName: "Admin", Email: "admin@warranty.local", Phone: "123456789", Password: "admin"})
	s.Require().NoError(err)

	s.srv = httptest.NewServer(NewRouter(Deps{
		Audit:     st.Audit(),
		Passports: passports,
		Devices:   device.New(st, passports, lg, device.WithMetrics(m)),
		Users:     users,
		Sessions:  auth.NewSessionManager(auth.NewIssuer("test-secret", time.Hour), st.Sessions()),
		Metrics:   m,
		Paging:    handlers.Paging{Default: 10, Max: 100},
		Logger:    lg,
	}))
	s.adminToken = s.login("admin@warranty.local", "admin")
}

func (s *RouterSuite) TearDownTest() {
	s.srv.Close()
}

func (s *RouterSuite) do(method, path, token string, body any) (int, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var out any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	switch v := out.(type) {
	case map[string]any:
		return resp.StatusCode, v
	case []any:
		return resp.StatusCode, map[string]any{"items": v}
	}
	return resp.StatusCode, nil
}

func (s *RouterSuite) login(username, password string) string {
	code, body := s.do(http.MethodPost, "/api/v1/users/login", "", map[string]string{"username": username, "password": password})
	s.Require().Equal(http.StatusOK, code, body)
	return body["token"].(string)
}

func passportBody(name, prefix string, from, to int) map[string]any {
	return map[string]any{"name": name, "model": name + "Model", "serialPrefix": prefix, "fromSerialNumber": from, "toSerialNumber": to, "warrantyMonths": 36}
}

func (s *RouterSuite) TestPassportCRUD() {
	code, body := s.do(http.MethodPost, "/api/v1/passports", s.adminToken, passportBody("New", "New", 1, 100))
	s.Require().Equal(http.StatusCreated, code, body)
	id := int64(body["id"].(float64))

	code, _ = s.do(http.MethodPost, "/api/v1/passports", s.adminToken, passportBody("First", "First", 1, 100))
	s.Require().Equal(http.StatusCreated, code)

	code, body = s.do(http.MethodPost, "/api/v1/passports", s.adminToken, passportBody("Overlap", "First", 30, 150))
	s.Equal(http.StatusBadRequest, code)
	s.Equal("Serial number already exists", body["error"])

	code, body = s.do(http.MethodPut, fmt.Sprintf("/api/v1/passports/%d", id), s.adminToken, passportBody("Renamed", "New", 1, 100))
	s.Equal(http.StatusOK, code)
	s.Equal("Renamed", body["name"])

	code, body = s.do(http.MethodPut, "/api/v1/passports/1234", s.adminToken, passportBody("Renamed", "New", 1, 100))
	s.Equal(http.StatusBadRequest, code)
	s.Equal("Passport not found", body["error"])

	code, body = s.do(http.MethodGet, "/api/v1/passports?page=1&size=1", s.adminToken, nil)
	s.Equal(http.StatusOK, code)
	s.EqualValues(2, body["total"])

	code, body = s.do(http.MethodGet, "/api/v1/passports?page=922337203685477581&size=100", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, code, body)
	s.EqualValues(2, body["total"])
	s.Empty(body["items"])
	s.Positive(body["page"])

	code, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/passports/%d", id), s.adminToken, nil)
	s.Equal(http.StatusOK, code)

	code, body = s.do(http.MethodGet, "/api/v1/passports/getBySerialId/New1", s.adminToken, nil)
	s.Equal(http.StatusBadRequest, code)
	s.Equal("Passport not found for serial number: New1", body["error"])

	code, body = s.do(http.MethodGet, "/api/v1/passports/getBySerialId/First1", s.adminToken, nil)
	s.Equal(http.StatusOK, code)
	s.Equal("First", body["name"])
}

func (s *RouterSuite) TestUserAndDeviceFlow() {
	code, body := s.do(http.MethodPost, "/api/v1/users/registration", "", map[string]string{
		"fullName": "Nia Pencheva", "email": "nia@gmail.com", "phone": "0888888888", "address": "Varna", "password": "secret",
	})
	s.Require().Equal(http.StatusOK, code, body)
	s.Nil(body["passwordHash"])
	niaID := int64(body["id"].(float64))

	code, body = s.do(http.MethodPost, "/api/v1/users/registration", "", map[string]string{
		"fullName": "Other", "email": "other@gmail.com", "phone": "0888888888", "password": "secret",
	})
	s.Equal(http.StatusBadRequest, code)
	s.Equal("Phone already taken", body["error"])

	code, _ = s.do(http.MethodPost, "/api/v1/passports", s.adminToken, passportBody("FirstPassport", "First", 1, 100))
	s.Require().Equal(http.StatusCreated, code)

	nia := s.login("0888888888", "secret")

	s.Run("users cannot manage passports", func() {
		code, body := s.do(http.MethodPost, "/api/v1/passports", nia, passportBody("X", "X", 1, 2))
		s.Equal(http.StatusForbidden, code)
		s.Equal("forbidden", body["error"])
	})

	s.Run("register device", func() {
		code, body := s.do(http.MethodPost, "/api/v1/devices", nia, map[string]string{"serialNumber": "First7", "purchaseDate": "2024-01-31"})
		s.Require().Equal(http.StatusCreated, code, body)
		s.Equal("2027-01-31", body["warrantyExpirationDate"])

		code, body = s.do(http.MethodPost, "/api/v1/devices", nia, map[string]string{"serialNumber": "Second7"})
		s.Equal(http.StatusBadRequest, code)
		s.Equal("Invalid serial number", body["error"])
	})

	s.Run("public existence check", func() {
		code, body := s.do(http.MethodGet, "/api/v1/devices/exists/First7", "", nil)
		s.Equal(http.StatusOK, code)
		s.Equal("First7", body["serialNumber"])

		code, body = s.do(http.MethodGet, "/api/v1/devices/exists/First8", "", nil)
		s.Equal(http.StatusBadRequest, code)
		s.Equal("Device not registered", body["error"])
	})

	s.Run("admin views and renovates", func() {
		code, body := s.do(http.MethodGet, "/api/v1/devices?query=nia", s.adminToken, nil)
		s.Equal(http.StatusOK, code)
		s.EqualValues(1, body["total"])

		code, body = s.do(http.MethodPost, "/api/v1/devices/First7/renovations", s.adminToken, map[string]string{"description": "battery", "renovationDate": "2024-06-01"})
		s.Equal(http.StatusCreated, code, body)

		code, body = s.do(http.MethodGet, "/api/v1/devices/First7/renovations", s.adminToken, nil)
		s.Require().Equal(http.StatusOK, code, body)
		history := body["items"].([]any)
		s.Require().Len(history, 1)
		s.Equal("battery", history[0].(map[string]any)["description"])
		s.Equal("2024-06-01", history[0].(map[string]any)["renovationDate"])

		code, body = s.do(http.MethodGet, "/api/v1/devices/First8/renovations", s.adminToken, nil)
		s.Equal(http.StatusBadRequest, code)
		s.Equal("Device not registered", body["error"])

		code, _ = s.do(http.MethodGet, "/api/v1/devices/First7/renovations", nia, nil)
		s.Equal(http.StatusForbidden, code)

		code, body = s.do(http.MethodGet, "/api/v1/devices/mine", nia, nil)
		s.Equal(http.StatusOK, code)
		items := body["items"].([]any)
		s.Require().Len(items, 1)
		s.Len(items[0].(map[string]any)["renovations"], 1)
	})

	s.Run("profile updates", func() {
		update := map[string]string{"fullName": "Nia P.", "address": "Sofia", "phone": "0888888888", "email": "nia@gmail.com"}
		code, body := s.do(http.MethodPut, fmt.Sprintf("/api/v1/users/%d", niaID), nia, update)
		s.Equal(http.StatusOK, code)
		s.Equal("Nia P.", body["fullName"])

		code, _ = s.do(http.MethodPut, fmt.Sprintf("/api/v1/users/%d", niaID+1000), nia, update)
		s.Equal(http.StatusForbidden, code)

		code, body = s.do(http.MethodGet, "/api/v1/users/me", s.adminToken, nil)
		s.Require().Equal(http.StatusOK, code)
		adminID := int64(body["id"].(float64))
		code, body = s.do(http.MethodPut, fmt.Sprintf("/api/v1/users/%d", adminID), s.adminToken, update)
		s.Equal(http.StatusBadRequest, code)
		s.Equal("Admin password can't be changed", body["error"])
	})

	s.Run("audit log", func() {
		code, body := s.do(http.MethodGet, "/api/v1/logs?limit=5", s.adminToken, nil)
		s.Equal(http.StatusOK, code)
		s.NotEmpty(body["items"])

		code, _ = s.do(http.MethodGet, "/api/v1/logs", nia, nil)
		s.Equal(http.StatusForbidden, code)
	})

	s.Run("logout revokes the token", func() {
		code, _ := s.do(http.MethodPost, "/api/v1/users/logout", nia, nil)
		s.Equal(http.StatusOK, code)
		code, body := s.do(http.MethodGet, "/api/v1/users/me", nia, nil)
		s.Equal(http.StatusUnauthorized, code)
		s.Equal("session expired/revoked", body["error"])
	})
}

func (s *RouterSuite) TestAuthentication() {
	code, body := s.do(http.MethodPost, "/api/v1/users/login", "", map[string]string{"username": "admin@warranty.local", "password": "nope"})
	s.Equal(http.StatusUnauthorized, code)
	s.Equal("Invalid credentials", body["error"])

	code, _ = s.do(http.MethodGet, "/api/v1/users/me", "", nil)
	s.Equal(http.StatusUnauthorized, code)

	code, _ = s.do(http.MethodGet, "/healthz", "", nil)
	s.Equal(http.StatusOK, code)
}

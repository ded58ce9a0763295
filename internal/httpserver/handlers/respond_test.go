package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"warranty/internal/apperr"
	"warranty/internal/models"
)

func TestWriteError(t *testing.T) {
	lg := zap.NewNop().Sugar()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	cases := []struct {
		err  error
		code int
		body string
	}{
		{apperr.ErrSerialNumberExists, http.StatusBadRequest, `{"error":"Serial number already exists"}`},
		{errors.Wrap(apperr.PassportNotFoundForSerial("X1"), "lookup"), http.StatusBadRequest, `{"error":"Passport not found for serial number: X1"}`},
		{apperr.ErrInvalidCredentials, http.StatusUnauthorized, `{"error":"Invalid credentials"}`},
		{errors.New("db down"), http.StatusInternalServerError, `{"error":"internal error"}`},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, req, lg, c.err)
		assert.Equal(t, c.code, rec.Code, c.err.Error())
		assert.JSONEq(t, c.body, rec.Body.String())
	}
}

func TestPageParams(t *testing.T) {
	p := Paging{Default: 10, Max: 100}
	for raw, want := range map[string]models.PageRequest{
		"":                 {Page: 1, Size: 10},
		"?page=3&size=5":   {Page: 3, Size: 5},
		"?page=-1&size=x":  {Page: 1, Size: 10},
		"?page=2&size=500": {Page: 2, Size: 100},
	} {
		got := pageParams(httptest.NewRequest(http.MethodGet, "/"+raw, nil), p)
		assert.Equal(t, want, got, raw)
	}
}

package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/realty-crm/internal/service"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrUnauthenticated, http.StatusUnauthorized},
		{service.ErrForbidden, http.StatusForbidden},
		{&service.WeakPasswordError{Errors: []string{"x"}}, http.StatusBadRequest},
		{service.ErrInvalidOrExpiredToken, http.StatusBadRequest},
		{service.ErrInvalidInput, http.StatusBadRequest},
		{service.ErrConflict, http.StatusConflict},
		{service.ErrNotFound, http.StatusNotFound},
		{service.ErrRateLimited, http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		wrapped := fmt.Errorf("service.Op: %w", tt.err)
		if got, _ := statusFor(wrapped); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestFailHidesInternalErrors(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	if err := fail(c, slog.New(slog.NewTextHandler(io.Discard, nil)), errors.New("dial tcp 10.0.0.1:3306: refused")); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "3306") {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestFailListsWeakPasswordRules(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

	err := fmt.Errorf("op: %w", &service.WeakPasswordError{Errors: []string{"too short", "no digit"}})
	if err := fail(c, slog.New(slog.NewTextHandler(io.Discard, nil)), err); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), `"errors":["too short","no digit"]`) {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestClientInfo(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("User-Agent", "curl/8")
	req.Header.Set("Accept-Language", "pt-BR")
	req.Header.Set("Referer", "https://crm.example.com/login")
	req.Header.Set(echo.HeaderXRealIP, "198.51.100.7")
	c := echo.New().NewContext(req, httptest.NewRecorder())

	got := clientInfo(c)
	if got.IP != "198.51.100.7" || got.UserAgent != "curl/8" {
		t.Fatalf("clientInfo() = %+v", got)
	}
	if got.Device.AcceptLanguage != "pt-BR" || got.Device.Referer != "https://crm.example.com/login" {
		t.Fatalf("device = %+v", got.Device)
	}
}

func TestRequestValidation(t *testing.T) {
	h := NewAuthHandler(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	tests := []struct {
		name    string
		handler echo.HandlerFunc
		body    string
	}{
		{"login without password", h.Login, `{"email":"a@b.co"}`},
		{"register without email", h.Register, `{"password":"Abcdef1!"}`},
		{"refresh without token", h.Refresh, `{}`},
		{"forgot without email", h.ForgotPassword, `{"email":"  "}`},
		{"reset without token", h.ResetPassword, `{"new_password":"Abcdef1!"}`},
		{"malformed json", h.Login, `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			if err := tt.handler(echo.New().NewContext(req, rec)); err != nil {
				t.Fatal(err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status %d, want 400", rec.Code)
			}
		})
	}
}

package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/realty-crm/internal/service"
)

// statusFor maps service failures to HTTP status codes and a client-safe
// message.  Anything unrecognized is a 500.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, "Invalid or expired token"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "Insufficient permissions"
	case errors.Is(err, service.ErrWeakPassword):
		return http.StatusBadRequest, "Password does not meet requirements"
	case errors.Is(err, service.ErrInvalidOrExpiredToken):
		return http.StatusBadRequest, "Invalid or expired token"
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid input"
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "User with this email or username already exists"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests, "Rate limit exceeded"
	}
	return http.StatusInternalServerError, "Internal server error"
}

// fail writes err as a JSON error body.  Weak passwords carry the broken
// rules; 500s are logged and their cause is not exposed.
func fail(c echo.Context, log *slog.Logger, err error) error {
	status, msg := statusFor(err)
	body := echo.Map{"error": msg}

	var weak *service.WeakPasswordError
	if errors.As(err, &weak) {
		body["errors"] = weak.Errors
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			slog.String("method", c.Request().Method),
			slog.String("path", c.Path()),
			slog.Any("err", err))
	}
	return c.JSON(status, body)
}

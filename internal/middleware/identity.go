package middleware

// identity.go holds the context keys set by Authenticate and the helpers
// handlers use to read them back.

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/realty-crm/internal/model"
)

const (
	ctxUser        = "user"
	ctxAccessToken = "access_token"
)

// CurrentUser returns the user stored by Authenticate.
func CurrentUser(c echo.Context) (model.User, bool) {
	u, ok := c.Get(ctxUser).(model.User)
	return u, ok
}

// AccessToken returns the bearer token that authenticated the request, or
// "" on public routes.
func AccessToken(c echo.Context) string {
	s, _ := c.Get(ctxAccessToken).(string)
	return s
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(c echo.Context) (string, bool) {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	raw := strings.TrimSpace(auth[len(prefix):])
	return raw, raw != ""
}

// clientIP keys rate limiting.
func clientIP(c echo.Context) string {
	if ip := c.RealIP(); ip != "" {
		return ip
	}
	return "unknown"
}

package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/realty-crm/internal/service"
)

// HeaderCSRFToken carries the token issued by GET /v1/auth/csrf-token.
const HeaderCSRFToken = "X-CSRF-Token"

// RequireCSRF rejects state-changing requests whose X-CSRF-Token header was
// not issued to the authenticated user or has expired.
func RequireCSRF(csrf *service.CSRF) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := CurrentUser(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			token := c.Request().Header.Get(HeaderCSRFToken)
			if token == "" || !csrf.Validate(token, user.ID) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "CSRF token missing or invalid"})
			}
			return next(c)
		}
	}
}

package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/realty-crm/internal/service"
)

// Authenticate validates the bearer access token against its live session
// and stores the user and the raw token in the context.  Inactive users and
// revoked or expired sessions get 401.
func Authenticate(auth *service.Auth) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := BearerToken(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			user, err := auth.CurrentUser(c.Request().Context(), raw)
			if err != nil {
				if errors.Is(err, service.ErrUnauthenticated) {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
				}
				return err
			}
			c.Set(ctxUser, user)
			c.Set(ctxAccessToken, raw)
			return next(c)
		}
	}
}

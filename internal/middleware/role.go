package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/realty-crm/internal/service"
)

// RequireRole admits users holding role.  It must run after Authenticate.
func RequireRole(p *service.Permissions, role string) echo.MiddlewareFunc {
	return gate(func(ctx context.Context, userID uint64) error {
		return p.RequireRole(ctx, userID, role)
	})
}

// RequireAnyRole admits users holding at least one of roles.
func RequireAnyRole(p *service.Permissions, roles ...string) echo.MiddlewareFunc {
	return gate(func(ctx context.Context, userID uint64) error {
		return p.RequireAnyOf(ctx, userID, roles...)
	})
}

// RequirePermission admits users whose roles grant perm, a model.Perm*
// identifier such as model.PermManageUsers.
func RequirePermission(p *service.Permissions, perm string) echo.MiddlewareFunc {
	return gate(func(ctx context.Context, userID uint64) error {
		return p.RequirePermission(ctx, userID, perm)
	})
}

func gate(check func(ctx context.Context, userID uint64) error) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := CurrentUser(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			if err := check(c.Request().Context(), user.ID); err != nil {
				if errors.Is(err, service.ErrForbidden) {
					return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
				}
				return err
			}
			return next(c)
		}
	}
}

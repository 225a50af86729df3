package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/realty-crm/internal/ratelimit"
)

// RateLimit caps requests per client IP in bucket.  A nil limiter disables
// the check.  Store errors are logged and the request is let through.
func RateLimit(l *ratelimit.Limiter, bucket string, log *slog.Logger) echo.MiddlewareFunc {
	if l == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			ip := clientIP(c)

			ok, err := l.Allowed(ctx, ip, bucket)
			if err != nil {
				log.Warn("rate limit check failed", slog.String("bucket", bucket), slog.String("ip", ip), slog.Any("err", err))
				return next(c)
			}
			if ok {
				return next(c)
			}

			retry := 60
			st, err := l.Status(ctx, ip, bucket)
			if err != nil {
				log.Warn("rate limit status failed", slog.String("bucket", bucket), slog.String("ip", ip), slog.Any("err", err))
			} else if d := st.RetryAfter(); d > 0 {
				retry = int(d.Seconds())
			}
			c.Response().Header().Set("Retry-After", strconv.Itoa(retry))
			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(st.Limits.PerMinute))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(st.MinuteRemaining))
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "rate limit exceeded",
				"retry_after": retry,
				"status":      st,
			})
		}
	}
}

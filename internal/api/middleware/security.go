package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// SecurityHeaders sets browser hardening headers. API responses are never cached,
// covers are immutable once written and may be cached by the browser.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "SAMEORIGIN")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

			path := c.Request().URL.Path
			switch {
			case strings.HasPrefix(path, "/api"):
				h.Set("Cache-Control", "no-store")
			case strings.HasPrefix(path, "/covers/"):
				h.Set("Cache-Control", "public, max-age=86400")
			}

			return next(c)
		}
	}
}

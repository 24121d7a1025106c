package middleware

// identity.go holds the identity helper shared by the rate limiter and
// cache key builders.  It renders the authenticated user as a stable
// string, or "anon" for guests.

import (
	"fmt"

	"github.com/labstack/echo/v4"
)

// currentUserID returns the authenticated user as "user:<id>" from the
// typed context value JWTAuth stores, or "anon" when the request is
// unauthenticated.
func currentUserID(c echo.Context) string {
	if uid, ok := c.Get("user_id").(uint64); ok && uid != 0 {
		return fmt.Sprintf("user:%d", uid)
	}
	return "anon"
}

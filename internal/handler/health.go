package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health is the liveness probe used by load balancers.  It returns a
// plain "ok" so probes stay trivial.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

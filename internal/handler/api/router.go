package api

import (
	xhttp "RateGate/pkg/http"

	"github.com/labstack/echo/v4"
)

// Router registers several handlers on one server.
type Router []xhttp.Handler

func (r Router) RegisterRoutes(e *echo.Echo) {
	for _, h := range r {
		h.RegisterRoutes(e)
	}
}

package http

import "github.com/labstack/echo/v4"

// Handler registers a group of routes on the server.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// RouteFunc adapts a plain function to Handler.
type RouteFunc func(e *echo.Echo)

// RegisterRoutes calls f.
func (f RouteFunc) RegisterRoutes(e *echo.Echo) { f(e) }

package api

import (
	"github.com/labstack/echo/v4"

	"BrentShift/internal/domain/models"
	"BrentShift/internal/domain/service"
	xhttp "BrentShift/pkg/http"
	xlogger "BrentShift/pkg/logger"
)

type PricesHandler struct {
	logger *xlogger.Logger
	svc    service.PriceService
}

func NewPricesHandler(logger *xlogger.Logger, svc service.PriceService) *PricesHandler {
	return &PricesHandler{logger: logger, svc: svc}
}

func (h *PricesHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/oil-prices", h.Prices)
	g.GET("/oil-prices/filter", h.Prices)
	g.GET("/oil-metrics", h.Metrics)
	g.GET("/events", h.Events)
}

// Prices serves the stored history, optionally limited by start and end.
func (h *PricesHandler) Prices(c echo.Context) error {
	r, err := h.dateRange(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	rows, err := h.svc.Prices(c.Request().Context(), r)
	if err != nil {
		h.logger.Error("prices error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("prices unavailable").WithError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=60")
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *PricesHandler) Metrics(c echo.Context) error {
	r, err := h.dateRange(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	rows, err := h.svc.Metrics(c.Request().Context(), r)
	if err != nil {
		h.logger.Error("metrics error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("metrics unavailable").WithError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=60")
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *PricesHandler) Events(c echo.Context) error {
	rows, err := h.svc.Events(c.Request().Context())
	if err != nil {
		h.logger.Error("events error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("events unavailable").WithError(err))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *PricesHandler) dateRange(c echo.Context) (models.DateRange, error) {
	req := &models.PriceQuery{}
	if err := c.Bind(req); err != nil {
		return models.DateRange{}, xhttp.BadRequestError("", "malformed query")
	}
	from, ok := xhttp.ParseDateParam(req.Start)
	if !ok {
		return models.DateRange{}, xhttp.BadRequestError("start", "start must be a date")
	}
	to, ok := xhttp.ParseDateParam(req.End)
	if !ok {
		return models.DateRange{}, xhttp.BadRequestError("end", "end must be a date")
	}
	if from != nil && to != nil && to.Before(*from) {
		return models.DateRange{}, xhttp.BadRequestError("end", "end must not be before start")
	}
	return models.DateRange{From: from, To: to}, nil
}

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"BrentShift/internal/changepoint"
	"BrentShift/internal/domain/models"
	"BrentShift/internal/domain/service"
	"BrentShift/internal/usecase"
	xhttp "BrentShift/pkg/http"
	"BrentShift/pkg/http/middleware"
	xlogger "BrentShift/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	progressBuffer = 256
)

// ChangePointHandler serves analyses: synchronous, queued and streamed.
type ChangePointHandler struct {
	logger   *xlogger.Logger
	svc      service.ChangePointService
	jobs     service.JobService
	limiter  *middleware.Limiter
	upgrader websocket.Upgrader
}

// NewChangePointHandler creates the handler. limiter may be nil.
func NewChangePointHandler(logger *xlogger.Logger, svc service.ChangePointService, jobs service.JobService, limiter *middleware.Limiter) *ChangePointHandler {
	return &ChangePointHandler{
		logger:  logger,
		svc:     svc,
		jobs:    jobs,
		limiter: limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// CORS middleware guards plain requests; websocket origins are not restricted
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *ChangePointHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/change-points")
	var heavy []echo.MiddlewareFunc
	if h.limiter != nil {
		heavy = append(heavy, middleware.RateLimit(h.limiter))
	}
	g.GET("", h.List)
	g.POST("/analyze", h.Analyze, heavy...)
	g.POST("/jobs", h.SubmitJob, heavy...)
	g.GET("/jobs/:id", h.Job)
	g.GET("/stream", h.Stream, heavy...)
	g.GET("/:id", h.Get)
}

func (h *ChangePointHandler) List(c echo.Context) error {
	req := &models.ListQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.AppErrorResponse(c, verr)
	}
	rows, err := h.svc.List(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("list change points error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, usecase.MapAnalysisError(err))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *ChangePointHandler) Get(c echo.Context) error {
	rec, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return xhttp.AppErrorResponse(c, usecase.MapAnalysisError(err))
	}
	return xhttp.SuccessResponse(c, rec)
}

func (h *ChangePointHandler) Analyze(c echo.Context) error {
	req := &models.AnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.AppErrorResponse(c, verr)
	}
	rec, err := h.svc.Analyze(c.Request().Context(), req)
	if err != nil {
		return h.analysisError(c, err)
	}
	return xhttp.SuccessResponse(c, rec)
}

func (h *ChangePointHandler) SubmitJob(c echo.Context) error {
	req := &models.AnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.AppErrorResponse(c, verr)
	}
	job, err := h.jobs.Submit(c.Request().Context(), req)
	if err != nil {
		return h.analysisError(c, err)
	}
	c.Response().Header().Set(echo.HeaderLocation, "/api/change-points/jobs/"+job.ID)
	return xhttp.AcceptedResponse(c, job)
}

func (h *ChangePointHandler) Job(c echo.Context) error {
	job, err := h.jobs.Job(c.Request().Context(), c.Param("id"))
	if err != nil {
		return xhttp.AppErrorResponse(c, usecase.MapAnalysisError(err))
	}
	if !job.Terminal() {
		c.Response().Header().Set("Retry-After", "2")
	}
	return xhttp.SuccessResponse(c, job)
}

// Stream upgrades to a websocket, runs an analysis of the stored prices and
// sends progress frames, then one result or error frame. Closing the socket
// cancels the analysis.
func (h *ChangePointHandler) Stream(c echo.Context) error {
	req := &models.StreamRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.AppErrorResponse(c, verr)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already answered
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	go func() {
		// the client sends nothing; a read error means it went away
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	progress := make(chan changepoint.ProgressEvent, progressBuffer)
	type outcome struct {
		rec *models.ChangePointRecord
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		rec, err := h.svc.Stream(ctx, req.AnalyzeRequest(), req.Every, func(ev changepoint.ProgressEvent) {
			select {
			case progress <- ev:
			default:
				// slow reader; the next event supersedes this one
			}
		})
		// chains have all returned, nothing sends on progress any more
		close(progress)
		done <- outcome{rec, err}
	}()

	for ev := range progress {
		if err := writeFrame(conn, models.StreamFrame{Type: models.FrameProgress, Progress: &ev}); err != nil {
			cancel()
		}
	}
	out := <-done

	frame := models.StreamFrame{Type: models.FrameResult, Result: out.rec}
	if out.err != nil {
		appErr := usecase.MapAnalysisError(out.err)
		if appErr.Status >= http.StatusInternalServerError {
			h.logger.Error("stream analysis error", xlogger.Error(out.err))
		}
		frame = models.StreamFrame{Type: models.FrameError, Error: &models.ErrorDetail{Code: appErr.Code, Message: appErr.Message}}
	}
	if err := writeFrame(conn, frame); err != nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return nil
}

func writeFrame(conn *websocket.Conn, frame models.StreamFrame) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(frame)
}

func (h *ChangePointHandler) analysisError(c echo.Context, err error) error {
	appErr := usecase.MapAnalysisError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error("analysis error",
			xlogger.String("code", appErr.Code),
			xlogger.Error(err),
		)
	}
	return xhttp.AppErrorResponse(c, appErr)
}

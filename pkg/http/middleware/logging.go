package middleware

import (
	"time"

	"BrentShift/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs one debug line per request; failures are logged at warn.
func RequestLogging(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("uri", req.RequestURI),
				logger.String("remote", c.RealIP()),
				logger.Int("status", c.Response().Status),
				logger.Duration("latency_ms", time.Since(start)),
			}
			if err != nil {
				log.Warn("request error", append(fields, logger.Error(err))...)
				return err
			}
			log.Debug("request", fields...)
			return nil
		}
	}
}

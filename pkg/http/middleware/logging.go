package middleware

import (
	"time"

	applogger "MarketScan/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs one line per request. The /metrics and /health probes
// are skipped; scrapers and load balancers would drown everything else out.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			if l == nil {
				return err
			}
			path := c.Request().URL.Path
			if path == "/metrics" || path == "/health" {
				return err
			}

			fields := []applogger.Field{
				applogger.String("method", c.Request().Method),
				applogger.String("path", path),
				applogger.Int("status", c.Response().Status),
				applogger.Duration("took", time.Since(start)),
				applogger.String("remote", c.Request().RemoteAddr),
			}
			if c.Response().Status >= 500 {
				l.Error("http request", fields...)
			} else {
				l.Info("http request", fields...)
			}
			return err
		}
	}
}

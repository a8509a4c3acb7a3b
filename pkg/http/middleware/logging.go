package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"ictbot/pkg/logger"
)

// RequestLogging logs one line per request. Health and metrics scrapes are logged at debug.
func RequestLogging(lgr *logger.Logger, quiet ...string) echo.MiddlewareFunc {
	skip := make(map[string]struct{}, len(quiet))
	for _, p := range quiet {
		skip[p] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("uri", req.RequestURI),
				logger.String("remote", c.RealIP()),
				logger.Int("status", c.Response().Status),
				logger.Duration("latency_ms", time.Since(start)),
			}
			if _, ok := skip[req.URL.Path]; ok {
				lgr.Debug("http request", fields...)
				return nil
			}
			lgr.Info("http request", fields...)
			return nil
		}
	}
}

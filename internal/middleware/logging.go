package middleware

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/dataarchlabs/lab-portal/internal/logger"
)

// AccessLog writes one JSON line per request. The actor is read after the
// handler chain ran, so it reflects what Authenticate decided. Query strings
// are not logged because the login callback carries codes and states.
func AccessLog() echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogRoutePath: true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := map[string]any{
				"method":     v.Method,
				"path":       v.URIPath,
				"route":      v.RoutePath,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"ip":         v.RemoteIP,
				"actor":      actorID(c),
			}
			if v.Error != nil {
				fields["err"] = v.Error
				logger.Error("request", fields)
				return nil
			}
			logger.Info("request", fields)
			return nil
		},
	})
}

package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/iliyamo/segregate/internal/response"
)

// RequestLogger writes one structured line per request. Errors returned by
// the handler chain are resolved to their final status so the line matches
// what the client received.
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = response.Normalize(err).Status()
			}

			level := zapcore.InfoLevel
			switch {
			case status >= 500:
				level = zapcore.ErrorLevel
			case status >= 400:
				level = zapcore.WarnLevel
			}
			if ce := logger.Check(level, "request"); ce != nil {
				ce.Write(
					zap.String("method", req.Method),
					zap.String("path", req.URL.Path),
					zap.Int("status", status),
					zap.Duration("latency", time.Since(start)),
					zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
					zap.String("user_id", userID(c)),
					zap.String("ip", c.RealIP()),
				)
			}
			return err
		}
	}
}

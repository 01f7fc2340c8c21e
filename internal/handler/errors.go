package handler

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/segregate/internal/apperr"
	"github.com/iliyamo/segregate/internal/response"
)

// NewErrorHandler replaces echo's default error handler so every failure,
// including router 404s and bind errors, leaves through the same envelope.
// Internal errors are logged with their cause; production responses redact it.
func NewErrorHandler(logger *zap.Logger, production bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		ae := response.Normalize(err)
		if ae.Kind == apperr.KindInternal {
			logger.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				zap.Error(ae.Unwrap()),
			)
		}
		if werr := response.Error(c, ae, production); werr != nil {
			logger.Warn("write error response", zap.Error(werr))
		}
	}
}

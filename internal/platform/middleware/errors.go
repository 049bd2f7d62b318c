package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/arogyalink/hms/internal/platform/apperr"
)

// ErrorHandler replaces echo's default HTTPErrorHandler. Invariant
// violations are logged at fatal level (the process keeps running) and
// every response body has the shape {"error": "..."}.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		rid, _ := c.Get("request_id").(string)
		if errors.Is(err, apperr.ErrInvariantViolation) {
			logger.WithLevel(zerolog.FatalLevel).
				Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Msg("ledger invariant violated")
		}

		code := http.StatusInternalServerError
		var msg interface{} = "internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			msg = he.Message
		} else {
			code = apperr.Status(err)
			if code != http.StatusInternalServerError {
				msg = err.Error()
			}
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, map[string]interface{}{"error": msg})
		}
		if err != nil {
			logger.Error().Err(err).Str("request_id", rid).Msg("write error response")
		}
	}
}

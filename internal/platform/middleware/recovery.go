package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/arogyalink/hms/internal/platform/apperr"
)

// Recovery turns a handler panic into a 500 and logs it against the
// request id and route. A panic carrying a ledger invariant violation is
// logged at fatal level, the same way ErrorHandler treats the returned
// error.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				var stack [4096]byte
				n := runtime.Stack(stack[:], false)

				perr, ok := r.(error)
				if !ok {
					perr = fmt.Errorf("%v", r)
				}
				level := zerolog.ErrorLevel
				if errors.Is(perr, apperr.ErrInvariantViolation) {
					level = zerolog.FatalLevel
				}
				rid, _ := c.Get("request_id").(string)
				logger.WithLevel(level).
					Err(perr).
					Str("request_id", rid).
					Str("method", c.Request().Method).
					Str("path", c.Request().URL.Path).
					Str("route", c.Path()).
					Str("stack", string(stack[:n])).
					Msg("panic recovered")

				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}

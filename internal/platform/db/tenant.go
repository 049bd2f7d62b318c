package db

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const HospitalIDKey contextKey = "hospital_id"

// HospitalHeader is honoured only when the middleware is built with
// allowHeader, i.e. in development mode.
const HospitalHeader = "X-Hospital-ID"

// TenantMiddleware resolves the caller's hospital from the JWT claim set by
// the auth middleware. Callers without a hospital (patients) pass through
// unscoped; handlers that need a hospital use RequireTenant.
func TenantMiddleware(allowHeader bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := extractHospitalID(c, allowHeader)
			if raw == "" {
				return next(c)
			}

			hospitalID, err := uuid.Parse(raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid hospital identifier")
			}

			ctx := WithTenant(c.Request().Context(), hospitalID)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("hospital_id", hospitalID.String())

			return next(c)
		}
	}
}

// RequireTenant rejects requests that carry no hospital scope.
func RequireTenant() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := TenantFromContext(c.Request().Context()); !ok {
				return echo.NewHTTPError(http.StatusForbidden, "hospital scope required")
			}
			return next(c)
		}
	}
}

func extractHospitalID(c echo.Context, allowHeader bool) string {
	if hid, ok := c.Get("jwt_hospital_id").(string); ok && hid != "" {
		return hid
	}
	if allowHeader {
		return c.Request().Header.Get(HospitalHeader)
	}
	return ""
}

// WithTenant returns a context scoped to hospitalID.
func WithTenant(ctx context.Context, hospitalID uuid.UUID) context.Context {
	return context.WithValue(ctx, HospitalIDKey, hospitalID)
}

// TenantFromContext retrieves the hospital the request is scoped to.
func TenantFromContext(ctx context.Context) (uuid.UUID, bool) {
	hid, ok := ctx.Value(HospitalIDKey).(uuid.UUID)
	return hid, ok && hid != uuid.Nil
}

// HospitalID returns the hospital the request is scoped to, or a 403 error
// suitable for returning from a handler.
func HospitalID(c echo.Context) (uuid.UUID, error) {
	hid, ok := TenantFromContext(c.Request().Context())
	if !ok {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "hospital scope required")
	}
	return hid, nil
}

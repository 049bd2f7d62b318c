package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerCounters(t *testing.T) {
	m := New()
	m.ObserveClaim(ClaimOK)
	m.ObserveClaim(ClaimOK)
	m.ObserveClaim(ClaimExhausted)
	m.ObserveRelease()
	m.ObserveBooking(false)
	m.ObserveBooking(true)
	m.ObserveBill("opd")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bedClaims.WithLabelValues(ClaimOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bedClaims.WithLabelValues(ClaimExhausted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bedReleases))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bookings.WithLabelValues("emergency")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bookings.WithLabelValues("regular")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bills.WithLabelValues("opd")))
}

func TestMiddleware_LabelsByRoute(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/wards/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/api/v1/fail", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusConflict, "no beds")
	})

	for _, path := range []string{"/api/v1/wards/a", "/api/v1/wards/b", "/api/v1/fail"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/v1/wards/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/v1/fail", "409")))
}

func TestHandler_ExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveRelease()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hms_ward_bed_releases_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

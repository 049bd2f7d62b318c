// Package metrics exposes Prometheus counters for the ledgers and HTTP
// traffic on a dedicated registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hms"

// Claim outcomes.
const (
	ClaimOK        = "claimed"
	ClaimExhausted = "exhausted"
)

type Metrics struct {
	registry *prometheus.Registry

	bedClaims    *prometheus.CounterVec
	bedReleases  prometheus.Counter
	bookings     *prometheus.CounterVec
	bills        *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		bedClaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ward",
			Name:      "bed_claims_total",
			Help:      "Bed claim attempts by outcome.",
		}, []string{"outcome"}),
		bedReleases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ward",
			Name:      "bed_releases_total",
			Help:      "Beds returned to a partition.",
		}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "opd",
			Name:      "bookings_total",
			Help:      "OPD appointments booked.",
		}, []string{"kind"}),
		bills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "bills_generated_total",
			Help:      "Bills generated by kind.",
		}, []string{"kind"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.bedClaims, m.bedReleases, m.bookings, m.bills,
		m.httpRequests, m.httpDuration,
	)
	return m
}

func (m *Metrics) ObserveClaim(outcome string) {
	m.bedClaims.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRelease() {
	m.bedReleases.Inc()
}

func (m *Metrics) ObserveBooking(emergency bool) {
	kind := "regular"
	if emergency {
		kind = "emergency"
	}
	m.bookings.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveBill(kind string) {
	m.bills.WithLabelValues(kind).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency labelled by route pattern,
// not raw path, to keep label cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

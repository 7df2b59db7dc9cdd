package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/writersync/internal/sferror"
	"github.com/mdouchement/writersync/pkg/libsync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the collectors of one engine.
// A dedicated registry allows several engines in the same process (tests).
type metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	push     *prometheus.CounterVec
	pull     *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "writersync_http_requests_total",
			Help: "Number of HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		push: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "writersync_push_items_total",
			Help: "Number of pushed items by type and outcome.",
		}, []string{"item_type", "status"}),
		pull: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "writersync_pull_items_total",
			Help: "Number of items returned by pulls.",
		}, []string{"item_type"}),
	}

	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		m.requests,
		m.push,
		m.pull,
	)
	return m
}

// Middleware counts handled requests.
func (m *metrics) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)

		code := c.Response().Status
		if err != nil {
			// Not rendered yet by the error handler.
			code = sferror.StatusCode(err)
			if he, ok := err.(*echo.HTTPError); ok {
				code = he.Code
			}
		}

		m.requests.WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(code)).Inc()
		return err
	}
}

// Handler returns the HTTP handler exposing the registry.
func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) pushed(itemType string, results []libsync.PushResult) {
	for _, r := range results {
		m.push.WithLabelValues(itemType, r.Status).Inc()
	}
}

func (m *metrics) pulled(itemType string, n int) {
	m.pull.WithLabelValues(itemType).Add(float64(n))
}

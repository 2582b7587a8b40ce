// Package metrics exposes the API's Prometheus metrics.
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

const (
	namespace  = "academia"
	unresolved = "unresolved"
)

type Metrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	discoveryTotal   *prometheus.CounterVec
	discoveredFields prometheus.Histogram
	slotsTotal       *prometheus.CounterVec
	marksheetsTotal  *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
		},
	)
	discoveryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fields",
			Name:      "discovery_total",
			Help:      "Total field discoveries by outcome.",
		},
		[]string{"outcome"},
	)
	discoveredFields := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fields",
			Name:      "discovered",
			Help:      "Distribution of discovered fields per refresh.",
			Buckets:   []float64{0, 5, 10, 25, 50, 100, 250, 500},
		},
	)
	slotsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marksheet",
			Name:      "slots_total",
			Help:      "Total resolved template slots by matching strategy.",
		},
		[]string{"strategy"},
	)
	marksheetsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marksheet",
			Name:      "generated_total",
			Help:      "Total marksheet generations by status.",
		},
		[]string{"status"},
	)

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		requestTotal,
		requestDuration,
		requestInFlight,
		discoveryTotal,
		discoveredFields,
		slotsTotal,
		marksheetsTotal,
	)

	return &Metrics{
		registry:         registry,
		requestTotal:     requestTotal,
		requestDuration:  requestDuration,
		requestInFlight:  requestInFlight,
		discoveryTotal:   discoveryTotal,
		discoveredFields: discoveredFields,
		slotsTotal:       slotsTotal,
		marksheetsTotal:  marksheetsTotal,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records every request under its route template, so path parameters do not create new series.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			m.requestInFlight.Inc()
			defer m.requestInFlight.Dec()

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := c.Request().Method
			m.requestTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
			m.requestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// RecordDiscovery counts one catalog refresh. `outcome` is "ok", "no_data" or "error".
func (m *Metrics) RecordDiscovery(outcome string, fields int) {
	m.discoveryTotal.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.discoveredFields.Observe(float64(fields))
	}
}

// RecordSlot counts one template slot by the strategy that resolved it ("" when unresolved).
func (m *Metrics) RecordSlot(strategy string) {
	if strategy == "" {
		strategy = unresolved
	}
	m.slotsTotal.WithLabelValues(strategy).Inc()
}

func (m *Metrics) RecordMarksheet(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.marksheetsTotal.WithLabelValues(status).Inc()
}

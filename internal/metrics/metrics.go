// Package metrics exposes the service's Prometheus instruments.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	resolutions  *prometheus.CounterVec
	appends      *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	gatherer     prometheus.Gatherer
}

// New registers the instruments on reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "costs_resolutions_total",
				Help: "Single-name price resolutions by outcome. Alert on outcome=\"unconfigured\".",
			},
			[]string{"outcome"},
		),
		appends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "costs_appends_total",
				Help: "Append attempts on the plan registry and price catalog by outcome.",
			},
			[]string{"kind", "outcome"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "costs_http_request_duration_seconds",
				Help:    "HTTP request latency by route pattern.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		gatherer: reg,
	}
}

// RecordResolution implements pricing.Recorder.
func (m *Metrics) RecordResolution(outcome string) {
	m.resolutions.WithLabelValues(outcome).Inc()
}

// RecordAppend counts one append of kind ("plan" or "price").
func (m *Metrics) RecordAppend(kind, outcome string) {
	m.appends.WithLabelValues(kind, outcome).Inc()
}

// Middleware observes request latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

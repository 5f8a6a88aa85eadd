// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jcodagnone/addrcheck/address"
	"github.com/jcodagnone/addrcheck/cache"
	"github.com/jcodagnone/addrcheck/provider"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "addrcheck"

// Metrics holds the Prometheus collectors of the service. It also observes
// provider calls for the orchestrator.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
	providerDuration *prometheus.HistogramVec
	providerErrors   *prometheus.CounterVec
	namespace        string
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		namespace: namespace,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		requestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),
		providerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Provider call duration in seconds by resulting status",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10},
			},
			[]string{"provider", "status"},
		),
		providerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_errors_total",
				Help:      "Failed provider calls by error type",
			},
			[]string{"provider", "type"},
		),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.requestsInFlight,
		m.providerDuration,
		m.providerErrors,
	)

	return m
}

// RegisterCache exports the size and counters of c.
func (m *Metrics) RegisterCache(c *cache.Cache) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      "cache_entries",
			Help:      "Entries held by the result cache",
		}, func() float64 { return float64(c.Size()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      "cache_pending_fetches",
			Help:      "Validations in flight behind the result cache",
		}, func() float64 { return float64(c.Pending()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "cache_hits_total",
			Help:      "Result cache hits",
		}, func() float64 { return float64(c.Stats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "cache_misses_total",
			Help:      "Result cache misses",
		}, func() float64 { return float64(c.Stats().Misses) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "cache_coalesced_total",
			Help:      "Requests that joined an in-flight validation",
		}, func() float64 { return float64(c.Stats().Coalesced) }),
	)
}

// ObserveProvider records one provider call.
func (m *Metrics) ObserveProvider(name provider.Name, status address.Status, err error, elapsed time.Duration) {
	label := string(status)
	if err != nil {
		label = "error"

		kind := provider.ErrorTypeUnknown

		var perr *provider.Error
		if errors.As(err, &perr) {
			kind = perr.Type
		}

		m.providerErrors.WithLabelValues(string(name), kind.String()).Inc()
	}

	m.providerDuration.WithLabelValues(string(name), label).Observe(elapsed.Seconds())
}

// Middleware records request metrics labelled by route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		m.requestsInFlight.Inc()
		defer m.requestsInFlight.Dec()

		ctx.Next()

		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}

		status := strconv.Itoa(ctx.Writer.Status())
		m.requestsTotal.WithLabelValues(ctx.Request.Method, path, status).Inc()
		m.requestDuration.WithLabelValues(ctx.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

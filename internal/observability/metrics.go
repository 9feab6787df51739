package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transaction outcomes recorded by RecordTransaction.
const (
	OutcomeCreated   = "created"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Metrics holds the backend's Prometheus collectors on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	transactions    *prometheus.CounterVec
	salesAmount     prometheus.Counter
	discountAmount  prometheus.Counter
	catalogCache    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kasirinaja_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kasirinaja_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	transactions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kasirinaja_transactions_total",
		Help: "Submitted transactions by outcome.",
	}, []string{"outcome"})
	sales := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kasirinaja_sales_amount_total",
		Help: "Sum of transaction totals in the smallest currency unit.",
	})
	discounts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kasirinaja_discount_amount_total",
		Help: "Sum of applied discounts in the smallest currency unit.",
	})
	catalogCache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kasirinaja_catalog_cache_total",
		Help: "Catalog cache lookups by result.",
	}, []string{"result"})
	registry.MustRegister(requests, duration, transactions, sales, discounts, catalogCache)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		transactions:    transactions,
		salesAmount:     sales,
		discountAmount:  discounts,
		catalogCache:    catalogCache,
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// RecordTransaction counts one submit. Amounts are only added for new sales.
func (m *Metrics) RecordTransaction(outcome string, total int64, discount int64) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(outcome).Inc()
	if outcome == OutcomeCreated {
		m.salesAmount.Add(float64(total))
		m.discountAmount.Add(float64(discount))
	}
}

func (m *Metrics) RecordCatalogCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.catalogCache.WithLabelValues(result).Inc()
}

func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

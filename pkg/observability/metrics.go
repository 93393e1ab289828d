package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Billing metrics
	BillingChargesTotal  *prometheus.CounterVec
	BillingCyclesTotal   *prometheus.CounterVec
	BillingCycleDuration prometheus.Histogram

	// Lifecycle metrics
	OrderTransitionsTotal    *prometheus.CounterVec
	QuotaDenialsTotal        *prometheus.CounterVec
	ProjectsDeactivatedTotal prometheus.Counter
	NotificationsTotal       *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vocea_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vocea_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		BillingChargesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vocea_billing_charges_total",
				Help: "Recurring charge attempts by result",
			},
			[]string{"result"},
		),
		BillingCyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vocea_billing_cycles_total",
				Help: "Billing cycles by outcome",
			},
			[]string{"outcome"},
		),
		BillingCycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vocea_billing_cycle_duration_seconds",
				Help:    "Billing cycle duration in seconds",
				Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
			},
		),
		OrderTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vocea_order_transitions_total",
				Help: "Order state machine transitions",
			},
			[]string{"from", "to"},
		),
		QuotaDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vocea_quota_denials_total",
				Help: "Project creations rejected by quota, by tier",
			},
			[]string{"tier"},
		),
		ProjectsDeactivatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vocea_projects_deactivated_total",
				Help: "Projects deactivated by the expiry sweeper",
			},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vocea_notifications_total",
				Help: "Notification sends by kind and result",
			},
			[]string{"kind", "result"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.BillingChargesTotal,
		m.BillingCyclesTotal,
		m.BillingCycleDuration,
		m.OrderTransitionsTotal,
		m.QuotaDenialsTotal,
		m.ProjectsDeactivatedTotal,
		m.NotificationsTotal,
	)

	return m
}

func (m *Metrics) RecordCharge(result string) {
	if m == nil {
		return
	}
	m.BillingChargesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordCycle(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.BillingCyclesTotal.WithLabelValues(outcome).Inc()
	m.BillingCycleDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.OrderTransitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RecordQuotaDenial(tier string) {
	if m == nil {
		return
	}
	m.QuotaDenialsTotal.WithLabelValues(tier).Inc()
}

func (m *Metrics) RecordDeactivated(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.ProjectsDeactivatedTotal.Add(float64(n))
}

func (m *Metrics) RecordNotification(kind string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.NotificationsTotal.WithLabelValues(kind, result).Inc()
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments requests, labelled by route template
// so path parameters do not explode cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format.
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

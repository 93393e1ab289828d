package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCharge("charged")
		m.RecordCycle("completed", time.Second)
		m.RecordTransition("PENDING", "PAID")
		m.RecordQuotaDenial("Basic")
		m.RecordDeactivated(3)
		m.RecordNotification("payment_confirmed", nil)
	})
}

func TestRecordMethods(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordCharge("charged")
	m.RecordCharge("charged")
	m.RecordCharge("failed")
	m.RecordQuotaDenial("Bronze")
	m.RecordDeactivated(5)
	m.RecordDeactivated(0)
	m.RecordNotification("payment_failed", errors.New("relay down"))
	m.RecordTransition("RECURRING_ACTIVE", "RECURRING_CANCELLED")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BillingChargesTotal.WithLabelValues("charged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BillingChargesTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuotaDenialsTotal.WithLabelValues("Bronze")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.ProjectsDeactivatedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("payment_failed", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrderTransitionsTotal.WithLabelValues("RECURRING_ACTIVE", "RECURRING_CANCELLED")))
}

func TestHTTPMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(m))
	router.HandleFunc("/me/orders/{orderID}/cancel", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}).Methods(http.MethodPost)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/me/orders/ord-123/cancel", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues(http.MethodPost, "/me/orders/{orderID}/cancel", "403")))
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.RecordCharge("charged")

	rec := httptest.NewRecorder()
	MetricsHandler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vocea_billing_charges_total")
}

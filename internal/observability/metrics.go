package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "code"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	transactionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transaction_transitions_total",
			Help: "Transaction status transitions applied, by provider and target status.",
		},
		[]string{"provider", "status"},
	)
	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_events_total",
			Help: "Webhook deliveries received, by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)
)

// NewMetricsMiddleware creates HTTP middleware for collecting Prometheus metrics.
func NewMetricsMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				duration := time.Since(start)
				path := r.URL.Path

				httpRequestDuration.WithLabelValues(serviceName, r.Method, path).Observe(duration.Seconds())
				httpRequestsTotal.WithLabelValues(serviceName, r.Method, path, strconv.Itoa(ww.Status())).Inc()
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// CountTransactionTransition records an applied status transition.
func CountTransactionTransition(provider, status string) {
	transactionTransitionsTotal.WithLabelValues(provider, status).Inc()
}

// CountWebhookEvent records a webhook delivery outcome (applied, duplicate,
// rejected, unknown_transaction).
func CountWebhookEvent(provider, outcome string) {
	webhookEventsTotal.WithLabelValues(provider, outcome).Inc()
}

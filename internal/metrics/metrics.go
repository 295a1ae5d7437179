package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "toolate_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "toolate_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	membershipOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "toolate_membership_operations_total",
		Help: "Membership workflow operations by operation and outcome",
	}, []string{"operation", "outcome"})

	compensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "toolate_compensations_total",
		Help: "Compensating deletes by target and result",
	}, []string{"target", "result"})

	emailDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "toolate_email_deliveries_total",
		Help: "Email hand-offs to the notification sink by kind and result",
	}, []string{"kind", "result"})
)

func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// ObserveOperation counts a membership workflow call. outcome is "ok" or an
// error kind.
func ObserveOperation(operation, outcome string) {
	membershipOperations.WithLabelValues(operation, outcome).Inc()
}

func ObserveCompensation(target string, ok bool) {
	compensations.WithLabelValues(target, result(ok)).Inc()
}

func ObserveEmail(kind string, ok bool) {
	emailDeliveries.WithLabelValues(kind, result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

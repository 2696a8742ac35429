package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nuzum_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nuzum_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	guardRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nuzum_guard_rejections_total",
		Help: "Requests rejected by the guard chain, by operation and rejection kind",
	}, []string{"operation", "kind"})

	quotaReservations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nuzum_quota_reservations_total",
		Help: "Quota reservation attempts by resource kind and result",
	}, []string{"resource", "result"})

	quotaReservationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nuzum_quota_reservation_duration_seconds",
		Help:    "Latency of check-and-reserve including retries",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"resource"})

	subscriptionWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nuzum_subscription_writes_total",
		Help: "Subscription lifecycle writes by operation and result",
	}, []string{"operation", "result"})

	notificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nuzum_notifications_total",
		Help: "Expiry notifications by outcome (created, skipped, delivery_failed)",
	}, []string{"outcome"})

	notificationScans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nuzum_notification_scans_total",
		Help: "Notification scheduler runs by result",
	}, []string{"result"})
)

// ObserveHTTPRequest records an HTTP request metric.
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// ObserveGuardRejection counts a guard chain rejection.
func ObserveGuardRejection(operation, kind string) {
	guardRejections.WithLabelValues(operation, kind).Inc()
}

// ObserveQuotaReservation records the outcome of one check-and-reserve call.
func ObserveQuotaReservation(resource, result string, duration time.Duration) {
	quotaReservations.WithLabelValues(resource, result).Inc()
	quotaReservationDuration.WithLabelValues(resource).Observe(duration.Seconds())
}

// ObserveSubscriptionWrite counts a lifecycle write.
func ObserveSubscriptionWrite(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	subscriptionWrites.WithLabelValues(operation, result).Inc()
}

// ObserveNotification counts a notification outcome.
func ObserveNotification(outcome string) {
	notificationsSent.WithLabelValues(outcome).Inc()
}

// ObserveNotificationScan counts a scheduler run.
func ObserveNotificationScan(result string) {
	notificationScans.WithLabelValues(result).Inc()
}

// Package metrics содержит счётчики Prometheus для реконсиляции платежей
// и чистки истёкших подписок.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	PaymentsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_completed_total",
			Help: "Number of payments moved to COMPLETED",
		},
	)

	EnrollmentsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "enrollments_created_total",
			Help: "Number of enrollments created by the reconciler",
		},
	)

	WebhooksRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhooks_rejected_total",
			Help: "Number of webhook requests rejected by signature check",
		},
	)

	SubscriptionsRevoked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_revoked_total",
			Help: "Number of lapsed subscriptions revoked by the sweep",
		},
	)
)

func Register() {
	prometheus.MustRegister(PaymentsCompleted, EnrollmentsCreated, WebhooksRejected, SubscriptionsRevoked)
}

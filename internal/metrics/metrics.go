// Package metrics defines the Prometheus instrumentation for the
// live-notification pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhooksTotal counts inbound EventSub webhook deliveries by outcome:
	// accepted, duplicate, debounced, challenge, invalid_signature, ignored.
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsub_webhooks_total",
			Help: "Inbound EventSub webhook deliveries by outcome",
		},
		[]string{"result"},
	)

	// AlertsTotal counts live-alert card actions: posted, updated, closed, abandoned.
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "live_alerts_total",
			Help: "Live alert card actions by type",
		},
		[]string{"action"},
	)

	// TwitchRequestsTotal counts upstream Twitch API calls by endpoint and HTTP status.
	TwitchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twitch_api_requests_total",
			Help: "Upstream Twitch API requests by endpoint and status code",
		},
		[]string{"endpoint", "status"},
	)

	// SubscriptionsTotal counts EventSub subscription lifecycle operations:
	// created, deleted, reconciled.
	SubscriptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsub_subscriptions_total",
			Help: "EventSub subscription operations by type",
		},
		[]string{"operation"},
	)
)

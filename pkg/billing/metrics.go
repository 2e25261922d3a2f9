package billing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CatalogSyncTotal counts catalog sync attempts by outcome (skipped, success, failure).
	CatalogSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "launchpad",
		Subsystem: "billing",
		Name:      "catalog_sync_total",
		Help:      "Catalog sync attempts by outcome.",
	}, []string{"outcome"})

	// CatalogSyncDuration tracks the duration of catalog syncs that reached the provider.
	CatalogSyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "launchpad",
		Subsystem: "billing",
		Name:      "catalog_sync_duration_seconds",
		Help:      "Catalog sync duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	})

	// TokenConsumeTotal counts token consumption requests by outcome (granted, denied).
	TokenConsumeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "launchpad",
		Subsystem: "billing",
		Name:      "token_consume_total",
		Help:      "Token consumption requests by outcome.",
	}, []string{"outcome"})

	// TokenRefillTotal counts lazy token refills.
	TokenRefillTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "launchpad",
		Subsystem: "billing",
		Name:      "token_refill_total",
		Help:      "Lazy token refills performed on balance reads.",
	})

	// WebhookEventsTotal counts processed webhook events by type and outcome.
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "launchpad",
		Subsystem: "billing",
		Name:      "webhook_events_total",
		Help:      "Processed billing webhook events by type and outcome.",
	}, []string{"event_type", "outcome"})
)

// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tunedrift"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.3, 1, 3, 5, 10},
	}, []string{"method", "route"})

	BridgeEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bridge_events_total",
		Help:      "Network events dispatched by the event bridge, by kind.",
	}, []string{"kind"})

	NetworkLoggedIn = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "network_logged_in",
		Help:      "Whether the peer network session is logged in (1) or not (0).",
	})

	SearchSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "search_sessions_active",
		Help:      "Registered search sessions.",
	})

	SearchFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_fallbacks_total",
		Help:      "Searches reissued with the raw query after the combined query found nothing.",
	})

	SearchResultsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_results_total",
		Help:      "File results accumulated across all search sessions.",
	})

	TransferUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transfer_updates_total",
		Help:      "Transfer status updates, by resulting state.",
	}, []string{"state"})

	IngestionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingestions_total",
		Help:      "Ingestion passes by outcome (committed, skipped, failed).",
	}, []string{"outcome"})

	IngestionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ingestion_duration_seconds",
		Help:      "Duration of a full ingestion pass.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	EnrichmentLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrichment_lookups_total",
		Help:      "External enrichment lookups by source and outcome (hit, miss, error).",
	}, []string{"source", "outcome"})

	PushMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_messages_total",
		Help:      "WebSocket push messages by outcome (sent, dropped).",
	}, []string{"outcome"})
)

// Register registers every collector with reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		BridgeEventsTotal,
		NetworkLoggedIn,
		SearchSessionsActive,
		SearchFallbacksTotal,
		SearchResultsTotal,
		TransferUpdatesTotal,
		IngestionsTotal,
		IngestionDuration,
		EnrichmentLookupsTotal,
		PushMessagesTotal,
	)
}

// Lookup records the outcome of an enrichment lookup.
func Lookup(source string, found bool, err error) {
	outcome := "miss"
	switch {
	case err != nil:
		outcome = "error"
	case found:
		outcome = "hit"
	}
	EnrichmentLookupsTotal.WithLabelValues(source, outcome).Inc()
}

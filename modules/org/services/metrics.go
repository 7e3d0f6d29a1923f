package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	orgCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Total number of active chart cache lookups broken down by hit/miss.",
	}, []string{"cache", "result"})

	orgCacheInvalidate = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "cache",
		Name:      "invalidate_total",
		Help:      "Total number of active chart cache invalidations broken down by reason.",
	}, []string{"reason"})

	orgWriteConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Total number of Org write conflicts broken down by kind.",
	}, []string{"kind"})

	orgChartTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "chart",
		Name:      "transitions_total",
		Help:      "Total number of chart status transitions broken down by target status.",
	}, []string{"status"})

	orgImportRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "import",
		Name:      "rows_total",
		Help:      "Total number of imported rows broken down by source and outcome.",
	}, []string{"source", "result"})

	orgNotifyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "notify",
		Name:      "failures_total",
		Help:      "Total number of notification hook failures broken down by topic.",
	}, []string{"topic"})
)

func recordCacheRequest(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	orgCacheRequests.WithLabelValues(cache, result).Inc()
}

func recordCacheInvalidate(reason string) {
	if reason == "" {
		reason = "manual"
	}
	orgCacheInvalidate.WithLabelValues(reason).Inc()
}

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	orgWriteConflicts.WithLabelValues(kind).Inc()
}

func recordTransition(status string) {
	orgChartTransitions.WithLabelValues(status).Inc()
}

func recordImport(source string, succeeded, failed int) {
	orgImportRows.WithLabelValues(source, "success").Add(float64(succeeded))
	orgImportRows.WithLabelValues(source, "error").Add(float64(failed))
}

func recordNotifyFailure(topic string) {
	orgNotifyFailures.WithLabelValues(topic).Inc()
}

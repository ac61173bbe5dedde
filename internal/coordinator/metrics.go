package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchesTriggered counts issued searches by the control that committed them.
	SearchesTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listing_searches_triggered_total",
			Help: "Total number of listing searches issued, by committing control",
		},
		[]string{"control"},
	)

	// StaleResultsDiscarded counts outcomes dropped because a newer search was issued.
	StaleResultsDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "listing_stale_results_discarded_total",
			Help: "Total number of listing search outcomes discarded as superseded",
		},
	)

	// SearchFailures counts current-generation searches that failed.
	SearchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "listing_search_failures_total",
			Help: "Total number of listing searches that failed to fetch results",
		},
	)
)

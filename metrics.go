package tiktok

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "tiktok_comments"

// metrics are the engine counters. With a nil Registerer they are created
// but not registered anywhere.
type metrics struct {
	pages      *prometheus.CounterVec
	retries    *prometheus.CounterVec
	skipped    prometheus.Counter
	duplicates prometheus.Counter
	runs       *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		pages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pages_fetched_total",
			Help:      "Comment pages accepted from the upstream API.",
		}, []string{"scope"}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "page_retries_total",
			Help:      "Page fetches retried after a retryable failure.",
		}, []string{"kind"}),
		skipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_skipped_total",
			Help:      "Raw comment records dropped for missing required fields.",
		}),
		duplicates: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "duplicates_discarded_total",
			Help:      "Comments discarded because their cid was already seen in the scope.",
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Retrieval runs by final status.",
		}, []string{"status"}),
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SourceFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spaceweather_source_fetches_total",
			Help: "Total raw source fetch attempts",
		},
		[]string{"provider", "status"},
	)

	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spaceweather_llm_calls_total",
			Help: "Total model completion calls",
		},
		[]string{"status"},
	)

	LLMCallLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spaceweather_llm_call_latency_seconds",
			Help:    "Model completion call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ParseOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spaceweather_parse_outcomes_total",
			Help: "Model reply parse outcomes by repair result",
		},
		[]string{"outcome"},
	)

	RecordsPersistedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spaceweather_records_persisted_total",
			Help: "Total date records written to the primary store",
		},
	)

	RemoteSyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spaceweather_remote_sync_total",
			Help: "Total remote replica push attempts",
		},
		[]string{"status"},
	)
)

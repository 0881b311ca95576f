// Package metrics declares the prometheus vectors bgpstream-go exports,
// grounded on the teacher's internal/metrics package (same CounterVec /
// HistogramVec / GaugeVec + Register shape, relabeled to this domain's
// pipeline stages).
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RecordsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpstream_records_emitted_total",
			Help: "Records emitted by the reader set, by status.",
		},
		[]string{"status"},
	)

	ElementsDecodedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpstream_elements_decoded_total",
			Help: "Elements decoded from valid records, by type.",
		},
		[]string{"type"},
	)

	FilterRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpstream_filter_rejections_total",
			Help: "Dump descriptors rejected by the filter set before queueing.",
		},
		[]string{"reason"},
	)

	BackendPollDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bgpstream_backend_poll_duration_seconds",
			Help:    "Data interface ProduceBatch latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"backend"},
	)

	BackendPollResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpstream_backend_poll_results_total",
			Help: "Descriptors returned per ProduceBatch call, by outcome.",
		},
		[]string{"backend", "outcome"}, // outcome: empty | nonempty | error
	)

	BackoffSleepSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpstream_backoff_sleep_seconds",
			Help: "Current live-mode poll backoff sleep duration.",
		},
		[]string{"backend"},
	)

	InputQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bgpstream_input_queue_depth",
			Help: "Number of dump descriptors waiting in the input queue.",
		},
	)

	ReaderSetSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bgpstream_reader_set_size",
			Help: "Number of open readers held by the reader set heap.",
		},
	)

	OpenFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpstream_open_failures_total",
			Help: "Dump opens that failed, by project/collector.",
		},
		[]string{"project", "collector"},
	)

	CorruptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpstream_corruptions_total",
			Help: "Dumps that ended in a framing error, by project/collector.",
		},
		[]string{"project", "collector"},
	)

	CatalogRowsPurgedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpstream_catalog_rows_purged_total",
			Help: "Catalog rows purged by retention maintenance.",
		},
		[]string{"reason"},
	)
)

var registerOnce sync.Once

// Register registers every vector with the default prometheus registry.
// Safe to call more than once; only the first call takes effect.
func Register() {
	registerOnce.Do(doRegister)
}

func doRegister() {
	prometheus.MustRegister(
		RecordsEmittedTotal,
		ElementsDecodedTotal,
		FilterRejectionsTotal,
		BackendPollDuration,
		BackendPollResultsTotal,
		BackoffSleepSeconds,
		InputQueueDepth,
		ReaderSetSize,
		OpenFailuresTotal,
		CorruptionsTotal,
		CatalogRowsPurgedTotal,
	)
}

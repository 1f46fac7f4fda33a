package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/viant/seqindex/builder"
	"github.com/viant/seqindex/index"
)

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	Registry      *prometheus.Registry
	queries       *prometheus.CounterVec
	queryLatency  prometheus.Histogram
	queryResults  prometheus.Histogram
	uploads       *prometheus.CounterVec
	builds        *prometheus.CounterVec
	buildDuration prometheus.Histogram
	buildRecords  prometheus.Gauge
}

// ObserveBuild records a finished build; it matches builder.WithObserver.
func (m *Metrics) ObserveBuild(outcome *builder.Outcome) {
	m.builds.WithLabelValues(string(outcome.Status)).Inc()
	m.buildDuration.Observe(outcome.Elapsed.Seconds())
	m.buildRecords.Set(float64(outcome.Records))
}

// NewMetrics registers collectors, exposing idx size and generation as gauges.
func NewMetrics(idx *index.Index) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seqindex_queries_total",
			Help: "Similarity queries by outcome",
		}, []string{"outcome"}),
		queryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "seqindex_query_duration_seconds",
			Help:    "Similarity query latency",
			Buckets: prometheus.DefBuckets,
		}),
		queryResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "seqindex_query_results",
			Help:    "Number of matches returned per query",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seqindex_uploads_total",
			Help: "Upload requests by outcome",
		}, []string{"outcome"}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seqindex_builds_total",
			Help: "Finished index builds by final status",
		}, []string{"status"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "seqindex_build_duration_seconds",
			Help:    "Index build duration",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
		}),
		buildRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "seqindex_last_build_records",
			Help: "Records processed by the last build",
		}),
	}
	m.Registry.MustRegister(m.queries, m.queryLatency, m.queryResults, m.uploads, m.builds, m.buildDuration, m.buildRecords)
	if idx != nil {
		m.Registry.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "seqindex_index_entries",
				Help: "Entries in the installed index",
			}, func() float64 { return float64(idx.Stats().Entries) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "seqindex_index_generation",
				Help: "Install counter of the index",
			}, func() float64 { return float64(idx.Generation()) }),
		)
	}
	return m
}

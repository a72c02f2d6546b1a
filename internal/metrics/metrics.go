// Package metrics exposes the pipeline's Prometheus instrumentation (§9
// supplemented ambient surface): fragment ingest volume, stitch outcomes by
// strategy, transcriber latency and retries, persisted chunk counts, and
// the number of sessions currently held in the registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// Metrics bundles every collector the pipeline registers. All are created
// against a private registry so repeated test construction never collides
// with the global default registerer.
type Metrics struct {
	registry *prometheus.Registry

	FragmentsIngested   prometheus.Counter
	FragmentBytes       prometheus.Counter
	FragmentsRejected   *prometheus.CounterVec
	SessionsActive      prometheus.Gauge
	StitchAttempts      *prometheus.CounterVec
	TranscribeLatency   prometheus.Histogram
	TranscribeRetries   prometheus.Counter
	ChunksPersisted     prometheus.Counter
	SessionsCompleted   prometheus.Counter
	SessionsCancelled   prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		FragmentsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scribecore_fragments_ingested_total",
			Help: "Audio fragments accepted into the ingest buffer.",
		}),
		FragmentBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scribecore_fragment_bytes_total",
			Help: "Total bytes of audio fragment payload accepted.",
		}),
		FragmentsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scribecore_fragments_rejected_total",
			Help: "Fragments rejected by the ingest buffer, by reason.",
		}, []string{"reason"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scribecore_sessions_active",
			Help: "Sessions currently held in the in-memory registry.",
		}),
		StitchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scribecore_stitch_attempts_total",
			Help: "Stitch attempts by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		TranscribeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribecore_transcribe_latency_seconds",
			Help:    "Transcriber call latency, including retries.",
			Buckets: prometheus.DefBuckets,
		}),
		TranscribeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scribecore_transcribe_retries_total",
			Help: "Transcriber retry attempts across all chunks.",
		}),
		ChunksPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scribecore_chunks_persisted_total",
			Help: "Transcript chunk rows written.",
		}),
		SessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scribecore_sessions_completed_total",
			Help: "Sessions that reached Completed.",
		}),
		SessionsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scribecore_sessions_cancelled_total",
			Help: "Sessions that reached Cancelled.",
		}),
	}

	reg.MustRegister(
		m.FragmentsIngested,
		m.FragmentBytes,
		m.FragmentsRejected,
		m.SessionsActive,
		m.StitchAttempts,
		m.TranscribeLatency,
		m.TranscribeRetries,
		m.ChunksPersisted,
		m.SessionsCompleted,
		m.SessionsCancelled,
	)

	return m
}

// Handler serves this instance's collectors at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

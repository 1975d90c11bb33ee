package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the sync instrumentation. A nil *Metrics is valid and
// records nothing, so tests and one-shot CLI runs need no registry.
type Metrics struct {
	runsTotal       *prometheus.CounterVec
	documentsTotal  *prometheus.CounterVec
	chunksUpserted  prometheus.Counter
	lastSuccessUnix prometheus.Gauge
}

// NewMetrics creates and registers sync metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corpusd",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Sync runs by outcome.",
		}, []string{"status"}),
		documentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corpusd",
			Subsystem: "sync",
			Name:      "documents_total",
			Help:      "Documents processed by outcome.",
		}, []string{"outcome"}),
		chunksUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corpusd",
			Subsystem: "sync",
			Name:      "chunks_upserted_total",
			Help:      "Chunks written to the vector index.",
		}),
		lastSuccessUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "corpusd",
			Subsystem: "sync",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last committed run.",
		}),
	}
	reg.MustRegister(m.runsTotal, m.documentsTotal, m.chunksUpserted, m.lastSuccessUnix)
	return m
}

func (m *Metrics) recordRun(status string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) recordDocument(outcome string) {
	if m == nil {
		return
	}
	m.documentsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordChunks(n int) {
	if m == nil {
		return
	}
	m.chunksUpserted.Add(float64(n))
}

func (m *Metrics) recordSuccess(unix int64) {
	if m == nil {
		return
	}
	m.lastSuccessUnix.Set(float64(unix))
}

package knowledge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 知识库流水线指标，nil 时所有方法为空操作
type Metrics struct {
	ingestTotal    *prometheus.CounterVec
	ingestDuration prometheus.Histogram
	chunksTotal    prometheus.Counter
	answerTotal    *prometheus.CounterVec
	answerDuration prometheus.Histogram
	skippedHits    prometheus.Counter
}

// NewMetrics 在给定的Registerer上注册指标
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ingestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "knowledge_ingest_total",
				Help: "Total number of document ingestions",
			},
			[]string{"status"}, // status: completed, failed
		),
		ingestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "knowledge_ingest_duration_seconds",
				Help:    "Duration of document ingestion",
				Buckets: prometheus.DefBuckets,
			},
		),
		chunksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "knowledge_chunks_indexed_total",
				Help: "Total number of chunks embedded and indexed",
			},
		),
		answerTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "knowledge_answer_total",
				Help: "Total number of answered questions",
			},
			[]string{"result"}, // result: answered, no_match, error
		),
		answerDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "knowledge_answer_duration_seconds",
				Help:    "Duration of question answering",
				Buckets: prometheus.DefBuckets,
			},
		),
		skippedHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "knowledge_unresolved_hits_total",
				Help: "Search hits skipped because no matching chunk was found",
			},
		),
	}
}

func (m *Metrics) observeIngest(status string, chunks int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(status).Inc()
	m.ingestDuration.Observe(elapsed.Seconds())
	if chunks > 0 {
		m.chunksTotal.Add(float64(chunks))
	}
}

func (m *Metrics) observeAnswer(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.answerTotal.WithLabelValues(result).Inc()
	m.answerDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) skippedHit() {
	if m == nil {
		return
	}
	m.skippedHits.Inc()
}

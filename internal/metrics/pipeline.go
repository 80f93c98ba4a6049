package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	FilingsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsight",
			Name:      "filings_ingested_total",
			Help:      "New filings recorded by ingestion cycles",
		},
		[]string{"filing_type"},
	)

	StageTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsight",
			Name:      "stage_transitions_total",
			Help:      "Filing status transitions applied by the state store",
		},
		[]string{"status"},
	)

	DeadLettersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsight",
			Name:      "dead_letters_total",
			Help:      "Filings routed to the dead-letter state",
		},
		[]string{"reason"},
	)

	ExtractionCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsight",
			Name:      "extraction_calls_total",
			Help:      "Model extraction calls, including reflection retries",
		},
		[]string{"model", "status"},
	)

	RetrievalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finsight",
			Name:      "retrieval_duration_seconds",
			Help:      "Hybrid retrieval latency per list",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"list"},
	)

	AnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsight",
			Name:      "answers_total",
			Help:      "Synthesized answers by coverage outcome",
		},
		[]string{"coverage"},
	)

	LexicalIndexSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "finsight",
			Name:      "lexical_index_chunks",
			Help:      "Chunks in the current lexical index snapshot",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(FilingsIngestedTotal)
	prometheus.MustRegister(StageTransitionsTotal)
	prometheus.MustRegister(DeadLettersTotal)
	prometheus.MustRegister(ExtractionCallsTotal)
	prometheus.MustRegister(RetrievalDuration)
	prometheus.MustRegister(AnswersTotal)
	prometheus.MustRegister(LexicalIndexSize)
	pipelineMetricsRegistered = true
}

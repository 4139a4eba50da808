// Package metrics exposes Prometheus instrumentation for the pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bundle holds the pipeline collectors. It implements pipeline.MetricsSink.
type Bundle struct {
	buildInfo       *prometheus.GaugeVec
	runsTotal       *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	llmTokensTotal  *prometheus.CounterVec
	runErrorsTotal  prometheus.Counter
	confidenceScore prometheus.Histogram
	queryRows       prometheus.Histogram
}

// New registers the pipeline collectors with reg and returns the bundle.
func New(reg prometheus.Registerer) *Bundle {
	factory := promauto.With(reg)

	return &Bundle{
		buildInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledgerscope_build_info",
			Help: "Build information of ledgerscope",
		}, []string{"version", "commit", "date"}),
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerscope_runs_total",
			Help: "Total number of pipeline runs by outcome",
		}, []string{"outcome"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledgerscope_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		llmTokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerscope_llm_tokens_total",
			Help: "Total LLM tokens consumed by direction",
		}, []string{"direction"}),
		runErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledgerscope_run_errors_total",
			Help: "Total number of recoverable errors across runs",
		}),
		confidenceScore: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledgerscope_confidence_score",
			Help:    "Distribution of run confidence scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		queryRows: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledgerscope_query_rows",
			Help:    "Distribution of rows returned per executed query",
			Buckets: prometheus.ExponentialBuckets(1, 4, 6),
		}),
	}
}

// SetBuildInfo pins the build metadata gauge to 1 for the running binary.
func (b *Bundle) SetBuildInfo(version, commit, date string) {
	b.buildInfo.WithLabelValues(version, commit, date).Set(1)
}

func (b *Bundle) RecordRun(outcome string) {
	b.runsTotal.WithLabelValues(outcome).Inc()
}

func (b *Bundle) ObserveStageDuration(stage string, elapsed time.Duration) {
	b.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (b *Bundle) AddTokens(in, out int64) {
	if in > 0 {
		b.llmTokensTotal.WithLabelValues("input").Add(float64(in))
	}
	if out > 0 {
		b.llmTokensTotal.WithLabelValues("output").Add(float64(out))
	}
}

func (b *Bundle) AddRunErrors(n int) {
	if n > 0 {
		b.runErrorsTotal.Add(float64(n))
	}
}

func (b *Bundle) ObserveConfidence(score float64) {
	b.confidenceScore.Observe(score)
}

func (b *Bundle) ObserveQueryRows(rows int) {
	b.queryRows.Observe(float64(rows))
}

// Package metrics holds the Prometheus instrumentation for the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline outcome labels.
const (
	OutcomeTranscribed    = "transcribed"
	OutcomeEmpty          = "empty"
	OutcomeDenied         = "denied"
	OutcomeOversized      = "oversized"
	OutcomeRateLimited    = "rate_limited"
	OutcomeTransientError = "transient_error"
)

// Metrics contains all Prometheus metrics for the bot.
type Metrics struct {
	UpdatesReceived  prometheus.Counter
	UpdatesIgnored   prometheus.Counter
	PipelineOutcomes *prometheus.CounterVec

	TranscriptionDuration prometheus.Histogram
	ChunksSent            prometheus.Counter
}

// NewMetrics creates all metrics and registers them on reg. Production code
// passes prometheus.DefaultRegisterer so promhttp picks them up.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UpdatesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_updates_received_total",
			Help: "Total number of Telegram updates received",
		}),
		UpdatesIgnored: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_updates_ignored_total",
			Help: "Total number of updates with no processable media or command",
		}),
		PipelineOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicescribe_pipeline_outcomes_total",
			Help: "Pipeline results by terminal outcome",
		}, []string{"outcome"}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicescribe_transcription_duration_seconds",
			Help:    "Wall time of transcription calls",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		ChunksSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_chunks_sent_total",
			Help: "Total number of transcript chunks sent as replies",
		}),
	}
}

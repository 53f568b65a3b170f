package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	llmCompletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_completions_total",
		Help: "Chat completions by status",
	}, []string{"status"})

	llmLatencyMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "llm_latency_ms",
		Help:    "Chat completion round trip in milliseconds",
		Buckets: prometheus.ExponentialBuckets(50, 1.6, 12),
	})
)

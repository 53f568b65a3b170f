package stt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAudioBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stt_audio_bytes_total",
		Help: "Total audio bytes sent for transcription",
	})

	metricTranscriptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_transcriptions_total",
		Help: "Transcription requests by status",
	}, []string{"status"})

	metricFinalLatencyMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stt_final_latency_ms",
		Help:    "Latency from upload to final transcript (ms)",
		Buckets: prometheus.ExponentialBuckets(100, 1.6, 10),
	})

	metricEmptyFinalSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stt_empty_final_skipped_total",
		Help: "Empty final transcripts skipped",
	})
)

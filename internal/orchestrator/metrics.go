package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orch_state_transitions_total",
		Help: "Orchestrator state transitions",
	}, []string{"from", "to"})

	metricTurns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orch_turns_total",
		Help: "Finished turns by kind and outcome",
	}, []string{"kind", "outcome"})

	metricHeartbeatTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orch_heartbeat_ticks_total",
		Help: "Heartbeat ticks by result (idle, discarded, dropped)",
	}, []string{"result"})

	metricSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orch_sessions_active",
		Help: "Sessions with a running mailbox",
	})

	metricRemoteLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orch_remote_latency_ms",
		Help:    "LLM and TTS call latency as seen by the session (ms)",
		Buckets: prometheus.ExponentialBuckets(50, 1.6, 12),
	}, []string{"service"})

	metricDeferredCommands = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orch_deferred_commands_total",
		Help: "Turn commands queued because a turn was in flight",
	})
)

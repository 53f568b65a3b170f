package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_connections_active",
		Help: "Open playback bridge websockets",
	})

	metricMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_messages_total",
		Help: "Bridge messages by direction and type",
	}, []string{"direction", "type"})
)

package signaling

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	connectedPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "connectsphere",
			Subsystem: "signaling",
			Name:      "connected_peers",
			Help:      "Peers currently connected to this instance.",
		},
	)
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "connectsphere",
			Subsystem: "signaling",
			Name:      "frames_total",
			Help:      "Frames handled, by outcome.",
		},
		[]string{"outcome"},
	)
)

const (
	outcomeRelayed     = "relayed"
	outcomeUnavailable = "unavailable"
	outcomeMalformed   = "malformed"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(connectedPeers, framesTotal)
	})
}

func recordFrame(outcome string) {
	framesTotal.WithLabelValues(outcome).Inc()
}

package server

import (
	"github.com/AmyangXYZ/rtseries/pkg/packet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtseries",
		Name:      "packets_total",
		Help:      "Packets read from or written to sessions.",
	}, []string{"direction", "type"})
	metricActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rtseries",
		Name:      "sessions_active",
		Help:      "Number of open sessions.",
	})
	metricAuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rtseries",
		Name:      "authentication_failures_total",
		Help:      "Open requests rejected for bad credentials.",
	})
)

func countPacket(pkt *packet.Packet, inbound bool) {
	direction := "out"
	if inbound {
		direction = "in"
	}
	metricPackets.WithLabelValues(direction, pkt.GetHeader().PacketType.String()).Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collab_connections_active",
		Help: "The current number of open WebSocket connections.",
	})
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collab_rooms_active",
		Help: "The current number of live collaboration rooms.",
	})
	GateRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_gate_rejections_total",
		Help: "Upgrade attempts rejected by the pre-handshake security gate.",
	}, []string{"reason"})
	HandshakeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_handshake_failures_total",
		Help: "Room authorization handshakes rejected, by reason.",
	}, []string{"reason"})
	UpdatesMerged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_updates_merged_total",
		Help: "Document updates merged into room state.",
	})
	UpdatesDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_updates_discarded_total",
		Help: "Inbound frames dropped from read-only connections.",
	})
	AdminResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_admin_resets_total",
		Help: "Administrative connection-reset operations performed.",
	})
)

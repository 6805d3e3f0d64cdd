package stream

import "github.com/prometheus/client_golang/prometheus"

var (
	streamConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldx_stream_connections",
			Help: "Current number of active ticket stream connections.",
		},
	)
	snapshotsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldx_stream_snapshots_delivered_total",
			Help: "Total ticket snapshots delivered to stream clients.",
		},
	)
	commandsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldx_stream_commands_total",
			Help: "Total commands received over ticket streams, by action.",
		},
		[]string{"action"},
	)
)

func init() {
	prometheus.MustRegister(streamConnections, snapshotsDelivered, commandsReceived)
}

func incConnections() {
	streamConnections.Inc()
}

func decConnections() {
	streamConnections.Dec()
}

func addSnapshotDelivered() {
	snapshotsDelivered.Inc()
}

func recordCommand(action string) {
	commandsReceived.WithLabelValues(action).Inc()
}

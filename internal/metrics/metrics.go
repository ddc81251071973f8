// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RelayApplies counts Apply calls by result: changed|unchanged|invalid|write_error.
	RelayApplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_apply_total",
		Help: "Relay apply requests by result",
	}, []string{"result"})

	// RelayState is the logical state of each output (1 = on).
	RelayState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_state",
		Help: "Current logical relay state (0=off, 1=on)",
	}, []string{"index"})

	PersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_persist_failures_total",
		Help: "Failed writes of the device record",
	})

	// SensorReads counts reads by channel kind and result: ok|invalid.
	SensorReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sensor_reads_total",
		Help: "Sensor channel reads by kind and result",
	}, []string{"kind", "result"})

	ConnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wifi_connect_attempts_total",
		Help: "Association attempts started",
	})

	ConnectExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wifi_connect_exhausted_total",
		Help: "Times the association attempt bound was reached",
	})

	// LinkUp is 1 while the connectivity manager is connected.
	LinkUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wifi_link_up",
		Help: "Network link state (0=down, 1=up)",
	})

	// CloudPushes counts mirror publishes by result: sent|buffered|error.
	CloudPushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloud_push_total",
		Help: "Cloud mirror pushes by result",
	}, []string{"result"})

	CloudOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cloud_online",
		Help: "Cloud mirror session state (0=offline, 1=online)",
	})

	SocketPeers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "socket_peers",
		Help: "Connected WebSocket peers",
	})

	// SocketDrops counts outbound messages dropped because a peer was slow.
	SocketDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socket_dropped_messages_total",
		Help: "Outbound socket messages dropped on full peer buffers",
	})

	CommandsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "controller_commands_rejected_total",
		Help: "Inbound commands rejected because the queue was full",
	})

	// HTTPRequests counts requests by route and status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by route and status",
	}, []string{"route", "code"})

	// MDNSAdvertised is 1 while the status server is announced over mDNS.
	MDNSAdvertised = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mdns_advertised",
		Help: "mDNS advertisement state (0=off, 1=announced)",
	})
)

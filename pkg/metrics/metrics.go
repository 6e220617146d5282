package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type WebSocketMetrics struct {
	ActiveClients    prometheus.Gauge
	ActiveAdmins     prometheus.Gauge
	ConnectionsTotal prometheus.Counter
	AuthErrors       prometheus.Counter
	MessagesReceived *prometheus.CounterVec
	BytesSent        prometheus.Counter
}

type CommandMetrics struct {
	CommandsBroadcast *prometheus.CounterVec
	ForcedDisconnects prometheus.Counter
	EmergencyStops    prometheus.Counter
}

type FleetMetrics struct {
	AvgBattery prometheus.Gauge
	LogEntries *prometheus.CounterVec
}

type HttpMetrics struct {
	RequestsTotal *prometheus.CounterVec
	UploadsTotal  prometheus.Counter
	VideosDeleted prometheus.Counter
}

// Metrics carries every prometheus instrument, registered against a
// per-instance registry so independent servers (and tests) never
// collide.
type Metrics struct {
	Registry *prometheus.Registry

	WebSocket WebSocketMetrics
	Commands  CommandMetrics
	Fleet     FleetMetrics
	Http      HttpMetrics
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		WebSocket: WebSocketMetrics{
			ActiveClients: factory.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_active_clients",
				Help:      "Number of connected mobile clients",
			}),
			ActiveAdmins: factory.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_active_admins",
				Help:      "Number of connected admin consoles",
			}),
			ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "websocket_connections_total",
				Help:      "Total number of accepted WebSocket connections",
			}),
			AuthErrors: factory.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "websocket_auth_errors_total",
				Help:      "Number of admin handshakes rejected for a bad token",
			}),
			MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "websocket_messages_received_total",
				Help:      "Number of inbound messages, by type",
			}, []string{"message_type"}),
			BytesSent: factory.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "websocket_bytes_sent_total",
				Help:      "Number of bytes written to sockets",
			}),
		},
		Commands: CommandMetrics{
			CommandsBroadcast: factory.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_broadcast_total",
				Help:      "Number of admin commands fanned out to clients, by type",
			}, []string{"command"}),
			ForcedDisconnects: factory.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_forced_disconnects_total",
				Help:      "Number of devices disconnected by an admin",
			}),
			EmergencyStops: factory.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_emergency_stops_total",
				Help:      "Number of emergency stops triggered",
			}),
		},
		Fleet: FleetMetrics{
			AvgBattery: factory.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "fleet_avg_battery_percent",
				Help:      "Average battery level of reporting clients",
			}),
			LogEntries: factory.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fleet_log_entries_total",
				Help:      "Number of event log entries, by category",
			}, []string{"category"}),
		},
		Http: HttpMetrics{
			RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Number of HTTP requests, by method and path",
			}, []string{"method", "path"}),
			UploadsTotal: factory.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_uploads_total",
				Help:      "Number of completed video uploads",
			}),
			VideosDeleted: factory.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_videos_deleted_total",
				Help:      "Number of deleted video files",
			}),
		},
	}
}

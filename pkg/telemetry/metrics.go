package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var Metrics = struct {
	EventsReceived  *prometheus.CounterVec
	EventsIngested  *prometheus.CounterVec
	DecodeFailures  prometheus.Counter
	Reconnects      prometheus.Counter
	ConnectionState prometheus.Gauge
	StreamClients   *prometheus.GaugeVec
	DroppedSends    prometheus.Counter
	AlertsRecorded  prometheus.Counter
	EventsPruned    prometheus.Counter
	RequestsTotal   *prometheus.CounterVec
}{
	EventsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatewatch",
		Name:      "events_received_total",
		Help:      "Events received from the upstream channel by kind.",
	}, []string{"kind"}),

	EventsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatewatch",
		Name:      "events_ingested_total",
		Help:      "Events accepted on the ingest endpoint by kind and status.",
	}, []string{"kind", "status"}),

	DecodeFailures: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatewatch",
		Name:      "event_decode_failures_total",
		Help:      "Envelopes whose payload could not be decoded.",
	}),

	Reconnects: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatewatch",
		Name:      "channel_reconnects_total",
		Help:      "Times the upstream channel re-entered the connecting state.",
	}),

	ConnectionState: promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gatewatch",
		Name:      "channel_connected",
		Help:      "1 while the upstream channel is connected, else 0.",
	}),

	StreamClients: promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gatewatch",
		Name:      "stream_clients",
		Help:      "Connected live-stream consumers by transport.",
	}, []string{"transport"}),

	DroppedSends: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatewatch",
		Name:      "dropped_sends_total",
		Help:      "Messages dropped because the channel was not connected.",
	}),

	AlertsRecorded: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatewatch",
		Name:      "theft_alerts_total",
		Help:      "Theft alerts persisted by the monitor.",
	}),

	EventsPruned: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatewatch",
		Name:      "events_pruned_total",
		Help:      "Scan events removed by the retention job.",
	}),

	RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatewatch",
		Name:      "api_requests_total",
		Help:      "API requests by route and status.",
	}, []string{"route", "status"}),
}

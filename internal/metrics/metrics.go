package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector of the chat backend. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	Connections         prometheus.Gauge
	Admins              prometheus.Gauge
	Roster              prometheus.Gauge
	Messages            *prometheus.CounterVec
	Uploads             *prometheus.CounterVec
	NotifyFailures      *prometheus.CounterVec
	DroppedFrames       prometheus.Counter
	EventPublishFailure prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Active websocket connections",
		}),
		Admins: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_admin_connections",
			Help: "Connections in the admin group",
		}),
		Roster: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_presence_entries",
			Help: "Visitors known to the presence registry",
		}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Persisted chat messages",
		}, []string{"sender", "kind"}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_uploads_total",
			Help: "Attachment uploads by outcome",
		}, []string{"result"}),
		NotifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_notify_failures_total",
			Help: "Failed or dropped admin notifications",
		}, []string{"channel"}),
		DroppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ws_dropped_frames_total",
			Help: "Outbound frames dropped because a send buffer was full",
		}),
		EventPublishFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_event_publish_failures_total",
			Help: "Chat events that could not be published to the bus",
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		m.Connections, m.Admins, m.Roster,
		m.Messages, m.Uploads, m.NotifyFailures,
		m.DroppedFrames, m.EventPublishFailure,
	)
	return m
}

// Handler returns an http.Handler for Prometheus scraping
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) SetConnections(n int) {
	if m != nil {
		m.Connections.Set(float64(n))
	}
}

func (m *Metrics) SetAdmins(n int) {
	if m != nil {
		m.Admins.Set(float64(n))
	}
}

func (m *Metrics) SetRoster(n int) {
	if m != nil {
		m.Roster.Set(float64(n))
	}
}

func (m *Metrics) MessagePersisted(sender, kind string) {
	if m != nil {
		m.Messages.WithLabelValues(sender, kind).Inc()
	}
}

func (m *Metrics) Upload(result string) {
	if m != nil {
		m.Uploads.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) NotifyFailed(channel string) {
	if m != nil {
		m.NotifyFailures.WithLabelValues(channel).Inc()
	}
}

func (m *Metrics) FrameDropped() {
	if m != nil {
		m.DroppedFrames.Inc()
	}
}

func (m *Metrics) PublishFailed() {
	if m != nil {
		m.EventPublishFailure.Inc()
	}
}

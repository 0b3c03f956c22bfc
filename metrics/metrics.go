// Package metrics exposes session counters for Prometheus. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Registry *prometheus.Registry

	SessionsStarted prometheus.Counter
	SessionErrors   *prometheus.CounterVec
	ActiveSession   prometheus.Gauge

	FramesSent    prometheus.Counter
	FramesDropped prometheus.Counter
	BytesSent     prometheus.Counter

	MessagesReceived prometheus.Counter
	ChunksScheduled  prometheus.Counter
	Interruptions    prometheus.Counter
	Turns            prometheus.Counter

	ConnectDuration prometheus.Histogram
	InputLevel      prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "juru_sessions_started_total",
			Help: "Total number of translation sessions started",
		}),
		SessionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "juru_session_errors_total",
			Help: "Sessions ended by an error, by failure kind",
		}, []string{"kind"}),
		ActiveSession: f.NewGauge(prometheus.GaugeOpts{
			Name: "juru_session_active",
			Help: "1 while a session holds devices and a stream",
		}),
		FramesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "juru_frames_sent_total",
			Help: "Audio frames sent to the remote session",
		}),
		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "juru_frames_dropped_total",
			Help: "Audio frames dropped because the send queue was full",
		}),
		BytesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "juru_sent_bytes_total",
			Help: "Encoded audio bytes sent",
		}),
		MessagesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "juru_messages_received_total",
			Help: "Server messages received",
		}),
		ChunksScheduled: f.NewCounter(prometheus.CounterOpts{
			Name: "juru_chunks_scheduled_total",
			Help: "Translated audio chunks scheduled for playback",
		}),
		Interruptions: f.NewCounter(prometheus.CounterOpts{
			Name: "juru_interruptions_total",
			Help: "Playback interruptions signalled by the server",
		}),
		Turns: f.NewCounter(prometheus.CounterOpts{
			Name: "juru_turns_total",
			Help: "Completed turns",
		}),
		ConnectDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "juru_connect_duration_seconds",
			Help:    "Time from start to the session being ready",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8),
		}),
		InputLevel: f.NewGauge(prometheus.GaugeOpts{
			Name: "juru_input_level_rms",
			Help: "RMS level of the last captured block",
		}),
	}
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.ActiveSession.Set(1)
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.ActiveSession.Set(0)
}

func (m *Metrics) SessionError(kind string) {
	if m == nil {
		return
	}
	m.SessionErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) Connected(seconds float64) {
	if m == nil {
		return
	}
	m.ConnectDuration.Observe(seconds)
}

func (m *Metrics) FrameSent(bytes int) {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
	m.BytesSent.Add(float64(bytes))
}

func (m *Metrics) FrameDropped() {
	if m == nil {
		return
	}
	m.FramesDropped.Inc()
}

func (m *Metrics) MessageReceived() {
	if m == nil {
		return
	}
	m.MessagesReceived.Inc()
}

func (m *Metrics) ChunkScheduled() {
	if m == nil {
		return
	}
	m.ChunksScheduled.Inc()
}

func (m *Metrics) Interrupted() {
	if m == nil {
		return
	}
	m.Interruptions.Inc()
}

func (m *Metrics) TurnCompleted() {
	if m == nil {
		return
	}
	m.Turns.Inc()
}

func (m *Metrics) Level(rms float64) {
	if m == nil {
		return
	}
	m.InputLevel.Set(rms)
}

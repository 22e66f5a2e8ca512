package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the controller's counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	reg *prometheus.Registry

	ticks            prometheus.Counter
	linkAttempts     *prometheus.CounterVec
	connected        prometheus.Gauge
	indicatorToggles prometheus.Counter
	gestures         prometheus.Counter
	framesStreamed   prometheus.Counter
	activeStreams    prometheus.Gauge
	snapshots        *prometheus.CounterVec
	uploads          *prometheus.CounterVec
	uploadBytes      prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wavecam_ticks_total",
			Help: "Scheduler loop iterations.",
		}),
		linkAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wavecam_link_attempts_total",
			Help: "Network association attempts by result.",
		}, []string{"result"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wavecam_connected",
			Help: "1 while the network link is up.",
		}),
		indicatorToggles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wavecam_indicator_toggles_total",
			Help: "Indicator output transitions while blinking.",
		}),
		gestures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wavecam_gestures_total",
			Help: "Completed wave gestures.",
		}),
		framesStreamed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wavecam_frames_streamed_total",
			Help: "Frames written to multipart stream viewers.",
		}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wavecam_active_streams",
			Help: "Currently connected stream viewers.",
		}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wavecam_snapshots_total",
			Help: "Still captures served, by result.",
		}, []string{"result"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wavecam_uploads_total",
			Help: "Blob uploads by result.",
		}, []string{"result"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wavecam_upload_bytes_total",
			Help: "JPEG bytes sent in successful uploads.",
		}),
	}

	m.reg.MustRegister(
		m.ticks, m.linkAttempts, m.connected, m.indicatorToggles, m.gestures,
		m.framesStreamed, m.activeStreams, m.snapshots, m.uploads, m.uploadBytes,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Tick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

func (m *Metrics) LinkAttempt(ok bool) {
	if m == nil {
		return
	}
	m.linkAttempts.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *Metrics) IndicatorToggled() {
	if m == nil {
		return
	}
	m.indicatorToggles.Inc()
}

func (m *Metrics) GestureDone() {
	if m == nil {
		return
	}
	m.gestures.Inc()
}

func (m *Metrics) FrameStreamed() {
	if m == nil {
		return
	}
	m.framesStreamed.Inc()
}

func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.activeStreams.Inc()
}

func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.activeStreams.Dec()
}

func (m *Metrics) Snapshot(ok bool) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) Upload(ok bool, bytes int) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result(ok)).Inc()
	if ok {
		m.uploadBytes.Add(float64(bytes))
	}
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

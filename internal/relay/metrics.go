package relay

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Frame dispositions recorded in loopviz_relay_frames_total.
const (
	frameForwarded = "forwarded"
	frameDiscarded = "discarded"
	frameMalformed = "malformed"
)

type metrics struct {
	registry *prometheus.Registry

	frames       *prometheus.CounterVec
	links        *prometheus.CounterVec
	surfaces     prometheus.Gauge
	slowSurfaces prometheus.Counter
}

func newMetrics(reg *prometheus.Registry) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &metrics{
		registry: reg,
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loopviz_relay_frames_total",
				Help: "Recorder frames received, by disposition.",
			},
			[]string{"result"},
		),
		links: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loopviz_relay_link_transitions_total",
				Help: "Recorder link status transitions posted to surfaces.",
			},
			[]string{"status"},
		),
		surfaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loopviz_relay_surfaces",
			Help: "Presentation surfaces currently attached.",
		}),
		slowSurfaces: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loopviz_relay_slow_surfaces_total",
			Help: "Surfaces disconnected because their send queue was full.",
		}),
	}
	reg.MustRegister(m.frames, m.links, m.surfaces, m.slowSurfaces)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

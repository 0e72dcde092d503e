package realtime

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shnupta/porter/metric"
)

type managerMetrics struct {
	connects            prometheus.Counter
	connectFailures     prometheus.Counter
	reconnectsScheduled prometheus.Counter
	framesReceived      prometheus.Counter
	decodeFailures      prometheus.Counter
	state               prometheus.Gauge
}

func newManagerMetrics(registry *metric.Registry) (*managerMetrics, error) {
	m := &managerMetrics{
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "porter",
			Subsystem: "realtime",
			Name:      "connects_total",
			Help:      "Successful websocket connections",
		}),
		connectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "porter",
			Subsystem: "realtime",
			Name:      "connect_failures_total",
			Help:      "Failed websocket connection attempts",
		}),
		reconnectsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "porter",
			Subsystem: "realtime",
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect timers armed after connection loss",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "porter",
			Subsystem: "realtime",
			Name:      "frames_received_total",
			Help:      "Raw frames read from the websocket",
		}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "porter",
			Subsystem: "realtime",
			Name:      "decode_failures_total",
			Help:      "Frames dropped because they could not be decoded",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "porter",
			Subsystem: "realtime",
			Name:      "connection_state",
			Help:      "Connection state (0 disconnected, 1 open, 2 reconnect scheduled)",
		}),
	}

	registrations := []struct {
		name string
		err  error
	}{
		{"connects_total", registry.RegisterCounter("realtime", "connects_total", m.connects)},
		{"connect_failures_total", registry.RegisterCounter("realtime", "connect_failures_total", m.connectFailures)},
		{"reconnects_scheduled_total", registry.RegisterCounter("realtime", "reconnects_scheduled_total", m.reconnectsScheduled)},
		{"frames_received_total", registry.RegisterCounter("realtime", "frames_received_total", m.framesReceived)},
		{"decode_failures_total", registry.RegisterCounter("realtime", "decode_failures_total", m.decodeFailures)},
		{"connection_state", registry.RegisterGauge("realtime", "connection_state", m.state)},
	}
	for _, reg := range registrations {
		if reg.err != nil {
			return nil, reg.err
		}
	}

	return m, nil
}

package txt

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// sessionMetrics holds the Prometheus collectors of one session. A nil
// value disables recording.
type sessionMetrics struct {
	rounds       prometheus.Counter
	errors       *prometheus.CounterVec // by kind: transport, protocol, configuration
	roundSeconds prometheus.Histogram
	probes       prometheus.Counter
	frames       prometheus.Counter
	regErrors    *prometheus.CounterVec // by op: read, write
}

// newSessionMetrics creates the collectors and registers them with reg.
// Collectors already registered by an earlier session are shared.
func newSessionMetrics(reg prometheus.Registerer) (*sessionMetrics, error) {
	if reg == nil {
		return nil, nil // Metrics disabled
	}

	m := &sessionMetrics{
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txtlink",
			Subsystem: "exchange",
			Name:      "rounds_total",
			Help:      "Completed IO exchange rounds",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txtlink",
			Subsystem: "exchange",
			Name:      "errors_total",
			Help:      "Session-fatal errors by class",
		}, []string{"kind"}),
		roundSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "txtlink",
			Subsystem: "exchange",
			Name:      "round_seconds",
			Help:      "Duration of one request/response exchange",
			Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.5},
		}),
		probes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txtlink",
			Subsystem: "keepalive",
			Name:      "probes_total",
			Help:      "Status queries sent to keep an idle connection alive",
		}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txtlink",
			Subsystem: "camera",
			Name:      "frames_total",
			Help:      "Completely received camera frames",
		}),
		regErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txtlink",
			Subsystem: "register",
			Name:      "errors_total",
			Help:      "Failed register channel transactions",
		}, []string{"op"}),
	}

	var err error
	if m.rounds, err = register(reg, m.rounds); err != nil {
		return nil, err
	}
	if m.errors, err = register(reg, m.errors); err != nil {
		return nil, err
	}
	if m.roundSeconds, err = register(reg, m.roundSeconds); err != nil {
		return nil, err
	}
	if m.probes, err = register(reg, m.probes); err != nil {
		return nil, err
	}
	if m.frames, err = register(reg, m.frames); err != nil {
		return nil, err
	}
	if m.regErrors, err = register(reg, m.regErrors); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, returning the existing collector when an equal
// one is already registered
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegErr) {
			if existing, ok := alreadyRegErr.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *sessionMetrics) recordRound(d time.Duration) {
	if m == nil {
		return
	}
	m.rounds.Inc()
	m.roundSeconds.Observe(d.Seconds())
}

func (m *sessionMetrics) recordError(kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(kind).Inc()
}

func (m *sessionMetrics) recordProbe() {
	if m == nil {
		return
	}
	m.probes.Inc()
}

func (m *sessionMetrics) recordFrame() {
	if m == nil {
		return
	}
	m.frames.Inc()
}

func (m *sessionMetrics) recordRegisterError(op string) {
	if m == nil {
		return
	}
	m.regErrors.WithLabelValues(op).Inc()
}

package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts session lifecycle outcomes. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	logins      *prometheus.CounterVec
	refreshes   *prometheus.CounterVec
	revocations *prometheus.CounterVec
	reuse       prometheus.Counter
}

// NewMetrics registers the session collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tekauth",
			Subsystem: "session",
			Name:      "logins_total",
			Help:      "Session logins by outcome.",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tekauth",
			Subsystem: "session",
			Name:      "refreshes_total",
			Help:      "Refresh token rotations by outcome.",
		}, []string{"outcome"}),
		revocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tekauth",
			Subsystem: "session",
			Name:      "revocations_total",
			Help:      "Sessions revoked, by cause.",
		}, []string{"cause"}),
		reuse: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tekauth",
			Subsystem: "session",
			Name:      "reuse_detected_total",
			Help:      "Refresh tokens presented after rotation or with a mismatching hash.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.logins, m.refreshes, m.revocations, m.reuse)
	}
	return m
}

func (m *Metrics) login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) revoked(cause string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.revocations.WithLabelValues(cause).Add(float64(n))
}

func (m *Metrics) reuseDetected() {
	if m == nil {
		return
	}
	m.reuse.Inc()
}

// outcome labels a Service result for metrics.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return PublicCode(err)
}

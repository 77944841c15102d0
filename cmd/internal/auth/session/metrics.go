package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the session subsystem's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	issued     prometheus.Counter
	rotated    prometheus.Counter
	revoked    *prometheus.CounterVec
	evicted    prometheus.Counter
	failures   *prometheus.CounterVec
	weakDevice *prometheus.CounterVec
	reaped     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if namespace == "" {
		namespace = "lodge"
	}

	m := &Metrics{
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "issued_total",
			Help:      "Refresh sessions issued at login.",
		}),
		rotated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "rotated_total",
			Help:      "Successful refresh-token rotations.",
		}),
		revoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "revoked_total",
			Help:      "Refresh tokens revoked, by reason.",
		}, []string{"reason"}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "evicted_total",
			Help:      "Sessions evicted by the per-user device cap.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "rotate_failures_total",
			Help:      "Rejected rotations, by error kind.",
		}, []string{"kind"}),
		weakDevice: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "weak_device_key_total",
			Help:      "Operations that resolved only a weak (user-agent) device key.",
		}, []string{"op"}),
		reaped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "reaped_total",
			Help:      "Rows deleted by the background reaper and chain pruning.",
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{m.issued, m.rotated, m.revoked, m.evicted, m.failures, m.weakDevice, m.reaped} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) incIssued() {
	if m != nil {
		m.issued.Inc()
	}
}

func (m *Metrics) incRotated() {
	if m != nil {
		m.rotated.Inc()
	}
}

func (m *Metrics) addRevoked(reason string, n int64) {
	if m != nil && n > 0 {
		m.revoked.WithLabelValues(reason).Add(float64(n))
	}
}

func (m *Metrics) addEvicted(n int) {
	if m != nil && n > 0 {
		m.evicted.Add(float64(n))
	}
}

func (m *Metrics) incFailure(err error) {
	if m != nil {
		m.failures.WithLabelValues(errorKind(err)).Inc()
	}
}

func (m *Metrics) incWeakDevice(op string) {
	if m != nil {
		m.weakDevice.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) addReaped(kind string, n int64) {
	if m != nil && n > 0 {
		m.reaped.WithLabelValues(kind).Add(float64(n))
	}
}

package microapi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Gate outcomes recorded by Metrics.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeWarned   = "warned"
)

// Metrics records validation gate outcomes and latency.
type Metrics struct {
	outcomes *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics creates the gate collectors and registers them with reg. A nil
// registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "microapi",
			Subsystem: "gate",
			Name:      "requests_total",
			Help:      "Requests that passed through a validation gate, by outcome.",
		}, []string{"method", "route", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "microapi",
			Subsystem: "gate",
			Name:      "duration_seconds",
			Help:      "Time spent in a validation gate, handler included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.outcomes, m.latency} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// Collectors returns the underlying collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.outcomes, m.latency}
}

func (m *Metrics) observe(method, route, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(method, route, outcome).Inc()
	m.latency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

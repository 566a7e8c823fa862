package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts authentication and authorization outcomes.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	auth      *prometheus.CounterVec
	denied    *prometheus.CounterVec
	throttled prometheus.Counter
}

// NewMetrics registers the API collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		auth: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adboard",
			Subsystem: "auth",
			Name:      "events_total",
			Help:      "Authentication events by event and outcome.",
		}, []string{"event", "outcome"}),
		denied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adboard",
			Subsystem: "authz",
			Name:      "denied_total",
			Help:      "Requests rejected by the authorization guard, by resource.",
		}, []string{"resource"}),
		throttled: f.NewCounter(prometheus.CounterOpts{
			Namespace: "adboard",
			Subsystem: "auth",
			Name:      "login_throttled_total",
			Help:      "Login attempts rejected by the per-client rate limiter.",
		}),
	}
}

func (m *Metrics) authEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.auth.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) deny(resource string) {
	if m == nil {
		return
	}
	m.denied.WithLabelValues(resource).Inc()
}

func (m *Metrics) throttle() {
	if m == nil {
		return
	}
	m.throttled.Inc()
}

package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts compensating cancellations. A nil *Metrics records nothing.
type Metrics struct {
	compensations *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		compensations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "subscription_compensations_total",
			Help: "Compensating cancellations of remote subscriptions, by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) compensation(result string) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(result).Inc()
}

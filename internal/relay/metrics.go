package relay

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the relay's Prometheus collectors.
type Metrics struct {
	events     *prometheus.CounterVec
	deliveries *prometheus.CounterVec
}

// NewMetrics creates the relay collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardian_relay_events_total",
				Help: "Ingested device events by kind and outcome.",
			},
			[]string{"kind", "result"},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardian_relay_deliveries_total",
				Help: "Per-session deliveries by outcome.",
			},
			[]string{"result"},
		),
	}
	reg.MustRegister(m.events, m.deliveries)
	return m
}

// Observe registers gauges that read live counts from the directory and
// session manager at scrape time.
func (m *Metrics) Observe(reg prometheus.Registerer, dir *Directory, sessions *SessionManager) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "guardian_relay_sessions",
			Help: "Connected client sessions.",
		}, func() float64 { return float64(sessions.Count()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "guardian_relay_subscriptions",
			Help: "Active (session, device) subscriptions.",
		}, func() float64 { return float64(dir.Count()) }),
	)
}

func (m *Metrics) event(kind, result string) {
	m.events.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) delivery(result string) {
	m.deliveries.WithLabelValues(result).Inc()
}

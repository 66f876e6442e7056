package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts pipeline outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	searches      *prometheus.CounterVec
	buildFailures *prometheus.CounterVec
	renders       *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		searches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtybot_searches_total",
				Help: "Searches by outcome.",
			},
			[]string{"outcome"},
		),
		buildFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtybot_query_build_failures_total",
				Help: "Query generation failures by reason.",
			},
			[]string{"reason"},
		),
		renders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtybot_listing_renders_total",
				Help: "Listing descriptions by degrade tier.",
			},
			[]string{"tier"},
		),
	}
	reg.MustRegister(m.searches, m.buildFailures, m.renders)
	return m
}

func (m *Metrics) ObserveSearch(outcome string) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveBuildFailure(reason string) {
	if m == nil {
		return
	}
	m.buildFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveRender(tier string) {
	if m == nil {
		return
	}
	m.renders.WithLabelValues(tier).Inc()
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

// Signals groups the collectors of the signal-service.
type Signals struct {
	Cycles          *prometheus.CounterVec // result: ok | error
	CycleDuration   prometheus.Histogram
	SkippedTicks    prometheus.Counter
	SourceFailures  *prometheus.CounterVec // source
	SourceFallbacks *prometheus.CounterVec // source
	ExtractFailures *prometheus.CounterVec // source
	MatchesAccepted *prometheus.CounterVec // source
	Deliveries      *prometheus.CounterVec // kind
	Denials         *prometheus.CounterVec // reason
	Confirmations   *prometheus.CounterVec // channel, outcome
}

func NewSignals(reg prometheus.Registerer) *Signals {
	s := &Signals{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_discovery_cycles_total", Help: "discovery cycles by result",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signals_discovery_cycle_seconds",
			Help:    "discovery cycle duration",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		SkippedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signals_discovery_skipped_ticks_total", Help: "ticks skipped because a cycle was still running",
		}),
		SourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_source_failures_total", Help: "sources that returned nothing (api and scrape failed)",
		}, []string{"source"}),
		SourceFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_source_fallbacks_total", Help: "api failures that fell back to scraping",
		}, []string{"source"}),
		ExtractFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_extraction_failures_total", Help: "raw items skipped by the extractor",
		}, []string{"source"}),
		MatchesAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_matches_accepted_total", Help: "matches passing the coefficient filter",
		}, []string{"source"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_deliveries_total", Help: "signals handed to the sink",
		}, []string{"kind"}),
		Denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_entitlement_denials_total", Help: "deliveries refused by the entitlement gate",
		}, []string{"reason"}),
		Confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_payment_confirmations_total", Help: "payment confirm attempts by channel and outcome",
		}, []string{"channel", "outcome"}),
	}

	reg.MustRegister(
		s.Cycles, s.CycleDuration, s.SkippedTicks,
		s.SourceFailures, s.SourceFallbacks, s.ExtractFailures, s.MatchesAccepted,
		s.Deliveries, s.Denials, s.Confirmations,
	)
	return s
}

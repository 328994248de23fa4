// Package metrics exposes analyzer output as Prometheus series.
//
//   - mvrvdca_smoothed_z                     latest smoothed Z
//   - mvrvdca_slope                          latest trend slope
//   - mvrvdca_sell_rate                      latest sell fraction
//   - mvrvdca_phase{phase}                   one-hot current phase
//   - mvrvdca_samples_total                  accepted samples
//   - mvrvdca_rejected_samples_total         rejected samples
//   - mvrvdca_phase_changes_total{from,to}   phase transitions
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewired-gh/mvrvdca/internal/models"
)

// Metrics holds the collectors registered for one analyzer.
type Metrics struct {
	smoothedZ    prometheus.Gauge
	slope        prometheus.Gauge
	sellRate     prometheus.Gauge
	phase        *prometheus.GaugeVec
	samples      prometheus.Counter
	rejected     prometheus.Counter
	phaseChanges *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		smoothedZ: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mvrvdca_smoothed_z",
			Help: "Latest EMA-smoothed MVRV Z-Score.",
		}),
		slope: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mvrvdca_slope",
			Help: "Latest OLS slope of the smoothed series.",
		}),
		sellRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mvrvdca_sell_rate",
			Help: "Latest recommended sell fraction.",
		}),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mvrvdca_phase",
			Help: "Current market phase (1 for the active phase, 0 otherwise).",
		}, []string{"phase"}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mvrvdca_samples_total",
			Help: "Samples accepted by the analyzer.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mvrvdca_rejected_samples_total",
			Help: "Samples rejected as invalid.",
		}),
		phaseChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mvrvdca_phase_changes_total",
			Help: "Phase transitions observed.",
		}, []string{"from", "to"}),
	}

	for _, c := range []prometheus.Collector{
		m.smoothedZ, m.slope, m.sellRate, m.phase, m.samples, m.rejected, m.phaseChanges,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	// Expose every phase series from the start so dashboards see zeros.
	for _, p := range models.AllPhases {
		m.phase.WithLabelValues(p.String()).Set(0)
	}

	return m, nil
}

// Observe records one accepted sample's result.
func (m *Metrics) Observe(r models.AnalysisResult) {
	m.samples.Inc()
	m.smoothedZ.Set(r.SmoothedZ)
	m.slope.Set(r.Slope)
	m.sellRate.Set(r.SellPercentage)
	for _, p := range models.AllPhases {
		v := 0.0
		if p == r.Phase {
			v = 1
		}
		m.phase.WithLabelValues(p.String()).Set(v)
	}
}

// ObserveRejected counts a sample the analyzer refused.
func (m *Metrics) ObserveRejected() {
	m.rejected.Inc()
}

// ObservePhaseChange counts a transition between two phases.
func (m *Metrics) ObservePhaseChange(from, to models.Phase) {
	m.phaseChanges.WithLabelValues(from.String(), to.String()).Inc()
}

// Handler serves the gatherer's series in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

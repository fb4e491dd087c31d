package co2bed

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for reference data loading and
// resolution. A nil *Metrics records nothing.
type Metrics struct {
	Resolutions    *prometheus.CounterVec // labels: mode, stage={exact,nearest,nearest_relaxed,error}
	CacheLookups   *prometheus.CounterVec // labels: result={hit,miss}
	Legs           *prometheus.CounterVec // labels: outcome={success,error}
	RecordsIndexed *prometheus.GaugeVec   // labels: kind
	RowsSkipped    *prometheus.GaugeVec   // labels: kind, reason={malformed,ineligible,duplicate}
	LoadDuration   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// skips registration, which tests use to avoid duplicate registrations.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "co2bed",
			Name:      "resolutions_total",
			Help:      "Location resolutions by mode and the stage that produced them.",
		}, []string{"mode", "stage"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "co2bed",
			Name:      "resolution_cache_total",
			Help:      "Resolution cache lookups by result.",
		}, []string{"result"}),
		Legs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "co2bed",
			Name:      "legs_total",
			Help:      "Calculated legs by outcome.",
		}, []string{"outcome"}),
		RecordsIndexed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "co2bed",
			Name:      "records_indexed",
			Help:      "Reference records held in the index by kind.",
		}, []string{"kind"}),
		RowsSkipped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "co2bed",
			Name:      "rows_skipped",
			Help:      "Reference rows not indexed by kind and reason.",
		}, []string{"kind", "reason"}),
		LoadDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "co2bed",
			Name:      "load_duration_seconds",
			Help:      "Time taken to build the index from reference files.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Resolutions,
			m.CacheLookups,
			m.Legs,
			m.RecordsIndexed,
			m.RowsSkipped,
			m.LoadDuration,
		)
	}
	return m
}

func (m *Metrics) resolution(mode Mode, stage string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(string(mode), stage).Inc()
}

func (m *Metrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) leg(err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.Legs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) loaded(kind Kind, st SourceStats) {
	if m == nil {
		return
	}
	m.RecordsIndexed.WithLabelValues(kind.String()).Set(float64(st.Indexed))
	m.RowsSkipped.WithLabelValues(kind.String(), "malformed").Set(float64(st.Malformed))
	m.RowsSkipped.WithLabelValues(kind.String(), "ineligible").Set(float64(st.Ineligible))
	m.RowsSkipped.WithLabelValues(kind.String(), "duplicate").Set(float64(st.Duplicates))
}

func (m *Metrics) loadDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.LoadDuration.Set(d.Seconds())
}

package metrics

import (
	"github.com/Phillezi/lifeline/pkg/shutdown"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lifeline"

// Collectors groups the lifecycle metrics.
type Collectors struct {
	beacons       prometheus.GaugeFunc
	ready         prometheus.GaugeFunc
	shuttingDown  prometheus.GaugeFunc
	phase         *prometheus.GaugeVec
	probeOutcomes *prometheus.CounterVec
}

// Source is read on every scrape.
type Source interface {
	BeaconCount() int
	Ready() bool
	IsShuttingDown() bool
}

// New registers the lifecycle collectors on reg.
func New(reg prometheus.Registerer, src Source) *Collectors {
	f := promauto.With(reg)

	c := &Collectors{
		beacons: f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "beacons_live",
			Help:      "Number of in-flight operations tracked by beacons",
		}, func() float64 { return float64(src.BeaconCount()) }),
		ready: f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ready",
			Help:      "1 if the application signaled ready",
		}, func() float64 { return boolToFloat(src.Ready()) }),
		shuttingDown: f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shutting_down",
			Help:      "1 once shutdown started",
		}, func() float64 { return boolToFloat(src.IsShuttingDown()) }),
		phase: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shutdown_phase",
			Help:      "1 for the active shutdown phase, 0 for the others",
		}, []string{"phase"}),
		probeOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_checks_total",
			Help:      "Probe checks by probe and reason",
		}, []string{"probe", "reason"}),
	}
	c.SetPhase(shutdown.PhaseIdle)
	return c
}

// SetPhase marks p as the active shutdown phase.
func (c *Collectors) SetPhase(p shutdown.Phase) {
	for _, ph := range shutdown.Phases() {
		v := 0.0
		if ph == p {
			v = 1
		}
		c.phase.WithLabelValues(ph.String()).Set(v)
	}
}

// RecordProbe counts one probe check.
func (c *Collectors) RecordProbe(probe, reason string) {
	c.probeOutcomes.WithLabelValues(probe, reason).Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

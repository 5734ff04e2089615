package metrics

import (
	"strings"
	"testing"

	"github.com/Phillezi/lifeline/pkg/shutdown"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	beacons      int
	ready        bool
	shuttingDown bool
}

func (f *fakeSource) BeaconCount() int     { return f.beacons }
func (f *fakeSource) Ready() bool          { return f.ready }
func (f *fakeSource) IsShuttingDown() bool { return f.shuttingDown }

func TestCollectors_Gauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := &fakeSource{beacons: 3}
	c := New(reg, src)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.beacons))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.ready))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.shuttingDown))

	src.beacons = 0
	src.ready = true
	src.shuttingDown = true

	assert.Equal(t, 0.0, testutil.ToFloat64(c.beacons))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ready))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.shuttingDown))
}

func TestCollectors_SetPhase(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg, &fakeSource{})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.phase.WithLabelValues("idle")))

	c.SetPhase(shutdown.PhaseDraining)
	for _, p := range shutdown.Phases() {
		want := 0.0
		if p == shutdown.PhaseDraining {
			want = 1
		}
		assert.Equal(t, want, testutil.ToFloat64(c.phase.WithLabelValues(p.String())), p.String())
	}
}

func TestCollectors_RecordProbe(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg, &fakeSource{})

	for range 3 {
		c.RecordProbe("ready", "SERVER_IS_NOT_READY")
	}
	c.RecordProbe("live", "SERVER_IS_NOT_SHUTTING_DOWN")

	assert.Equal(t, 3.0, testutil.ToFloat64(c.probeOutcomes.WithLabelValues("ready", "SERVER_IS_NOT_READY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.probeOutcomes.WithLabelValues("live", "SERVER_IS_NOT_SHUTTING_DOWN")))
}

func TestCollectors_Exposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg, &fakeSource{beacons: 2})

	expected := `
# HELP lifeline_beacons_live Number of in-flight operations tracked by beacons
# TYPE lifeline_beacons_live gauge
lifeline_beacons_live 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "lifeline_beacons_live"))
}

func TestCollectors_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg, &fakeSource{})
	assert.Panics(t, func() { New(reg, &fakeSource{}) })
}

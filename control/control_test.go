package control_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-pim/control"
)

func TestConfigStoreReloadListeners(t *testing.T) {
	cs := control.NewConfigStore(map[string]any{"dispatch.threshold": 64})

	var seen []map[string]any
	cs.OnReload(func(cfg map[string]any) { seen = append(seen, cfg) })

	require.NoError(t, cs.SetConfig(map[string]any{"dispatch.threshold": 128}))
	require.Len(t, seen, 1)
	assert.Equal(t, 128, seen[0]["dispatch.threshold"])
	assert.Equal(t, 128, cs.GetSnapshot()["dispatch.threshold"])

	// listeners get a copy
	seen[0]["dispatch.threshold"] = 1
	assert.Equal(t, 128, cs.GetSnapshot()["dispatch.threshold"])
}

// A listener registered during a reload is only called from the next change.
func TestConfigStoreListenerAddedDuringReload(t *testing.T) {
	cs := control.NewConfigStore(nil)
	var outer, inner int
	cs.OnReload(func(map[string]any) {
		outer++
		if outer == 1 {
			cs.OnReload(func(map[string]any) { inner++ })
		}
	})

	require.NoError(t, cs.SetConfig(map[string]any{"dispatch.max_wait": "1ms"}))
	assert.Equal(t, 1, outer)
	assert.Equal(t, 0, inner)

	require.NoError(t, cs.SetConfig(map[string]any{"dispatch.max_wait": "2ms"}))
	assert.Equal(t, 2, outer)
	assert.Equal(t, 1, inner)
}

func TestConfigStoreValidatorRejects(t *testing.T) {
	cs := control.NewConfigStore(map[string]any{"dispatch.threshold": 64})
	errBad := errors.New("threshold must be positive")
	cs.SetValidator(func(m map[string]any) error {
		if v, _ := m["dispatch.threshold"].(int); v <= 0 {
			return errBad
		}
		return nil
	})
	called := false
	cs.OnReload(func(map[string]any) { called = true })

	err := cs.SetConfig(map[string]any{"dispatch.threshold": 0})
	require.ErrorIs(t, err, errBad)
	assert.False(t, called)
	assert.Equal(t, 64, cs.GetSnapshot()["dispatch.threshold"])
}

func TestControllerProbes(t *testing.T) {
	c := control.NewController(nil)
	c.RegisterDebugProbe("answer", func() any { return 42 })
	c.RegisterDebugProbe("broken", func() any { panic("nope") })

	state := c.DumpState()
	assert.Equal(t, 42, state["answer"])
	assert.Contains(t, state["broken"], "probe panic")
	assert.Contains(t, state, "platform.cpus")
	assert.Contains(t, state, "platform.allowed_cpus")
}

func TestDebugProbeNamesSorted(t *testing.T) {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("b", func() any { return nil })
	dp.RegisterProbe("a", func() any { return nil })
	assert.Equal(t, []string{"a", "b"}, dp.Names())
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := control.NewMetrics(reg)

	m.RecordRequest(control.ResultOK)
	m.RecordRequest(control.ResultOK)
	m.RecordRequest(control.ResultDeviceFault)
	m.RecordDispatch(1, 16)
	m.RecordFault(1)
	m.SetSlots(10, 4)
	m.SetHealthyClusters(3)

	expected := `
# HELP hioload_pim_requests_total Decompression requests by outcome
# TYPE hioload_pim_requests_total counter
hioload_pim_requests_total{result="device_fault"} 1
hioload_pim_requests_total{result="ok"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "hioload_pim_requests_total"))

	expected = `
# HELP hioload_pim_slots_waiting Slots waiting for dispatch
# TYPE hioload_pim_slots_waiting gauge
hioload_pim_slots_waiting 4
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "hioload_pim_slots_waiting"))

	n, err := testutil.GatherAndCount(reg, "hioload_pim_batch_size")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *control.Metrics
	assert.Nil(t, control.NewMetrics(nil))
	assert.NotPanics(t, func() {
		m.RecordRequest(control.ResultOK)
		m.RecordDispatch(0, 1)
		m.RecordFault(0)
		m.SetSlots(1, 1)
		m.SetHealthyClusters(1)
		m.AddCopySeconds(0.1)
	})
}

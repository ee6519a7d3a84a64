package fake_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/klauspost/compress/s2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-pim/api"
	"github.com/momentics/hioload-pim/core/protocol"
	"github.com/momentics/hioload-pim/fake"
	"github.com/momentics/hioload-pim/pool"
)

// body returns the Snappy block of src without its length prefix.
func body(t *testing.T, src []byte) []byte {
	t.Helper()
	f, err := protocol.ParseFrame(s2.EncodeSnappy(nil, src))
	require.NoError(t, err)
	return f.Body
}

func manualRuntime(t *testing.T, lanes int) *fake.Runtime {
	t.Helper()
	cfg := fake.DefaultConfig()
	cfg.Clusters = 2
	cfg.LanesPerCluster = lanes
	cfg.Mode = fake.ModeManual
	rt, err := fake.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	return rt
}

func load(t *testing.T, c *fake.Cluster, plain [][]byte) {
	t.Helper()
	inputs := make([][]byte, len(plain))
	descs := make([]api.LaneDescriptor, len(plain))
	for i, p := range plain {
		inputs[i] = body(t, p)
		descs[i] = api.LaneDescriptor{Slot: uint32(10 + i), InputLen: uint32(len(inputs[i])), OutputLen: uint32(len(p))}
	}
	sp := pool.NewStagingPool(c.Lanes(), c.MaxInputLen(), 0)
	staged, err := sp.Stage(inputs, c.Alignment())
	require.NoError(t, err)
	defer staged.Release()

	require.NoError(t, c.WriteDescriptors(descs))
	require.NoError(t, c.PushInput(staged.Bytes(), staged.Stride()))
}

func TestManualBatchDecodesEveryLane(t *testing.T) {
	rt := manualRuntime(t, 4)
	c := rt.Cluster(0)
	plain := [][]byte{
		bytes.Repeat([]byte("abcd"), 300),
		[]byte("hello accelerator"),
		bytes.Repeat([]byte{7}, 5000),
	}
	load(t, c, plain)
	require.NoError(t, c.Launch())

	st, err := c.Status()
	require.NoError(t, err)
	assert.False(t, st.Done)
	assert.True(t, c.Running())

	require.NoError(t, c.Finish())
	st, err = c.Status()
	require.NoError(t, err)
	assert.True(t, st.Done)

	results := make([]api.LaneResult, c.Lanes())
	require.NoError(t, c.ReadResults(results))
	for i, p := range plain {
		assert.Equal(t, api.ResultOK, results[i].Code, "lane %d", i)
		assert.Equal(t, uint32(10+i), results[i].Slot)
		assert.Equal(t, uint32(len(p)), results[i].OutputLen)
		assert.Greater(t, results[i].Cycles, uint64(0))

		out := make([]byte, len(p))
		require.NoError(t, c.ReadOutput(i, out))
		assert.Equal(t, p, out)
	}
	// unused lane stays zero
	assert.Equal(t, api.LaneResult{}, results[3])
}

func TestCorruptBodyReportsInvalidInput(t *testing.T) {
	rt := manualRuntime(t, 2)
	c := rt.Cluster(1)
	require.NoError(t, c.WriteDescriptors([]api.LaneDescriptor{{Slot: 3, InputLen: 4, OutputLen: 100}}))
	require.NoError(t, c.PushInput([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0, 0, 0, 0}, 8))
	require.NoError(t, c.Launch())
	require.NoError(t, c.Finish())

	results := make([]api.LaneResult, 1)
	require.NoError(t, c.ReadResults(results))
	assert.Equal(t, api.ResultInvalidInput, results[0].Code)
	assert.Equal(t, uint32(3), results[0].Slot)
	assert.Zero(t, results[0].OutputLen)
}

func TestInjectedFault(t *testing.T) {
	rt := manualRuntime(t, 2)
	c := rt.Cluster(0)
	load(t, c, [][]byte{[]byte("x")})
	c.InjectFault(1)
	require.NoError(t, c.Launch())
	require.NoError(t, c.Finish())

	st, err := c.Status()
	require.NoError(t, err)
	assert.True(t, st.Fault)
	assert.False(t, st.Done)
	assert.Equal(t, []int{1}, st.FaultLanes)

	// a faulted cluster refuses new work
	assert.ErrorIs(t, c.WriteDescriptors(nil), api.ErrDeviceFault)
	assert.ErrorIs(t, c.Launch(), api.ErrDeviceFault)
}

func TestBusyClusterRejectsTransfers(t *testing.T) {
	rt := manualRuntime(t, 2)
	c := rt.Cluster(0)
	load(t, c, [][]byte{[]byte("x")})
	require.NoError(t, c.Launch())
	assert.ErrorIs(t, c.WriteDescriptors(nil), fake.ErrClusterBusy)
	assert.ErrorIs(t, c.Launch(), fake.ErrClusterBusy)
	assert.ErrorIs(t, c.ReadResults(make([]api.LaneResult, 1)), fake.ErrNotLaunched)
	assert.Equal(t, 1, c.Launches())
}

func TestPushInputValidatesStride(t *testing.T) {
	rt := manualRuntime(t, 2)
	c := rt.Cluster(0)
	assert.ErrorIs(t, c.PushInput(make([]byte, 6), 6), fake.ErrBadDescriptors)
	assert.ErrorIs(t, c.PushInput(make([]byte, 24), 8), fake.ErrBadDescriptors)
	assert.ErrorIs(t, c.WriteDescriptors(make([]api.LaneDescriptor, 3)), fake.ErrBadDescriptors)
}

func TestAutoModeCompletesOnItsOwn(t *testing.T) {
	cfg := fake.DefaultConfig()
	cfg.Clusters = 1
	cfg.LanesPerCluster = 8
	cfg.Workers = 4
	cfg.Latency = time.Millisecond
	rt, err := fake.New(cfg)
	require.NoError(t, err)
	defer rt.Close()

	c := rt.Cluster(0)
	plain := make([][]byte, 8)
	for i := range plain {
		plain[i] = bytes.Repeat([]byte{byte(i)}, 1000+i)
	}
	load(t, c, plain)
	require.NoError(t, c.Launch())

	require.Eventually(t, func() bool {
		st, err := c.Status()
		return err == nil && st.Done
	}, 5*time.Second, time.Millisecond)

	out := make([]byte, len(plain[5]))
	require.NoError(t, c.ReadOutput(5, out))
	assert.Equal(t, plain[5], out)
}

func TestNewRejectsEmptyTopology(t *testing.T) {
	_, err := fake.New(fake.Config{})
	require.ErrorIs(t, err, api.ErrInvalidArgument)
}

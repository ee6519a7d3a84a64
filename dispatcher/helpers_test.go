package dispatcher

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/s2"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-pim/fake"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}

// payload returns distinct, compressible plaintext for request i.
func payload(i int) []byte {
	return bytes.Repeat([]byte(fmt.Sprintf("row-%05d;", i)), 20+i%37)
}

func frame(plain []byte) []byte {
	return s2.EncodeSnappy(nil, plain)
}

type call struct {
	n   int
	err error
	out []byte
}

// submit runs Decompress in its own goroutine.
func submit(d *Dispatcher, plain []byte) <-chan call {
	ch := make(chan call, 1)
	go func() {
		out := make([]byte, len(plain))
		n, err := d.Decompress(frame(plain), out)
		ch <- call{n: n, err: err, out: out}
	}()
	return ch
}

func newManual(t *testing.T, clusters, lanes int, opts ...Option) (*Dispatcher, *fake.Runtime, *fakeClock) {
	t.Helper()
	cfg := fake.DefaultConfig()
	cfg.Clusters = clusters
	cfg.LanesPerCluster = lanes
	cfg.Mode = fake.ModeManual
	rt, err := fake.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })

	clk := newFakeClock()
	d, err := New(rt, append([]Option{WithClock(clk.Now)}, opts...)...)
	require.NoError(t, err)
	return d, rt, clk
}

func waitStats(t *testing.T, d *Dispatcher, cond func(Stats) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(d.Stats()) }, 5*time.Second, time.Millisecond)
}

func receive(t *testing.T, ch <-chan call) call {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("request did not complete")
		return call{}
	}
}

func requirePending(t *testing.T, ch <-chan call) {
	t.Helper()
	select {
	case c := <-ch:
		t.Fatalf("request completed early: n=%d err=%v", c.n, c.err)
	case <-time.After(20 * time.Millisecond):
	}
}

func checkTable(t *testing.T, d *Dispatcher) {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.NoError(t, d.table.CheckInvariants())
	require.LessOrEqual(t, d.table.Occupied()+d.reserved, d.table.Cap())
}

// Package fake
// Author: momentics <momentics@gmail.com>

package fake

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-pim/api"
)

type clusterState int

const (
	stateIdle clusterState = iota
	stateRunning
	stateDone
	stateFaulted
)

func (s clusterState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRunning:
		return "running"
	case stateDone:
		return "done"
	case stateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Cluster is a fake implementation of api.Cluster.
type Cluster struct {
	rt    *Runtime
	id    int
	lanes int

	mu         sync.Mutex
	state      clusterState
	descs      []api.LaneDescriptor
	input      []byte
	stride     int
	results    []api.LaneResult
	outputs    [][]byte
	faultLanes []int
	launches   int

	// injected behavior
	nextFault []int
	launchErr error
	pushErr   error
	statusErr error
}

var _ api.Cluster = (*Cluster)(nil)

func newCluster(rt *Runtime, id int) *Cluster {
	n := rt.cfg.LanesPerCluster
	return &Cluster{
		rt:      rt,
		id:      id,
		lanes:   n,
		descs:   make([]api.LaneDescriptor, n),
		results: make([]api.LaneResult, n),
		outputs: make([][]byte, n),
	}
}

func (c *Cluster) ID() int           { return c.id }
func (c *Cluster) Lanes() int        { return c.lanes }
func (c *Cluster) Alignment() int    { return c.rt.cfg.Alignment }
func (c *Cluster) MaxInputLen() int  { return c.rt.cfg.MaxInputLen }
func (c *Cluster) MaxOutputLen() int { return c.rt.cfg.MaxOutputLen }

// Status implements api.Cluster.Status.
func (c *Cluster) Status() (api.ClusterStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statusErr != nil {
		return api.ClusterStatus{}, c.statusErr
	}
	st := api.ClusterStatus{
		Done:  c.state == stateDone,
		Fault: c.state == stateFaulted,
	}
	if st.Fault {
		st.FaultLanes = append([]int(nil), c.faultLanes...)
	}
	return st, nil
}

// WriteDescriptors implements api.Cluster.WriteDescriptors.
func (c *Cluster) WriteDescriptors(descs []api.LaneDescriptor) error {
	if len(descs) > c.lanes {
		return fmt.Errorf("%w: %d descriptors for %d lanes", ErrBadDescriptors, len(descs), c.lanes)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writableLocked(); err != nil {
		return err
	}
	n := copy(c.descs, descs)
	clear(c.descs[n:])
	c.state = stateIdle
	return nil
}

// PushInput implements api.Cluster.PushInput. The buffer is copied.
func (c *Cluster) PushInput(buf []byte, stride int) error {
	align := c.rt.cfg.Alignment
	if stride <= 0 || stride%align != 0 || stride > c.rt.cfg.MaxInputLen {
		return fmt.Errorf("%w: stride %d (align %d, max %d)", ErrBadDescriptors, stride, align, c.rt.cfg.MaxInputLen)
	}
	if len(buf) > stride*c.lanes {
		return fmt.Errorf("%w: %d bytes exceed %d lanes of stride %d", ErrBadDescriptors, len(buf), c.lanes, stride)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writableLocked(); err != nil {
		return err
	}
	if c.pushErr != nil {
		err := c.pushErr
		c.pushErr = nil
		return err
	}
	c.input = append(c.input[:0], buf...)
	c.stride = stride
	return nil
}

func (c *Cluster) writableLocked() error {
	if c.rt.closed.Load() {
		return ErrRuntimeClosed
	}
	switch c.state {
	case stateRunning:
		return ErrClusterBusy
	case stateFaulted:
		return fmt.Errorf("fake: cluster %d faulted: %w", c.id, api.ErrDeviceFault)
	}
	return nil
}

// Launch implements api.Cluster.Launch.
func (c *Cluster) Launch() error {
	c.mu.Lock()
	if err := c.writableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.launchErr != nil {
		err := c.launchErr
		c.launchErr = nil
		c.mu.Unlock()
		return err
	}
	c.state = stateRunning
	c.launches++
	descs := append([]api.LaneDescriptor(nil), c.descs...)
	input, stride := c.input, c.stride
	c.mu.Unlock()

	if c.rt.cfg.Mode == ModeAuto {
		c.runAsync(descs, input, stride)
	}
	return nil
}

// runAsync fans lanes out on the executor; the last lane to finish
// completes the batch.
func (c *Cluster) runAsync(descs []api.LaneDescriptor, input []byte, stride int) {
	var remaining atomic.Int32
	remaining.Store(int32(len(descs)))
	for i := range descs {
		lane := i
		err := c.rt.exec.Submit(func() {
			res, out := c.runLane(lane, descs[lane], input, stride)
			c.storeLane(lane, res, out)
			if remaining.Add(-1) == 0 {
				if d := c.rt.cfg.Latency; d > 0 {
					time.AfterFunc(d, c.finishBatch)
				} else {
					c.finishBatch()
				}
			}
		})
		if err != nil {
			// executor gone; lanes from here on never run
			c.failFrom(lane, len(descs))
			return
		}
	}
}

// failFrom faults the running batch on lanes [from, n).
func (c *Cluster) failFrom(from, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateRunning {
		return
	}
	c.state = stateFaulted
	c.faultLanes = make([]int, 0, n-from)
	for i := from; i < n; i++ {
		c.faultLanes = append(c.faultLanes, i)
	}
	c.nextFault = nil
}

func (c *Cluster) storeLane(lane int, res api.LaneResult, out []byte) {
	c.mu.Lock()
	c.results[lane] = res
	c.outputs[lane] = out
	c.mu.Unlock()
}

func (c *Cluster) finishBatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateRunning {
		return
	}
	if c.nextFault != nil {
		c.state = stateFaulted
		c.faultLanes = c.nextFault
		c.nextFault = nil
		return
	}
	c.state = stateDone
}

// Finish runs a launched batch to completion synchronously (manual mode).
func (c *Cluster) Finish() error {
	c.mu.Lock()
	if c.state != stateRunning {
		c.mu.Unlock()
		return ErrNotLaunched
	}
	descs := append([]api.LaneDescriptor(nil), c.descs...)
	input, stride := c.input, c.stride
	c.mu.Unlock()

	for i := range descs {
		res, out := c.runLane(i, descs[i], input, stride)
		c.storeLane(i, res, out)
	}
	c.finishBatch()
	return nil
}

// ReadResults implements api.Cluster.ReadResults.
func (c *Cluster) ReadResults(results []api.LaneResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateDone {
		return ErrNotLaunched
	}
	if len(results) > c.lanes {
		return fmt.Errorf("%w: %d results for %d lanes", ErrBadDescriptors, len(results), c.lanes)
	}
	copy(results, c.results)
	return nil
}

// ReadOutput implements api.Cluster.ReadOutput.
func (c *Cluster) ReadOutput(lane int, dst []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateDone {
		return ErrNotLaunched
	}
	if lane < 0 || lane >= c.lanes {
		return fmt.Errorf("%w: lane %d", ErrBadDescriptors, lane)
	}
	n := int(c.results[lane].OutputLen)
	if len(dst) < n {
		return fmt.Errorf("fake: lane %d output %d bytes into %d: %w", lane, n, len(dst), api.ErrBufferTooSmall)
	}
	copy(dst, c.outputs[lane][:n])
	return nil
}

// InjectFault makes the next launched batch end in a fault on the given lanes.
func (c *Cluster) InjectFault(lanes ...int) {
	c.mu.Lock()
	if lanes == nil {
		lanes = []int{}
	}
	c.nextFault = lanes
	c.mu.Unlock()
}

// SetLaunchError makes the next Launch fail with err.
func (c *Cluster) SetLaunchError(err error) {
	c.mu.Lock()
	c.launchErr = err
	c.mu.Unlock()
}

// SetPushError makes the next PushInput fail with err.
func (c *Cluster) SetPushError(err error) {
	c.mu.Lock()
	c.pushErr = err
	c.mu.Unlock()
}

// SetStatusError makes Status fail with err until cleared with nil.
func (c *Cluster) SetStatusError(err error) {
	c.mu.Lock()
	c.statusErr = err
	c.mu.Unlock()
}

// Launches counts successful launches.
func (c *Cluster) Launches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.launches
}

// Running reports whether a launched batch has not finished yet.
func (c *Cluster) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateRunning
}

// Descriptors returns a copy of the currently programmed lane descriptors.
func (c *Cluster) Descriptors() []api.LaneDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]api.LaneDescriptor(nil), c.descs...)
}

// State returns the cluster state name.
func (c *Cluster) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.String()
}

// File: dispatcher/dispatcher.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Dispatcher batches decompression requests from many goroutines onto a
// fixed set of accelerator clusters. One mutex guards the slot table, the
// per-cluster phase, the policy and the admission queue; runtime calls are
// always made with it released.

package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-pim/api"
	"github.com/momentics/hioload-pim/control"
	"github.com/momentics/hioload-pim/core/concurrency"
	"github.com/momentics/hioload-pim/internal/logger"
	"github.com/momentics/hioload-pim/pool"
)

// request is one caller's decompression job. The submitting goroutine owns
// it; the dispatcher borrows in and out between dispatch and reap.
type request struct {
	in   []byte
	out  []byte
	done chan struct{}
	err  error
}

type phase int

const (
	phaseIdle phase = iota
	phaseDispatched
	phaseFaulted
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseDispatched:
		return "dispatched"
	case phaseFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

type batchEntry struct {
	slot int
	req  *request
}

// clusterState is the dispatcher's view of one cluster. phase and batch are
// written under Dispatcher.mu by the loop goroutine only.
type clusterState struct {
	pos     int
	c       api.Cluster
	phase   phase
	batch   []batchEntry
	batchID string
	results []api.LaneResult
	cycles  []uint64
}

// Dispatcher is the batching front of an accelerator runtime.
type Dispatcher struct {
	rt   api.Runtime
	opts options

	staging      *pool.StagingPool
	ledger       *Ledger
	metrics      *control.Metrics
	maxInputLen  int
	maxOutputLen int

	mu        sync.Mutex
	table     *concurrency.SlotTable[*request]
	clusters  []*clusterState
	healthy   int
	threshold int
	maxWait   time.Duration
	waitStart time.Time
	waiters   *queue.Queue // chan error tickets, FIFO
	reserved  int
	closing   bool
	aborted   bool
	started   bool

	wake      chan struct{}
	abortCh   chan struct{}
	abortOnce sync.Once
	loopDone  chan struct{}
}

// New builds a dispatcher over every cluster of rt. Capacity of the slot
// table is the total lane count.
func New(rt api.Runtime, opts ...Option) (*Dispatcher, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	cl := rt.Clusters()
	if len(cl) == 0 {
		return nil, api.ErrNoClusters
	}

	d := &Dispatcher{
		rt:       rt,
		opts:     o,
		metrics:  o.metrics,
		maxWait:  o.maxWait,
		waiters:  queue.New(),
		wake:     make(chan struct{}, 1),
		abortCh:  make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	capacity, maxLanes := 0, 0
	aligns := make([]int, 0, len(cl))
	minIn, minOut := -1, -1
	ids := make([]int, len(cl))
	lanes := make([]int, len(cl))
	for i, c := range cl {
		n := c.Lanes()
		if n <= 0 {
			return nil, fmt.Errorf("cluster %d reports %d lanes: %w", c.ID(), n, api.ErrInvalidArgument)
		}
		capacity += n
		maxLanes = max(maxLanes, n)
		aligns = append(aligns, c.Alignment())
		if minIn < 0 || c.MaxInputLen() < minIn {
			minIn = c.MaxInputLen()
		}
		if minOut < 0 || c.MaxOutputLen() < minOut {
			minOut = c.MaxOutputLen()
		}
		ids[i], lanes[i] = c.ID(), n
		d.clusters = append(d.clusters, &clusterState{
			pos:     i,
			c:       c,
			results: make([]api.LaneResult, n),
			cycles:  make([]uint64, n),
		})
	}
	// Keep every staged stride within every cluster's input region, whatever
	// alignment the cluster stages with.
	common := pool.CommonAlignment(aligns...)
	d.maxInputLen = minIn / common * common
	d.maxOutputLen = minOut
	if d.maxInputLen <= 0 || d.maxOutputLen <= 0 {
		return nil, fmt.Errorf("cluster regions in=%d out=%d: %w", minIn, minOut, api.ErrInvalidArgument)
	}

	d.table = concurrency.NewSlotTable[*request](capacity)
	d.healthy = len(cl)
	d.threshold = clampThreshold(o.threshold, maxLanes, capacity)
	d.ledger = newLedger(ids, lanes, o.clockHz)

	d.staging = o.staging
	if d.staging == nil || d.staging.MaxLanes() < maxLanes || d.staging.MaxLaneLen() < d.maxInputLen {
		d.staging = pool.NewStagingPool(maxLanes, d.maxInputLen, 1)
	}

	d.metrics.SetHealthyClusters(d.healthy)
	logger.Info("dispatcher created",
		logger.KeyComponent, "dispatcher",
		"clusters", len(cl),
		"capacity", capacity,
		logger.KeyThreshold, d.threshold,
		logger.KeyMaxWait, d.maxWait)
	return d, nil
}

func clampThreshold(n, lanes, capacity int) int {
	if n <= 0 {
		n = lanes * requestsPerLane
	}
	return min(n, capacity)
}

// Start launches the dispatcher loop. Calling it again is a no-op.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return api.ErrDispatcherClosed
	}
	if d.started {
		return nil
	}
	d.started = true
	go d.loop()
	return nil
}

// SetPolicy updates the dispatch trigger at runtime. Threshold is clamped to
// the slot table capacity.
func (d *Dispatcher) SetPolicy(threshold int, maxWait time.Duration) error {
	if threshold <= 0 || maxWait <= 0 {
		return fmt.Errorf("policy threshold=%d max_wait=%s: %w", threshold, maxWait, api.ErrInvalidArgument)
	}
	d.mu.Lock()
	d.threshold = min(threshold, d.table.Cap())
	d.maxWait = maxWait
	d.mu.Unlock()
	d.signal()
	logger.Info("dispatch policy updated",
		logger.KeyComponent, "dispatcher",
		logger.KeyThreshold, threshold,
		logger.KeyMaxWait, maxWait)
	return nil
}

// Close stops admission and drains: the loop keeps dispatching, with the
// threshold ignored, until every admitted request has completed. If ctx
// ends first, all outstanding requests fail with ErrDispatcherClosed.
// Close is idempotent and returns once the loop has exited.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closing {
		d.closing = true
		d.rejectWaitersLocked(api.ErrDispatcherClosed)
		logger.Info("dispatcher closing",
			logger.KeyComponent, "dispatcher",
			logger.KeyOccupied, d.table.Occupied(),
			logger.KeyWaiting, d.table.Waiting())
	}
	started := d.started
	d.mu.Unlock()

	if !started {
		d.abort()
		return nil
	}
	d.signal()
	select {
	case <-d.loopDone:
		return nil
	case <-ctx.Done():
		d.abortOnce.Do(func() { close(d.abortCh) })
		<-d.loopDone
		return fmt.Errorf("dispatcher drain: %w", ctx.Err())
	}
}

// Stats is a snapshot of the dispatcher counters.
type Stats struct {
	Capacity        int           `json:"capacity"`
	Occupied        int           `json:"occupied"`
	Waiting         int           `json:"waiting"`
	InFlight        int           `json:"in_flight"`
	Reserved        int           `json:"reserved"`
	Blocked         int           `json:"blocked"`
	HealthyClusters int           `json:"healthy_clusters"`
	Threshold       int           `json:"threshold"`
	MaxWait         time.Duration `json:"max_wait"`
	Closing         bool          `json:"closing"`
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Capacity:        d.table.Cap(),
		Occupied:        d.table.Occupied(),
		Waiting:         d.table.Waiting(),
		InFlight:        d.table.InFlight(),
		Reserved:        d.reserved,
		Blocked:         d.waiters.Length(),
		HealthyClusters: d.healthy,
		Threshold:       d.threshold,
		MaxWait:         d.maxWait,
		Closing:         d.closing,
	}
}

// Ledger returns the performance report so far.
func (d *Dispatcher) Ledger() LedgerReport {
	return d.ledger.Report()
}

// StagingStats exposes the staging pool counters.
func (d *Dispatcher) StagingStats() api.BufferPoolStats {
	return d.staging.Stats()
}

// MaxFrame returns the largest compressed body and decoded length accepted.
func (d *Dispatcher) MaxFrame() (body, decoded int) {
	return d.maxInputLen, d.maxOutputLen
}

// DumpState returns the slot table cursors and cluster phases for debug probes.
func (d *Dispatcher) DumpState() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	clusters := make([]map[string]any, len(d.clusters))
	for i, cs := range d.clusters {
		clusters[i] = map[string]any{
			"id":       cs.c.ID(),
			"lanes":    cs.c.Lanes(),
			"phase":    cs.phase.String(),
			"batch":    len(cs.batch),
			"batch_id": cs.batchID,
		}
	}
	return map[string]any{
		"table":    d.table.Snapshot(),
		"clusters": clusters,
		"reserved": d.reserved,
		"blocked":  d.waiters.Length(),
		"closing":  d.closing,
	}
}

// signal wakes the loop without blocking.
func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

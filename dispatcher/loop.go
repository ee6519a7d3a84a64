// File: dispatcher/loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The dispatcher loop: poll cluster status, reap finished batches, take
// faulted clusters out of service and launch new batches when the policy
// says so. Only this goroutine talks to the runtime.

package dispatcher

import (
	"time"

	"github.com/google/uuid"

	"github.com/momentics/hioload-pim/affinity"
	"github.com/momentics/hioload-pim/api"
	"github.com/momentics/hioload-pim/internal/logger"
)

const minSleep = 20 * time.Microsecond

func (d *Dispatcher) loop() {
	defer close(d.loopDone)
	if d.opts.cpu >= 0 {
		// Exiting while locked discards the pinned thread.
		if _, err := affinity.PinCurrentGoroutine(d.opts.cpu); err != nil {
			logger.Warn("dispatcher thread not pinned",
				logger.KeyComponent, "dispatcher", "cpu", d.opts.cpu, logger.Err(err))
		}
	}
	logger.Info("dispatcher loop started", logger.KeyComponent, "dispatcher")

	timer := time.NewTimer(d.nextTimeout(d.opts.now()))
	defer timer.Stop()
	for {
		select {
		case <-d.wake:
		case <-timer.C:
		case <-d.abortCh:
			d.abort()
			logger.Warn("dispatcher aborted with outstanding requests", logger.KeyComponent, "dispatcher")
			return
		}
		now := d.opts.now()
		if !d.cycle(now) {
			logger.Info("dispatcher drained", logger.KeyComponent, "dispatcher")
			return
		}
		timer.Reset(d.nextTimeout(d.opts.now()))
	}
}

// nextTimeout is the poll interval while batches are in flight, otherwise
// the time left until the oldest waiting request reaches max wait. Requests
// already past max wait with every cluster busy do not shorten the poll.
func (d *Dispatcher) nextTimeout(now time.Time) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	inFlight := false
	for _, cs := range d.clusters {
		if cs.phase == phaseDispatched {
			inFlight = true
			break
		}
	}
	wait := d.maxWait
	if inFlight {
		wait = d.opts.pollInterval
	}
	if d.table.Waiting() > 0 {
		left := d.waitStart.Add(d.maxWait).Sub(now)
		switch {
		case left > 0:
			wait = min(wait, left)
		case !inFlight:
			wait = 0
		}
	}
	return max(wait, minSleep)
}

// cycle runs one pass of the loop at time now. It returns false once a
// closing dispatcher has nothing left to do.
func (d *Dispatcher) cycle(now time.Time) bool {
	d.mu.Lock()
	waiting := d.table.Waiting()
	shouldDispatch := waiting > 0 &&
		(waiting >= d.threshold || now.Sub(d.waitStart) >= d.maxWait || d.closing)
	active := make([]*clusterState, 0, len(d.clusters))
	for _, cs := range d.clusters {
		if cs.phase != phaseFaulted {
			active = append(active, cs)
		}
	}
	d.mu.Unlock()

	for _, cs := range active {
		st, err := cs.c.Status()
		switch {
		case err != nil:
			d.fault(cs, nil, err)
		case st.Fault:
			d.fault(cs, st.FaultLanes, nil)
		case st.Done && cs.phase == phaseDispatched:
			d.reap(cs)
		}
	}

	if shouldDispatch {
		d.dispatch(now)
	}

	d.mu.Lock()
	occupied, waiting := d.table.Occupied(), d.table.Waiting()
	finished := d.closing && occupied == 0 && d.reserved == 0
	d.mu.Unlock()
	d.metrics.SetSlots(occupied, waiting)
	return !finished
}

// reap collects a finished batch: results and outputs are read outside the
// lock, then every request of the batch completes under it.
func (d *Dispatcher) reap(cs *clusterState) {
	batch := cs.batch
	results := cs.results[:len(batch)]
	if err := cs.c.ReadResults(results); err != nil {
		d.fault(cs, nil, err)
		return
	}
	cycles := cs.cycles[:len(batch)]
	for i, e := range batch {
		res := results[i]
		cycles[i] = res.Cycles
		err := res.Code.Err()
		if err == nil && res.Slot != uint32(e.slot) {
			err = api.NewError(api.ErrCodeDeviceResult, "lane echoed a foreign slot").
				Wrap(api.ErrDeviceFault).
				WithContext("lane", i).
				WithContext("want", e.slot).
				WithContext("got", res.Slot)
		}
		if err == nil && int(res.OutputLen) != len(e.req.out) {
			err = api.NewError(api.ErrCodeDeviceResult, "lane output length mismatch").
				Wrap(api.ErrCorruptInput).
				WithContext("lane", i).
				WithContext("want", len(e.req.out)).
				WithContext("got", res.OutputLen)
		}
		if err == nil && res.OutputLen > 0 {
			if rerr := cs.c.ReadOutput(i, e.req.out); rerr != nil {
				d.fault(cs, []int{i}, rerr)
				return
			}
		}
		e.req.err = err
	}

	d.mu.Lock()
	retired := 0
	for _, e := range batch {
		retired += d.finishLocked(e)
	}
	cs.batch = nil
	cs.batchID = ""
	cs.phase = phaseIdle
	if retired > 0 {
		d.grantLocked()
	}
	d.mu.Unlock()

	d.ledger.recordBatch(cs.pos, cycles)
	if len(batch) > 0 {
		d.signal()
	}
}

// finishLocked publishes a request's result and completes its slot.
// req.err must already be set.
func (d *Dispatcher) finishLocked(e batchEntry) int {
	close(e.req.done)
	return d.table.Complete(e.slot)
}

// dispatch fills every idle cluster from the front of the waiting range.
func (d *Dispatcher) dispatch(now time.Time) {
	for _, cs := range d.clusters {
		d.mu.Lock()
		if cs.phase != phaseIdle || d.table.Waiting() == 0 {
			d.mu.Unlock()
			continue
		}
		idxs := d.table.NextWaiting(cs.c.Lanes())
		d.table.MarkDispatched(len(idxs))
		batch := make([]batchEntry, len(idxs))
		for i, idx := range idxs {
			batch[i] = batchEntry{slot: idx, req: d.table.Get(idx)}
		}
		cs.batch = batch
		cs.batchID = uuid.NewString()
		cs.phase = phaseDispatched
		if d.table.Waiting() > 0 {
			d.waitStart = now
		}
		d.mu.Unlock()

		if err := d.launch(cs, batch); err != nil {
			d.fault(cs, nil, err)
		}
	}
}

// launch stages the batch inputs, programs the lanes and starts the cluster.
func (d *Dispatcher) launch(cs *clusterState, batch []batchEntry) error {
	inputs := make([][]byte, len(batch))
	descs := make([]api.LaneDescriptor, len(batch))
	for i, e := range batch {
		inputs[i] = e.req.in
		descs[i] = api.LaneDescriptor{
			Slot:      uint32(e.slot),
			InputLen:  uint32(len(e.req.in)),
			OutputLen: uint32(len(e.req.out)),
		}
	}
	staged, err := d.staging.Stage(inputs, cs.c.Alignment())
	if err != nil {
		return err
	}
	defer staged.Release()
	d.ledger.addCopyTime(staged.CopyTime())
	d.metrics.AddCopySeconds(staged.CopyTime().Seconds())

	if err := cs.c.WriteDescriptors(descs); err != nil {
		return err
	}
	if err := cs.c.PushInput(staged.Bytes(), staged.Stride()); err != nil {
		return err
	}
	if err := cs.c.Launch(); err != nil {
		return err
	}
	d.metrics.RecordDispatch(cs.c.ID(), len(batch))
	logger.Debug("batch launched",
		logger.KeyComponent, "dispatcher",
		logger.ClusterID(cs.c.ID()),
		logger.BatchID(cs.batchID),
		logger.KeyBatchSize, len(batch),
		"stride", staged.Stride())
	return nil
}

// fault takes a cluster out of service for good. Its in-flight requests
// fail with ErrDeviceFault; when no cluster is left, so do the waiting ones.
func (d *Dispatcher) fault(cs *clusterState, lanes []int, cause error) {
	id := cs.c.ID()
	ferr := api.NewError(api.ErrCodeDeviceFault, "cluster fault").
		Wrap(api.ErrDeviceFault).
		WithContext("cluster", id)
	if len(lanes) > 0 {
		ferr.WithContext("lanes", lanes)
	}
	if cause != nil {
		ferr.WithContext("cause", cause.Error())
	}

	d.mu.Lock()
	if cs.phase == phaseFaulted {
		d.mu.Unlock()
		return
	}
	failed := len(cs.batch)
	retired := 0
	for _, e := range cs.batch {
		e.req.err = ferr
		retired += d.finishLocked(e)
	}
	cs.batch = nil
	cs.phase = phaseFaulted
	d.healthy--
	healthy := d.healthy
	if healthy == 0 {
		retired += d.failWaitingLocked(errNoHealthyClusters)
		d.rejectWaitersLocked(errNoHealthyClusters)
	} else if retired > 0 {
		d.grantLocked()
	}
	d.mu.Unlock()

	logger.Error("cluster fault",
		logger.KeyComponent, "dispatcher",
		logger.ClusterID(id),
		logger.Lanes(lanes),
		"failed_requests", failed,
		"healthy_clusters", healthy,
		logger.Err(cause))
	d.metrics.RecordFault(id)
	d.metrics.SetHealthyClusters(healthy)
}

// failWaitingLocked fails every request not yet dispatched.
func (d *Dispatcher) failWaitingLocked(err error) int {
	idxs := d.table.NextWaiting(d.table.Waiting())
	d.table.MarkDispatched(len(idxs))
	retired := 0
	for _, idx := range idxs {
		req := d.table.Get(idx)
		req.err = err
		retired += d.finishLocked(batchEntry{slot: idx, req: req})
	}
	return retired
}

// abort fails everything still outstanding with ErrDispatcherClosed.
func (d *Dispatcher) abort() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.aborted = true
	for _, cs := range d.clusters {
		for _, e := range cs.batch {
			e.req.err = api.ErrDispatcherClosed
			d.finishLocked(e)
		}
		cs.batch = nil
		if cs.phase == phaseDispatched {
			cs.phase = phaseIdle
		}
	}
	d.failWaitingLocked(api.ErrDispatcherClosed)
	// Submitters holding a granted slot see aborted and back out.
	d.rejectWaitersLocked(api.ErrDispatcherClosed)
}

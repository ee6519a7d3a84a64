// File: dispatcher/submit.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package dispatcher

import (
	"errors"

	"github.com/momentics/hioload-pim/api"
	"github.com/momentics/hioload-pim/control"
	"github.com/momentics/hioload-pim/core/protocol"
)

var errNoHealthyClusters = api.NewError(api.ErrCodeDeviceFault, "no healthy clusters left").Wrap(api.ErrDeviceFault)

// Decompress decodes one length-prefixed Snappy frame into out and returns
// the decompressed length. It blocks until a cluster has processed the
// request, and while the slot table is full. Header and size errors are
// returned before the request touches the shared queue. Safe for
// concurrent use.
func (d *Dispatcher) Decompress(compressed, out []byte) (int, error) {
	f, err := protocol.ParseFrame(compressed)
	if err != nil {
		d.metrics.RecordRequest(control.ResultRejected)
		return 0, err
	}
	n := int(f.DecodedLen)
	if n == 0 {
		return 0, nil
	}
	if len(out) < n {
		d.metrics.RecordRequest(control.ResultRejected)
		return 0, api.NewError(api.ErrCodeInvalidArgument, "output buffer shorter than decoded length").
			Wrap(api.ErrBufferTooSmall).
			WithContext("decoded", n).
			WithContext("buffer", len(out))
	}
	if len(f.Body) > d.maxInputLen || n > d.maxOutputLen {
		d.metrics.RecordRequest(control.ResultRejected)
		return 0, api.NewError(api.ErrCodeInvalidArgument, "frame does not fit a lane").
			Wrap(api.ErrFrameTooLarge).
			WithContext("body", len(f.Body)).
			WithContext("decoded", n)
	}

	req := &request{
		in:   f.Body,
		out:  out[:n],
		done: make(chan struct{}),
	}
	if err := d.enqueue(req); err != nil {
		d.metrics.RecordRequest(resultLabel(err))
		return 0, err
	}
	<-req.done
	d.metrics.RecordRequest(resultLabel(req.err))
	if req.err != nil {
		return 0, req.err
	}
	return n, nil
}

// enqueue claims a slot for req, waiting in FIFO order behind earlier
// blocked submitters when the table is full.
func (d *Dispatcher) enqueue(req *request) error {
	d.mu.Lock()
	if err := d.admitErrLocked(); err != nil {
		d.mu.Unlock()
		return err
	}
	if d.table.Occupied()+d.reserved >= d.table.Cap() || d.waiters.Length() > 0 {
		ticket := make(chan error, 1)
		d.waiters.Add(ticket)
		d.mu.Unlock()

		if err := <-ticket; err != nil {
			return err
		}

		d.mu.Lock()
		d.reserved--
		// A closing dispatcher still honors slots granted before Close.
		if d.aborted || d.healthy == 0 {
			err := d.admitErrLocked()
			d.grantLocked()
			d.mu.Unlock()
			return err
		}
	}

	if _, ok := d.table.TryClaim(req); !ok {
		d.mu.Unlock()
		panic("dispatcher: slot table full after admission")
	}
	if d.table.Waiting() == 1 {
		d.waitStart = d.opts.now()
	}
	occupied, waiting := d.table.Occupied(), d.table.Waiting()
	d.mu.Unlock()

	d.metrics.SetSlots(occupied, waiting)
	d.signal()
	return nil
}

func (d *Dispatcher) admitErrLocked() error {
	switch {
	case d.closing || d.aborted:
		return api.ErrDispatcherClosed
	case d.healthy == 0:
		return errNoHealthyClusters
	}
	return nil
}

// grantLocked hands each free, unreserved slot to the oldest blocked submitter.
func (d *Dispatcher) grantLocked() {
	for d.waiters.Length() > 0 && d.table.Occupied()+d.reserved < d.table.Cap() {
		ticket := d.waiters.Remove().(chan error)
		d.reserved++
		ticket <- nil
	}
}

// rejectWaitersLocked fails every blocked submitter that has no slot yet.
func (d *Dispatcher) rejectWaitersLocked(err error) {
	for d.waiters.Length() > 0 {
		d.waiters.Remove().(chan error) <- err
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return control.ResultOK
	case errors.Is(err, api.ErrDispatcherClosed):
		return control.ResultClosed
	case errors.Is(err, api.ErrDeviceFault):
		return control.ResultDeviceFault
	case errors.Is(err, api.ErrBufferTooSmall):
		return control.ResultTooSmall
	case errors.Is(err, api.ErrCorruptInput):
		return control.ResultCorrupt
	default:
		return control.ResultRejected
	}
}

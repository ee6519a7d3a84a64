// Package pool
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// StagedBatch is one dispatch worth of lane inputs laid out at a fixed
// stride. It is NOT thread-safe; the dispatcher owns it from Stage to Release.

package pool

import "time"

// StagedBatch is a staged, stride-aligned copy of lane inputs.
type StagedBatch struct {
	buf      []byte
	stride   int
	lanes    int
	copyTime time.Duration
	pool     *StagingPool
}

// Bytes returns the staged region, lanes*stride bytes long.
func (b *StagedBatch) Bytes() []byte {
	return b.buf
}

// Stride returns the per-lane stride in bytes.
func (b *StagedBatch) Stride() int {
	return b.stride
}

// Lanes returns the number of staged lanes.
func (b *StagedBatch) Lanes() int {
	return b.lanes
}

// Lane returns a view of lane i including its padding.
func (b *StagedBatch) Lane(i int) []byte {
	return b.buf[i*b.stride : (i+1)*b.stride]
}

// CopyTime is the time spent copying inputs into the staging buffer.
func (b *StagedBatch) CopyTime() time.Duration {
	return b.copyTime
}

// Release hands the buffer back to its pool. Calling it twice is a no-op.
func (b *StagedBatch) Release() {
	if b.buf == nil {
		return
	}
	b.pool.Release(b.buf)
	b.buf = nil
}

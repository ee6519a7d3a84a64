// File: pool/staging_pool.go
// Package pool implements reusable staging memory for batch dispatch.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-pim/api"
)

// StagingPool recycles fixed-size scratch buffers sized for the worst case
// dispatch: maxLanes lanes of maxLaneLen bytes each. Free buffers sit in a
// FIFO so reuse spreads evenly over the preallocated set.
type StagingPool struct {
	maxLanes   int
	maxLaneLen int
	bufSize    int

	mu   sync.Mutex
	free *queue.Queue

	totalAlloc atomic.Int64
	totalFree  atomic.Int64
	inUse      atomic.Int64
	reused     atomic.Int64
}

var _ api.StagingPool = (*StagingPool)(nil)

// NewStagingPool creates a pool and preallocates prealloc buffers.
func NewStagingPool(maxLanes, maxLaneLen, prealloc int) *StagingPool {
	if maxLanes <= 0 {
		maxLanes = 1
	}
	if maxLaneLen <= 0 {
		maxLaneLen = 1
	}
	p := &StagingPool{
		maxLanes:   maxLanes,
		maxLaneLen: maxLaneLen,
		bufSize:    maxLanes * maxLaneLen,
		free:       queue.New(),
	}
	for i := 0; i < prealloc; i++ {
		p.free.Add(make([]byte, p.bufSize))
		p.totalAlloc.Add(1)
	}
	return p
}

// MaxLanes returns the lane count a single staged batch may hold.
func (p *StagingPool) MaxLanes() int { return p.maxLanes }

// MaxLaneLen returns the largest per-lane stride.
func (p *StagingPool) MaxLaneLen() int { return p.maxLaneLen }

// Acquire returns a scratch buffer of exactly n bytes.
func (p *StagingPool) Acquire(n int) ([]byte, error) {
	if n < 0 || n > p.bufSize {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "staging request exceeds buffer size").
			Wrap(api.ErrFrameTooLarge).
			WithContext("requested", n).
			WithContext("limit", p.bufSize)
	}
	var buf []byte
	p.mu.Lock()
	if p.free.Length() > 0 {
		buf = p.free.Remove().([]byte)
	}
	p.mu.Unlock()

	if buf != nil {
		p.reused.Add(1)
	} else {
		buf = make([]byte, p.bufSize)
		p.totalAlloc.Add(1)
	}
	p.inUse.Add(1)
	return buf[:n], nil
}

// Release returns a buffer obtained from Acquire. Foreign buffers are ignored.
func (p *StagingPool) Release(buf []byte) {
	if cap(buf) != p.bufSize {
		return
	}
	p.mu.Lock()
	p.free.Add(buf[:p.bufSize])
	p.mu.Unlock()
	p.inUse.Add(-1)
	p.totalFree.Add(1)
}

// Stats exposes allocation counters.
func (p *StagingPool) Stats() api.BufferPoolStats {
	return api.BufferPoolStats{
		TotalAlloc: p.totalAlloc.Load(),
		TotalFree:  p.totalFree.Load(),
		InUse:      p.inUse.Load(),
		Reused:     p.reused.Load(),
	}
}

// Stage copies inputs into one scratch buffer, lane i at offset i*stride,
// where stride is the longest input rounded up to align. Padding is zeroed.
func (p *StagingPool) Stage(inputs [][]byte, align int) (*StagedBatch, error) {
	if len(inputs) == 0 || len(inputs) > p.maxLanes {
		return nil, fmt.Errorf("stage %d lanes (max %d): %w", len(inputs), p.maxLanes, api.ErrInvalidArgument)
	}
	if align <= 0 {
		align = 1
	}
	maxLen := 0
	for _, in := range inputs {
		if len(in) > maxLen {
			maxLen = len(in)
		}
	}
	stride := AlignUp(maxLen, align)
	if stride == 0 {
		stride = align
	}
	if stride > p.maxLaneLen {
		return nil, fmt.Errorf("stage stride %d (max %d): %w", stride, p.maxLaneLen, api.ErrFrameTooLarge)
	}

	start := time.Now()
	buf, err := p.Acquire(stride * len(inputs))
	if err != nil {
		return nil, err
	}
	for i, in := range inputs {
		lane := buf[i*stride : (i+1)*stride]
		n := copy(lane, in)
		clear(lane[n:])
	}
	return &StagedBatch{
		buf:      buf,
		stride:   stride,
		lanes:    len(inputs),
		copyTime: time.Since(start),
		pool:     p,
	}, nil
}

// CommonAlignment returns the least common multiple of aligns. A lane length
// that is a multiple of it stays within bounds when aligned up with any of
// them.
func CommonAlignment(aligns ...int) int {
	l := 1
	for _, a := range aligns {
		if a <= 1 {
			continue
		}
		g, b := l, a
		for b != 0 {
			g, b = b, g%b
		}
		l = l / g * a
	}
	return l
}

// AlignUp rounds n up to the next multiple of align.
func AlignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

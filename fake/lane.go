// Package fake
// Author: momentics <momentics@gmail.com>

package fake

import (
	"github.com/klauspost/compress/s2"

	"github.com/momentics/hioload-pim/api"
	"github.com/momentics/hioload-pim/core/protocol"
)

// Simulated lane cost model, in device cycles.
const (
	laneSetupCycles    = 2_000
	cyclesPerInputByte = 4
	cyclesPerOutByte   = 10
)

// runLane executes one lane of a batch: it decodes the lane's Snappy body
// into a lane-owned output region and reports the result code and cycles.
func (c *Cluster) runLane(lane int, d api.LaneDescriptor, input []byte, stride int) (api.LaneResult, []byte) {
	res := api.LaneResult{Slot: d.Slot}
	if d.InputLen == 0 && d.OutputLen == 0 {
		return res, nil
	}
	res.Cycles = laneSetupCycles + cyclesPerInputByte*uint64(d.InputLen)

	start := lane * stride
	end := start + int(d.InputLen)
	if int(d.InputLen) > stride || end > len(input) {
		res.Code = api.ResultInvalidInput
		return res, nil
	}
	if int(d.OutputLen) > c.rt.cfg.MaxOutputLen {
		res.Code = api.ResultBufferTooSmall
		return res, nil
	}

	// The lane sees a bare body; the block decoder wants the length prefix back.
	block := protocol.AppendLengthPrefix(make([]byte, 0, protocol.MaxLengthPrefixBytes+int(d.InputLen)), d.OutputLen)
	block = append(block, input[start:end]...)
	n, err := s2.DecodedLen(block)
	if err != nil || n != int(d.OutputLen) {
		res.Code = api.ResultInvalidInput
		return res, nil
	}

	dst := c.laneBuffer(lane, n)
	out, err := s2.Decode(dst, block)
	if err != nil {
		res.Code = api.ResultInvalidInput
		return res, nil
	}
	res.OutputLen = uint32(len(out))
	res.Cycles += cyclesPerOutByte * uint64(len(out))
	return res, out
}

// laneBuffer returns the lane's output region resized to n, reusing the
// previous allocation when it is large enough.
func (c *Cluster) laneBuffer(lane, n int) []byte {
	c.mu.Lock()
	buf := c.outputs[lane]
	c.mu.Unlock()
	if cap(buf) < n {
		return make([]byte, n)
	}
	return buf[:n]
}

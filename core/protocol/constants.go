// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Frame wire constants

package protocol

const (
	// MaxLengthPrefixBytes bounds the varint header: 5 x 7 bits covers uint32.
	MaxLengthPrefixBytes = 5

	// Bit masks
	ContinuationBit = 0x80
	PayloadMask     = 0x7F
	PayloadBits     = 7

	// lastByteMax is the largest fifth byte that still fits in 32 bits.
	lastByteMax = 0x0F
)

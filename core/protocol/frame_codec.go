// File: core/protocol/frame_codec.go
// Package protocol implements the length-prefixed frame codec.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"fmt"

	"github.com/momentics/hioload-pim/api"
)

// Frame is a zero-copy view of one compressed block.
type Frame struct {
	// DecodedLen is the decompressed length announced by the header.
	DecodedLen uint32
	// HeaderLen is the number of prefix bytes consumed.
	HeaderLen int
	// Body aliases the caller's buffer past the header.
	Body []byte
}

// DecodeLengthPrefix reads the varint length header at the start of buf.
// It never reads past len(buf). Five bytes with the continuation flag still
// set, or a fifth byte carrying bits above 2^32, is api.ErrMalformedHeader;
// running out of bytes first is api.ErrTruncatedInput.
func DecodeLengthPrefix(buf []byte) (uint32, int, error) {
	var value uint32
	for i := 0; i < MaxLengthPrefixBytes; i++ {
		if i >= len(buf) {
			return 0, 0, fmt.Errorf("length prefix after %d bytes: %w", i, api.ErrTruncatedInput)
		}
		b := buf[i]
		if i == MaxLengthPrefixBytes-1 && b > lastByteMax {
			return 0, 0, fmt.Errorf("length prefix overflows uint32: %w", api.ErrMalformedHeader)
		}
		value |= uint32(b&PayloadMask) << (PayloadBits * i)
		if b&ContinuationBit == 0 {
			return value, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("length prefix exceeds %d bytes: %w", MaxLengthPrefixBytes, api.ErrMalformedHeader)
}

// ParseFrame splits raw into header value and body without copying.
func ParseFrame(raw []byte) (Frame, error) {
	n, hdr, err := DecodeLengthPrefix(raw)
	if err != nil {
		return Frame{}, err
	}
	return Frame{DecodedLen: n, HeaderLen: hdr, Body: raw[hdr:]}, nil
}

// LengthPrefixSize returns how many bytes AppendLengthPrefix emits for v.
func LengthPrefixSize(v uint32) int {
	n := 1
	for v >= ContinuationBit {
		v >>= PayloadBits
		n++
	}
	return n
}

// AppendLengthPrefix appends the varint encoding of v to dst.
func AppendLengthPrefix(dst []byte, v uint32) []byte {
	for v >= ContinuationBit {
		dst = append(dst, byte(v)|ContinuationBit)
		v >>= PayloadBits
	}
	return append(dst, byte(v))
}

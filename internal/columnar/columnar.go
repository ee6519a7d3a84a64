// Package columnar produces synthetic column stripes for the bench front
// end: int64 values stored little-endian, framed as length-prefixed Snappy
// blocks, with the expected sum and digest of each block.
package columnar

import (
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/s2"
)

// Block is one compressed stripe of a single int64 column.
type Block struct {
	Index   int
	Rows    int
	Frame   []byte // varint decoded length + Snappy body
	Sum     int64
	Digest  uint64 // xxhash of the plain column bytes
	RawSize int
}

// Generate builds blocks of rows values each. Values come in short runs
// so the stripes compress the way sorted or low-cardinality columns do.
func Generate(seed int64, blocks, rows int) []Block {
	rng := rand.New(rand.NewSource(seed))
	out := make([]Block, blocks)
	raw := make([]byte, rows*8)
	for b := range out {
		var sum int64
		var v int64
		for r := 0; r < rows; r++ {
			if r == 0 || rng.Intn(8) == 0 {
				v = rng.Int63n(1 << 20)
			}
			binary.LittleEndian.PutUint64(raw[r*8:], uint64(v))
			sum += v
		}
		out[b] = Block{
			Index:   b,
			Rows:    rows,
			Frame:   s2.EncodeSnappy(nil, raw),
			Sum:     sum,
			Digest:  xxhash.Sum64(raw),
			RawSize: len(raw),
		}
	}
	return out
}

// SumColumn adds up a decoded stripe.
func SumColumn(raw []byte) (int64, error) {
	if len(raw)%8 != 0 {
		return 0, fmt.Errorf("column stripe of %d bytes is not a multiple of 8", len(raw))
	}
	var sum int64
	for i := 0; i < len(raw); i += 8 {
		sum += int64(binary.LittleEndian.Uint64(raw[i:]))
	}
	return sum, nil
}

// Verify checks a decoded stripe against the block it came from.
func (b Block) Verify(raw []byte) error {
	if len(raw) != b.RawSize {
		return fmt.Errorf("block %d: decoded %d bytes, want %d", b.Index, len(raw), b.RawSize)
	}
	if d := xxhash.Sum64(raw); d != b.Digest {
		return fmt.Errorf("block %d: digest %016x, want %016x", b.Index, d, b.Digest)
	}
	return nil
}

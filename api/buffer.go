// Package api
// Author: momentics
//
// Staging memory contracts. Staging buffers hold one dispatch worth of
// per-lane input and are recycled across dispatches.

package api

// StagingPool hands out reusable scratch buffers for batch staging.
type StagingPool interface {
	// Acquire returns a scratch buffer of exactly n bytes.
	Acquire(n int) ([]byte, error)

	// Release returns a buffer to the pool; it must not be used afterwards.
	Release(buf []byte)

	// Stats exposes resource/accounting metrics for observability.
	Stats() BufferPoolStats
}

// BufferPoolStats aggregates buffer allocation/reuse stats.
type BufferPoolStats struct {
	TotalAlloc int64
	TotalFree  int64
	InUse      int64
	Reused     int64
}

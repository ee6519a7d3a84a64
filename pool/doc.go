// Package pool
// Author: momentics <momentics@gmail.com>
//
// Staging memory for batch dispatch.
// Scratch buffers are sized for the worst case batch, recycled through a FIFO
// free list and carved into per-lane regions at an aligned stride.
// See staging_pool.go and staged_batch.go for implementation details.
package pool

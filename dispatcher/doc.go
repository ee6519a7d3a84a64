// Package dispatcher
// Author: momentics <momentics@gmail.com>
//
// Batching dispatcher for accelerator-offloaded Snappy decompression.
// Callers submit length-prefixed frames through Decompress and block; a
// single loop goroutine groups waiting requests into per-cluster batches
// when either enough requests wait or the oldest one has waited long
// enough, launches them, and matches lane results back to callers.
// Completions may arrive in any order; slots are recycled strictly in
// submission order.
package dispatcher

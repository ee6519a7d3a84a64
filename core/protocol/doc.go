// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Implements the frame wire format consumed by the hioload-pim dispatcher.
//
// Every compressed block starts with a little-endian base-128 varint (1-5
// bytes, continuation flag in bit 7) carrying the exact decompressed length,
// followed by the compressed body that is shipped to a device lane.
//
// Includes:
//   - Bounds-checked length prefix decoding with distinct overflow and
//     truncation errors
//   - Prefix encoding for producers and tests
//   - Zero-copy frame splitting (header value + body view)
package protocol

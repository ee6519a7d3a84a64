// Package control
// Author: momentics <momentics@gmail.com>
//
// Hot-reload, runtime metrics, configuration control, and debug introspection layer.
//
// Provides concurrent-safe state handling primitives including:
//   - Snapshot config reads with validated updates
//   - Reload listeners that push dispatch policy changes
//   - Prometheus collectors for request, batch and cluster health
//   - Debug probe registration and state export
package control

// File: api/control.go
// Package api defines the Control interface.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Control manages the dynamic dispatch policy and runtime introspection.
type Control interface {
	GetConfig() map[string]any
	SetConfig(cfg map[string]any) error
	// OnReload registers a hook receiving the merged config after each change.
	OnReload(fn func(cfg map[string]any))
	DumpState() map[string]any
	RegisterDebugProbe(name string, fn func() any)
}

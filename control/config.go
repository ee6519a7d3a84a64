// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe configuration store with dynamic update and hot-reload propagation.

package control

import (
	"slices"
	"sync"
)

// ConfigStore is a dynamic key/value map with snapshot reads, an optional
// validator and reload listeners.
type ConfigStore struct {
	mu        sync.RWMutex
	config    map[string]any
	validate  func(merged map[string]any) error
	listeners []func(cfg map[string]any)
}

// NewConfigStore initializes a store seeded with initial values.
func NewConfigStore(initial map[string]any) *ConfigStore {
	cs := &ConfigStore{config: make(map[string]any, len(initial))}
	for k, v := range initial {
		cs.config[k] = v
	}
	return cs
}

// GetSnapshot returns a copy of all config values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cloneMap(cs.config)
}

// SetValidator installs a check run against the merged config before it is
// committed.
func (cs *ConfigStore) SetValidator(fn func(merged map[string]any) error) {
	cs.mu.Lock()
	cs.validate = fn
	cs.mu.Unlock()
}

// SetConfig merges new values, validates the result and notifies listeners
// with the committed snapshot. On validation failure nothing changes.
func (cs *ConfigStore) SetConfig(newCfg map[string]any) error {
	cs.mu.Lock()
	merged := cloneMap(cs.config)
	for k, v := range newCfg {
		merged[k] = v
	}
	if cs.validate != nil {
		if err := cs.validate(merged); err != nil {
			cs.mu.Unlock()
			return err
		}
	}
	cs.config = merged
	listeners := slices.Clone(cs.listeners)
	cs.mu.Unlock()

	for _, fn := range listeners {
		fn(cloneMap(merged))
	}
	return nil
}

// OnReload registers a listener called synchronously after each change.
func (cs *ConfigStore) OnReload(fn func(cfg map[string]any)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

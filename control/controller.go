// control/controller.go
// Author: momentics <momentics@gmail.com>
//
// Controller joins the config store and the probe registry behind api.Control.

package control

import "github.com/momentics/hioload-pim/api"

// Controller is the runtime control surface of one facade instance.
type Controller struct {
	config *ConfigStore
	probes *DebugProbes
}

var _ api.Control = (*Controller)(nil)

// NewController builds a controller seeded with initial config values and
// the platform probes.
func NewController(initial map[string]any) *Controller {
	c := &Controller{
		config: NewConfigStore(initial),
		probes: NewDebugProbes(),
	}
	RegisterPlatformProbes(c.probes)
	return c
}

func (c *Controller) GetConfig() map[string]any { return c.config.GetSnapshot() }

func (c *Controller) SetConfig(cfg map[string]any) error { return c.config.SetConfig(cfg) }

func (c *Controller) OnReload(fn func(cfg map[string]any)) { c.config.OnReload(fn) }

// SetValidator forwards to the config store.
func (c *Controller) SetValidator(fn func(merged map[string]any) error) {
	c.config.SetValidator(fn)
}

func (c *Controller) DumpState() map[string]any { return c.probes.DumpState() }

func (c *Controller) RegisterDebugProbe(name string, fn func() any) {
	c.probes.RegisterProbe(name, fn)
}

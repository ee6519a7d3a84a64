// File: facade/hioload.go
// Unified facade layer for hioload-pim.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// PIM is the process-wide init/deinit object. It owns the dispatcher, the
// metrics registry and the control surface, and optionally the runtime
// itself. Dispatch threshold and max wait are hot-reloadable through
// Control().SetConfig.

package facade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cast"

	"github.com/momentics/hioload-pim/api"
	"github.com/momentics/hioload-pim/control"
	"github.com/momentics/hioload-pim/dispatcher"
	"github.com/momentics/hioload-pim/fake"
	"github.com/momentics/hioload-pim/internal/logger"
	"github.com/momentics/hioload-pim/pool"
)

// Control keys understood by the reload hook.
const (
	KeyThreshold = "dispatch.threshold"
	KeyMaxWait   = "dispatch.max_wait"
)

// PIM aggregates the dispatcher and its supporting services.
// It implements api.GracefulShutdown.
type PIM struct {
	config     *Config
	rt         api.Runtime
	ownRuntime bool
	registry   *prometheus.Registry
	metrics    *control.Metrics
	control    *control.Controller
	disp       *dispatcher.Dispatcher

	mu      sync.Mutex
	started bool
	closed  bool
}

var _ api.GracefulShutdown = (*PIM)(nil)

// New wires a facade over rt. When rt is nil a simulated runtime is built
// from cfg.Runtime and closed again by Shutdown.
func New(cfg *Config, rt api.Runtime) (*PIM, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &PIM{config: cfg, rt: rt, registry: prometheus.NewRegistry()}
	if p.rt == nil {
		frt, err := fake.New(cfg.fakeConfig())
		if err != nil {
			return nil, fmt.Errorf("runtime init failure: %w", err)
		}
		p.rt, p.ownRuntime = frt, true
	}
	if cfg.Metrics.Enabled {
		p.metrics = control.NewMetrics(p.registry)
	}

	opts := []dispatcher.Option{
		dispatcher.WithThreshold(cfg.Dispatch.Threshold),
		dispatcher.WithMaxWait(cfg.Dispatch.MaxWait),
		dispatcher.WithPollInterval(cfg.Dispatch.PollInterval),
		dispatcher.WithMetrics(p.metrics),
		dispatcher.WithCPU(cfg.Dispatch.CPU),
		dispatcher.WithClockHz(cfg.Dispatch.ClockHz),
	}
	if sp := stagingFor(p.rt, cfg.Dispatch.StagingPrealloc); sp != nil {
		opts = append(opts, dispatcher.WithStagingPool(sp))
	}
	disp, err := dispatcher.New(p.rt, opts...)
	if err != nil {
		p.closeRuntime()
		return nil, fmt.Errorf("dispatcher init failure: %w", err)
	}
	p.disp = disp

	st := disp.Stats()
	p.control = control.NewController(map[string]any{
		KeyThreshold: st.Threshold,
		KeyMaxWait:   st.MaxWait,
	})
	p.control.SetValidator(func(merged map[string]any) error {
		_, _, err := policyFrom(merged)
		return err
	})
	p.control.OnReload(p.applyPolicy)
	p.control.RegisterDebugProbe("dispatcher.state", func() any { return disp.DumpState() })
	p.control.RegisterDebugProbe("dispatcher.stats", func() any { return disp.Stats() })
	p.control.RegisterDebugProbe("staging.stats", func() any { return disp.StagingStats() })
	return p, nil
}

// stagingFor preallocates a staging pool sized for the widest cluster.
func stagingFor(rt api.Runtime, prealloc int) *pool.StagingPool {
	if prealloc <= 0 {
		return nil
	}
	lanes, laneLen := 0, -1
	var aligns []int
	for _, c := range rt.Clusters() {
		lanes = max(lanes, c.Lanes())
		aligns = append(aligns, c.Alignment())
		if laneLen < 0 || c.MaxInputLen() < laneLen {
			laneLen = c.MaxInputLen()
		}
	}
	align := pool.CommonAlignment(aligns...)
	laneLen = laneLen / align * align
	if lanes <= 0 || laneLen <= 0 {
		return nil
	}
	return pool.NewStagingPool(lanes, laneLen, prealloc)
}

// policyFrom extracts and checks the reloadable dispatch policy.
func policyFrom(cfg map[string]any) (int, time.Duration, error) {
	threshold, err := cast.ToIntE(cfg[KeyThreshold])
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", KeyThreshold, err)
	}
	maxWait, err := cast.ToDurationE(cfg[KeyMaxWait])
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", KeyMaxWait, err)
	}
	if threshold <= 0 || maxWait <= 0 {
		return 0, 0, fmt.Errorf("dispatch policy threshold=%d max_wait=%s: %w",
			threshold, maxWait, api.ErrInvalidArgument)
	}
	return threshold, maxWait, nil
}

func (p *PIM) applyPolicy(cfg map[string]any) {
	threshold, maxWait, err := policyFrom(cfg)
	if err == nil {
		err = p.disp.SetPolicy(threshold, maxWait)
	}
	if err != nil {
		logger.Warn("dispatch policy not applied", logger.KeyComponent, "facade", logger.Err(err))
	}
}

// Start launches the dispatcher loop. Subsequent calls have no effect.
func (p *PIM) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return api.ErrDispatcherClosed
	}
	if p.started {
		return nil
	}
	if err := p.disp.Start(); err != nil {
		return err
	}
	p.started = true
	logger.Info("facade started",
		logger.KeyComponent, "facade",
		"clusters", len(p.rt.Clusters()),
		"capacity", p.disp.Stats().Capacity)
	return nil
}

// Decompress decodes one length-prefixed Snappy frame into out and blocks
// until the result is ready.
func (p *PIM) Decompress(compressed, out []byte) (int, error) {
	return p.disp.Decompress(compressed, out)
}

// Stop is Shutdown bounded by the configured shutdown timeout.
func (p *PIM) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.ShutdownTimeout)
	defer cancel()
	return p.Shutdown(ctx)
}

// Shutdown drains the dispatcher and releases an owned runtime. Calling it
// again is a no-op.
func (p *PIM) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := p.disp.Close(ctx)
	err = errors.Join(err, p.closeRuntime())

	r := p.disp.Ledger()
	logger.Info("facade stopped",
		logger.KeyComponent, "facade",
		"requests", r.Requests,
		"device_seconds", r.DeviceSeconds,
		"copy_time", r.CopyTime)
	return err
}

func (p *PIM) closeRuntime() error {
	if !p.ownRuntime {
		return nil
	}
	return p.rt.Close()
}

// Report returns the performance ledger.
func (p *PIM) Report() dispatcher.LedgerReport {
	return p.disp.Ledger()
}

// Stats returns the dispatcher counters.
func (p *PIM) Stats() dispatcher.Stats {
	return p.disp.Stats()
}

// GetControl returns the Control interface for policy reload and probes.
func (p *PIM) GetControl() api.Control {
	return p.control
}

// Gatherer exposes the metrics registry for scraping.
func (p *PIM) Gatherer() prometheus.Gatherer {
	return p.registry
}

// Runtime returns the runtime the dispatcher drives.
func (p *PIM) Runtime() api.Runtime {
	return p.rt
}

// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Runtime simulates a pool of accelerator clusters whose lanes run a real
// Snappy block decoder on an executor, with controllable completion and
// fault injection.

package fake

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-pim/api"
	"github.com/momentics/hioload-pim/core/concurrency"
)

// Mode selects how launched batches complete.
type Mode int

const (
	// ModeAuto runs lanes on the executor as soon as a batch is launched.
	ModeAuto Mode = iota
	// ModeManual holds launched batches until the test calls Cluster.Finish.
	ModeManual
)

// Region sizes and alignment of one simulated lane.
const (
	DefaultMaxInputLen  = 256 << 10
	DefaultMaxOutputLen = 512 << 10
	DefaultAlignment    = 8
)

var (
	ErrClusterBusy    = errors.New("fake: cluster busy")
	ErrNotLaunched    = errors.New("fake: no batch launched")
	ErrRuntimeClosed  = errors.New("fake: runtime closed")
	ErrBadDescriptors = errors.New("fake: invalid lane descriptors")
)

// Config describes the simulated hardware.
type Config struct {
	Clusters        int
	LanesPerCluster int
	MaxInputLen     int
	MaxOutputLen    int
	Alignment       int
	Mode            Mode
	// Latency is added after the last lane of a batch finishes (auto mode).
	Latency time.Duration
	// Workers sizes the lane executor; <= 0 means one per CPU.
	Workers int
}

// DefaultConfig returns a small auto-mode configuration.
func DefaultConfig() Config {
	return Config{
		Clusters:        4,
		LanesPerCluster: 16,
		MaxInputLen:     DefaultMaxInputLen,
		MaxOutputLen:    DefaultMaxOutputLen,
		Alignment:       DefaultAlignment,
		Mode:            ModeAuto,
	}
}

// Runtime is a fake implementation of api.Runtime.
type Runtime struct {
	cfg      Config
	clusters []*Cluster
	exec     *concurrency.Executor
	closed   atomic.Bool
}

var _ api.Runtime = (*Runtime)(nil)

// New builds the simulated clusters.
func New(cfg Config) (*Runtime, error) {
	if cfg.Clusters <= 0 || cfg.LanesPerCluster <= 0 {
		return nil, fmt.Errorf("fake: %d clusters x %d lanes: %w", cfg.Clusters, cfg.LanesPerCluster, api.ErrInvalidArgument)
	}
	if cfg.MaxInputLen <= 0 {
		cfg.MaxInputLen = DefaultMaxInputLen
	}
	if cfg.MaxOutputLen <= 0 {
		cfg.MaxOutputLen = DefaultMaxOutputLen
	}
	if cfg.Alignment <= 0 {
		cfg.Alignment = DefaultAlignment
	}
	r := &Runtime{cfg: cfg}
	if cfg.Mode == ModeAuto {
		r.exec = concurrency.NewExecutor(cfg.Workers)
	}
	r.clusters = make([]*Cluster, cfg.Clusters)
	for i := range r.clusters {
		r.clusters[i] = newCluster(r, i)
	}
	return r, nil
}

// Clusters implements api.Runtime.
func (r *Runtime) Clusters() []api.Cluster {
	out := make([]api.Cluster, len(r.clusters))
	for i, c := range r.clusters {
		out[i] = c
	}
	return out
}

// Cluster returns the concrete cluster i for test control.
func (r *Runtime) Cluster(i int) *Cluster {
	return r.clusters[i]
}

// Config returns the effective configuration.
func (r *Runtime) Config() Config {
	return r.cfg
}

// Close stops the lane executor. Batches still running never complete.
func (r *Runtime) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	if r.exec != nil {
		r.exec.Close()
	}
	return nil
}

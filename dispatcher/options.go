// File: dispatcher/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package dispatcher

import (
	"time"

	"github.com/momentics/hioload-pim/control"
	"github.com/momentics/hioload-pim/pool"
)

const (
	// DefaultMaxWait bounds how long a waiting request may sit before a
	// partial batch is forced out.
	DefaultMaxWait = 5 * time.Millisecond
	// DefaultPollInterval is the status poll period while batches are in flight.
	DefaultPollInterval = 100 * time.Microsecond
	// DefaultClockHz is the device clock used to convert lane cycles to seconds.
	DefaultClockHz = 266_000_000
	// requestsPerLane scales the default threshold from the lane count.
	requestsPerLane = 64
)

// Option configures a Dispatcher.
type Option func(*options)

type options struct {
	threshold    int
	maxWait      time.Duration
	pollInterval time.Duration
	now          func() time.Time
	metrics      *control.Metrics
	staging      *pool.StagingPool
	cpu          int
	clockHz      float64
}

func defaultOptions() options {
	return options{
		maxWait:      DefaultMaxWait,
		pollInterval: DefaultPollInterval,
		now:          time.Now,
		cpu:          -1,
		clockHz:      DefaultClockHz,
	}
}

// WithThreshold sets the waiting count that triggers a dispatch. Zero keeps
// the default of 64 requests per lane of the widest cluster.
func WithThreshold(n int) Option {
	return func(o *options) { o.threshold = n }
}

// WithMaxWait sets the age of the oldest waiting request that forces a dispatch.
func WithMaxWait(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.maxWait = d
		}
	}
}

// WithPollInterval sets how often in-flight clusters are polled.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMetrics publishes dispatcher metrics. A nil value disables them.
func WithMetrics(m *control.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithStagingPool shares a staging pool instead of allocating one.
func WithStagingPool(p *pool.StagingPool) Option {
	return func(o *options) { o.staging = p }
}

// WithCPU pins the dispatcher loop's OS thread to cpu. Negative disables pinning.
func WithCPU(cpu int) Option {
	return func(o *options) { o.cpu = cpu }
}

// WithClockHz sets the device clock used by the ledger.
func WithClockHz(hz float64) Option {
	return func(o *options) {
		if hz > 0 {
			o.clockHz = hz
		}
	}
}

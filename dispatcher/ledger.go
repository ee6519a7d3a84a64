// File: dispatcher/ledger.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package dispatcher

import (
	"sync"
	"time"
)

// Ledger accumulates device cycles per cluster lane, requests served and
// staging copy time. It is reporting only and never steers dispatch.
type Ledger struct {
	mu       sync.Mutex
	clockHz  float64
	ids      []int
	lanes    [][]uint64 // [cluster][lane] accumulated cycles
	batches  []uint64
	served   []uint64
	requests uint64
	copyTime time.Duration
}

// ClusterReport summarizes one cluster.
type ClusterReport struct {
	ID             int     `json:"id"`
	Batches        uint64  `json:"batches"`
	Requests       uint64  `json:"requests"`
	MaxLaneCycles  uint64  `json:"max_lane_cycles"`
	MaxLaneSeconds float64 `json:"max_lane_seconds"`
}

// LedgerReport is a point-in-time copy of the ledger.
type LedgerReport struct {
	Clusters []ClusterReport `json:"clusters"`
	// DeviceSeconds sums the busiest lane of every cluster.
	DeviceSeconds float64       `json:"device_seconds"`
	Requests      uint64        `json:"requests"`
	CopyTime      time.Duration `json:"copy_time"`
}

func newLedger(ids, lanesPerCluster []int, clockHz float64) *Ledger {
	l := &Ledger{
		clockHz: clockHz,
		ids:     ids,
		lanes:   make([][]uint64, len(lanesPerCluster)),
		batches: make([]uint64, len(lanesPerCluster)),
		served:  make([]uint64, len(lanesPerCluster)),
	}
	for i, n := range lanesPerCluster {
		l.lanes[i] = make([]uint64, n)
	}
	return l
}

// recordBatch adds the per-lane cycles of one reaped batch on the cluster
// at position cluster.
func (l *Ledger) recordBatch(cluster int, cycles []uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, c := range cycles {
		l.lanes[cluster][i] += c
	}
	l.batches[cluster]++
	l.served[cluster] += uint64(len(cycles))
	l.requests += uint64(len(cycles))
}

func (l *Ledger) addCopyTime(d time.Duration) {
	l.mu.Lock()
	l.copyTime += d
	l.mu.Unlock()
}

// Report computes per-cluster busiest-lane time and the totals.
func (l *Ledger) Report() LedgerReport {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := LedgerReport{
		Clusters: make([]ClusterReport, len(l.lanes)),
		Requests: l.requests,
		CopyTime: l.copyTime,
	}
	for i, lanes := range l.lanes {
		var busiest uint64
		for _, c := range lanes {
			busiest = max(busiest, c)
		}
		secs := float64(busiest) / l.clockHz
		r.Clusters[i] = ClusterReport{
			ID:             l.ids[i],
			Batches:        l.batches[i],
			Requests:       l.served[i],
			MaxLaneCycles:  busiest,
			MaxLaneSeconds: secs,
		}
		r.DeviceSeconds += secs
	}
	return r
}

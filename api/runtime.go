// File: api/runtime.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Accelerator runtime boundary. Clusters are enumerated once and stay fixed
// for the lifetime of the runtime; the dispatcher never creates or destroys
// them. All methods may block on device I/O and are never called with the
// dispatcher lock held.

package api

// Runtime is the externally owned accelerator runtime.
type Runtime interface {
	// Clusters returns the allocated clusters in a stable order.
	Clusters() []Cluster
	// Close releases every cluster.
	Close() error
}

// ClusterStatus is the polled state of one cluster.
type ClusterStatus struct {
	Done       bool  // all lanes idle, results readable
	Fault      bool  // the runtime reported a fault on this cluster
	FaultLanes []int // lanes identified as faulted, if the runtime can tell
}

// LaneDescriptor is written to a lane before launch. A zero descriptor
// leaves the lane idle for the batch.
type LaneDescriptor struct {
	Slot      uint32 // originating slot index, echoed back in LaneResult
	InputLen  uint32 // bytes of compressed body in the lane's input slice
	OutputLen uint32 // expected decompressed length
}

// LaneResult is read back from a lane after the cluster reports done.
type LaneResult struct {
	OutputLen uint32     // zero when the lane produced nothing
	Slot      uint32     // copy of LaneDescriptor.Slot
	Code      ResultCode // device status for the request
	Cycles    uint64     // lane performance counter for this launch
}

// Cluster is one dispatch unit exposing a fixed number of parallel lanes.
type Cluster interface {
	ID() int
	Lanes() int
	// Alignment is the required stride alignment of staged input, in bytes.
	Alignment() int
	// MaxInputLen and MaxOutputLen bound a single lane's regions.
	MaxInputLen() int
	MaxOutputLen() int

	Status() (ClusterStatus, error)

	// WriteDescriptors programs every lane; lanes beyond len(descs) are zeroed.
	WriteDescriptors(descs []LaneDescriptor) error
	// PushInput transfers one staged buffer; lane i reads buf[i*stride:(i+1)*stride].
	PushInput(buf []byte, stride int) error
	// Launch starts the loaded program without waiting for it.
	Launch() error

	// ReadResults fills results[i] for lanes 0..len(results)-1.
	ReadResults(results []LaneResult) error
	// ReadOutput copies the lane's output region into dst.
	ReadOutput(lane int, dst []byte) error
}

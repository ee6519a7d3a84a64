// File: core/concurrency/slot_table.go
// Package concurrency implements the bounded request slot table.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// SlotTable is a fixed-capacity circular table of in-flight requests with
// three cursors:
//
//	tail <= tailDispatched <= head   (circularly)
//
// [tail, tailDispatched) holds requests shipped to a cluster (dispatched or
// already completed but not yet retired), [tailDispatched, head) holds
// requests still waiting for dispatch. Completions may arrive in any order;
// tail only advances over a contiguous run of completed slots, so a slot is
// never handed out twice while an older neighbour is still in flight.
//
// SlotTable is not synchronized. Every call must happen under the owner's lock.

package concurrency

import (
	"fmt"
)

// SlotState is the lifecycle stage of one slot.
type SlotState uint8

const (
	SlotFree SlotState = iota
	SlotWaiting
	SlotDispatched
	SlotCompleted
)

func (s SlotState) String() string {
	switch s {
	case SlotFree:
		return "free"
	case SlotWaiting:
		return "waiting"
	case SlotDispatched:
		return "dispatched"
	case SlotCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

type slot[T any] struct {
	state SlotState
	val   T
}

// SlotTable is a bounded circular request table.
type SlotTable[T any] struct {
	slots          []slot[T]
	head           int
	tail           int
	tailDispatched int
	occupied       int
	waiting        int
}

// NewSlotTable allocates a table with the given capacity.
func NewSlotTable[T any](capacity int) *SlotTable[T] {
	if capacity <= 0 {
		panic("slot table capacity must be positive")
	}
	return &SlotTable[T]{slots: make([]slot[T], capacity)}
}

func (t *SlotTable[T]) next(i int) int {
	i++
	if i == len(t.slots) {
		return 0
	}
	return i
}

// TryClaim stores v in the slot at head and returns its index.
// ok is false when the table is full.
func (t *SlotTable[T]) TryClaim(v T) (idx int, ok bool) {
	if t.occupied == len(t.slots) {
		return -1, false
	}
	idx = t.head
	t.slots[idx] = slot[T]{state: SlotWaiting, val: v}
	t.head = t.next(idx)
	t.occupied++
	t.waiting++
	return idx, true
}

// NextWaiting returns up to limit waiting slot indices starting at
// tailDispatched, in submission order. It does not mutate the table.
func (t *SlotTable[T]) NextWaiting(limit int) []int {
	n := min(t.waiting, limit)
	if n <= 0 {
		return nil
	}
	out := make([]int, n)
	idx := t.tailDispatched
	for i := range out {
		out[i] = idx
		idx = t.next(idx)
	}
	return out
}

// MarkDispatched moves the first n waiting slots into the dispatched range.
func (t *SlotTable[T]) MarkDispatched(n int) {
	if n < 0 || n > t.waiting {
		panic(fmt.Sprintf("slot table: dispatch %d with %d waiting", n, t.waiting))
	}
	for i := 0; i < n; i++ {
		t.slots[t.tailDispatched].state = SlotDispatched
		t.tailDispatched = t.next(t.tailDispatched)
	}
	t.waiting -= n
}

// Complete records completion of a dispatched slot. When idx is the tail,
// the contiguous run of completed slots is retired and their count returned.
// Completing a slot that is not dispatched is ignored.
func (t *SlotTable[T]) Complete(idx int) (retired int) {
	if idx < 0 || idx >= len(t.slots) || t.slots[idx].state != SlotDispatched {
		return 0
	}
	t.slots[idx].state = SlotCompleted
	if idx != t.tail {
		return 0
	}
	var zero T
	for t.occupied > t.waiting && t.slots[t.tail].state == SlotCompleted {
		t.slots[t.tail] = slot[T]{state: SlotFree, val: zero}
		t.tail = t.next(t.tail)
		t.occupied--
		retired++
	}
	return retired
}

// Get returns the value stored at idx.
func (t *SlotTable[T]) Get(idx int) T {
	return t.slots[idx].val
}

// State returns the lifecycle stage of idx.
func (t *SlotTable[T]) State(idx int) SlotState {
	return t.slots[idx].state
}

func (t *SlotTable[T]) Cap() int       { return len(t.slots) }
func (t *SlotTable[T]) Occupied() int  { return t.occupied }
func (t *SlotTable[T]) Waiting() int   { return t.waiting }
func (t *SlotTable[T]) IsFull() bool   { return t.occupied == len(t.slots) }
func (t *SlotTable[T]) IsEmpty() bool  { return t.occupied == 0 }
func (t *SlotTable[T]) Head() int      { return t.head }
func (t *SlotTable[T]) Tail() int      { return t.tail }
func (t *SlotTable[T]) TailDispatched() int {
	return t.tailDispatched
}

// InFlight counts slots shipped to a cluster and not yet retired.
func (t *SlotTable[T]) InFlight() int {
	return t.occupied - t.waiting
}

// distance is the circular distance from a forward to b.
func (t *SlotTable[T]) distance(a, b int) int {
	d := b - a
	if d < 0 {
		d += len(t.slots)
	}
	return d
}

// CheckInvariants verifies the cursor and counter relations. It returns
// nil when the table is consistent.
func (t *SlotTable[T]) CheckInvariants() error {
	c := len(t.slots)
	if t.occupied < 0 || t.occupied > c {
		return fmt.Errorf("occupied %d outside [0,%d]", t.occupied, c)
	}
	if t.waiting < 0 || t.waiting > t.occupied {
		return fmt.Errorf("waiting %d outside [0,%d]", t.waiting, t.occupied)
	}
	// With a full table head == tail, so the modular distance reads 0.
	if t.occupied != c && t.distance(t.tail, t.head) != t.occupied {
		return fmt.Errorf("occupied %d != (head %d - tail %d) mod %d", t.occupied, t.head, t.tail, c)
	}
	if t.waiting != c && t.distance(t.tailDispatched, t.head) != t.waiting {
		return fmt.Errorf("waiting %d != (head %d - tailDispatched %d) mod %d", t.waiting, t.head, t.tailDispatched, c)
	}
	if t.distance(t.tail, t.tailDispatched) != t.occupied-t.waiting {
		if !(t.occupied == c && t.waiting == 0 && t.tail == t.tailDispatched) {
			return fmt.Errorf("tailDispatched %d not between tail %d and head %d", t.tailDispatched, t.tail, t.head)
		}
	}
	idx := t.tail
	for i := 0; i < t.occupied; i++ {
		st := t.slots[idx].state
		inDispatched := i < t.occupied-t.waiting
		switch {
		case inDispatched && st != SlotDispatched && st != SlotCompleted:
			return fmt.Errorf("slot %d in dispatched range is %s", idx, st)
		case !inDispatched && st != SlotWaiting:
			return fmt.Errorf("slot %d in waiting range is %s", idx, st)
		}
		idx = t.next(idx)
	}
	if t.occupied > t.waiting && t.slots[t.tail].state == SlotCompleted {
		return fmt.Errorf("tail slot %d completed but not retired", t.tail)
	}
	for i := 0; i < c-t.occupied; i++ {
		if t.slots[idx].state != SlotFree {
			return fmt.Errorf("slot %d outside occupied range is %s", idx, t.slots[idx].state)
		}
		idx = t.next(idx)
	}
	return nil
}

// SlotTableSnapshot is a point-in-time copy of the cursors for diagnostics.
type SlotTableSnapshot struct {
	Capacity       int `json:"capacity"`
	Head           int `json:"head"`
	Tail           int `json:"tail"`
	TailDispatched int `json:"tail_dispatched"`
	Occupied       int `json:"occupied"`
	Waiting        int `json:"waiting"`
	InFlight       int `json:"in_flight"`
}

// Snapshot copies the cursors and counters.
func (t *SlotTable[T]) Snapshot() SlotTableSnapshot {
	return SlotTableSnapshot{
		Capacity:       len(t.slots),
		Head:           t.head,
		Tail:           t.tail,
		TailDispatched: t.tailDispatched,
		Occupied:       t.occupied,
		Waiting:        t.waiting,
		InFlight:       t.occupied - t.waiting,
	}
}

// Package sched implements the concurrency substrate shared by the VM and
// filesystem subsystems (C2 synchronization primitives and C3 scheduler).
// Pintos keeps struct thread, synch.c, and thread.c in the same `threads/`
// directory because priority donation needs direct access to thread state;
// this package follows that grounding and keeps both in one place rather
// than splitting them across packages that would need to import each other
// cyclically.
//
// Threads here are simulated as goroutines cooperating over a single
// logical CPU: the scheduler hands a "run token" to exactly one thread's
// goroutine at a time (via a private wake channel), so ready-queue order,
// donation, and MLFQS recomputation are all exercised the way spec.md
// describes even though the host process itself may have many OS threads.
package sched

import (
	"sync"

	"kcore/internal/defs"
)

// State is a thread's scheduling state.
type State int

const (
	Running State = iota
	Ready
	Blocked
	Dying
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Ready:
		return "ready"
	case Blocked:
		return "blocked"
	case Dying:
		return "dying"
	default:
		return "unknown"
	}
}

// Priority bounds, matching spec.md §4.1.
const (
	PriMin = 0
	PriMax = 63
	PriDefault = 31
)

// Nice bounds for the MLFQS policy.
const (
	NiceMin     = -20
	NiceMax     = 20
	NiceDefault = 0
)

// Thread is a schedulable kernel thread / user process. Field grouping
// mirrors spec.md's Thread data model: identity, scheduling state,
// donation bookkeeping, and process relationships.
type Thread struct {
	mu sync.Mutex

	Tid  defs.Tid_t
	Name string

	state State

	basePrio int
	effPrio  int
	// donors holds threads currently boosting this thread's effective
	// priority by waiting on a lock it holds.
	donors map[*Thread]bool
	// waitingOn is the lock this thread is blocked trying to acquire, or
	// nil. Used to walk the donation chain on lock_acquire.
	waitingOn *Lock

	// MLFQS accounting.
	nice      int
	recentCPU fixed

	Parent   *Thread
	children []*Thread
	ExitCode int
	exited   bool
	exitCh   chan struct{}

	// wake is signaled by the scheduler when this thread is chosen to run.
	wake chan struct{}
	// wakeTick is the absolute tick this thread should be unblocked at,
	// valid only while on the sleep list.
	wakeTick uint64

	// Attach is an opaque slot for data a higher layer wants to hang on
	// the thread, typed any so sched need not import that layer. sched
	// never reads it; package sysgate does not use it either (it keeps
	// the fd table and cwd on its own Process type).
	Attach any
}

// ID returns the thread's id.
func (t *Thread) ID() defs.Tid_t { return t.Tid }

// State returns the thread's current scheduling state.
func (t *Thread) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// EffectivePriority returns max(base, every donor's effective priority),
// computed transitively, matching spec.md's stated invariant.
func (t *Thread) EffectivePriority() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.effPrio
}

// BasePriority returns the thread's un-donated priority.
func (t *Thread) BasePriority() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.basePrio
}

// recomputeEffective recalculates effPrio from basePrio and donors. Caller
// must hold t.mu.
func (t *Thread) recomputeEffective() {
	best := t.basePrio
	for d := range t.donors {
		if ep := d.EffectivePriority(); ep > best {
			best = ep
		}
	}
	t.effPrio = best
}

// Nice returns the thread's MLFQS niceness.
func (t *Thread) Nice() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nice
}

// Package kstats holds the in-kernel debug counters every subsystem
// bumps on its hot path, mirroring the role biscuit's stats package
// plays for its own kernel (Counter_t/Cycles_t wrapping sync/atomic).
// Unlike biscuit's counters, which compile to no-ops unless the
// `Stats`/`Timing` consts are flipped on (this is a bare-metal kernel
// where every counter costs cycles on real hardware), these are always
// live: the simulator has no such cost to avoid, and internal/metrics
// copies them into Prometheus gauges on every scrape.
package kstats

import "sync/atomic"

// Counter is a monotonically increasing debug counter.
type Counter struct {
	v int64
}

// Inc adds 1 to c.
func (c *Counter) Inc() { atomic.AddInt64(&c.v, 1) }

// Add adds n to c.
func (c *Counter) Add(n int64) { atomic.AddInt64(&c.v, n) }

// Get returns c's current value.
func (c *Counter) Get() int64 { return atomic.LoadInt64(&c.v) }

// Kernel is the singleton set of counters this kernel core tracks,
// grouped by the subsystem that owns them (scheduler, frame table,
// filesystem) per spec.md §9's "global mutable state ... explicitly
// initialized modules" design note.
type Kernel struct {
	// Scheduler (C3).
	ContextSwitches Counter
	ThreadsCreated  Counter
	Preemptions     Counter

	// Frame table & eviction (C4).
	FrameAllocs  Counter
	FrameEvicts  Counter
	PageFaults   Counter
	StackGrowths Counter

	// Swap (C8).
	SwapOuts Counter
	SwapIns  Counter

	// Filesystem (C9-C12).
	InodeReads  Counter
	InodeWrites Counter
	DirLookups  Counter
	ChainGrows  Counter
}

// New allocates a zeroed counter set. Call it once at boot, matching
// every other singleton subsystem's init -> steady -> shutdown
// lifecycle.
func New() *Kernel {
	return &Kernel{}
}

// Global is the counter set every domain package bumps directly. It is
// a package-level singleton rather than an injected dependency because
// every subsystem it instruments (scheduler, frame table, FAT, inode
// cache) is itself a kernel-image-wide singleton per spec.md §9 — there
// is never more than one of these counter sets alive in a process.
// cmd/kerneld's `run` resets it at boot and internal/metrics reads it
// on every scrape.
var Global = New()

// Reset zeroes every counter, used by cmd/kerneld's `run` subcommand at
// boot so repeated runs in the same process (e.g. under test) start
// from a clean slate.
func (k *Kernel) Reset() { *k = Kernel{} }

// Snapshot copies every counter's current value into a plain map keyed
// by name, the shape internal/metrics consumes to update its Prometheus
// gauges without this package needing to import prometheus itself.
func (k *Kernel) Snapshot() map[string]int64 {
	return map[string]int64{
		"context_switches": k.ContextSwitches.Get(),
		"threads_created":  k.ThreadsCreated.Get(),
		"preemptions":      k.Preemptions.Get(),
		"frame_allocs":     k.FrameAllocs.Get(),
		"frame_evicts":     k.FrameEvicts.Get(),
		"page_faults":      k.PageFaults.Get(),
		"stack_growths":    k.StackGrowths.Get(),
		"swap_outs":        k.SwapOuts.Get(),
		"swap_ins":         k.SwapIns.Get(),
		"inode_reads":      k.InodeReads.Get(),
		"inode_writes":     k.InodeWrites.Get(),
		"dir_lookups":      k.DirLookups.Get(),
		"chain_grows":      k.ChainGrows.Get(),
	}
}

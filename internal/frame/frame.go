// Package frame implements the global physical frame pool and
// second-chance clock eviction (C4). It plays the same structural role
// as biscuit's mem.Physmem_t (a singleton physical-page pool with
// refcount-style bookkeeping) but the eviction algorithm itself is
// ported from spec.md §4.3, which names the exact clock-walk Pintos's
// vm/vm.c leaves as a "TODO: policy is up to you" stub.
package frame

import (
	"container/list"
	"sync"

	"kcore/internal/defs"
	"kcore/internal/kstats"
)

// PageSize matches the conventional 4KiB page, as in biscuit's mem.PGSIZE.
const PageSize = 4096

// Page is the back-pointer contract a resident page descriptor must
// satisfy so the frame table can evict it without importing the vm
// package (which itself imports frame for frame acquisition) — the
// same non-owning-handle shape spec.md's Design Notes call for under
// "Cyclic ownership in frames <-> pages".
type Page interface {
	// Accessed reports the hardware-equivalent accessed bit.
	Accessed() bool
	// ClearAccessed clears it (second-chance demotion).
	ClearAccessed()
	// SwapOut is invoked by the frame table when this page's frame is
	// selected as the eviction victim; it must persist any dirty
	// content via the page's own swap_out and detach the hardware
	// mapping. The frame's bytes are zeroed by the frame table only
	// after this returns successfully.
	SwapOut(f *Frame) defs.Err_t
}

// Frame is one physical page slot, addressable by its backing byte
// buffer (standing in for a kernel virtual address since there is no
// real MMU here).
type Frame struct {
	Bytes [PageSize]byte
	page  Page
	elem  *list.Element
}

// Page returns the descriptor currently installed in f, or nil.
func (f *Frame) Page() Page { return f.page }

// Table is the global frame pool: a free list plus an eviction list of
// all currently-occupied frames in allocation order, matching spec.md
// §4.3's "global list of all allocated user frames in allocation order".
type Table struct {
	mu       sync.Mutex
	free     []*Frame
	occupied *list.List // of *Frame, element.Value is *Frame
}

// New allocates a frame pool of n frames, all initially free.
func New(n int) *Table {
	t := &Table{occupied: list.New()}
	for i := 0; i < n; i++ {
		t.free = append(t.free, &Frame{})
	}
	return t
}

// Get returns a frame bound to page, evicting a victim if the pool is
// exhausted. The frame's contents are zeroed before return.
func (t *Table) Get(page Page) (*Frame, defs.Err_t) {
	t.mu.Lock()
	var f *Frame
	if n := len(t.free); n > 0 {
		f = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		var err defs.Err_t
		f, err = t.evictLocked()
		if err != 0 {
			t.mu.Unlock()
			return nil, err
		}
	}
	f.page = page
	f.elem = t.occupied.PushBack(f)
	t.mu.Unlock()
	for i := range f.Bytes {
		f.Bytes[i] = 0
	}
	kstats.Global.FrameAllocs.Inc()
	return f, 0
}

// Put returns f to the free pool without eviction (used on voluntary
// unmap/destroy, as opposed to the involuntary path through evictLocked).
func (t *Table) Put(f *Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f.elem != nil {
		t.occupied.Remove(f.elem)
		f.elem = nil
	}
	f.page = nil
	t.free = append(t.free, f)
}

// evictLocked runs the second-chance clock sweep described in spec.md
// §4.3: walk from head, demoting accessed frames to the tail and
// clearing their accessed bit, until a frame with a clear accessed bit
// is found (or the whole list has rotated once, in which case the head
// is taken unconditionally). Caller must hold t.mu.
func (t *Table) evictLocked() (*Frame, defs.Err_t) {
	n := t.occupied.Len()
	if n == 0 {
		return nil, -defs.ENOMEM
	}
	var victim *Frame
	for i := 0; i < n; i++ {
		e := t.occupied.Front()
		f := e.Value.(*Frame)
		if f.page.Accessed() {
			f.page.ClearAccessed()
			t.occupied.MoveToBack(e)
			continue
		}
		victim = f
		break
	}
	if victim == nil {
		// Whole list rotated with every accessed bit set: take the head
		// unconditionally, per spec.md §4.3.
		e := t.occupied.Front()
		victim = e.Value.(*Frame)
	}

	if err := victim.page.SwapOut(victim); err != 0 {
		return nil, err
	}
	kstats.Global.FrameEvicts.Inc()
	t.occupied.Remove(victim.elem)
	victim.elem = nil
	victim.page = nil
	return victim, 0
}

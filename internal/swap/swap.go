// Package swap implements the swap slot bitmap allocator (C8): a
// fixed-size run of sectors per page, tracked by a bitmap, grounded on
// Pintos's vm/anon.c's swap_table (a struct bitmap layered over the
// swap block device) since biscuit has no swap subsystem of its own.
package swap

import (
	"sync"

	"kcore/internal/block"
	"kcore/internal/defs"
	"kcore/internal/frame"
	"kcore/internal/kstats"
)

// sectorsPerSlot is the number of disk sectors one page occupies on the
// swap device.
const sectorsPerSlot = frame.PageSize / block.SectorSize

// Slot identifies one page-sized region of the swap device.
type Slot int

// NoSlot is the zero value meaning "no swap slot recorded".
const NoSlot Slot = -1

// Table is the swap bitmap allocator: one bit per slot, set when in use.
// Per spec.md §4.7 it is protected by the frame-table lock in practice
// (only touched during eviction and swap-in), but carries its own mutex
// here so it can also be unit-tested standalone.
type Table struct {
	mu   sync.Mutex
	dev  block.Device
	bits []bool
	n    int
}

// New creates a swap allocator over dev, whose capacity in slots is
// dev.Size()/sectorsPerSlot.
func New(dev block.Device) *Table {
	n := dev.Size() / sectorsPerSlot
	return &Table{dev: dev, bits: make([]bool, n), n: n}
}

// Alloc reserves the first free slot and returns it.
func (t *Table) Alloc() (Slot, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, used := range t.bits {
		if !used {
			t.bits[i] = true
			return Slot(i), 0
		}
	}
	return NoSlot, -defs.ESWAPFULL
}

// Free releases a previously allocated slot.
func (t *Table) Free(s Slot) {
	if s == NoSlot {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bits[int(s)] = false
}

// Write persists a page's contents to slot s.
func (t *Table) Write(s Slot, page *frame.Frame) defs.Err_t {
	base := int(s) * sectorsPerSlot
	for i := 0; i < sectorsPerSlot; i++ {
		off := i * block.SectorSize
		if err := t.dev.Write(base+i, page.Bytes[off:off+block.SectorSize]); err != 0 {
			return err
		}
	}
	kstats.Global.SwapOuts.Inc()
	return 0
}

// Read reads slot s's contents back into page.
func (t *Table) Read(s Slot, page *frame.Frame) defs.Err_t {
	base := int(s) * sectorsPerSlot
	for i := 0; i < sectorsPerSlot; i++ {
		off := i * block.SectorSize
		if err := t.dev.Read(base+i, page.Bytes[off:off+block.SectorSize]); err != 0 {
			return err
		}
	}
	kstats.Global.SwapIns.Inc()
	return 0
}

// InUse reports how many slots are currently allocated, used by tests
// asserting the swap pool never exceeds its configured size.
func (t *Table) InUse() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, used := range t.bits {
		if used {
			n++
		}
	}
	return n
}

// Package vm implements the per-process supplemental page table (C5),
// the page-fault handler and stack auto-growth (C6), and the three page
// type implementations Uninit/Anon/File (C7), following the structure
// of biscuit's vm.Vm_t (an address-space struct embedding sync.Mutex,
// guarding a region lookup plus hardware page table) generalized to the
// lazy-loading/demand-paged semantics spec.md §4.4-§4.5 describe. Exact
// swap_in/swap_out/destroy dispatch per page kind, and the fork copy
// rules, are grounded on Pintos's vm/uninit.c, vm/anon.c, vm/file.c.
package vm

import (
	"kcore/internal/defs"
	"kcore/internal/frame"
	"kcore/internal/swap"
)

// Kind identifies which of the three page type implementations a
// descriptor currently is. Uninit pages morph into Anon or File on
// first claim, per spec.md §4.5.
type Kind int

const (
	KindUninit Kind = iota
	KindAnon
	KindFile
)

// Initializer populates a freshly claimed frame for a page that started
// life Uninit — e.g. zero-fill for an anonymous segment, or read-from-file
// for a lazily loaded executable segment.
type Initializer interface {
	// Init fills f and reports the Kind the page should morph into.
	Init(f *frame.Frame) (Kind, defs.Err_t)
	// Clone returns an independently owned copy of the auxiliary record,
	// used by Fork so a child's Uninit page does not alias the parent's.
	Clone() Initializer
	// Apply copies any per-kind metadata (file handle, offset, byte
	// counts) onto p once Init has reported the Kind to morph into.
	Apply(p *Page)
}

// FileBacking is the slice of file.File behavior a File-backed page
// needs. It is declared here, not imported from package file, so that
// file (which needs to ask vm to set up mmap regions) and vm do not
// import each other.
type FileBacking interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
}

// Reopener is implemented by file backings that can hand back an
// independent handle onto the same underlying file. Fork uses it so a
// child's File-backed descriptor gets its own open reference instead of
// aliasing the parent's, per spec.md §4.6's "File-backed copies reopen
// the file".
type Reopener interface {
	Reopen() (FileBacking, error)
}

// Page is one supplemental-page-table entry: spec.md §4.4's "Uninit |
// Anon | File" descriptor, plus the bookkeeping shared by all three
// (virtual address, writable bit, resident frame, accessed bit).
type Page struct {
	VA       uintptr
	Writable bool
	kind     Kind

	frame    *frame.Frame
	accessed bool
	dirty    bool
	slots    *swap.Table

	// Uninit
	initer Initializer

	// Anon
	slot swap.Slot

	// File
	file       FileBacking
	offset     int64
	readBytes  int
	zeroBytes  int
	mmapBase   uintptr // 0 if this is a demand-paged exec segment, not an mmap
	isMmap     bool
}

// Kind reports which page type implementation currently backs p.
func (p *Page) Kind() Kind { return p.kind }

// Frame returns the resident frame, or nil if the page is not currently
// claimed.
func (p *Page) Frame() *frame.Frame { return p.frame }

// Accessed implements frame.Page.
func (p *Page) Accessed() bool { return p.accessed }

// ClearAccessed implements frame.Page.
func (p *Page) ClearAccessed() { p.accessed = false }

// MarkAccessed records that hardware (or the simulated equivalent: a
// syscall-path buffer copy) touched p.
func (p *Page) MarkAccessed() { p.accessed = true }

// MarkDirty records that p's frame contents were written.
func (p *Page) MarkDirty() { p.dirty = true }

// SwapOut implements frame.Page: it is invoked by the frame table when
// p's frame is chosen as an eviction victim. Dispatch is by kind, per
// spec.md §4.5.
func (p *Page) SwapOut(f *frame.Frame) defs.Err_t {
	switch p.kind {
	case KindAnon:
		s, err := p.slots.Alloc()
		if err != 0 {
			return err
		}
		if err := p.slots.Write(s, f); err != 0 {
			p.slots.Free(s)
			return err
		}
		p.slot = s
	case KindFile:
		if p.dirty {
			if _, err := p.file.WriteAt(f.Bytes[:p.readBytes], p.offset); err != nil {
				return -defs.EIO
			}
		}
	default:
		return -defs.EINVAL
	}
	p.frame = nil
	p.dirty = false
	p.accessed = false
	return 0
}

// swapIn populates f (already bound to p by the caller) per spec.md
// §4.5: Uninit runs its stored initializer and morphs; Anon restores
// from its recorded slot if any; File reads its byte range and zero-pads
// the remainder.
func (p *Page) swapIn(f *frame.Frame) defs.Err_t {
	switch p.kind {
	case KindUninit:
		kind, err := p.initer.Init(f)
		if err != 0 {
			return err
		}
		p.initer.Apply(p)
		p.kind = kind
		p.initer = nil
	case KindAnon:
		if p.slot != swap.NoSlot {
			if err := p.slots.Read(p.slot, f); err != 0 {
				return err
			}
			p.slots.Free(p.slot)
			p.slot = swap.NoSlot
		}
	case KindFile:
		n, err := p.file.ReadAt(f.Bytes[:p.readBytes], p.offset)
		if err != nil && n == 0 {
			return -defs.EIO
		}
		for i := n; i < p.readBytes+p.zeroBytes && i < len(f.Bytes); i++ {
			f.Bytes[i] = 0
		}
	}
	p.frame = f
	return 0
}

// destroy releases any resources p holds outside its frame (a swap slot,
// or a dirty mmap write-back) — spec.md §4.5's per-kind destroy.
func (p *Page) destroy() {
	switch p.kind {
	case KindAnon:
		if p.slot != swap.NoSlot {
			p.slots.Free(p.slot)
			p.slot = swap.NoSlot
		}
	case KindFile:
		if p.frame != nil && p.dirty && p.isMmap {
			p.file.WriteAt(p.frame.Bytes[:p.readBytes], p.offset)
		}
	}
}

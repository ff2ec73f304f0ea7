package vm

import (
	"sync"

	"kcore/internal/defs"
	"kcore/internal/frame"
	"kcore/internal/kstats"
	"kcore/internal/kutil"
	"kcore/internal/swap"
)

// StackMaxBytes bounds automatic stack growth, matching the conventional
// Pintos/x86-64 8 MiB user stack ceiling.
const StackMaxBytes = 8 << 20

// AddressSpace is a process's supplemental page table (C5): a lookup
// from page-aligned virtual address to descriptor, guarded by an
// embedded mutex the way biscuit's Vm_t embeds sync.Mutex.
type AddressSpace struct {
	sync.Mutex

	pages   map[uintptr]*Page
	frames  *frame.Table
	slots   *swap.Table

	StackTop uintptr // highest stack address (exclusive), fixed at exec time
}

// New creates an empty address space sharing the given global frame
// pool and swap allocator, per spec.md's "frame table ... singleton
// owned by the kernel image".
func New(frames *frame.Table, slots *swap.Table, stackTop uintptr) *AddressSpace {
	return &AddressSpace{
		pages:    make(map[uintptr]*Page),
		frames:   frames,
		slots:    slots,
		StackTop: stackTop,
	}
}

func pageRound(va uintptr) uintptr {
	return kutil.Rounddown(va, uintptr(frame.PageSize))
}

// Lookup returns the descriptor covering va, if any.
func (as *AddressSpace) Lookup(va uintptr) (*Page, bool) {
	as.Lock()
	defer as.Unlock()
	p, ok := as.pages[pageRound(va)]
	return p, ok
}

// InstallUninit registers a lazily-initialized page at va.
func (as *AddressSpace) InstallUninit(va uintptr, writable bool, init Initializer) *Page {
	as.Lock()
	defer as.Unlock()
	p := &Page{VA: pageRound(va), Writable: writable, kind: KindUninit, initer: init, slots: as.slots, slot: swap.NoSlot}
	as.pages[p.VA] = p
	return p
}

// InstallAnon registers an immediately-anonymous (zero-fill) page at va,
// used for stack growth and fresh BSS/heap pages.
func (as *AddressSpace) InstallAnon(va uintptr, writable bool) *Page {
	as.Lock()
	defer as.Unlock()
	p := &Page{VA: pageRound(va), Writable: writable, kind: KindAnon, slots: as.slots, slot: swap.NoSlot}
	as.pages[p.VA] = p
	return p
}

// InstallFile registers a file-backed page at va (either a demand-paged
// executable segment or an mmap region page).
func (as *AddressSpace) InstallFile(va uintptr, writable bool, file FileBacking, offset int64, readBytes, zeroBytes int, isMmap bool, mmapBase uintptr) *Page {
	as.Lock()
	defer as.Unlock()
	p := &Page{
		VA: pageRound(va), Writable: writable, kind: KindFile, slots: as.slots, slot: swap.NoSlot,
		file: file, offset: offset, readBytes: readBytes, zeroBytes: zeroBytes,
		isMmap: isMmap, mmapBase: mmapBase,
	}
	as.pages[p.VA] = p
	return p
}

// Claim obtains a frame for p (evicting if necessary) and populates it
// via the type-specific swap_in, per spec.md §4.4's vm_do_claim.
func (as *AddressSpace) Claim(p *Page) defs.Err_t {
	as.Lock()
	defer as.Unlock()
	return as.claimLocked(p)
}

func (as *AddressSpace) claimLocked(p *Page) defs.Err_t {
	if p.frame != nil {
		return 0
	}
	f, err := as.frames.Get(p)
	if err != 0 {
		return err
	}
	if err := p.swapIn(f); err != 0 {
		as.frames.Put(f)
		return err
	}
	return 0
}

// HandleFault classifies a fault at va, per spec.md §4.4: resolve an
// existing non-resident descriptor by claiming it; otherwise, if va
// looks like stack growth (within StackMaxBytes of StackTop and no
// farther than a handful of bytes below the saved user stack pointer,
// matching a PUSH/PUSHA instruction's reach), install a fresh anonymous
// page and claim it; otherwise the fault is not resolvable.
func (as *AddressSpace) HandleFault(va uintptr, write bool, userRsp uintptr) defs.Err_t {
	kstats.Global.PageFaults.Inc()
	if va >= defs.KernelBase {
		return -defs.EFAULT
	}
	if p, ok := as.Lookup(va); ok {
		if write && !p.Writable {
			return -defs.EFAULT
		}
		if err := as.Claim(p); err != 0 {
			return err
		}
		p.MarkAccessed()
		if write {
			p.MarkDirty()
		}
		return 0
	}

	const stackFaultSlack = 32 // bytes a PUSHA-style instruction may reach below rsp
	if va >= as.StackTop-StackMaxBytes && va < as.StackTop && va+stackFaultSlack >= userRsp {
		kstats.Global.StackGrowths.Inc()
		p := as.InstallAnon(va, true)
		return as.Claim(p)
	}
	return -defs.EFAULT
}

// Munmap tears down every page created by the mmap call identified by
// mmapBase, writing back dirty File pages before discarding them, per
// spec.md's "write-back on eviction/unmap if dirty".
func (as *AddressSpace) Munmap(mmapBase uintptr) {
	as.Lock()
	defer as.Unlock()
	for va, p := range as.pages {
		if p.kind != KindFile || !p.isMmap || p.mmapBase != mmapBase {
			continue
		}
		if p.frame != nil {
			p.destroy()
			as.frames.Put(p.frame)
			p.frame = nil
		}
		delete(as.pages, va)
	}
}

// Destroy tears down the entire address space (process exit), releasing
// every resident frame and swap slot.
func (as *AddressSpace) Destroy() {
	as.Lock()
	defer as.Unlock()
	for va, p := range as.pages {
		p.destroy()
		if p.frame != nil {
			as.frames.Put(p.frame)
			p.frame = nil
		}
		delete(as.pages, va)
	}
}

// Fork produces a child address space that is a snapshot of as, per
// spec.md §4.6's copy-on-fork rule: Uninit descriptors are recreated
// with a (shallow but independently owned) copy of their initializer;
// Anon and File pages are claimed immediately in both parent and child
// and their frame contents memcpy'd.
func (as *AddressSpace) Fork() (*AddressSpace, defs.Err_t) {
	as.Lock()
	defer as.Unlock()

	child := New(as.frames, as.slots, as.StackTop)
	for va, p := range as.pages {
		switch p.kind {
		case KindUninit:
			child.pages[va] = &Page{VA: va, Writable: p.Writable, kind: KindUninit, initer: p.initer.Clone(), slots: child.slots, slot: swap.NoSlot}
		case KindAnon, KindFile:
			if err := as.claimLocked(p); err != 0 {
				return nil, err
			}
			var np *Page
			if p.kind == KindAnon {
				np = &Page{VA: va, Writable: p.Writable, kind: KindAnon, slots: child.slots, slot: swap.NoSlot}
			} else {
				backing := p.file
				if r, ok := p.file.(Reopener); ok {
					nb, rerr := r.Reopen()
					if rerr != nil {
						return nil, -defs.EIO
					}
					backing = nb
				}
				np = &Page{VA: va, Writable: p.Writable, kind: KindFile, slots: child.slots, slot: swap.NoSlot,
					file: backing, offset: p.offset, readBytes: p.readBytes, zeroBytes: p.zeroBytes, isMmap: p.isMmap, mmapBase: p.mmapBase}
			}
			child.pages[va] = np
			if err := child.claimLocked(np); err != 0 {
				return nil, err
			}
			np.frame.Bytes = p.frame.Bytes
		}
	}
	return child, 0
}

package sysgate

import (
	"encoding/binary"

	"kcore/internal/defs"
	"kcore/internal/file"
	"kcore/internal/frame"
	"kcore/internal/kutil"
	"kcore/internal/vm"
)

// Segment describes one ELF-style loadable region of an executable:
// ReadBytes bytes at VA come from the file starting at Offset, followed
// by ZeroBytes of BSS padding. Parsing the actual ELF container (section
// headers, program headers, relocation) is out of this core's scope per
// spec.md §1 ("ELF loading details beyond what the VM and FS contracts
// require"); a loader upstream of Exec is expected to have already
// produced this list the way Pintos's load() does before calling
// load_segment/setup_stack.
type Segment struct {
	VA        uintptr
	Offset    int64
	ReadBytes int
	ZeroBytes int
	Writable  bool
}

// Exec replaces the calling process's address space with a fresh one
// built from path's segments, matching spec.md §4.11: the current page
// table/SPT are torn down, the new image's segments are installed as
// lazy Uninit -> File/zero-fill descriptors, and the stack is prepared
// with the conventional argv layout. It returns the initial stack
// pointer the caller should resume at (there is no trapframe to install
// it into here — that plumbing lives in the out-of-scope trap/context
// switch layer, spec.md §1).
func (p *Process) Exec(path string, argv []string, segs []Segment) (uintptr, defs.Err_t) {
	p.k.fsSema.Down(p.Thread)
	sector, err := p.k.Resolver.Lookup(p.Thread, p.Cwd, path)
	p.k.fsSema.Up()
	if err != 0 {
		return 0, err
	}
	in, err := p.k.Inodes.Open(sector)
	if err != 0 {
		return 0, err
	}
	if in.IsDir() {
		p.k.Inodes.Close(in)
		return 0, -defs.EISDIR
	}
	execFile := file.Open(in, p.k.Inodes)
	execFile.DenyWrite()

	p.closeAllMaps()
	p.AS.Destroy()

	newAS := vm.New(p.k.Frames, p.k.Swap, defs.UserStackTop)
	for _, s := range segs {
		remaining := s.ReadBytes + s.ZeroBytes
		off := s.Offset
		va := s.VA
		readLeft := s.ReadBytes
		for remaining > 0 {
			pageRead := kutil.Min(readLeft, frame.PageSize)
			pageTotal := kutil.Min(remaining, frame.PageSize)
			pageZero := pageTotal - pageRead
			if pageRead > 0 {
				newAS.InstallUninit(va, s.Writable, &vm.LazyFile{
					File: execFile, Offset: off, ReadBytes: pageRead, ZeroBytes: pageZero,
				})
			} else {
				newAS.InstallUninit(va, s.Writable, vm.LazyZero{})
			}
			va += frame.PageSize
			off += int64(pageRead)
			readLeft -= pageRead
			remaining -= pageTotal
		}
	}

	stackPageBase := defs.UserStackTop - frame.PageSize
	stackPage := newAS.InstallAnon(stackPageBase, true)
	if err := newAS.Claim(stackPage); err != 0 {
		newAS.Destroy()
		execFile.AllowWrite()
		execFile.Close(p.k.Inodes)
		return 0, err
	}
	rsp, err := buildArgvStack(stackPage.Frame(), stackPageBase, defs.UserStackTop, argv)
	if err != 0 {
		newAS.Destroy()
		execFile.AllowWrite()
		execFile.Close(p.k.Inodes)
		return 0, err
	}

	p.mu.Lock()
	oldFds := p.fds
	oldExec := p.execFile
	p.AS = newAS
	p.fds = make(map[int]*fd)
	p.execFile = execFile
	p.mu.Unlock()

	for _, h := range oldFds {
		h.f.Close(p.k.Inodes)
	}
	if oldExec != nil {
		oldExec.AllowWrite()
		oldExec.Close(p.k.Inodes)
	}
	return rsp, 0
}

// buildArgvStack writes argv onto the single already-claimed stack page
// using the conventional layout spec.md §4.11 describes: the strings
// themselves, then an 8-byte-aligned argv pointer array (low address =
// argv[0]) terminated by a NULL slot, then a fake return-address slot.
// All of it must fit within one page; Exec only ever claims the one.
func buildArgvStack(f *frame.Frame, pageBase, top uintptr, argv []string) (uintptr, defs.Err_t) {
	sp := top
	ptrFor := make([]uintptr, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		s := argv[i] + "\x00"
		sp -= uintptr(len(s))
		if sp < pageBase {
			return 0, -defs.EINVAL
		}
		copy(f.Bytes[sp-pageBase:], s)
		ptrFor[i] = sp
	}
	sp = kutil.Rounddown(sp, 8)

	sp -= 8
	if sp < pageBase {
		return 0, -defs.EINVAL
	}
	binary.LittleEndian.PutUint64(f.Bytes[sp-pageBase:], 0)

	for i := len(argv) - 1; i >= 0; i-- {
		sp -= 8
		if sp < pageBase {
			return 0, -defs.EINVAL
		}
		binary.LittleEndian.PutUint64(f.Bytes[sp-pageBase:], uint64(ptrFor[i]))
	}

	sp -= 8 // fake return address
	if sp < pageBase {
		return 0, -defs.EINVAL
	}
	return sp, 0
}

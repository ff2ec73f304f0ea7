package sysgate

import (
	"kcore/internal/defs"
	"kcore/internal/frame"
)

// SyscallNumber enumerates the fixed per-ABI syscall numbers spec.md §6
// lists, used by the (out-of-scope) trap dispatcher to pick which of
// this package's methods to invoke.
type SyscallNumber int

const (
	SysHalt SyscallNumber = iota
	SysExit
	SysFork
	SysExec
	SysWait
	SysCreate
	SysRemove
	SysOpen
	SysFilesize
	SysRead
	SysWrite
	SysSeek
	SysTell
	SysClose
	SysMmap
	SysMunmap
	SysChdir
	SysMkdir
	SysReaddir
	SysIsdir
	SysInumber
	SysSymlink
)

// ValidateBuffer walks every page covering [addr, addr+n) in p's address
// space, failing with EFAULT if any page is unmapped — or, when write is
// true, mapped but read-only — matching spec.md §4.11's "argument
// validation against SPT" requirement: "for buffered I/O the entire
// range is validated page-by-page, and write targets additionally
// require writability. A failed validation terminates the process with
// status -1" (that termination is the trap dispatcher's responsibility,
// out of this core's scope per spec.md §1; this method only reports the
// validation outcome).
func (p *Process) ValidateBuffer(addr uintptr, n int, write bool) defs.Err_t {
	if n == 0 {
		return 0
	}
	if addr >= defs.KernelBase || addr+uintptr(n) > defs.KernelBase || addr+uintptr(n) < addr {
		return -defs.EFAULT
	}
	start := addr - addr%frame.PageSize
	for va := start; va < addr+uintptr(n); va += frame.PageSize {
		page, ok := p.AS.Lookup(va)
		if !ok {
			return -defs.EFAULT
		}
		if write && !page.Writable {
			return -defs.EFAULT
		}
	}
	return 0
}

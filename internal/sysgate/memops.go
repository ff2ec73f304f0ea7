package sysgate

import (
	"kcore/internal/defs"
	"kcore/internal/file"
	"kcore/internal/frame"
)

// MmapFailed is the sentinel mmap return value on failure, per spec.md
// §7's "mmap ... returns a sentinel failure value" (rather than
// terminating the process like other InvalidArgument cases).
const MmapFailed uintptr = 0

// Mmap maps length bytes of the file open at fdNum at addr, matching
// spec.md §4.5. The file is reopened so the mapping survives the user's
// own close of fdNum, per spec.md's "It reopens the file (so close of
// the user's handle does not truncate the mapping)".
func (p *Process) Mmap(addr uintptr, length int, writable bool, fdNum int, offset int64) (uintptr, defs.Err_t) {
	if addr%uintptr(frame.PageSize) != 0 || addr == 0 || length <= 0 || offset < 0 || offset%int64(frame.PageSize) != 0 {
		return MmapFailed, -defs.EINVAL
	}
	if addr >= defs.KernelBase || addr+uintptr(length) > defs.KernelBase || addr+uintptr(length) < addr {
		return MmapFailed, -defs.EINVAL
	}
	h, err := p.getFd(fdNum)
	if err != 0 {
		return MmapFailed, err
	}
	if h.isDir {
		return MmapFailed, -defs.EISDIR
	}
	if h.f.Length() == 0 {
		return MmapFailed, -defs.EINVAL
	}

	p.mu.Lock()
	for va := addr; va < addr+uintptr(length); va += uintptr(frame.PageSize) {
		if _, ok := p.AS.Lookup(va); ok {
			p.mu.Unlock()
			return MmapFailed, -defs.EINVAL
		}
	}
	p.mu.Unlock()

	// Reopen the backing inode: the mapping must outlive fdNum's own
	// Close, per spec.md's "reopens the file" requirement.
	reopened, oerr := p.k.Inodes.Open(h.f.In.Sector)
	if oerr != 0 {
		return MmapFailed, oerr
	}
	mapFile := file.Open(reopened, p.k.Inodes)

	remaining := int64(length)
	off := offset
	for va := addr; remaining > 0; va += uintptr(frame.PageSize) {
		readBytes := int64(frame.PageSize)
		if remaining < readBytes {
			readBytes = remaining
		}
		zeroBytes := int(frame.PageSize) - int(readBytes)
		p.AS.InstallFile(va, writable, mapFile, off, int(readBytes), zeroBytes, true, addr)
		off += readBytes
		remaining -= readBytes
	}

	p.mu.Lock()
	p.maps = append(p.maps, mapping{base: addr, fd: &fd{f: mapFile}})
	p.mu.Unlock()
	return addr, 0
}

// Munmap tears down the mapping based at addr, writing back dirty pages
// and closing the mapping's own file handle, per spec.md §4.5.
func (p *Process) Munmap(addr uintptr) defs.Err_t {
	p.mu.Lock()
	idx := -1
	for i, m := range p.maps {
		if m.base == addr {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.mu.Unlock()
		return -defs.EINVAL
	}
	m := p.maps[idx]
	p.maps = append(p.maps[:idx], p.maps[idx+1:]...)
	p.mu.Unlock()

	p.AS.Munmap(addr)
	m.fd.f.Close(p.k.Inodes)
	return 0
}

// closeAllMaps tears down every active mapping, used on exec and exit.
func (p *Process) closeAllMaps() {
	p.mu.Lock()
	maps := p.maps
	p.maps = nil
	p.mu.Unlock()
	for _, m := range maps {
		p.AS.Munmap(m.base)
		m.fd.f.Close(p.k.Inodes)
	}
}

package sysgate

import (
	"kcore/internal/defs"
	"kcore/internal/dir"
	"kcore/internal/file"
)

// Create makes a new, empty regular file at path, matching spec.md's
// Files group.
func (p *Process) Create(path string, initialSize int64) defs.Err_t {
	p.lockFS()
	defer p.unlockFS()
	parentSector, name, err := p.k.Resolver.ResolveParent(p.Thread, p.Cwd, path)
	if err != 0 {
		return err
	}
	parentIn, err := p.k.Inodes.Open(parentSector)
	if err != 0 {
		return err
	}
	defer p.k.Inodes.Close(parentIn)
	if !parentIn.IsDir() {
		return -defs.ENOTDIR
	}

	nclst, err := p.k.Vol.CreateChain(0)
	if err != 0 {
		return err
	}
	if err := p.k.Inodes.Create(nclst, initialSize, false, false, ""); err != 0 {
		return err
	}
	d := dir.Open(parentIn, p.k.Inodes)
	return d.Add(p.Thread, name, nclst)
}

// Remove unlinks path, matching spec.md's Files group.
func (p *Process) Remove(path string) defs.Err_t {
	p.lockFS()
	defer p.unlockFS()
	parentSector, name, err := p.k.Resolver.ResolveParent(p.Thread, p.Cwd, path)
	if err != 0 {
		return err
	}
	parentIn, err := p.k.Inodes.Open(parentSector)
	if err != 0 {
		return err
	}
	defer p.k.Inodes.Close(parentIn)
	d := dir.Open(parentIn, p.k.Inodes)
	return d.Remove(p.Thread, name)
}

// Open resolves path and installs a new fd-table entry for it.
func (p *Process) Open(path string) (int, defs.Err_t) {
	p.lockFS()
	sector, err := p.k.Resolver.Lookup(p.Thread, p.Cwd, path)
	p.unlockFS()
	if err != 0 {
		return -1, err
	}
	in, err := p.k.Inodes.Open(sector)
	if err != 0 {
		return -1, err
	}
	f := file.Open(in, p.k.Inodes)
	return p.allocFd(f, in.IsDir()), 0
}

// Filesize returns the byte length of the file open at fd.
func (p *Process) Filesize(fdNum int) (int64, defs.Err_t) {
	h, err := p.getFd(fdNum)
	if err != 0 {
		return 0, err
	}
	return h.f.Length(), 0
}

// Read reads into buf from fdNum's current position. fd 0 reads from
// the console input source instead of the fd table, per spec.md §4.11.
func (p *Process) Read(fdNum int, buf []byte) (int, defs.Err_t) {
	if fdNum == 0 {
		n, rerr := ConsoleIn.Read(buf)
		if rerr != nil {
			return 0, 0
		}
		return n, 0
	}
	h, err := p.getFd(fdNum)
	if err != 0 {
		return 0, err
	}
	if h.isDir {
		return 0, -defs.EISDIR
	}
	return h.f.Read(buf)
}

// Write writes buf to fdNum's current position. fd 1 writes to the
// console output sink instead of the fd table, per spec.md §4.11.
func (p *Process) Write(fdNum int, buf []byte) (int, defs.Err_t) {
	if fdNum == 1 {
		n, _ := Console.Write(buf)
		return n, 0
	}
	h, err := p.getFd(fdNum)
	if err != 0 {
		return 0, err
	}
	if h.isDir {
		return 0, -defs.EISDIR
	}
	return h.f.Write(p.Thread, buf)
}

// Seek sets fdNum's position.
func (p *Process) Seek(fdNum int, pos int64) defs.Err_t {
	h, err := p.getFd(fdNum)
	if err != 0 {
		return err
	}
	h.f.Seek(pos)
	return 0
}

// Tell returns fdNum's current position.
func (p *Process) Tell(fdNum int) (int64, defs.Err_t) {
	h, err := p.getFd(fdNum)
	if err != 0 {
		return 0, err
	}
	return h.f.Tell(), 0
}

// Close releases fdNum. Mappings made from it stay in place: each holds
// its own reopened handle, which Munmap (or exit/exec) closes.
func (p *Process) Close(fdNum int) defs.Err_t {
	p.mu.Lock()
	h, ok := p.fds[fdNum]
	if !ok {
		p.mu.Unlock()
		return -defs.EBADF
	}
	delete(p.fds, fdNum)
	p.mu.Unlock()
	h.f.Close(p.k.Inodes)
	return 0
}

// Chdir changes the process's working directory. The new directory's
// inode is kept open for as long as it remains the process's cwd, so
// dir.Remove's OpenCount busy check sees it and refuses to remove a
// directory that is someone's working directory, per spec.md §4.9.
func (p *Process) Chdir(path string) defs.Err_t {
	p.lockFS()
	sector, err := p.k.Resolver.Lookup(p.Thread, p.Cwd, path)
	p.unlockFS()
	if err != 0 {
		return err
	}
	in, err := p.k.Inodes.Open(sector)
	if err != 0 {
		return err
	}
	if !in.IsDir() {
		p.k.Inodes.Close(in)
		return -defs.ENOTDIR
	}
	p.mu.Lock()
	old := p.cwdIn
	p.Cwd = sector
	p.cwdIn = in
	p.mu.Unlock()
	if old != nil {
		p.k.Inodes.Close(old)
	}
	return 0
}

// Mkdir creates a new directory at path.
func (p *Process) Mkdir(path string) defs.Err_t {
	p.lockFS()
	defer p.unlockFS()
	parentSector, name, err := p.k.Resolver.ResolveParent(p.Thread, p.Cwd, path)
	if err != 0 {
		return err
	}
	parentIn, err := p.k.Inodes.Open(parentSector)
	if err != 0 {
		return err
	}
	defer p.k.Inodes.Close(parentIn)
	if !parentIn.IsDir() {
		return -defs.ENOTDIR
	}
	pd := dir.Open(parentIn, p.k.Inodes)
	if _, ok, _ := pd.Lookup(name); ok {
		return -defs.EEXIST
	}

	nclst, err := p.k.Vol.CreateChain(0)
	if err != 0 {
		return err
	}
	if err := dir.Create(p.k.Inodes, p.Thread, nclst, parentSector); err != 0 {
		return err
	}
	return pd.Add(p.Thread, name, nclst)
}

// Readdir returns the next child name for the directory open at fdNum,
// or ok=false at end of directory, matching Pintos's one-name-per-call
// readdir contract.
func (p *Process) Readdir(fdNum int) (string, bool, defs.Err_t) {
	h, err := p.getFd(fdNum)
	if err != 0 {
		return "", false, err
	}
	if !h.isDir {
		return "", false, -defs.ENOTDIR
	}
	d := dir.Open(h.f.In, p.k.Inodes)
	names, err := d.List()
	if err != 0 {
		return "", false, err
	}
	p.mu.Lock()
	idx := h.dirPos
	if idx >= int64(len(names)) {
		p.mu.Unlock()
		return "", false, 0
	}
	h.dirPos++
	p.mu.Unlock()
	return names[idx], true, 0
}

// Isdir reports whether fdNum refers to a directory.
func (p *Process) Isdir(fdNum int) (bool, defs.Err_t) {
	h, err := p.getFd(fdNum)
	if err != 0 {
		return false, err
	}
	return h.isDir, 0
}

// Inumber returns fdNum's backing inode number (its cluster/sector).
func (p *Process) Inumber(fdNum int) (int, defs.Err_t) {
	h, err := p.getFd(fdNum)
	if err != 0 {
		return 0, err
	}
	return int(h.f.In.Sector), 0
}

// Symlink creates a symbolic link at linkPath pointing at target.
func (p *Process) Symlink(target, linkPath string) defs.Err_t {
	p.lockFS()
	defer p.unlockFS()
	parentSector, name, err := p.k.Resolver.ResolveParent(p.Thread, p.Cwd, linkPath)
	if err != 0 {
		return err
	}
	parentIn, err := p.k.Inodes.Open(parentSector)
	if err != 0 {
		return err
	}
	defer p.k.Inodes.Close(parentIn)

	nclst, err := p.k.Vol.CreateChain(0)
	if err != 0 {
		return err
	}
	if err := p.k.Inodes.Create(nclst, int64(len(target)), false, true, target); err != 0 {
		return err
	}
	d := dir.Open(parentIn, p.k.Inodes)
	return d.Add(p.Thread, name, nclst)
}

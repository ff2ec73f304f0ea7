// Package file implements the file handle object (C13): an in-memory
// inode reference, byte position, and deny-write flag, following
// spec.md §4.10 and the shape of biscuit's fd package (a small struct
// wrapping an inode reference with offset/flag bookkeeping).
package file

import (
	"errors"

	"kcore/internal/defs"
	"kcore/internal/inode"
	"kcore/internal/sched"
	"kcore/internal/vm"
)

// File is an open file handle: every fd table slot in C14 that refers
// to a regular file holds one of these.
type File struct {
	In        *inode.Inode
	tbl       *inode.Table
	pos       int64
	denyWrite bool
}

// Open wraps an already-opened inode as a file handle at position 0.
func Open(in *inode.Inode, tbl *inode.Table) *File {
	return &File{In: in, tbl: tbl}
}

// ReadAt implements vm.FileBacking, letting a File double as the backing
// store for a demand-paged or mmap'd page.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	n, err := f.In.ReadAt(f.tbl, p, off)
	if err != 0 {
		return n, err
	}
	return n, nil
}

// Reopen implements vm.Reopener: it opens a fresh reference onto the
// same underlying inode, used by copy-on-fork so the child's File-backed
// descriptor doesn't alias the parent's open count, deny-write flag, or
// position, per spec.md §4.6's "File-backed copies reopen the file".
func (f *File) Reopen() (vm.FileBacking, error) {
	in, err := f.tbl.Open(f.In.Sector)
	if err != 0 {
		return nil, errors.New(err.Error())
	}
	return Open(in, f.tbl), nil
}

// WriteAt implements vm.FileBacking for mmap write-back; it runs under
// the inode table's dedicated writeback thread since eviction has no
// natural user-thread context of its own.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	n, err := f.In.WriteAt(f.tbl, f.tbl.WritebackThread(), p, off)
	if err != 0 {
		return n, err
	}
	return n, nil
}

// Read reads up to len(buf) bytes at the current position and advances
// it.
func (f *File) Read(buf []byte) (int, defs.Err_t) {
	n, err := f.In.ReadAt(f.tbl, buf, f.pos)
	if err != 0 {
		return n, err
	}
	f.pos += int64(n)
	return n, 0
}

// Write writes buf at the current position, advancing it, and honors
// the deny-write count per spec.md §4.10.
func (f *File) Write(t *sched.Thread, buf []byte) (int, defs.Err_t) {
	n, err := f.In.WriteAt(f.tbl, t, buf, f.pos)
	if err != 0 {
		return n, err
	}
	f.pos += int64(n)
	return n, 0
}

// Seek sets the file position with no clamping, per spec.md §4.10.
func (f *File) Seek(pos int64) { f.pos = pos }

// Tell returns the current position.
func (f *File) Tell() int64 { return f.pos }

// Length returns the backing inode's byte length.
func (f *File) Length() int64 { return f.In.Length() }

// DenyWrite marks this handle's backing inode non-writable while an
// executable image is running from it.
func (f *File) DenyWrite() {
	if f.denyWrite {
		return
	}
	f.denyWrite = true
	f.In.DenyWrite()
}

// AllowWrite reverses DenyWrite.
func (f *File) AllowWrite() {
	if !f.denyWrite {
		return
	}
	f.denyWrite = false
	f.In.AllowWrite()
}

// Close releases this handle's reference to its inode.
func (f *File) Close(tbl *inode.Table) {
	if f.denyWrite {
		f.In.AllowWrite()
	}
	tbl.Close(f.In)
}

// Package sysgate implements the system-call gate (C14): process
// lifecycle (fork/exec/wait/exit), the per-process file-descriptor
// table, user pointer/buffer validation against the SPT, and the
// syscalls grouped by concern spec.md §4.11 lists. Its shape —a
// Process_t-like struct owning an address space, an fd table, and a
// parent/child/wait relationship— follows biscuit's caller package and
// Pintos's userprog/process.c and userprog/syscall.c.
package sysgate

import (
	"sync"

	"kcore/internal/defs"
	"kcore/internal/fat"
	"kcore/internal/file"
	"kcore/internal/frame"
	"kcore/internal/inode"
	"kcore/internal/sched"
	"kcore/internal/swap"
	"kcore/internal/vm"
	"kcore/internal/vpath"
)

// Kernel bundles the singleton subsystems every process's syscalls
// reach into, matching spec.md's "global mutable state ... explicitly
// initialized modules" design note.
type Kernel struct {
	Sched    *sched.Scheduler
	Frames   *frame.Table
	Swap     *swap.Table
	Vol      *fat.Volume
	Inodes   *inode.Table
	Resolver *vpath.Resolver

	fsSema *sched.Semaphore // the single filesystem-mutating-syscall semaphore

	// OnHalt, if set, is invoked by the HALT syscall to shut the
	// simulator down; left nil in tests that only exercise one process.
	OnHalt func()

	mu    sync.Mutex
	procs map[defs.Pid_t]*Process
}

// NewKernel wires the singleton subsystems into a Kernel.
func NewKernel(s *sched.Scheduler, frames *frame.Table, slots *swap.Table, vol *fat.Volume, inodes *inode.Table, resolver *vpath.Resolver) *Kernel {
	return &Kernel{
		Sched: s, Frames: frames, Swap: slots, Vol: vol, Inodes: inodes, Resolver: resolver,
		fsSema: s.NewSemaphore(1),
		procs:  make(map[defs.Pid_t]*Process),
	}
}

// fd is one file-descriptor-table slot: either a regular file or a
// directory handle, both backed by *file.File (a directory's data
// region is just bytes like any other inode).
type fd struct {
	f      *file.File
	isDir  bool
	dirPos int64 // readdir cursor, directory entries only
}

// mapping records one active mmap for Munmap/exit cleanup.
type mapping struct {
	base uintptr
	fd   *fd
}

// Process is one running process: identity, address space, fd table,
// and lifecycle bookkeeping, matching spec.md's Thread data model's
// process-level fields.
type Process struct {
	mu sync.Mutex

	Thread *sched.Thread
	k      *Kernel

	AS  *vm.AddressSpace
	Cwd   fat.Cluster
	cwdIn *inode.Inode // kept open for the process's lifetime so dir.Remove's OpenCount check sees it

	fds map[int]*fd

	execFile *file.File

	Parent   *Process
	children []*Process

	maps []mapping
}

// Spawn creates the first (init) process, with cwd set to the
// filesystem root.
func (k *Kernel) Spawn(name string, stackTop uintptr) *Process {
	t := k.Sched.NewThread(name, sched.PriDefault)
	p := &Process{
		Thread: t, k: k,
		AS:  vm.New(k.Frames, k.Swap, stackTop),
		Cwd: k.Resolver.Root,
		fds: make(map[int]*fd),
	}
	if in, err := k.Inodes.Open(k.Resolver.Root); err == 0 {
		p.cwdIn = in
	}
	k.mu.Lock()
	k.procs[t.ID()] = p
	k.mu.Unlock()
	return p
}

// lockFS serializes every filesystem-mutating syscall across path
// resolution and the mutation, per spec.md §4.9.
func (p *Process) lockFS() { p.k.fsSema.Down(p.Thread) }
func (p *Process) unlockFS() { p.k.fsSema.Up() }

// allocFd reserves the smallest unused descriptor number, per spec.md
// §4.11 ("allocation is lowest-free"). 0 and 1 are never handed out:
// they are reserved for console input/output, modeled as the external
// block/char device collaborators spec.md §1 places out of this core's
// scope, so the fd table itself never holds an entry for them.
func (p *Process) allocFd(f *file.File, isDir bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 2
	for {
		if _, used := p.fds[n]; !used {
			break
		}
		n++
	}
	p.fds[n] = &fd{f: f, isDir: isDir}
	return n
}

func (p *Process) getFd(n int) (*fd, defs.Err_t) {
	if n == 0 || n == 1 {
		return nil, -defs.EBADF
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.fds[n]
	if !ok {
		return nil, -defs.EBADF
	}
	return f, 0
}

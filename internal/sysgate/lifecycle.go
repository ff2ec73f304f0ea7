package sysgate

import (
	"fmt"
	"io"
	"strings"

	"kcore/internal/defs"
	"kcore/internal/file"
	"kcore/internal/sched"
)

// Console is where Exit's termination line and fd 1 (console output)
// writes go, per spec.md §6's exit convention and §4.11's "0 and 1 are
// reserved for console input/output". Tests substitute a bytes.Buffer; a
// real boot wires the simulator's stdout (see internal/klog for the
// ambient logging layer that wraps this for everything else).
var Console io.Writer = io.Discard

// ConsoleIn backs fd 0 (console input), modeled per spec.md §1 as the
// external character input source collaborator. Defaults to always-EOF;
// a real boot wires the keyboard driver's equivalent here.
var ConsoleIn io.Reader = strings.NewReader("")

// Halt stops the whole simulator, matching the HALT syscall's scope
// (spec.md §4.11's Process group). There is no return: a real boot loop
// observes this through the hook and shuts down the scheduler's init ->
// steady -> shutdown lifecycle (spec.md §9).
func (k *Kernel) Halt() {
	if k.OnHalt != nil {
		k.OnHalt()
	}
}

// Exit terminates the calling process: it prints the conventional exit
// line, releases the address space and every open resource, and wakes
// anything waiting on this process via Wait.
func (p *Process) Exit(status int) {
	fmt.Fprintf(Console, "%s: exit(%d)\n", p.Thread.Name, status)

	p.closeAllMaps()
	p.AS.Destroy()

	p.mu.Lock()
	fds := p.fds
	p.fds = nil
	execFile := p.execFile
	p.execFile = nil
	p.mu.Unlock()
	for _, h := range fds {
		h.f.Close(p.k.Inodes)
	}
	if execFile != nil {
		execFile.AllowWrite()
		execFile.Close(p.k.Inodes)
	}
	p.mu.Lock()
	cwdIn := p.cwdIn
	p.cwdIn = nil
	p.mu.Unlock()
	if cwdIn != nil {
		p.k.Inodes.Close(cwdIn)
	}

	p.k.mu.Lock()
	delete(p.k.procs, p.Thread.ID())
	p.k.mu.Unlock()

	p.k.Sched.Exit(p.Thread, status)
}

// Fork creates a child process that is a deep copy of p: its address
// space (copy-on-fork, spec.md §4.6), its open file table (every handle
// duplicated onto the same inode), and its working directory. Per
// spec.md §4.11 the parent is meant to observe the child's tid and the
// child 0; since trapframe/return-value plumbing for a simulated user
// program is outside this core's scope (spec.md §1), callers act on the
// returned child Process directly instead.
func (p *Process) Fork(name string) (*Process, defs.Err_t) {
	childAS, err := p.AS.Fork()
	if err != 0 {
		return nil, err
	}

	t := p.k.Sched.NewThread(name, p.Thread.BasePriority())
	child := &Process{
		Thread: t, k: p.k,
		AS:  childAS,
		fds: make(map[int]*fd),
	}

	p.mu.Lock()
	child.Cwd = p.Cwd
	if p.cwdIn != nil {
		if in, oerr := p.k.Inodes.Open(p.cwdIn.Sector); oerr == 0 {
			child.cwdIn = in
		}
	}
	for n, h := range p.fds {
		in, oerr := p.k.Inodes.Open(h.f.In.Sector)
		if oerr != 0 {
			continue
		}
		nf := file.Open(in, p.k.Inodes)
		nf.Seek(h.f.Tell())
		child.fds[n] = &fd{f: nf, isDir: h.isDir, dirPos: h.dirPos}
	}
	child.Parent = p
	p.children = append(p.children, child)
	p.mu.Unlock()

	p.k.mu.Lock()
	p.k.procs[t.ID()] = child
	p.k.mu.Unlock()

	return child, 0
}

// Wait blocks until the child with the given pid exits and returns its
// exit status, matching spec.md §4.11's WAIT syscall. A pid that is not
// (or is no longer) one of p's children fails immediately, matching
// Pintos's "not a direct child, or already waited on" rule.
func (p *Process) Wait(pid defs.Pid_t) (int, defs.Err_t) {
	p.mu.Lock()
	idx := -1
	for i, c := range p.children {
		if c.Thread.ID() == pid {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.mu.Unlock()
		return -1, -defs.ESRCH
	}
	child := p.children[idx]
	p.children = append(p.children[:idx], p.children[idx+1:]...)
	p.mu.Unlock()

	status := sched.WaitExit(child.Thread)
	return status, 0
}

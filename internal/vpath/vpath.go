// Package vpath implements the path resolver (C12): given a
// slash-separated path and a starting directory (the caller's working
// directory, or the filesystem root for an absolute path), it walks one
// component at a time, following symlinks transitively, and yields
// either a resolved inode (for open) or a (parent directory, final
// name) pair (for create/remove). The symlink-following cap and
// relative-path semantics are grounded on Pintos's
// filesys/inode.c:syml_to_inode (the only concrete path-resolution
// algorithm retrieved for this spec).
package vpath

import (
	"strings"

	"kcore/internal/dir"
	"kcore/internal/defs"
	"kcore/internal/fat"
	"kcore/internal/inode"
	"kcore/internal/sched"
)

// MaxSymlinkHops bounds transitive symlink resolution, matching spec.md
// §4.9 and the ELOOP error code.
const MaxSymlinkHops = 40

// Resolver ties the directory/inode layers together with the root
// inode's sector, so callers don't need to thread that through every
// call.
type Resolver struct {
	Tbl  *inode.Table
	Root fat.Cluster
}

// New creates a Resolver over tbl, whose filesystem root directory
// inode lives at root.
func New(tbl *inode.Table, root fat.Cluster) *Resolver {
	return &Resolver{Tbl: tbl, Root: root}
}

func splitPath(path string) (absolute bool, parts []string) {
	absolute = strings.HasPrefix(path, "/")
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return
}

// followSymlink resolves sector to a non-symlink inode sector, following
// at most *hops indirections total across the whole resolution (not just
// this call): a symlink chain recurses back through lookup, so the
// budget is threaded through every nested call rather than reset per
// call, or a cycle would recurse indefinitely instead of hitting
// MaxSymlinkHops. The symlink target is itself resolved relative to the
// directory containing the symlink (per syml_to_inode's recursive
// behavior).
func (r *Resolver) followSymlink(t *sched.Thread, cwd fat.Cluster, sector fat.Cluster, hops *int) (fat.Cluster, defs.Err_t) {
	cur := sector
	for {
		if *hops <= 0 {
			return 0, -defs.ELOOP
		}
		*hops--
		in, err := r.Tbl.Open(cur)
		if err != 0 {
			return 0, err
		}
		if !in.IsSymlink() {
			r.Tbl.Close(in)
			return cur, 0
		}
		target := in.LinkTarget()
		r.Tbl.Close(in)
		next, err := r.lookup(t, cwd, target, hops)
		if err != 0 {
			return 0, err
		}
		cur = next
	}
}

// Lookup resolves path (absolute or relative to cwd) to an inode sector,
// following symlinks at every hop and requiring every non-final
// component to be a directory, per spec.md §4.9.
func (r *Resolver) Lookup(t *sched.Thread, cwd fat.Cluster, path string) (fat.Cluster, defs.Err_t) {
	hops := MaxSymlinkHops
	return r.lookup(t, cwd, path, &hops)
}

func (r *Resolver) lookup(t *sched.Thread, cwd fat.Cluster, path string, hops *int) (fat.Cluster, defs.Err_t) {
	absolute, parts := splitPath(path)
	cur := cwd
	if absolute {
		cur = r.Root
	}
	if len(parts) == 0 {
		return r.followSymlink(t, cwd, cur, hops)
	}
	for i, name := range parts {
		in, err := r.Tbl.Open(cur)
		if err != 0 {
			return 0, err
		}
		if !in.IsDir() {
			r.Tbl.Close(in)
			return 0, -defs.ENOTDIR
		}
		d := dir.Open(in, r.Tbl)
		next, ok, err := d.Lookup(name)
		r.Tbl.Close(in)
		if err != 0 {
			return 0, err
		}
		if !ok {
			return 0, -defs.ENOENT
		}
		resolved, err := r.followSymlink(t, cur, next, hops)
		if err != 0 {
			return 0, err
		}
		if i < len(parts)-1 {
			in2, err := r.Tbl.Open(resolved)
			if err != 0 {
				return 0, err
			}
			isDir := in2.IsDir()
			r.Tbl.Close(in2)
			if !isDir {
				return 0, -defs.ENOTDIR
			}
		}
		cur = resolved
	}
	return cur, 0
}

// ResolveParent resolves every path component but the last, returning
// the containing directory's sector and the final component name, for
// create/remove operations that need to mutate the parent directory.
func (r *Resolver) ResolveParent(t *sched.Thread, cwd fat.Cluster, path string) (fat.Cluster, string, defs.Err_t) {
	absolute, parts := splitPath(path)
	if len(parts) == 0 {
		return 0, "", -defs.EINVAL
	}
	hops := MaxSymlinkHops
	cur := cwd
	if absolute {
		cur = r.Root
	}
	for _, name := range parts[:len(parts)-1] {
		in, err := r.Tbl.Open(cur)
		if err != 0 {
			return 0, "", err
		}
		if !in.IsDir() {
			r.Tbl.Close(in)
			return 0, "", -defs.ENOTDIR
		}
		d := dir.Open(in, r.Tbl)
		next, ok, err := d.Lookup(name)
		r.Tbl.Close(in)
		if err != 0 {
			return 0, "", err
		}
		if !ok {
			return 0, "", -defs.ENOENT
		}
		resolved, err := r.followSymlink(t, cur, next, &hops)
		if err != 0 {
			return 0, "", err
		}
		cur = resolved
	}
	return cur, parts[len(parts)-1], 0
}

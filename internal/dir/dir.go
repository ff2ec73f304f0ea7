// Package dir implements the directory layer (C11): a directory inode's
// data bytes are an array of fixed-size entries, each naming a child
// inode. Entry layout and the lookup/add/remove algorithms follow
// spec.md §4.9; name validation (dot/dotdot comparison, max length)
// follows biscuit's ustr.Ustr helpers.
package dir

import (
	"encoding/binary"

	"kcore/internal/defs"
	"kcore/internal/fat"
	"kcore/internal/inode"
	"kcore/internal/kstats"
	"kcore/internal/sched"
)

// NameMax bounds a single path component, matching spec.md's Directory
// entry "name: string<=14".
const NameMax = 14

// entrySize is {in_use byte, name[NameMax], inode_sector uint32}.
const entrySize = 1 + NameMax + 4

// entriesPerSector is how many directory entries fit in one 512-byte
// sector; directories grow by whole sectors via the inode's own chain
// extension (WriteAt), so this is also the growth quantum.
const entriesPerSector = 512 / entrySize

// Entry is one decoded directory entry.
type Entry struct {
	InUse  bool
	Name   string
	Sector fat.Cluster
}

func (e *Entry) marshal() []byte {
	buf := make([]byte, entrySize)
	if e.InUse {
		buf[0] = 1
	}
	name := []byte(e.Name)
	if len(name) > NameMax {
		name = name[:NameMax]
	}
	copy(buf[1:1+len(name)], name)
	binary.LittleEndian.PutUint32(buf[1+NameMax:1+NameMax+4], uint32(e.Sector))
	return buf
}

func unmarshalEntry(buf []byte) Entry {
	end := 1
	for end < 1+NameMax && buf[end] != 0 {
		end++
	}
	return Entry{
		InUse:  buf[0] != 0,
		Name:   string(buf[1:end]),
		Sector: fat.Cluster(binary.LittleEndian.Uint32(buf[1+NameMax : 1+NameMax+4])),
	}
}

// Dir wraps an inode known to hold directory entries.
type Dir struct {
	In  *inode.Inode
	tbl *inode.Table
}

// Open wraps an already-open directory inode.
func Open(in *inode.Inode, tbl *inode.Table) *Dir {
	return &Dir{In: in, tbl: tbl}
}

// Create formats a brand-new directory inode at sector, pre-populating
// `.` and `..`, matching spec.md's Directory data model ("every
// directory contains `.` and `..` at creation").
func Create(tbl *inode.Table, t *sched.Thread, sector fat.Cluster, parent fat.Cluster) defs.Err_t {
	if err := tbl.Create(sector, 0, true, false, ""); err != 0 {
		return err
	}
	in, err := tbl.Open(sector)
	if err != 0 {
		return err
	}
	defer tbl.Close(in)
	d := &Dir{In: in, tbl: tbl}
	if err := d.rawAdd(t, ".", sector); err != 0 {
		return err
	}
	if err := d.rawAdd(t, "..", parent); err != 0 {
		return err
	}
	return 0
}

func (d *Dir) entries() ([]Entry, defs.Err_t) {
	length := d.In.Length()
	var out []Entry
	buf := make([]byte, entrySize)
	for off := int64(0); off+int64(entrySize) <= length; off += int64(entrySize) {
		n, err := d.In.ReadAt(d.tbl, buf, off)
		if err != 0 {
			return nil, err
		}
		if n < entrySize {
			break
		}
		out = append(out, unmarshalEntry(buf))
	}
	return out, 0
}

// Lookup scans for an in-use entry named name, returning its inode
// sector.
func (d *Dir) Lookup(name string) (fat.Cluster, bool, defs.Err_t) {
	kstats.Global.DirLookups.Inc()
	ents, err := d.entries()
	if err != 0 {
		return 0, false, err
	}
	for _, e := range ents {
		if e.InUse && e.Name == name {
			return e.Sector, true, 0
		}
	}
	return 0, false, 0
}

// rawAdd appends an entry with no collision check, used when formatting
// a fresh directory's `.`/`..` pair.
func (d *Dir) rawAdd(t *sched.Thread, name string, sector fat.Cluster) defs.Err_t {
	e := Entry{InUse: true, Name: name, Sector: sector}
	off := d.In.Length()
	_, err := d.In.WriteAt(d.tbl, t, e.marshal(), off)
	return err
}

// Add places a new entry for name -> sector, failing on a name
// collision, otherwise reusing the first unused slot or extending the
// directory, per spec.md §4.9.
func (d *Dir) Add(t *sched.Thread, name string, sector fat.Cluster) defs.Err_t {
	if len(name) == 0 || len(name) > NameMax {
		return -defs.ENAMETOOLONG
	}
	length := d.In.Length()
	buf := make([]byte, entrySize)
	for off := int64(0); off+int64(entrySize) <= length; off += int64(entrySize) {
		n, err := d.In.ReadAt(d.tbl, buf, off)
		if err != 0 {
			return err
		}
		if n < entrySize {
			break
		}
		e := unmarshalEntry(buf)
		if e.InUse && e.Name == name {
			return -defs.EEXIST
		}
		if !e.InUse {
			ne := Entry{InUse: true, Name: name, Sector: sector}
			_, err := d.In.WriteAt(d.tbl, t, ne.marshal(), off)
			return err
		}
	}
	ne := Entry{InUse: true, Name: name, Sector: sector}
	_, err := d.In.WriteAt(d.tbl, t, ne.marshal(), length)
	return err
}

// Remove marks name's entry unused and the underlying inode removed.
// Fails if the target is a non-empty directory, matching spec.md §4.9.
func (d *Dir) Remove(t *sched.Thread, name string) defs.Err_t {
	if name == "." || name == ".." {
		return -defs.EBUSY
	}
	length := d.In.Length()
	buf := make([]byte, entrySize)
	for off := int64(0); off+int64(entrySize) <= length; off += int64(entrySize) {
		n, err := d.In.ReadAt(d.tbl, buf, off)
		if err != 0 {
			return err
		}
		if n < entrySize {
			break
		}
		e := unmarshalEntry(buf)
		if !e.InUse || e.Name != name {
			continue
		}
		target, err := d.tbl.Open(e.Sector)
		if err != 0 {
			return err
		}
		if target.IsDir() {
			// Our own Open above holds one reference; any count beyond
			// that means some other holder (a process's cwd, another
			// in-flight lookup) has this directory open, matching
			// spec.md §4.9's "or is otherwise in use" and §7's EBUSY.
			// Regular files are unaffected: removing an open file does
			// not fail, matching the original's "removing an opened
			// file does not close it" (userprog/syscall.c's remove).
			if target.OpenCount() > 1 {
				d.tbl.Close(target)
				return -defs.EBUSY
			}
			sub := &Dir{In: target, tbl: d.tbl}
			subEnts, err := sub.entries()
			if err != 0 {
				d.tbl.Close(target)
				return err
			}
			count := 0
			for _, se := range subEnts {
				if se.InUse && se.Name != "." && se.Name != ".." {
					count++
				}
			}
			if count > 0 {
				d.tbl.Close(target)
				return -defs.ENOTEMPTY
			}
		}
		e.InUse = false
		if _, err := d.In.WriteAt(d.tbl, t, e.marshal(), off); err != 0 {
			d.tbl.Close(target)
			return err
		}
		d.tbl.Remove(target)
		d.tbl.Close(target)
		return 0
	}
	return -defs.ENOENT
}

// List returns every in-use entry name except `.` and `..`, matching
// spec.md's readdir contract.
func (d *Dir) List() ([]string, defs.Err_t) {
	ents, err := d.entries()
	if err != 0 {
		return nil, err
	}
	var names []string
	for _, e := range ents {
		if e.InUse && e.Name != "." && e.Name != ".." {
			names = append(names, e.Name)
		}
	}
	return names, 0
}

package vm

import (
	"kcore/internal/defs"
	"kcore/internal/frame"
)

// LazyFile is the Initializer used for demand-paged executable segments
// and private mmap mappings: on first claim it reads its byte range from
// the backing file and morphs into a File page, matching spec.md §4.5's
// "On first claim, swap_in runs the stored initializer ... with the
// stored auxiliary record ... and then morphs the descriptor into Anon
// or File".
type LazyFile struct {
	File      FileBacking
	Offset    int64
	ReadBytes int
	ZeroBytes int
	IsMmap    bool
	MmapBase  uintptr
}

// Init implements Initializer.
func (l *LazyFile) Init(f *frame.Frame) (Kind, defs.Err_t) {
	n, err := l.File.ReadAt(f.Bytes[:l.ReadBytes], l.Offset)
	if err != nil && n == 0 && l.ReadBytes > 0 {
		return KindFile, -defs.EIO
	}
	for i := n; i < l.ReadBytes+l.ZeroBytes && i < len(f.Bytes); i++ {
		f.Bytes[i] = 0
	}
	return KindFile, 0
}

// Clone implements Initializer.
func (l *LazyFile) Clone() Initializer {
	cp := *l
	return &cp
}

// Apply implements Initializer: it copies the file-backing metadata onto
// the now-File page so later eviction/write-back know where to go.
func (l *LazyFile) Apply(p *Page) {
	p.file = l.File
	p.offset = l.Offset
	p.readBytes = l.ReadBytes
	p.zeroBytes = l.ZeroBytes
	p.isMmap = l.IsMmap
	p.mmapBase = l.MmapBase
}

// LazyZero is the Initializer for a lazily zero-filled anonymous page
// (stack/BSS extension that is not yet resident): Init just zeroes the
// frame, and Apply has nothing to copy since Anon pages carry no
// per-instance metadata beyond their (initially empty) swap slot.
type LazyZero struct{}

// Init implements Initializer.
func (LazyZero) Init(f *frame.Frame) (Kind, defs.Err_t) {
	for i := range f.Bytes {
		f.Bytes[i] = 0
	}
	return KindAnon, 0
}

// Clone implements Initializer.
func (LazyZero) Clone() Initializer { return LazyZero{} }

// Apply implements Initializer.
func (LazyZero) Apply(*Page) {}

package inode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kcore/internal/block"
	"kcore/internal/defs"
	"kcore/internal/fat"
	"kcore/internal/sched"
)

func newTestTable(t *testing.T) (*Table, *sched.Scheduler, *sched.Thread) {
	t.Helper()
	dev := block.NewMemDevice(512)
	vol, err := fat.Format(dev)
	require.Equal(t, defs.Err_t(0), err)
	s := sched.New(sched.PolicyPriorityDonation)
	thread := s.NewThread("test", sched.PriDefault)
	return NewTable(s, vol), s, thread
}

func createInode(t *testing.T, tbl *Table) fat.Cluster {
	t.Helper()
	sector, err := tbl.vol.CreateChain(0)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, defs.Err_t(0), tbl.Create(sector, 0, false, false, ""))
	return sector
}

func TestOpenCachesSameInodeAcrossCalls(t *testing.T) {
	tbl, _, _ := newTestTable(t)
	sector := createInode(t, tbl)

	a, err := tbl.Open(sector)
	require.Equal(t, defs.Err_t(0), err)
	b, err := tbl.Open(sector)
	require.Equal(t, defs.Err_t(0), err)
	assert.Same(t, a, b, "opening the same sector twice must return the same cached Inode")
}

func TestOpenRejectsNonInodeSector(t *testing.T) {
	tbl, _, _ := newTestTable(t)
	// A freshly allocated, never-initialized cluster has no magic set.
	sector, err := tbl.vol.CreateChain(0)
	require.Equal(t, defs.Err_t(0), err)

	_, oerr := tbl.Open(sector)
	assert.Equal(t, -defs.EINVAL, oerr)
}

func TestWriteAtExtendsLengthAndReadsBackExactly(t *testing.T) {
	tbl, _, thread := newTestTable(t)
	sector := createInode(t, tbl)
	in, err := tbl.Open(sector)
	require.Equal(t, defs.Err_t(0), err)

	data := make([]byte, 10)
	for i := range data {
		data[i] = byte(i + 1)
	}
	n, werr := in.WriteAt(tbl, thread, data, 0)
	require.Equal(t, defs.Err_t(0), werr)
	assert.Equal(t, len(data), n)
	assert.Equal(t, int64(len(data)), in.Length())

	got := make([]byte, len(data))
	rn, rerr := in.ReadAt(tbl, got, 0)
	require.Equal(t, defs.Err_t(0), rerr)
	assert.Equal(t, len(data), rn)
	assert.Equal(t, data, got)
}

func TestWriteAtGrowsAcrossMultipleClusters(t *testing.T) {
	tbl, _, thread := newTestTable(t)
	sector := createInode(t, tbl)
	in, err := tbl.Open(sector)
	require.Equal(t, defs.Err_t(0), err)

	// Span three 512-byte sectors worth of data so growLocked must chain
	// more than one new cluster.
	data := make([]byte, 512*3+17)
	for i := range data {
		data[i] = byte(i)
	}
	n, werr := in.WriteAt(tbl, thread, data, 0)
	require.Equal(t, defs.Err_t(0), werr)
	assert.Equal(t, len(data), n)

	got := make([]byte, len(data))
	rn, rerr := in.ReadAt(tbl, got, 0)
	require.Equal(t, defs.Err_t(0), rerr)
	assert.Equal(t, len(data), rn)
	assert.Equal(t, data, got)

	chain := tbl.vol.Walk(tbl.vol.SectorToCluster(in.data.Start))
	assert.Equal(t, 4, len(chain), "512*3+17 bytes spans exactly four 512-byte sectors")
}

// TestWriteAtClusterCountMatchesScenario3 pins the exact cluster count from
// spec.md §8 scenario 3: writing 4096 bytes to a fresh file then one more
// byte must grow the chain to exactly 9 clusters, not 10. A prior bug had
// Create pre-allocate a spurious first cluster for every new file, so
// growLocked's sector delta was computed against a chain that already held
// one more cluster than in.data.Length accounted for.
func TestWriteAtClusterCountMatchesScenario3(t *testing.T) {
	tbl, _, thread := newTestTable(t)
	sector := createInode(t, tbl)
	in, err := tbl.Open(sector)
	require.Equal(t, defs.Err_t(0), err)

	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i)
	}
	n, werr := in.WriteAt(tbl, thread, data, 0)
	require.Equal(t, defs.Err_t(0), werr)
	assert.Equal(t, len(data), n)
	assert.Equal(t, int64(4096), in.Length())

	chainAt4096 := tbl.vol.Walk(tbl.vol.SectorToCluster(in.data.Start))
	assert.Equal(t, 8, len(chainAt4096), "4096 bytes is exactly eight 512-byte sectors")

	_, werr = in.WriteAt(tbl, thread, []byte{0xAB}, 4096)
	require.Equal(t, defs.Err_t(0), werr)
	assert.Equal(t, int64(4097), in.Length())

	chain := tbl.vol.Walk(tbl.vol.SectorToCluster(in.data.Start))
	assert.Equal(t, 9, len(chain), "4097 bytes must grow the chain to exactly nine clusters")
}

func TestWriteAtZeroesNewTailBeforePartialOverwrite(t *testing.T) {
	tbl, _, thread := newTestTable(t)
	sector := createInode(t, tbl)
	in, err := tbl.Open(sector)
	require.Equal(t, defs.Err_t(0), err)

	// Write a single byte at offset 600, forcing growth across two
	// sectors; bytes before the write offset in the new region must read
	// back as zero rather than stale disk contents.
	_, werr := in.WriteAt(tbl, thread, []byte{0xFF}, 600)
	require.Equal(t, defs.Err_t(0), werr)
	assert.Equal(t, int64(601), in.Length())

	got := make([]byte, 601)
	rn, rerr := in.ReadAt(tbl, got, 0)
	require.Equal(t, defs.Err_t(0), rerr)
	assert.Equal(t, 601, rn)
	for i := 0; i < 600; i++ {
		assert.Equal(t, byte(0), got[i], "byte %d should be zeroed, not stale", i)
	}
	assert.Equal(t, byte(0xFF), got[600])
}

func TestWriteAtRejectedWhileDenyWriteHeld(t *testing.T) {
	tbl, _, thread := newTestTable(t)
	sector := createInode(t, tbl)
	in, err := tbl.Open(sector)
	require.Equal(t, defs.Err_t(0), err)

	in.DenyWrite()
	n, werr := in.WriteAt(tbl, thread, []byte{1, 2, 3}, 0)
	assert.Equal(t, defs.Err_t(0), werr)
	assert.Equal(t, 0, n, "a write while deny-write is held writes nothing")

	in.AllowWrite()
	_, werr = in.WriteAt(tbl, thread, []byte{1, 2, 3}, 0)
	assert.Equal(t, defs.Err_t(0), werr)
}

func TestCloseFreesChainOnlyAfterLastReferenceAndRemove(t *testing.T) {
	tbl, _, thread := newTestTable(t)
	sector := createInode(t, tbl)

	a, err := tbl.Open(sector)
	require.Equal(t, defs.Err_t(0), err)
	b, err := tbl.Open(sector)
	require.Equal(t, defs.Err_t(0), err)
	assert.Same(t, a, b)

	_, werr := a.WriteAt(tbl, thread, []byte{1, 2, 3}, 0)
	require.Equal(t, defs.Err_t(0), werr)
	dataStart := a.data.Start

	tbl.Remove(a)
	tbl.Close(a)

	// Still one reference outstanding (b): the data chain must survive.
	assert.NotEmpty(t, tbl.vol.Walk(tbl.vol.SectorToCluster(dataStart)))

	tbl.Close(b)

	tbl.mu.Lock()
	_, stillOpen := tbl.open[sector]
	tbl.mu.Unlock()
	assert.False(t, stillOpen, "inode must leave the open cache once its last reference closes")
}

func TestReadAtStopsAtEOF(t *testing.T) {
	tbl, _, thread := newTestTable(t)
	sector := createInode(t, tbl)
	in, err := tbl.Open(sector)
	require.Equal(t, defs.Err_t(0), err)

	_, werr := in.WriteAt(tbl, thread, []byte{1, 2, 3, 4, 5}, 0)
	require.Equal(t, defs.Err_t(0), werr)

	buf := make([]byte, 10)
	n, rerr := in.ReadAt(tbl, buf, 2)
	require.Equal(t, defs.Err_t(0), rerr)
	assert.Equal(t, 3, n, "read should be truncated at EOF, not fail")
	assert.Equal(t, []byte{3, 4, 5}, buf[:n])
}

func TestIsDirAndIsSymlinkFlagsRoundTrip(t *testing.T) {
	tbl, _, _ := newTestTable(t)
	sector, err := tbl.vol.CreateChain(0)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, defs.Err_t(0), tbl.Create(sector, 0, true, false, ""))

	in, oerr := tbl.Open(sector)
	require.Equal(t, defs.Err_t(0), oerr)
	assert.True(t, in.IsDir())
	assert.False(t, in.IsSymlink())

	symSector, serr := tbl.vol.CreateChain(0)
	require.Equal(t, defs.Err_t(0), serr)
	require.Equal(t, defs.Err_t(0), tbl.Create(symSector, 0, false, true, "/bin/sh"))
	symIn, oerr2 := tbl.Open(symSector)
	require.Equal(t, defs.Err_t(0), oerr2)
	assert.True(t, symIn.IsSymlink())
	assert.Equal(t, "/bin/sh", symIn.LinkTarget())
}

func TestWritebackThreadIsSingleton(t *testing.T) {
	tbl, _, _ := newTestTable(t)
	a := tbl.WritebackThread()
	b := tbl.WritebackThread()
	assert.Same(t, a, b)
}

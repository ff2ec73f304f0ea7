package file

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kcore/internal/block"
	"kcore/internal/defs"
	"kcore/internal/fat"
	"kcore/internal/inode"
	"kcore/internal/sched"
)

func newTestFile(t *testing.T) (*File, *inode.Table, *sched.Thread) {
	t.Helper()
	dev := block.NewMemDevice(256)
	vol, err := fat.Format(dev)
	require.Equal(t, defs.Err_t(0), err)
	s := sched.New(sched.PolicyPriorityDonation)
	thread := s.NewThread("test", sched.PriDefault)
	tbl := inode.NewTable(s, vol)

	sector, cerr := vol.CreateChain(0)
	require.Equal(t, defs.Err_t(0), cerr)
	require.Equal(t, defs.Err_t(0), tbl.Create(sector, 0, false, false, ""))
	in, oerr := tbl.Open(sector)
	require.Equal(t, defs.Err_t(0), oerr)
	return Open(in, tbl), tbl, thread
}

func TestWriteThenReadAdvancesPosition(t *testing.T) {
	f, _, thread := newTestFile(t)

	n, err := f.Write(thread, []byte("hello"))
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, 5, n)
	assert.Equal(t, int64(5), f.Tell())

	f.Seek(0)
	buf := make([]byte, 5)
	rn, rerr := f.Read(buf)
	require.Equal(t, defs.Err_t(0), rerr)
	assert.Equal(t, 5, rn)
	assert.Equal(t, "hello", string(buf))
	assert.Equal(t, int64(5), f.Tell())
}

func TestSeekHasNoClamping(t *testing.T) {
	f, _, _ := newTestFile(t)
	f.Seek(1 << 20)
	assert.Equal(t, int64(1<<20), f.Tell())
}

func TestDenyWriteBlocksWriteAt(t *testing.T) {
	f, _, thread := newTestFile(t)
	f.DenyWrite()

	n, err := f.Write(thread, []byte("x"))
	assert.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, 0, n, "a write while deny-write is held writes nothing")

	f.AllowWrite()
	_, err = f.Write(thread, []byte("x"))
	assert.Equal(t, defs.Err_t(0), err)
}

func TestDenyWriteIsIdempotent(t *testing.T) {
	f, _, _ := newTestFile(t)
	f.DenyWrite()
	f.DenyWrite()
	assert.True(t, f.denyWrite)
	f.AllowWrite()
	assert.False(t, f.denyWrite)
	// A second AllowWrite with no matching DenyWrite must not underflow
	// the inode's deny count.
	f.AllowWrite()
	assert.False(t, f.denyWrite)
}

func TestReadAtAndWriteAtSatisfyFileBackingInterface(t *testing.T) {
	f, _, _ := newTestFile(t)

	n, err := f.WriteAt([]byte("backing"), 0)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	buf := make([]byte, 7)
	rn, rerr := f.ReadAt(buf, 0)
	require.NoError(t, rerr)
	assert.Equal(t, 7, rn)
	assert.Equal(t, "backing", string(buf))
}

func TestLengthReflectsWrites(t *testing.T) {
	f, _, thread := newTestFile(t)
	assert.Equal(t, int64(0), f.Length())

	_, err := f.Write(thread, []byte("abcdef"))
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, int64(6), f.Length())
}

func TestCloseAllowsTheInodeToBeReopenedCleanly(t *testing.T) {
	f, tbl, _ := newTestFile(t)
	sector := f.In.Sector
	f.Close(tbl)

	reopened, err := tbl.Open(sector)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, sector, reopened.Sector)
	tbl.Close(reopened)
}

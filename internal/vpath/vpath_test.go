package vpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kcore/internal/block"
	"kcore/internal/defs"
	"kcore/internal/dir"
	"kcore/internal/fat"
	"kcore/internal/inode"
	"kcore/internal/sched"
)

type fixture struct {
	vol    *fat.Volume
	tbl    *inode.Table
	thread *sched.Thread
	root   fat.Cluster
	res    *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := block.NewMemDevice(2048)
	vol, err := fat.Format(dev)
	require.Equal(t, defs.Err_t(0), err)
	s := sched.New(sched.PolicyPriorityDonation)
	thread := s.NewThread("test", sched.PriDefault)
	tbl := inode.NewTable(s, vol)

	root, cerr := vol.CreateChain(0)
	require.Equal(t, defs.Err_t(0), cerr)
	require.Equal(t, defs.Err_t(0), dir.Create(tbl, thread, root, root))

	return &fixture{vol: vol, tbl: tbl, thread: thread, root: root, res: New(tbl, root)}
}

func (f *fixture) mkfile(t *testing.T, parent fat.Cluster, name string) fat.Cluster {
	t.Helper()
	sector, err := f.vol.CreateChain(0)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, defs.Err_t(0), f.tbl.Create(sector, 0, false, false, ""))
	pin, perr := f.tbl.Open(parent)
	require.Equal(t, defs.Err_t(0), perr)
	d := dir.Open(pin, f.tbl)
	require.Equal(t, defs.Err_t(0), d.Add(f.thread, name, sector))
	f.tbl.Close(pin)
	return sector
}

func (f *fixture) mkdir(t *testing.T, parent fat.Cluster, name string) fat.Cluster {
	t.Helper()
	sector, err := f.vol.CreateChain(0)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, defs.Err_t(0), dir.Create(f.tbl, f.thread, sector, parent))
	pin, perr := f.tbl.Open(parent)
	require.Equal(t, defs.Err_t(0), perr)
	d := dir.Open(pin, f.tbl)
	require.Equal(t, defs.Err_t(0), d.Add(f.thread, name, sector))
	f.tbl.Close(pin)
	return sector
}

func (f *fixture) mksymlink(t *testing.T, parent fat.Cluster, name, target string) fat.Cluster {
	t.Helper()
	sector, err := f.vol.CreateChain(0)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, defs.Err_t(0), f.tbl.Create(sector, 0, false, true, target))
	pin, perr := f.tbl.Open(parent)
	require.Equal(t, defs.Err_t(0), perr)
	d := dir.Open(pin, f.tbl)
	require.Equal(t, defs.Err_t(0), d.Add(f.thread, name, sector))
	f.tbl.Close(pin)
	return sector
}

func TestLookupAbsoluteNestedPath(t *testing.T) {
	f := newFixture(t)
	sub := f.mkdir(t, f.root, "sub")
	leaf := f.mkfile(t, sub, "leaf")

	got, err := f.res.Lookup(f.thread, f.root, "/sub/leaf")
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, leaf, got)
}

func TestLookupRelativeToNonRootCwd(t *testing.T) {
	f := newFixture(t)
	sub := f.mkdir(t, f.root, "sub")
	leaf := f.mkfile(t, sub, "leaf")

	got, err := f.res.Lookup(f.thread, sub, "leaf")
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, leaf, got)
}

func TestLookupRejectsNonFinalComponentThatIsNotADirectory(t *testing.T) {
	f := newFixture(t)
	f.mkfile(t, f.root, "plain")

	_, err := f.res.Lookup(f.thread, f.root, "/plain/leaf")
	assert.Equal(t, -defs.ENOTDIR, err)
}

func TestLookupMissingComponentReturnsENOENT(t *testing.T) {
	f := newFixture(t)
	_, err := f.res.Lookup(f.thread, f.root, "/nope")
	assert.Equal(t, -defs.ENOENT, err)
}

func TestLookupFollowsSymlinkToFile(t *testing.T) {
	f := newFixture(t)
	leaf := f.mkfile(t, f.root, "real")
	f.mksymlink(t, f.root, "link", "/real")

	got, err := f.res.Lookup(f.thread, f.root, "/link")
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, leaf, got)
}

func TestLookupFollowsSymlinkAsIntermediateComponent(t *testing.T) {
	f := newFixture(t)
	sub := f.mkdir(t, f.root, "sub")
	leaf := f.mkfile(t, sub, "leaf")
	f.mksymlink(t, f.root, "sublink", "/sub")

	got, err := f.res.Lookup(f.thread, f.root, "/sublink/leaf")
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, leaf, got)
}

func TestLookupDetectsSymlinkCycle(t *testing.T) {
	f := newFixture(t)
	f.mksymlink(t, f.root, "a", "/b")
	f.mksymlink(t, f.root, "b", "/a")

	_, err := f.res.Lookup(f.thread, f.root, "/a")
	assert.Equal(t, -defs.ELOOP, err)
}

func TestResolveParentSplitsDirectoryFromFinalComponent(t *testing.T) {
	f := newFixture(t)
	sub := f.mkdir(t, f.root, "sub")

	parent, name, err := f.res.ResolveParent(f.thread, f.root, "/sub/newfile")
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, sub, parent)
	assert.Equal(t, "newfile", name)
}

func TestResolveParentRejectsEmptyPath(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.res.ResolveParent(f.thread, f.root, "")
	assert.Equal(t, -defs.EINVAL, err)
}

package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kcore/internal/block"
	"kcore/internal/defs"
)

func TestFormatThenOpenRoundTrip(t *testing.T) {
	dev := block.NewMemDevice(256)
	v, err := Format(dev)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, defs.Err_t(0), v.Close())

	reopened, err := Open(dev)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, v.boot.fatSectors, reopened.boot.fatSectors)
	assert.Equal(t, v.dataStart, reopened.dataStart)
}

func TestOpenRejectsUnformattedDevice(t *testing.T) {
	dev := block.NewMemDevice(16)
	_, err := Open(dev)
	assert.Equal(t, -defs.EINVAL, err)
}

func TestCreateChainExtendsAndWalks(t *testing.T) {
	dev := block.NewMemDevice(256)
	v, err := Format(dev)
	require.Equal(t, defs.Err_t(0), err)

	first, err := v.CreateChain(0)
	require.Equal(t, defs.Err_t(0), err)
	second, err := v.CreateChain(first)
	require.Equal(t, defs.Err_t(0), err)
	assert.NotEqual(t, first, second)

	chain := v.Walk(first)
	assert.Equal(t, []Cluster{first, second}, chain)
}

func TestRemoveChainFreesClusters(t *testing.T) {
	dev := block.NewMemDevice(256)
	v, err := Format(dev)
	require.Equal(t, defs.Err_t(0), err)

	first, err := v.CreateChain(0)
	require.Equal(t, defs.Err_t(0), err)
	second, err := v.CreateChain(first)
	require.Equal(t, defs.Err_t(0), err)

	v.RemoveChain(first, 0)
	assert.Empty(t, v.Walk(first))

	// The freed clusters should be reusable by a later allocation.
	reused, err := v.CreateChain(0)
	require.Equal(t, defs.Err_t(0), err)
	assert.True(t, reused == first || reused == second)
}

func TestClusterSectorConversionRoundTrip(t *testing.T) {
	dev := block.NewMemDevice(256)
	v, err := Format(dev)
	require.Equal(t, defs.Err_t(0), err)

	c, err := v.CreateChain(0)
	require.Equal(t, defs.Err_t(0), err)
	sector := v.ClusterToSector(c)
	assert.Equal(t, c, v.SectorToCluster(sector))
}

func TestReadWriteSectorRoundTrip(t *testing.T) {
	dev := block.NewMemDevice(256)
	v, err := Format(dev)
	require.Equal(t, defs.Err_t(0), err)

	c, err := v.CreateChain(0)
	require.Equal(t, defs.Err_t(0), err)
	sector := v.ClusterToSector(c)

	buf := make([]byte, block.SectorSize)
	buf[10] = 0x42
	require.Equal(t, defs.Err_t(0), v.WriteSector(sector, buf))

	got, rerr := v.ReadSector(sector)
	require.Equal(t, defs.Err_t(0), rerr)
	assert.Equal(t, byte(0x42), got[10])
}

package block

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kcore/internal/defs"
)

const defsSuccess = defs.Err_t(0)

func TestFileDeviceReadWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := OpenFileDevice(path, 4)
	require.NoError(t, err)
	defer dev.Close()

	buf := make([]byte, SectorSize)
	for i := range buf {
		buf[i] = byte(i)
	}
	assert.Equal(t, defsSuccess, dev.Write(2, buf))

	out := make([]byte, SectorSize)
	assert.Equal(t, defsSuccess, dev.Read(2, out))
	assert.Equal(t, buf, out)
}

func TestFileDeviceRejectsBadSector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := OpenFileDevice(path, 2)
	require.NoError(t, err)
	defer dev.Close()

	buf := make([]byte, SectorSize)
	assert.NotEqual(t, defsSuccess, dev.Write(99, buf))
	assert.NotEqual(t, defsSuccess, dev.Read(-1, buf))
}

func TestMemDeviceReadWriteRoundTrip(t *testing.T) {
	dev := NewMemDevice(4)
	buf := make([]byte, SectorSize)
	buf[0] = 0xAB
	assert.Equal(t, defsSuccess, dev.Write(1, buf))

	out := make([]byte, SectorSize)
	assert.Equal(t, defsSuccess, dev.Read(1, out))
	assert.Equal(t, buf, out)
}

func TestReadSectorHelper(t *testing.T) {
	dev := NewMemDevice(2)
	buf := make([]byte, SectorSize)
	buf[5] = 42
	require.Equal(t, defsSuccess, dev.Write(0, buf))

	got, err := ReadSector(dev, 0)
	require.Equal(t, defsSuccess, err)
	assert.Equal(t, byte(42), got[5])
}

// Package block implements the sector-granular block device abstraction
// (C1): a fixed-size-sector read/write interface over a single backing
// disk. It plays the same role as biscuit's fs.Disk_i, simplified to the
// synchronous contract spec.md §6 describes (no request queue/ack channel
// — callers here run as ordinary goroutines, not interrupt handlers).
package block

import (
	"fmt"
	"io"
	"os"
	"sync"

	"kcore/internal/defs"
)

// SectorSize is the fixed sector size in bytes, matching spec.md §6.
const SectorSize = 512

// Device is a sector-addressable block device: a single backing disk
// exposing fixed-size sector reads and writes.
type Device interface {
	// Read fills buf (exactly SectorSize bytes) with the contents of sector.
	Read(sector int, buf []byte) defs.Err_t
	// Write persists buf (exactly SectorSize bytes) to sector.
	Write(sector int, buf []byte) defs.Err_t
	// Size returns the device's capacity in sectors.
	Size() int
}

// FileDevice backs a Device with an ordinary host file, which
// OpenFileDevice extends to the configured sector count when it opens
// a file shorter than that. It is the only Device
// implementation needed by the simulator: real hardware drivers are out
// of scope per spec.md §1.
type FileDevice struct {
	mu      sync.Mutex
	f       *os.File
	sectors int
}

// OpenFileDevice opens (creating if necessary) path as a block device with
// the given sector count.
func OpenFileDevice(path string, sectors int) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	want := int64(sectors) * SectorSize
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() < want {
		if err := f.Truncate(want); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &FileDevice{f: f, sectors: sectors}, nil
}

// MemDevice backs a Device with an in-memory byte slice; useful for tests
// and for the swap disk, which never needs to survive a process restart.
type MemDevice struct {
	mu      sync.Mutex
	data    []byte
	sectors int
}

// NewMemDevice allocates an in-memory device with the given sector count.
func NewMemDevice(sectors int) *MemDevice {
	return &MemDevice{data: make([]byte, sectors*SectorSize), sectors: sectors}
}

func (d *FileDevice) Size() int { return d.sectors }

func (d *FileDevice) Read(sector int, buf []byte) defs.Err_t {
	if sector < 0 || sector >= d.sectors || len(buf) != SectorSize {
		return -defs.EINVAL
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.f.ReadAt(buf, int64(sector)*SectorSize)
	if err != nil && err != io.EOF {
		return -defs.EIO
	}
	return 0
}

func (d *FileDevice) Write(sector int, buf []byte) defs.Err_t {
	if sector < 0 || sector >= d.sectors || len(buf) != SectorSize {
		return -defs.EINVAL
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.f.WriteAt(buf, int64(sector)*SectorSize); err != nil {
		return -defs.EIO
	}
	return 0
}

// Close releases the backing file.
func (d *FileDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}

func (d *MemDevice) Size() int { return d.sectors }

func (d *MemDevice) Read(sector int, buf []byte) defs.Err_t {
	if sector < 0 || sector >= d.sectors || len(buf) != SectorSize {
		return -defs.EINVAL
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(buf, d.data[sector*SectorSize:(sector+1)*SectorSize])
	return 0
}

func (d *MemDevice) Write(sector int, buf []byte) defs.Err_t {
	if sector < 0 || sector >= d.sectors || len(buf) != SectorSize {
		return -defs.EINVAL
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.data[sector*SectorSize:(sector+1)*SectorSize], buf)
	return 0
}

// ReadSector is a convenience wrapper allocating the destination buffer.
func ReadSector(d Device, sector int) ([]byte, defs.Err_t) {
	buf := make([]byte, SectorSize)
	if err := d.Read(sector, buf); err != 0 {
		return nil, err
	}
	return buf, 0
}

// String renders a device identifier for log messages.
func String(d Device) string {
	return fmt.Sprintf("device(%d sectors)", d.Size())
}

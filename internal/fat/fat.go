// Package fat implements the on-disk FAT-style volume layout (C9): a
// boot record, an in-RAM array mirroring the on-disk FAT, and cluster
// chain allocation/release. Ported from Pintos's filesys/fat.c (the
// concrete chain-walk algorithm, cluster numbering, and boot-record
// layout), restyled as a Go type the way biscuit's fs.Superblock_t
// wraps its on-disk layout in an accessor struct.
package fat

import (
	"encoding/binary"

	"kcore/internal/block"
	"kcore/internal/defs"
	"kcore/internal/kstats"
)

// Cluster numbers clusters one-to-one with data sectors (SectorsPerCluster
// fixed at 1), matching the original's simplification.
type Cluster uint32

// EOChain marks the last cluster in a chain.
const EOChain Cluster = 0x0fffffff

// FATMagic identifies a formatted volume.
const FATMagic uint32 = 0x76

// RootDirCluster is the cluster holding the filesystem root directory.
const RootDirCluster Cluster = 1

const bootSectorIndex = 0
const bootRecordSize = 4 * 6 // six little-endian uint32 fields

type bootRecord struct {
	magic            uint32
	sectorsPerClust  uint32
	totalSectors     uint32
	fatStart         uint32
	fatSectors       uint32
	rootDirCluster   uint32
}

func (b *bootRecord) marshal() []byte {
	buf := make([]byte, block.SectorSize)
	binary.LittleEndian.PutUint32(buf[0:4], b.magic)
	binary.LittleEndian.PutUint32(buf[4:8], b.sectorsPerClust)
	binary.LittleEndian.PutUint32(buf[8:12], b.totalSectors)
	binary.LittleEndian.PutUint32(buf[12:16], b.fatStart)
	binary.LittleEndian.PutUint32(buf[16:20], b.fatSectors)
	binary.LittleEndian.PutUint32(buf[20:24], b.rootDirCluster)
	return buf
}

func unmarshalBoot(buf []byte) bootRecord {
	return bootRecord{
		magic:           binary.LittleEndian.Uint32(buf[0:4]),
		sectorsPerClust: binary.LittleEndian.Uint32(buf[4:8]),
		totalSectors:    binary.LittleEndian.Uint32(buf[8:12]),
		fatStart:        binary.LittleEndian.Uint32(buf[12:16]),
		fatSectors:      binary.LittleEndian.Uint32(buf[16:20]),
		rootDirCluster:  binary.LittleEndian.Uint32(buf[20:24]),
	}
}

// entriesPerSector is how many little-endian uint32 FAT entries fit in
// one disk sector.
const entriesPerSector = block.SectorSize / 4

// Volume is the in-RAM mirror of an on-disk FAT volume: the boot record
// plus the whole FAT array, matching spec.md §4.8's "boot record + in-RAM
// FAT array".
type Volume struct {
	dev       block.Device
	boot      bootRecord
	fat       []Cluster
	dataStart int
}

// Format writes a fresh boot record and FAT to dev and returns the
// resulting Volume, matching Pintos's fat_boot_create + fat_create.
func Format(dev block.Device) (*Volume, defs.Err_t) {
	total := dev.Size()
	fatSectors := (total-1)/(entriesPerSector+1) + 1
	boot := bootRecord{
		magic:           FATMagic,
		sectorsPerClust: 1,
		totalSectors:    uint32(total),
		fatStart:        1,
		fatSectors:      uint32(fatSectors),
		rootDirCluster:  uint32(RootDirCluster),
	}
	v := &Volume{
		dev:       dev,
		boot:      boot,
		fat:       make([]Cluster, int(boot.fatSectors)*entriesPerSector),
		dataStart: int(boot.fatStart + boot.fatSectors),
	}
	if err := dev.Write(bootSectorIndex, boot.marshal()); err != 0 {
		return nil, err
	}
	v.put(RootDirCluster, EOChain)
	zero := make([]byte, block.SectorSize)
	if err := dev.Write(v.ClusterToSector(RootDirCluster), zero); err != 0 {
		return nil, err
	}
	if err := v.flushFAT(); err != 0 {
		return nil, err
	}
	return v, 0
}

// Open loads an existing formatted volume from dev.
func Open(dev block.Device) (*Volume, defs.Err_t) {
	buf, err := block.ReadSector(dev, bootSectorIndex)
	if err != 0 {
		return nil, err
	}
	boot := unmarshalBoot(buf)
	if boot.magic != FATMagic {
		return nil, -defs.EINVAL
	}
	v := &Volume{
		dev:       dev,
		boot:      boot,
		fat:       make([]Cluster, int(boot.fatSectors)*entriesPerSector),
		dataStart: int(boot.fatStart + boot.fatSectors),
	}
	for i := 0; i < int(boot.fatSectors); i++ {
		sec, err := block.ReadSector(dev, int(boot.fatStart)+i)
		if err != 0 {
			return nil, err
		}
		for j := 0; j < entriesPerSector; j++ {
			v.fat[i*entriesPerSector+j] = Cluster(binary.LittleEndian.Uint32(sec[j*4 : j*4+4]))
		}
	}
	return v, 0
}

// Close flushes the FAT (and, implicitly, the boot record) to disk.
func (v *Volume) Close() defs.Err_t {
	if err := v.dev.Write(bootSectorIndex, v.boot.marshal()); err != 0 {
		return err
	}
	return v.flushFAT()
}

func (v *Volume) flushFAT() defs.Err_t {
	for i := 0; i < int(v.boot.fatSectors); i++ {
		sec := make([]byte, block.SectorSize)
		for j := 0; j < entriesPerSector; j++ {
			idx := i*entriesPerSector + j
			if idx < len(v.fat) {
				binary.LittleEndian.PutUint32(sec[j*4:j*4+4], uint32(v.fat[idx]))
			}
		}
		if err := v.dev.Write(int(v.boot.fatStart)+i, sec); err != 0 {
			return err
		}
	}
	return 0
}

func (v *Volume) get(c Cluster) Cluster { return v.fat[c] }
func (v *Volume) put(c Cluster, val Cluster) { v.fat[c] = val }

// Next returns the cluster following c in its chain (exported for
// package inode's byte-offset cluster walk).
func (v *Volume) Next(c Cluster) Cluster { return v.get(c) }

// ReadSector reads one raw sector from the underlying device.
func (v *Volume) ReadSector(sector int) ([]byte, defs.Err_t) {
	return block.ReadSector(v.dev, sector)
}

// WriteSector writes one raw sector to the underlying device.
func (v *Volume) WriteSector(sector int, buf []byte) defs.Err_t {
	return v.dev.Write(sector, buf)
}

// ClusterToSector converts a cluster number to an absolute device sector.
func (v *Volume) ClusterToSector(c Cluster) int { return v.dataStart + int(c) }

// SectorToCluster converts an absolute device sector back to a cluster.
func (v *Volume) SectorToCluster(s int) Cluster { return Cluster(s - v.dataStart) }

// CreateChain extends the chain starting at clst by one cluster (or
// starts a new chain if clst is 0), returning the newly allocated
// cluster. Ported directly from fat_create_chain.
func (v *Volume) CreateChain(clst Cluster) (Cluster, defs.Err_t) {
	var n Cluster
	found := false
	for n = RootDirCluster + 1; int(n) < len(v.fat); n++ {
		if v.fat[n] == 0 {
			found = true
			break
		}
	}
	if !found {
		return 0, -defs.ENOSPC
	}
	if clst == 0 {
		v.put(n, EOChain)
	} else {
		p := clst
		t := v.get(clst)
		for t != EOChain {
			p = t
			t = v.get(t)
		}
		v.put(p, n)
		v.put(n, EOChain)
	}
	kstats.Global.ChainGrows.Inc()
	return n, 0
}

// RemoveChain releases every cluster in the chain starting at clst. If
// pclst is nonzero it is the predecessor cluster, whose entry is
// truncated to EOChain first. Ported from fat_remove_chain.
func (v *Volume) RemoveChain(clst Cluster, pclst Cluster) {
	cur := clst
	if pclst != 0 {
		cur = v.get(pclst)
		if v.get(pclst) == EOChain {
			return
		}
		v.put(pclst, EOChain)
	}
	for cur != EOChain {
		next := v.get(cur)
		v.put(cur, 0)
		cur = next
	}
}

// Walk returns every cluster in the chain starting at clst, in order. A
// free cluster (FAT entry 0) starts no chain, so Walk returns nil for it.
func (v *Volume) Walk(clst Cluster) []Cluster {
	var out []Cluster
	for c := clst; c != EOChain && c != 0 && v.get(c) != 0; c = v.get(c) {
		out = append(out, c)
	}
	return out
}

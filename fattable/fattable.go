// Package fattable implements the FAT12/16 File Allocation Table: reading
// and writing individual cluster entries across sector boundaries,
// mirroring every write to all FAT copies, and allocating/freeing cluster
// chains.
package fattable

import (
	"fmt"

	"github.com/boljen/go-bitmap"

	"github.com/mdfat/fat12/errkind"
	"github.com/mdfat/fat12/geometry"
	"github.com/mdfat/fat12/sectorio"
)

// firstValidCluster and the reserved entries 0/1 are never allocatable;
// cluster numbering starts at 2 (spec §3).
const firstValidCluster = 2

// Table is the FAT engine for one open volume. Geometry is the single
// source of truth for layout; Table never recomputes it.
type Table struct {
	dev *sectorio.Device
	geo *geometry.Geometry

	// freeBitmap mirrors on-disk Free/Allocated state, cluster c at bit
	// index c-2. It is a non-canonical acceleration structure for
	// AllocFreeCluster: every Get/Set still round-trips through the real
	// FAT entries, so it never changes the result of Get/Set, only how
	// fast AllocFreeCluster finds a candidate.
	freeBitmap bitmap.Bitmap
	cacheBuilt bool
}

// New creates a FAT engine bound to dev and geo. geo.FirstFATSector and
// geo.SectorsPerFAT16 determine where each of geo.NumFATs copies lives.
func New(dev *sectorio.Device, geo *geometry.Geometry) *Table {
	return &Table{dev: dev, geo: geo}
}

func (t *Table) lastCluster() uint32 {
	return t.geo.ClusterCount + firstValidCluster
}

func (t *Table) checkClusterRange(cluster uint32) error {
	if cluster < firstValidCluster || cluster >= t.lastCluster() {
		return errkind.InvalidImage.WithMessage(fmt.Sprintf(
			"cluster %d out of range [%d, %d)", cluster, firstValidCluster, t.lastCluster()))
	}
	return nil
}

// Get reads the FAT entry for cluster from FAT copy 0 and returns its raw
// value, already masked to 12 or 16 bits depending on geo.FATType.
func (t *Table) Get(cluster uint32) (uint32, error) {
	if err := t.checkClusterRange(cluster); err != nil {
		return 0, err
	}
	if t.geo.FATType == geometry.FAT16 {
		return t.get16(0, cluster)
	}
	return t.get12(0, cluster)
}

// Set writes value (masked to the FAT width) to cluster's entry in every
// FAT copy, copy 0 first. A failure partway through leaves the FAT copies
// divergent; this is documented, not mitigated (spec §4.4/§4.10).
func (t *Table) Set(cluster uint32, value uint32) error {
	if err := t.checkClusterRange(cluster); err != nil {
		return err
	}

	masked := value & t.geo.FATType.Mask()
	for fi := uint8(0); fi < t.geo.NumFATs; fi++ {
		var err error
		if t.geo.FATType == geometry.FAT16 {
			err = t.set16(fi, cluster, masked)
		} else {
			err = t.set12(fi, cluster, masked)
		}
		if err != nil {
			return err
		}
	}

	if t.cacheBuilt {
		idx := int(cluster - firstValidCluster)
		t.freeBitmap.Set(idx, masked != 0)
	}

	return nil
}

// fatSectorForCopy returns the first FAT sector of copy fi.
func (t *Table) fatSectorForCopy(fi uint8) uint32 {
	return t.geo.FirstFATSector + uint32(fi)*uint32(t.geo.SectorsPerFAT16)
}

func (t *Table) get16(fi uint8, cluster uint32) (uint32, error) {
	bps := t.geo.BytesPerSector
	byteOffset := cluster * 2
	sector := t.fatSectorForCopy(fi) + byteOffset/uint32(bps)
	within := byteOffset % uint32(bps)

	buf := make([]byte, bps)
	if err := t.dev.ReadSector(sector, buf); err != nil {
		return 0, err
	}
	return uint32(buf[within]) | uint32(buf[within+1])<<8, nil
}

func (t *Table) set16(fi uint8, cluster uint32, value uint32) error {
	bps := t.geo.BytesPerSector
	byteOffset := cluster * 2
	sector := t.fatSectorForCopy(fi) + byteOffset/uint32(bps)
	within := byteOffset % uint32(bps)

	buf := make([]byte, bps)
	if err := t.dev.ReadSector(sector, buf); err != nil {
		return err
	}
	buf[within] = byte(value)
	buf[within+1] = byte(value >> 8)
	return t.dev.WriteSector(sector, buf)
}

// fat12Pair is the raw 16-bit value shared by two adjacent FAT12 entries,
// plus enough addressing information to write it back.
type fat12Pair struct {
	sectorA  uint32
	offsetA  uint32
	sectorB  uint32 // equals sectorA unless the pair straddles a boundary
	offsetB  uint32
	straddle bool
}

func (t *Table) fat12Addr(fi uint8, cluster uint32) fat12Pair {
	bps := uint32(t.geo.BytesPerSector)
	byteOffset := (cluster * 3) / 2
	base := t.fatSectorForCopy(fi)
	sector := base + byteOffset/bps
	within := byteOffset % bps

	if within == bps-1 {
		return fat12Pair{
			sectorA:  sector,
			offsetA:  within,
			sectorB:  sector + 1,
			offsetB:  0,
			straddle: true,
		}
	}
	return fat12Pair{sectorA: sector, offsetA: within, sectorB: sector, offsetB: within + 1}
}

func (t *Table) readPair(addr fat12Pair) (uint16, error) {
	bps := t.geo.BytesPerSector
	if !addr.straddle {
		buf := make([]byte, bps)
		if err := t.dev.ReadSector(addr.sectorA, buf); err != nil {
			return 0, err
		}
		return uint16(buf[addr.offsetA]) | uint16(buf[addr.offsetB])<<8, nil
	}

	bufA := make([]byte, bps)
	bufB := make([]byte, bps)
	if err := t.dev.ReadSector(addr.sectorA, bufA); err != nil {
		return 0, err
	}
	if err := t.dev.ReadSector(addr.sectorB, bufB); err != nil {
		return 0, err
	}
	return uint16(bufA[addr.offsetA]) | uint16(bufB[addr.offsetB])<<8, nil
}

func (t *Table) writePair(addr fat12Pair, pair uint16) error {
	bps := t.geo.BytesPerSector
	lo, hi := byte(pair), byte(pair>>8)

	if !addr.straddle {
		buf := make([]byte, bps)
		if err := t.dev.ReadSector(addr.sectorA, buf); err != nil {
			return err
		}
		buf[addr.offsetA] = lo
		buf[addr.offsetB] = hi
		return t.dev.WriteSector(addr.sectorA, buf)
	}

	bufA := make([]byte, bps)
	if err := t.dev.ReadSector(addr.sectorA, bufA); err != nil {
		return err
	}
	bufA[addr.offsetA] = lo
	if err := t.dev.WriteSector(addr.sectorA, bufA); err != nil {
		return err
	}

	bufB := make([]byte, bps)
	if err := t.dev.ReadSector(addr.sectorB, bufB); err != nil {
		return err
	}
	bufB[addr.offsetB] = hi
	return t.dev.WriteSector(addr.sectorB, bufB)
}

func (t *Table) get12(fi uint8, cluster uint32) (uint32, error) {
	addr := t.fat12Addr(fi, cluster)
	pair, err := t.readPair(addr)
	if err != nil {
		return 0, err
	}
	if cluster%2 == 1 {
		return uint32(pair>>4) & 0xFFF, nil
	}
	return uint32(pair) & 0xFFF, nil
}

func (t *Table) set12(fi uint8, cluster uint32, value uint32) error {
	addr := t.fat12Addr(fi, cluster)
	old, err := t.readPair(addr)
	if err != nil {
		return err
	}

	var newPair uint16
	if cluster%2 == 1 {
		newPair = (old & 0x000F) | (uint16(value&0xFFF) << 4)
	} else {
		newPair = (old & 0xF000) | uint16(value&0xFFF)
	}
	return t.writePair(addr, newPair)
}

// buildFreeCache scans every cluster entry in FAT copy 0 exactly once and
// populates freeBitmap from the real on-disk state.
func (t *Table) buildFreeCache() error {
	t.freeBitmap = bitmap.New(int(t.geo.ClusterCount))
	for c := uint32(firstValidCluster); c < t.lastCluster(); c++ {
		value, err := t.Get(c)
		if err != nil {
			return err
		}
		t.freeBitmap.Set(int(c-firstValidCluster), value != 0)
	}
	t.cacheBuilt = true
	return nil
}

// AllocFreeCluster scans for the first free cluster starting at cluster 2,
// claims it by writing the EOC marker, and returns its number. It consults
// the bitmap scan cache to skip known-allocated clusters, but always
// confirms freeness against the real FAT entry before claiming it, so a
// stale cache can only cost extra work, never an incorrect allocation.
func (t *Table) AllocFreeCluster() (uint32, error) {
	if !t.cacheBuilt {
		if err := t.buildFreeCache(); err != nil {
			return 0, err
		}
	}

	for c := uint32(firstValidCluster); c < t.lastCluster(); c++ {
		idx := int(c - firstValidCluster)
		if t.freeBitmap.Get(idx) {
			continue
		}
		value, err := t.Get(c)
		if err != nil {
			return 0, err
		}
		if value != 0 {
			// Cache was stale; resynchronize and keep scanning.
			t.freeBitmap.Set(idx, true)
			continue
		}

		if err := t.Set(c, t.geo.FATType.EOC()); err != nil {
			return 0, err
		}
		return c, nil
	}

	return 0, errkind.NoSpace.WithMessage("no free cluster available")
}

// FreeChain walks the cluster chain starting at first, writing the free
// marker (0) to every entry until it reaches the EOC marker or a value
// outside the valid cluster range.
func (t *Table) FreeChain(first uint32) error {
	cluster := first
	for {
		if cluster < firstValidCluster || cluster >= t.lastCluster() {
			return nil
		}

		next, err := t.Get(cluster)
		if err != nil {
			return err
		}

		if err := t.Set(cluster, 0); err != nil {
			return err
		}

		if next == t.geo.FATType.EOC() {
			return nil
		}
		cluster = next
	}
}

// Package geometry decodes a FAT12/16 boot sector's BIOS Parameter Block
// into a Geometry value object and derives the sector layout (FAT region,
// root directory region, data region) that every other package consumes.
package geometry

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"

	"github.com/mdfat/fat12/errkind"
)

// SectorSize is the minimum/boot-sector size every FAT12/16 image starts
// with, regardless of the volume's own BytesPerSector.
const SectorSize = 512

// DirentSize is the size in bytes of a single 32-byte directory entry.
const DirentSize = 32

// bootSignature is the two bytes expected at offset 510/511 of sector 0.
var bootSignature = [2]byte{0x55, 0xAA}

// extendedSignatureByte is the value at offset 38 that, when present,
// indicates VolumeID/VolumeLabel/FSType are meaningful.
const extendedSignatureByte = 0x29

// BPB is the raw BIOS Parameter Block as decoded from sector 0, before any
// derived fields are computed.
type BPB struct {
	JumpBoot          [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors16    uint16
	MediaDescriptor   uint8
	SectorsPerFAT16   uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	TotalSectors32    uint32

	DriveNumber  uint8
	HasExtendedBPB bool
	VolumeID     uint32
	VolumeLabel  [11]byte
	FSType       [8]byte

	HasBootSignature bool
}

// FATBits identifies the width of a FAT entry.
type FATBits int

const (
	FAT12 FATBits = 12
	FAT16 FATBits = 16
	FAT32 FATBits = 32
)

func (b FATBits) String() string {
	switch b {
	case FAT12:
		return "FAT12"
	case FAT16:
		return "FAT16"
	case FAT32:
		return "FAT32"
	default:
		return "unknown"
	}
}

// Mask is the bitmask applied to every FAT entry value: 0xFFF for FAT12,
// 0xFFFF for FAT16.
func (b FATBits) Mask() uint32 {
	switch b {
	case FAT12:
		return 0x0FFF
	case FAT16:
		return 0xFFFF
	default:
		return 0xFFFFFFFF
	}
}

// EOC is the end-of-chain marker for this FAT width.
func (b FATBits) EOC() uint32 {
	switch b {
	case FAT12:
		return 0x0FFF
	case FAT16:
		return 0xFFFF
	default:
		return 0xFFFFFFFF
	}
}

// Geometry is the fully derived layout of a FAT12/16 volume: the raw BPB
// plus every sector/cluster offset computed from it, per spec §3's
// "Derived geometry (invariants)".
type Geometry struct {
	BPB

	RootDirSectors  uint32
	FirstFATSector  uint32
	FirstRootSector uint32
	FirstDataSector uint32
	TotalSectors    uint32
	DataSectors     uint32
	ClusterCount    uint32
	FATType         FATBits

	EntriesPerSector int
}

// BytesPerCluster returns SectorsPerCluster*BytesPerSector.
func (g *Geometry) BytesPerCluster() uint32 {
	return uint32(g.SectorsPerCluster) * uint32(g.BytesPerSector)
}

// ClusterToSector converts a cluster number (>=2) to its first absolute
// sector in the data region.
func (g *Geometry) ClusterToSector(cluster uint32) uint32 {
	return g.FirstDataSector + (cluster-2)*uint32(g.SectorsPerCluster)
}

// Parse reads the first SectorSize bytes from r, validates the BPB, and
// returns the derived Geometry. Non-fatal irregularities (missing boot
// signature, non-power-of-two SectorsPerCluster, zero NumFATs) are
// collected into the returned *multierror.Error as warnings rather than
// failing the parse; a nil warnings value means no irregularities were
// found. A structurally invalid or FAT32 image returns a nil Geometry and
// a fatal error from the errkind package.
func Parse(r io.Reader) (*Geometry, *multierror.Error, error) {
	raw := make([]byte, SectorSize)
	n, err := io.ReadFull(r, raw)
	if err != nil {
		return nil, nil, errkind.IO.Wrap(fmt.Errorf("reading boot sector: %w", err))
	}
	if n != SectorSize {
		return nil, nil, errkind.IO.WithMessage("short read of boot sector")
	}

	bpb := decodeBPB(raw)

	var warnings *multierror.Error
	if !bpb.HasBootSignature {
		warnings = multierror.Append(warnings, fmt.Errorf(
			"boot sector missing 0x55 0xAA signature"))
	}

	switch bpb.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return nil, warnings, errkind.InvalidImage.WithMessage(fmt.Sprintf(
			"unsupported sector size %d: must be 512, 1024, 2048, or 4096",
			bpb.BytesPerSector))
	}

	if !isPowerOfTwo(uint32(bpb.SectorsPerCluster)) || bpb.SectorsPerCluster == 0 {
		warnings = multierror.Append(warnings, fmt.Errorf(
			"sectors per cluster %d is not a nonzero power of two", bpb.SectorsPerCluster))
	}

	if bpb.NumFATs == 0 {
		warnings = multierror.Append(warnings, fmt.Errorf("number of FATs is zero"))
	}

	if bpb.RootEntryCount == 0 || bpb.SectorsPerFAT16 == 0 {
		return nil, warnings, errkind.Fat32Unsupported.WithMessage(
			"root entry count or sectors-per-FAT is zero: image is FAT32")
	}

	g := &Geometry{BPB: bpb}
	g.RootDirSectors = uint32(
		(uint32(bpb.RootEntryCount)*uint32(DirentSize) + uint32(bpb.BytesPerSector) - 1) /
			uint32(bpb.BytesPerSector))
	g.FirstFATSector = uint32(bpb.ReservedSectors)
	g.FirstRootSector = g.FirstFATSector + uint32(bpb.NumFATs)*uint32(bpb.SectorsPerFAT16)
	g.FirstDataSector = g.FirstRootSector + g.RootDirSectors

	if bpb.TotalSectors16 != 0 {
		g.TotalSectors = uint32(bpb.TotalSectors16)
	} else {
		g.TotalSectors = bpb.TotalSectors32
	}

	if g.TotalSectors > g.FirstDataSector {
		g.DataSectors = g.TotalSectors - g.FirstDataSector
	} else {
		g.DataSectors = 0
	}

	if bpb.SectorsPerCluster > 0 {
		g.ClusterCount = g.DataSectors / uint32(bpb.SectorsPerCluster)
	}

	switch {
	case g.ClusterCount < 4085:
		g.FATType = FAT12
	case g.ClusterCount < 65525:
		g.FATType = FAT16
	default:
		g.FATType = FAT32
	}

	if g.FATType == FAT32 {
		return nil, warnings, errkind.Fat32Unsupported.WithMessage(fmt.Sprintf(
			"cluster count %d classifies image as FAT32", g.ClusterCount))
	}

	g.EntriesPerSector = int(bpb.BytesPerSector) / DirentSize

	return g, warnings, nil
}

func isPowerOfTwo(v uint32) bool {
	return v != 0 && (v&(v-1)) == 0
}

func decodeBPB(raw []byte) BPB {
	var bpb BPB
	copy(bpb.JumpBoot[:], raw[0:3])
	copy(bpb.OEMName[:], raw[3:11])
	bpb.BytesPerSector = binary.LittleEndian.Uint16(raw[11:13])
	bpb.SectorsPerCluster = raw[13]
	bpb.ReservedSectors = binary.LittleEndian.Uint16(raw[14:16])
	bpb.NumFATs = raw[16]
	bpb.RootEntryCount = binary.LittleEndian.Uint16(raw[17:19])
	bpb.TotalSectors16 = binary.LittleEndian.Uint16(raw[19:21])
	bpb.MediaDescriptor = raw[21]
	bpb.SectorsPerFAT16 = binary.LittleEndian.Uint16(raw[22:24])
	bpb.SectorsPerTrack = binary.LittleEndian.Uint16(raw[24:26])
	bpb.NumHeads = binary.LittleEndian.Uint16(raw[26:28])
	bpb.HiddenSectors = binary.LittleEndian.Uint32(raw[28:32])
	bpb.TotalSectors32 = binary.LittleEndian.Uint32(raw[32:36])
	bpb.DriveNumber = raw[36]

	if raw[38] == extendedSignatureByte {
		bpb.HasExtendedBPB = true
		bpb.VolumeID = binary.LittleEndian.Uint32(raw[39:43])
		copy(bpb.VolumeLabel[:], raw[43:54])
		copy(bpb.FSType[:], raw[54:62])
	}

	bpb.HasBootSignature = raw[510] == bootSignature[0] && raw[511] == bootSignature[1]

	return bpb
}

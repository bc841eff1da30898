// Package format synthesizes a fresh FAT12 boot sector, FAT region, and
// empty root directory on a disk image, per spec §4.7. It is also home to
// the predefined classic-floppy geometry table (presets.go).
package format

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/noxer/bytewriter"

	"github.com/mdfat/fat12/errkind"
	"github.com/mdfat/fat12/sectorio"
)

// reservedFAT12Prefix follows the media descriptor byte at the start of
// every FAT copy; the three bytes together hold the media descriptor in
// entry 0's low byte, 0xFF padding, and the EOC marker in entry 1 (spec
// §4.7/§3).
var reservedFAT12Prefix = [2]byte{0xFF, 0xFF}

// Options controls how Format sizes a freshly created image. GeometrySlug
// is ignored when the target file already exists: spec §4.7 says an
// existing file's length always wins.
type Options struct {
	GeometrySlug string
}

// Format (re)creates the FAT12 volume at path. If the file exists, its
// current length is reused and only its content is rewritten; otherwise it
// is created and extended to the size of the requested (or default)
// preset.
func Format(path string, opts Options) error {
	preset, isNew, err := resolvePreset(path, opts)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return errkind.IO.Wrap(err)
	}
	defer f.Close()

	if isNew {
		if err := f.Truncate(preset.TotalSizeBytes()); err != nil {
			return errkind.IO.Wrap(err)
		}
	}

	dev := sectorio.New(f, uint32(preset.BytesPerSector))

	if err := writeBootSector(dev, preset); err != nil {
		return err
	}
	if err := initializeFATs(dev, preset); err != nil {
		return err
	}
	if err := zeroRootDirectory(dev, preset); err != nil {
		return err
	}
	return nil
}

// resolvePreset decides the geometry Format will write: an existing file's
// size wins over any requested slug (spec §4.7), using the fixed classic
// 1.44MB-style field values with TotalSectors recomputed from the file's
// actual length; a nonexistent file uses the full named preset (or
// DefaultPreset) instead.
func resolvePreset(path string, opts Options) (Preset, bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		size := info.Size()
		preset := standardPreset(uint32(size / 512))
		return preset, false, nil
	}
	if !os.IsNotExist(err) {
		return Preset{}, false, errkind.IO.Wrap(err)
	}

	slug := opts.GeometrySlug
	if slug == "" {
		slug = DefaultPreset
	}
	preset, lookupErr := LookupPreset(slug)
	if lookupErr != nil {
		return Preset{}, false, errkind.InvalidImage.Wrap(lookupErr)
	}
	return preset, true, nil
}

// standardPreset is the fixed BPB field set spec §4.7 names literally:
// 512 bytes/sector, 1 sector/cluster, 1 reserved sector, 2 FATs, 224 root
// entries, media 0xF0, 9 sectors/FAT, 18 sectors/track, 2 heads.
func standardPreset(totalSectors uint32) Preset {
	return Preset{
		Slug:              DefaultPreset,
		Name:              "1.44MB 3.5in HD",
		BytesPerSector:    512,
		SectorsPerCluster: 1,
		ReservedSectors:   1,
		NumFATs:           2,
		RootEntryCount:    224,
		MediaDescriptor:   0xF0,
		SectorsPerFAT:     9,
		SectorsPerTrack:   18,
		NumHeads:          2,
		TotalSectors:      totalSectors,
	}
}

func writeBootSector(dev *sectorio.Device, preset Preset) error {
	buf := make([]byte, preset.BytesPerSector)
	w := bytewriter.New(buf)

	var oem [8]byte
	copy(oem[:], "MSDOS5.0")

	var totalSectors16 uint16
	var totalSectors32 uint32
	if preset.TotalSectors <= 0xFFFF {
		totalSectors16 = uint16(preset.TotalSectors)
	} else {
		totalSectors32 = preset.TotalSectors
	}

	var label [11]byte
	for i := range label {
		label[i] = ' '
	}
	copy(label[:], "NO NAME")

	var fsType [8]byte
	for i := range fsType {
		fsType[i] = ' '
	}
	copy(fsType[:], "FAT12")

	fields := []any{
		[3]byte{0xEB, 0x3C, 0x90}, // JumpBoot
		oem,
		preset.BytesPerSector,
		preset.SectorsPerCluster,
		preset.ReservedSectors,
		preset.NumFATs,
		preset.RootEntryCount,
		totalSectors16,
		preset.MediaDescriptor,
		preset.SectorsPerFAT,
		preset.SectorsPerTrack,
		preset.NumHeads,
		uint32(0), // HiddenSectors
		totalSectors32,
		uint8(0),    // DriveNumber
		uint8(0),    // NT reserved
		uint8(0x29), // extended boot signature
		uint32(0x12345678),
		label,
		fsType,
	}
	for _, field := range fields {
		if err := binary.Write(w, binary.LittleEndian, field); err != nil {
			return errkind.IO.Wrap(fmt.Errorf("encoding boot sector: %w", err))
		}
	}

	buf[510] = 0x55
	buf[511] = 0xAA

	return dev.WriteSector(0, buf)
}

// initializeFATs zeroes every sector of every FAT copy, then writes the
// reserved entry 0/1 bytes into the first sector of each copy (spec §9's
// fix for the "only the first sector zeroed" gap).
func initializeFATs(dev *sectorio.Device, preset Preset) error {
	zero := make([]byte, preset.BytesPerSector)

	for fi := uint8(0); fi < preset.NumFATs; fi++ {
		base := uint32(preset.ReservedSectors) + uint32(fi)*uint32(preset.SectorsPerFAT)
		for s := uint32(0); s < uint32(preset.SectorsPerFAT); s++ {
			if err := dev.WriteSector(base+s, zero); err != nil {
				return err
			}
		}

		first := make([]byte, preset.BytesPerSector)
		first[0] = preset.MediaDescriptor
		first[1] = reservedFAT12Prefix[0]
		first[2] = reservedFAT12Prefix[1]
		if err := dev.WriteSector(base, first); err != nil {
			return err
		}
	}
	return nil
}

func zeroRootDirectory(dev *sectorio.Device, preset Preset) error {
	rootDirSectors := (uint32(preset.RootEntryCount)*32 + uint32(preset.BytesPerSector) - 1) /
		uint32(preset.BytesPerSector)
	firstRootSector := uint32(preset.ReservedSectors) + uint32(preset.NumFATs)*uint32(preset.SectorsPerFAT)

	zero := make([]byte, preset.BytesPerSector)
	for s := uint32(0); s < rootDirSectors; s++ {
		if err := dev.WriteSector(firstRootSector+s, zero); err != nil {
			return err
		}
	}
	return nil
}

// Package volume ties geometry, sectorio, fattable, and direntry together
// into the six operations of spec §4.8: info, list, format, copy-in,
// delete, mkdir. format itself lives in package format since it operates
// on an image that may not exist yet; the other five operate on an
// already-open Volume.
package volume

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/mdfat/fat12/direntry"
	"github.com/mdfat/fat12/errkind"
	"github.com/mdfat/fat12/fattable"
	"github.com/mdfat/fat12/geometry"
	"github.com/mdfat/fat12/sectorio"
)

// Volume is a single open FAT12/16 image file plus everything derived from
// its boot sector. A Volume is acquired at operation start and must be
// Closed on every exit path (spec §5's "Scoped acquisition").
type Volume struct {
	file     *os.File
	geo      *geometry.Geometry
	warnings *multierror.Error

	dev   *sectorio.Device
	table *fattable.Table
	root  *direntry.Root
}

// Open parses path's boot sector and returns a Volume ready for the other
// operations. Non-fatal BPB irregularities are available from Warnings()
// afterward; a fatal parse error closes the file before returning.
func Open(path string) (*Volume, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, errkind.IO.Wrap(err)
	}

	geo, warnings, err := geometry.Parse(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	dev := sectorio.New(f, uint32(geo.BytesPerSector))
	return &Volume{
		file:     f,
		geo:      geo,
		warnings: warnings,
		dev:      dev,
		table:    fattable.New(dev, geo),
		root:     direntry.NewRoot(dev, geo),
	}, nil
}

// Close releases the underlying file handle.
func (v *Volume) Close() error {
	return v.file.Close()
}

// Warnings returns the non-fatal BPB irregularities noticed while parsing,
// or nil if there were none.
func (v *Volume) Warnings() *multierror.Error {
	return v.warnings
}

// Geometry exposes the parsed, derived geometry for callers that need it
// directly (e.g. the CLI's info command).
func (v *Volume) Geometry() *geometry.Geometry {
	return v.geo
}

// Summary is the human-readable form of a volume's geometry, matching spec
// §8 scenario S1's info output fields.
type Summary struct {
	BytesPerSector  uint16
	SectorsPerCluster uint8
	ReservedSectors uint16
	NumFATs         uint8
	RootEntries     uint16
	TotalSectors    uint32
	Media           uint8
	SectorsPerFAT   uint16
	ClusterCount    uint32
	FATType         string
}

// Info returns a Summary of the volume's geometry (spec §4.8 info).
func (v *Volume) Info() Summary {
	return Summary{
		BytesPerSector:    v.geo.BytesPerSector,
		SectorsPerCluster: v.geo.SectorsPerCluster,
		ReservedSectors:   v.geo.ReservedSectors,
		NumFATs:           v.geo.NumFATs,
		RootEntries:       v.geo.RootEntryCount,
		TotalSectors:      v.geo.TotalSectors,
		Media:             v.geo.MediaDescriptor,
		SectorsPerFAT:     v.geo.SectorsPerFAT16,
		ClusterCount:      v.geo.ClusterCount,
		FATType:           v.geo.FATType.String(),
	}
}

// attributeLetters is the fixed R,H,S,V,D,A order spec §8 scenario S3's
// "----D-" attribute string follows.
var attributeLetters = []struct {
	bit uint8
	ch  byte
}{
	{direntry.AttrReadOnly, 'R'},
	{direntry.AttrHidden, 'H'},
	{direntry.AttrSystem, 'S'},
	{direntry.AttrVolumeLabel, 'V'},
	{direntry.AttrDirectory, 'D'},
	{direntry.AttrArchive, 'A'},
}

func attributeString(attr uint8) string {
	buf := make([]byte, len(attributeLetters))
	for i, l := range attributeLetters {
		if attr&l.bit != 0 {
			buf[i] = l.ch
		} else {
			buf[i] = '-'
		}
	}
	return string(buf)
}

// ListEntry is one listed root-directory entry.
type ListEntry struct {
	Name  string
	Attrs string
	Size  uint32
	IsDir bool
}

// List returns every active root entry, in scan order. Hidden and system
// entries are skipped unless showHidden is set (spec §4.8 list, §6 -a).
func (v *Volume) List(showHidden bool) ([]ListEntry, error) {
	slots, err := v.root.Scan()
	if err != nil {
		return nil, err
	}

	var out []ListEntry
	for _, slot := range slots {
		if !showHidden && slot.Entry.Attr&(direntry.AttrHidden|direntry.AttrSystem) != 0 {
			continue
		}
		out = append(out, ListEntry{
			Name:  slot.Entry.Name.Unpack(),
			Attrs: attributeString(slot.Entry.Attr),
			Size:  slot.Entry.FileSize,
			IsDir: slot.Entry.IsDirectory(),
		})
	}
	return out, nil
}

// CopyIn packs srcPath's base name into an 8.3 name, allocates a cluster
// chain sized to the source file, copies its bytes into the data region
// sector by sector, and writes the directory entry (spec §4.8 copy-in,
// §9's fix for the stub-only gap).
func (v *Volume) CopyIn(srcPath string, overwrite bool) error {
	name, err := direntry.Pack83(filepath.Base(srcPath))
	if err != nil {
		return err
	}

	existing, lookupErr := v.root.FindByName(name)
	switch {
	case lookupErr == nil:
		if !overwrite {
			return errkind.AlreadyExists.WithMessage(
				"an entry named " + name.Unpack() + " already exists")
		}
		if existing.Entry.FirstCluster() != 0 {
			if err := v.table.FreeChain(existing.Entry.FirstCluster()); err != nil {
				return err
			}
		}
		if err := v.root.Delete(existing.SlotIndex); err != nil {
			return err
		}
	case errors.Is(lookupErr, errkind.NotFound):
		// Expected case: no existing entry to replace.
	default:
		return lookupErr
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return errkind.IO.Wrap(err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return errkind.IO.Wrap(err)
	}
	size := info.Size()

	firstCluster, err := v.writeFileData(src, size)
	if err != nil {
		return err
	}

	_, err = v.root.CreateEntry(name, direntry.AttrArchive, firstCluster, uint32(size), time.Now())
	return err
}

// writeFileData allocates ceil(size/bytesPerCluster) clusters, links them
// via the FAT ending in EOC, and writes src's bytes into the data region
// sector by sector, zero-padding the final partial sector. It returns the
// first cluster of the chain, or 0 for a zero-byte file.
func (v *Volume) writeFileData(src io.Reader, size int64) (uint32, error) {
	if size == 0 {
		return 0, nil
	}

	bytesPerCluster := int64(v.geo.BytesPerCluster())
	numClusters := (size + bytesPerCluster - 1) / bytesPerCluster

	first, err := v.table.AllocFreeCluster()
	if err != nil {
		return 0, err
	}

	chain := []uint32{first}
	for i := int64(1); i < numClusters; i++ {
		next, err := v.table.AllocFreeCluster()
		if err != nil {
			return 0, err
		}
		if err := v.table.Set(chain[len(chain)-1], next); err != nil {
			return 0, err
		}
		chain = append(chain, next)
	}

	buf := make([]byte, bytesPerCluster)
	for _, cluster := range chain {
		n, readErr := io.ReadFull(src, buf)
		if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
			return 0, errkind.IO.Wrap(readErr)
		}
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}

		sector := v.geo.ClusterToSector(cluster)
		if err := v.dev.WriteSectors(sector, uint32(v.geo.SectorsPerCluster), buf); err != nil {
			return 0, err
		}
	}

	return first, nil
}

// Delete frees name's cluster chain (if any) and marks its directory slot
// deleted (spec §4.8 delete, §9's fix for the non-freeing gap).
func (v *Volume) Delete(name string) error {
	packed, err := direntry.Pack83(name)
	if err != nil {
		return err
	}

	slot, err := v.root.FindByName(packed)
	if err != nil {
		return err
	}

	if slot.Entry.FirstCluster() != 0 {
		if err := v.table.FreeChain(slot.Entry.FirstCluster()); err != nil {
			return err
		}
	}

	return v.root.Delete(slot.SlotIndex)
}

// Mkdir creates a root subdirectory named name (spec §4.5, §4.8 mkdir).
func (v *Volume) Mkdir(name string) error {
	packed, err := direntry.Pack83(name)
	if err != nil {
		return err
	}

	if _, err := v.root.FindByName(packed); err == nil {
		return errkind.AlreadyExists.WithMessage(
			"directory " + packed.Unpack() + " already exists")
	}

	_, err = v.root.CreateSubdirectory(v.table, packed, 0, time.Now())
	return err
}

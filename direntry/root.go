// Package direntry implements the 8.3 name codec and the fixed-size root
// directory engine: scanning, name lookup, free-slot search, and
// create/delete of 32-byte directory entries.
package direntry

import (
	"fmt"
	"time"

	"github.com/mdfat/fat12/errkind"
	"github.com/mdfat/fat12/fattable"
	"github.com/mdfat/fat12/geometry"
	"github.com/mdfat/fat12/sectorio"
)

// Root is the fixed-size root directory of a FAT12/16 volume: a contiguous
// run of geo.RootDirSectors sectors starting at geo.FirstRootSector.
type Root struct {
	dev *sectorio.Device
	geo *geometry.Geometry
}

// NewRoot binds a directory engine to dev and geo.
func NewRoot(dev *sectorio.Device, geo *geometry.Geometry) *Root {
	return &Root{dev: dev, geo: geo}
}

// Slot is one directory-entry-sized position in the root directory,
// carrying both its decoded Entry and the absolute byte offset within the
// image where that entry's 32 bytes begin.
type Slot struct {
	Entry       Entry
	ImageOffset uint32
	SlotIndex   int
}

func (r *Root) slotSector(index int) (uint32, uint32) {
	bps := uint32(r.geo.BytesPerSector)
	entriesPerSector := r.geo.EntriesPerSector
	sector := r.geo.FirstRootSector + uint32(index/entriesPerSector)
	within := uint32(index%entriesPerSector) * Size
	return sector, within
}

func (r *Root) readSlot(index int) (Slot, error) {
	sector, within := r.slotSector(index)
	buf := make([]byte, r.geo.BytesPerSector)
	if err := r.dev.ReadSector(sector, buf); err != nil {
		return Slot{}, err
	}
	raw := buf[within : within+Size]
	imageOffset := sector*uint32(r.geo.BytesPerSector) + within
	return Slot{Entry: Decode(raw), ImageOffset: imageOffset, SlotIndex: index}, nil
}

func (r *Root) writeSlot(index int, entry Entry) error {
	sector, within := r.slotSector(index)
	buf := make([]byte, r.geo.BytesPerSector)
	if err := r.dev.ReadSector(sector, buf); err != nil {
		return err
	}
	raw := entry.Encode()
	copy(buf[within:within+Size], raw[:])
	return r.dev.WriteSector(sector, buf)
}

// Scan iterates every slot in order, skipping deleted (0xE5) and LFN
// (attribute 0x0F) entries, and returns every active entry found before
// the end-of-directory sentinel (0x00) short-circuits the scan (spec §4.5,
// §9).
func (r *Root) Scan() ([]Slot, error) {
	var active []Slot
	total := int(r.geo.RootEntryCount)

	for i := 0; i < total; i++ {
		slot, err := r.readSlot(i)
		if err != nil {
			return nil, err
		}
		if slot.Entry.IsEndOfDirectory() {
			break
		}
		if slot.Entry.IsDeleted() || slot.Entry.IsLFN() {
			continue
		}
		active = append(active, slot)
	}

	return active, nil
}

// FindByName scans for an active entry whose packed name matches name
// exactly, returning errkind.NotFound if none matches.
func (r *Root) FindByName(name Name) (Slot, error) {
	active, err := r.Scan()
	if err != nil {
		return Slot{}, err
	}
	for _, slot := range active {
		if slot.Entry.Name == name {
			return slot, nil
		}
	}
	return Slot{}, errkind.NotFound.WithMessage(fmt.Sprintf(
		"no directory entry named %q", name.Unpack()))
}

// FindFreeSlot returns the index of the first slot whose first byte is
// 0x00 or 0xE5, or errkind.DirectoryFull if every slot is occupied.
func (r *Root) FindFreeSlot() (int, error) {
	total := int(r.geo.RootEntryCount)
	for i := 0; i < total; i++ {
		slot, err := r.readSlot(i)
		if err != nil {
			return 0, err
		}
		if slot.Entry.IsEndOfDirectory() || slot.Entry.IsDeleted() {
			return i, nil
		}
	}
	return 0, errkind.DirectoryFull.WithMessage("root directory has no free slot")
}

// CreateEntry writes a fully-formed directory entry into the first free
// slot and returns the index it was written to. Reserved/time fields are
// populated from createdAt using the DOS date/time packing of spec §3.
func (r *Root) CreateEntry(name Name, attr uint8, firstCluster uint32, size uint32, createdAt time.Time) (int, error) {
	index, err := r.FindFreeSlot()
	if err != nil {
		return 0, err
	}

	entry := Entry{
		Name:           name,
		Attr:           attr,
		CreateDate:     PackDate(createdAt),
		CreateTime:     PackTime(createdAt),
		LastAccessDate: PackDate(createdAt),
		WriteDate:      PackDate(createdAt),
		WriteTime:      PackTime(createdAt),
		FileSize:       size,
	}
	entry.SetFirstCluster(firstCluster)

	if err := r.writeSlot(index, entry); err != nil {
		return 0, err
	}
	return index, nil
}

// Delete marks the slot at index as deleted by writing 0xE5 to the first
// byte of its name field, leaving the rest of the entry untouched (spec
// §4.5, §8 invariant 7).
func (r *Root) Delete(index int) error {
	sector, within := r.slotSector(index)
	buf := make([]byte, r.geo.BytesPerSector)
	if err := r.dev.ReadSector(sector, buf); err != nil {
		return err
	}
	buf[within] = SentinelDeleted
	return r.dev.WriteSector(sector, buf)
}

var dotName = Name{Base: rawPadded("."), Ext: [3]byte{' ', ' ', ' '}}
var dotDotName = Name{Base: rawPadded(".."), Ext: [3]byte{' ', ' ', ' '}}

// CreateSubdirectory allocates one free cluster via table, zeroes every
// sector of that cluster, writes the "." and ".." entries at its start,
// then writes the root directory entry for name pointing at the new
// cluster (spec §4.5).
func (r *Root) CreateSubdirectory(table *fattable.Table, name Name, parentCluster uint32, createdAt time.Time) (int, error) {
	newCluster, err := table.AllocFreeCluster()
	if err != nil {
		return 0, err
	}

	if err := r.zeroCluster(newCluster); err != nil {
		return 0, err
	}

	dotEntry := Entry{Name: dotName, Attr: AttrDirectory, CreateDate: PackDate(createdAt), WriteDate: PackDate(createdAt)}
	dotEntry.SetFirstCluster(newCluster)

	dotDotEntry := Entry{Name: dotDotName, Attr: AttrDirectory, CreateDate: PackDate(createdAt), WriteDate: PackDate(createdAt)}
	dotDotEntry.SetFirstCluster(parentCluster)

	firstSector := r.geo.ClusterToSector(newCluster)
	buf := make([]byte, r.geo.BytesPerSector)
	if err := r.dev.ReadSector(firstSector, buf); err != nil {
		return 0, err
	}
	dotRaw := dotEntry.Encode()
	dotDotRaw := dotDotEntry.Encode()
	copy(buf[0:Size], dotRaw[:])
	copy(buf[Size:2*Size], dotDotRaw[:])
	if err := r.dev.WriteSector(firstSector, buf); err != nil {
		return 0, err
	}

	return r.CreateEntry(name, AttrDirectory, newCluster, 0, createdAt)
}

func (r *Root) zeroCluster(cluster uint32) error {
	firstSector := r.geo.ClusterToSector(cluster)
	zero := make([]byte, r.geo.BytesPerSector)
	for i := uint32(0); i < uint32(r.geo.SectorsPerCluster); i++ {
		if err := r.dev.WriteSector(firstSector+i, zero); err != nil {
			return err
		}
	}
	return nil
}

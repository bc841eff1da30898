package direntry

import (
	"encoding/binary"
	"time"
)

// Attribute flags for a directory entry's attribute byte (spec §3).
const (
	AttrReadOnly    = 0x01
	AttrHidden      = 0x02
	AttrSystem      = 0x04
	AttrVolumeLabel = 0x08
	AttrDirectory   = 0x10
	AttrArchive     = 0x20
	// AttrLFN marks a long-file-name entry; these are skipped on read and
	// never emitted (spec §1, §4.5).
	AttrLFN = 0x0F
)

// Sentinels for Name.Base[0] (spec §3).
const (
	SentinelEndOfDirectory = 0x00
	SentinelDeleted        = 0xE5
)

// Size is the fixed on-disk size of a directory entry in bytes.
const Size = 32

// Entry is a decoded 32-byte FAT12/16 directory entry.
type Entry struct {
	Name             Name
	Attr             uint8
	NTReserved       uint8
	CreateTimeTenths uint8
	CreateTime       uint16
	CreateDate       uint16
	LastAccessDate   uint16
	FirstClusterHigh uint16
	WriteTime        uint16
	WriteDate        uint16
	FirstClusterLow  uint16
	FileSize         uint32
}

// IsEndOfDirectory reports whether this slot (and, by convention, every
// slot after it) marks the end of the directory.
func (e *Entry) IsEndOfDirectory() bool {
	return e.Name.Base[0] == SentinelEndOfDirectory
}

// IsDeleted reports whether this slot holds a deleted, reusable entry.
func (e *Entry) IsDeleted() bool {
	return e.Name.Base[0] == SentinelDeleted
}

// IsLFN reports whether this slot is a long-file-name entry to be skipped.
func (e *Entry) IsLFN() bool {
	return e.Attr == AttrLFN
}

// IsDirectory reports whether the directory attribute bit is set.
func (e *Entry) IsDirectory() bool {
	return e.Attr&AttrDirectory != 0
}

// FirstCluster combines FirstClusterHigh (always 0 on FAT12/16, per spec
// §3) and FirstClusterLow into the entry's starting cluster number.
func (e *Entry) FirstCluster() uint32 {
	return uint32(e.FirstClusterHigh)<<16 | uint32(e.FirstClusterLow)
}

// SetFirstCluster splits cluster into FirstClusterHigh/Low.
func (e *Entry) SetFirstCluster(cluster uint32) {
	e.FirstClusterHigh = uint16(cluster >> 16)
	e.FirstClusterLow = uint16(cluster)
}

// Encode serializes e into its 32-byte on-disk form.
func (e *Entry) Encode() [Size]byte {
	var raw [Size]byte
	copy(raw[0:8], e.Name.Base[:])
	copy(raw[8:11], e.Name.Ext[:])
	raw[11] = e.Attr
	raw[12] = e.NTReserved
	raw[13] = e.CreateTimeTenths
	binary.LittleEndian.PutUint16(raw[14:16], e.CreateTime)
	binary.LittleEndian.PutUint16(raw[16:18], e.CreateDate)
	binary.LittleEndian.PutUint16(raw[18:20], e.LastAccessDate)
	binary.LittleEndian.PutUint16(raw[20:22], e.FirstClusterHigh)
	binary.LittleEndian.PutUint16(raw[22:24], e.WriteTime)
	binary.LittleEndian.PutUint16(raw[24:26], e.WriteDate)
	binary.LittleEndian.PutUint16(raw[26:28], e.FirstClusterLow)
	binary.LittleEndian.PutUint32(raw[28:32], e.FileSize)
	return raw
}

// Decode deserializes a 32-byte slice into an Entry.
func Decode(raw []byte) Entry {
	var e Entry
	copy(e.Name.Base[:], raw[0:8])
	copy(e.Name.Ext[:], raw[8:11])
	e.Attr = raw[11]
	e.NTReserved = raw[12]
	e.CreateTimeTenths = raw[13]
	e.CreateTime = binary.LittleEndian.Uint16(raw[14:16])
	e.CreateDate = binary.LittleEndian.Uint16(raw[16:18])
	e.LastAccessDate = binary.LittleEndian.Uint16(raw[18:20])
	e.FirstClusterHigh = binary.LittleEndian.Uint16(raw[20:22])
	e.WriteTime = binary.LittleEndian.Uint16(raw[22:24])
	e.WriteDate = binary.LittleEndian.Uint16(raw[24:26])
	e.FirstClusterLow = binary.LittleEndian.Uint16(raw[26:28])
	e.FileSize = binary.LittleEndian.Uint32(raw[28:32])
	return e
}

// PackDate encodes t as a DOS date: (Y-1980)<<9 | M<<5 | D.
func PackDate(t time.Time) uint16 {
	y := t.Year()
	if y < 1980 {
		y = 1980
	}
	return uint16((y-1980)<<9) | uint16(t.Month())<<5 | uint16(t.Day())
}

// PackTime encodes t as a DOS time: h<<11 | m<<5 | (s/2).
func PackTime(t time.Time) uint16 {
	return uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
}

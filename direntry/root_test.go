package direntry_test

import (
	"testing"
	"time"

	"github.com/mdfat/fat12/direntry"
	"github.com/mdfat/fat12/errkind"
	"github.com/mdfat/fat12/fattable"
	"github.com/mdfat/fat12/geometry"
	"github.com/mdfat/fat12/sectorio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

func newTestVolume(t *testing.T) (*sectorio.Device, *geometry.Geometry, *fattable.Table) {
	t.Helper()

	const bps = 512
	geo := &geometry.Geometry{
		FirstFATSector:  1,
		FirstRootSector: 3,
		FirstDataSector: 4,
		ClusterCount:    10,
		FATType:         geometry.FAT12,
	}
	geo.BytesPerSector = bps
	geo.SectorsPerCluster = 1
	geo.NumFATs = 2
	geo.SectorsPerFAT16 = 1
	geo.RootEntryCount = 16
	geo.RootDirSectors = 1
	geo.EntriesPerSector = bps / direntry.Size

	totalSectors := 4 + 10
	image := make([]byte, bps*totalSectors)
	dev := sectorio.New(bytesextra.NewReadWriteSeeker(image), bps)
	table := fattable.New(dev, geo)

	return dev, geo, table
}

func TestCreateEntryThenScanFindsIt(t *testing.T) {
	_, geo, _ := newTestVolume(t)
	dev := sectorio.New(bytesextra.NewReadWriteSeeker(make([]byte, geo.BytesPerSector*14)), geo.BytesPerSector)
	root := direntry.NewRoot(dev, geo)

	name, err := direntry.Pack83("FOO.TXT")
	require.NoError(t, err)

	_, err = root.CreateEntry(name, 0, 5, 1234, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	slots, err := root.Scan()
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "FOO.TXT", slots[0].Entry.Name.Unpack())
	assert.EqualValues(t, 5, slots[0].Entry.FirstCluster())
	assert.EqualValues(t, 1234, slots[0].Entry.FileSize)
}

func TestScanStopsAtEndOfDirectorySentinel(t *testing.T) {
	_, geo, _ := newTestVolume(t)
	dev := sectorio.New(bytesextra.NewReadWriteSeeker(make([]byte, geo.BytesPerSector*14)), geo.BytesPerSector)
	root := direntry.NewRoot(dev, geo)

	nameA, _ := direntry.Pack83("A.TXT")
	nameB, _ := direntry.Pack83("B.TXT")
	_, err := root.CreateEntry(nameA, 0, 2, 0, time.Now())
	require.NoError(t, err)

	// Delete index 0, then create a second entry, which reuses slot 0; slot
	// 1 onward keeps the 0x00 end-of-directory sentinel.
	require.NoError(t, root.Delete(0))
	_, err = root.CreateEntry(nameB, 0, 3, 0, time.Now())
	require.NoError(t, err)

	slots, err := root.Scan()
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "B.TXT", slots[0].Entry.Name.Unpack())
}

func TestFindByNameNotFound(t *testing.T) {
	_, geo, _ := newTestVolume(t)
	dev := sectorio.New(bytesextra.NewReadWriteSeeker(make([]byte, geo.BytesPerSector*14)), geo.BytesPerSector)
	root := direntry.NewRoot(dev, geo)

	name, _ := direntry.Pack83("MISSING.TXT")
	_, err := root.FindByName(name)
	require.Error(t, err)
	assert.ErrorIs(t, err, errkind.NotFound)
}

func TestDeletePreservesRestOfEntry(t *testing.T) {
	_, geo, _ := newTestVolume(t)
	dev := sectorio.New(bytesextra.NewReadWriteSeeker(make([]byte, geo.BytesPerSector*14)), geo.BytesPerSector)
	root := direntry.NewRoot(dev, geo)

	name, _ := direntry.Pack83("GONE.TXT")
	idx, err := root.CreateEntry(name, 0, 7, 42, time.Now())
	require.NoError(t, err)

	require.NoError(t, root.Delete(idx))

	slots, err := root.Scan()
	require.NoError(t, err)
	assert.Len(t, slots, 0)

	buf := make([]byte, geo.BytesPerSector)
	require.NoError(t, dev.ReadSector(geo.FirstRootSector, buf))
	raw := buf[idx*direntry.Size : (idx+1)*direntry.Size]
	assert.EqualValues(t, direntry.SentinelDeleted, raw[0])
	deleted := direntry.Decode(raw)
	assert.Equal(t, "ONE    ", string(deleted.Name.Base[1:]))
	assert.Equal(t, "TXT", string(deleted.Name.Ext[:]))
	assert.EqualValues(t, 7, deleted.FirstCluster())
	assert.EqualValues(t, 42, deleted.FileSize)
}

func TestFindFreeSlotFailsWhenDirectoryFull(t *testing.T) {
	_, geo, _ := newTestVolume(t)
	geo.RootEntryCount = 2
	dev := sectorio.New(bytesextra.NewReadWriteSeeker(make([]byte, geo.BytesPerSector*14)), geo.BytesPerSector)
	root := direntry.NewRoot(dev, geo)

	for i := 0; i < 2; i++ {
		name, _ := direntry.Pack83("X")
		_, err := root.CreateEntry(name, 0, uint32(i+2), 0, time.Now())
		require.NoError(t, err)
	}

	_, err := root.FindFreeSlot()
	require.Error(t, err)
	assert.ErrorIs(t, err, errkind.DirectoryFull)
}

// TestCreateSubdirectory is spec §8 invariant 6.
func TestCreateSubdirectory(t *testing.T) {
	_, geo, _ := newTestVolume(t)
	dev := sectorio.New(bytesextra.NewReadWriteSeeker(make([]byte, geo.BytesPerSector*14)), geo.BytesPerSector)
	root := direntry.NewRoot(dev, geo)
	table := fattable.New(dev, geo)

	name, _ := direntry.Pack83("SUB")
	_, err := root.CreateSubdirectory(table, name, 0, time.Now())
	require.NoError(t, err)

	slots, err := root.Scan()
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.True(t, slots[0].Entry.IsDirectory())

	newCluster := slots[0].Entry.FirstCluster()
	value, err := table.Get(newCluster)
	require.NoError(t, err)
	assert.EqualValues(t, geo.FATType.EOC(), value)

	firstSector := geo.ClusterToSector(newCluster)
	buf := make([]byte, geo.BytesPerSector)
	require.NoError(t, dev.ReadSector(firstSector, buf))

	dotEntry := direntry.Decode(buf[0:direntry.Size])
	dotDotEntry := direntry.Decode(buf[direntry.Size : 2*direntry.Size])

	assert.Equal(t, ".", dotEntry.Name.Unpack())
	assert.Equal(t, "..", dotDotEntry.Name.Unpack())
	assert.EqualValues(t, newCluster, dotEntry.FirstCluster())
	assert.EqualValues(t, 0, dotDotEntry.FirstCluster())
}

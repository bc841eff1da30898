package fattable_test

import (
	"testing"

	"github.com/mdfat/fat12/errkind"
	"github.com/mdfat/fat12/fattable"
	"github.com/mdfat/fat12/geometry"
	"github.com/mdfat/fat12/sectorio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// newFAT12Volume builds an in-memory 1.44MB-shaped FAT12 volume: 512
// bytes/sector, 2 FATs of 9 sectors each starting at sector 1, 2847
// clusters, all entries initially free.
func newFAT12Volume(t *testing.T) (*sectorio.Device, *geometry.Geometry) {
	t.Helper()

	const bps = 512
	const sectorsPerFAT = 9
	const numFATs = 2
	const reserved = 1

	image := make([]byte, bps*(reserved+numFATs*sectorsPerFAT+100))
	dev := sectorio.New(bytesextra.NewReadWriteSeeker(image), bps)

	geo := &geometry.Geometry{
		FirstFATSector: reserved,
		ClusterCount:   2847,
		FATType:        geometry.FAT12,
	}
	geo.BytesPerSector = bps
	geo.SectorsPerCluster = 1
	geo.NumFATs = numFATs
	geo.SectorsPerFAT16 = sectorsPerFAT

	return dev, geo
}

func newFAT16Volume(t *testing.T) (*sectorio.Device, *geometry.Geometry) {
	t.Helper()

	const bps = 512
	const sectorsPerFAT = 64
	const numFATs = 2
	const reserved = 1

	image := make([]byte, bps*(reserved+numFATs*sectorsPerFAT+100))
	dev := sectorio.New(bytesextra.NewReadWriteSeeker(image), bps)

	geo := &geometry.Geometry{
		FirstFATSector: reserved,
		ClusterCount:   70000 - 2, // only bounds the valid cluster range; FATType selects the 16-bit path
		FATType:        geometry.FAT16,
	}
	geo.BytesPerSector = bps
	geo.SectorsPerCluster = 1
	geo.NumFATs = numFATs
	geo.SectorsPerFAT16 = sectorsPerFAT

	return dev, geo
}

func TestFAT12SetThenGetRoundTrips(t *testing.T) {
	dev, geo := newFAT12Volume(t)
	table := fattable.New(dev, geo)

	require.NoError(t, table.Set(5, 0xABC))
	value, err := table.Get(5)
	require.NoError(t, err)
	assert.EqualValues(t, 0xABC, value)
}

// TestFAT12StraddleWrite is spec §8 S6: cluster 341's pair begins at byte
// offset 511 of the first FAT sector, straddling into the second sector.
func TestFAT12StraddleWrite(t *testing.T) {
	dev, geo := newFAT12Volume(t)
	table := fattable.New(dev, geo)

	require.NoError(t, table.Set(341, 0xABC))

	value, err := table.Get(341)
	require.NoError(t, err)
	assert.EqualValues(t, 0xABC, value)

	neighborLow, err := table.Get(340)
	require.NoError(t, err)
	assert.EqualValues(t, 0, neighborLow)

	neighborHigh, err := table.Get(342)
	require.NoError(t, err)
	assert.EqualValues(t, 0, neighborHigh)
}

// TestFAT12SharedPairIndependence is spec §8 invariant 2: two distinct
// clusters sharing a FAT12 pair must not clobber each other.
func TestFAT12SharedPairIndependence(t *testing.T) {
	dev, geo := newFAT12Volume(t)
	table := fattable.New(dev, geo)

	require.NoError(t, table.Set(10, 0x123))
	require.NoError(t, table.Set(11, 0x456))

	v10, err := table.Get(10)
	require.NoError(t, err)
	v11, err := table.Get(11)
	require.NoError(t, err)

	assert.EqualValues(t, 0x123, v10)
	assert.EqualValues(t, 0x456, v11)
}

func TestSetMirrorsAllFATCopies(t *testing.T) {
	dev, geo := newFAT12Volume(t)
	table := fattable.New(dev, geo)

	require.NoError(t, table.Set(100, 0x0FFF))

	rawA := make([]byte, uint32(geo.BytesPerSector)*uint32(geo.SectorsPerFAT16))
	rawB := make([]byte, uint32(geo.BytesPerSector)*uint32(geo.SectorsPerFAT16))
	require.NoError(t, dev.ReadSectors(geo.FirstFATSector, uint32(geo.SectorsPerFAT16), rawA))
	require.NoError(t, dev.ReadSectors(geo.FirstFATSector+uint32(geo.SectorsPerFAT16), uint32(geo.SectorsPerFAT16), rawB))
	assert.Equal(t, rawA, rawB)
}

func TestAllocFreeClusterClaimsFirstFit(t *testing.T) {
	dev, geo := newFAT12Volume(t)
	table := fattable.New(dev, geo)

	c1, err := table.AllocFreeCluster()
	require.NoError(t, err)
	assert.EqualValues(t, 2, c1)

	v1, err := table.Get(c1)
	require.NoError(t, err)
	assert.EqualValues(t, 0x0FFF, v1)

	c2, err := table.AllocFreeCluster()
	require.NoError(t, err)
	assert.EqualValues(t, 3, c2)
}

func TestAllocFreeClusterFailsWhenFull(t *testing.T) {
	const bps = 512
	const sectorsPerFAT = 1
	image := make([]byte, bps*(1+2*sectorsPerFAT+10))
	dev := sectorio.New(bytesextra.NewReadWriteSeeker(image), bps)

	geo := &geometry.Geometry{FirstFATSector: 1, ClusterCount: 2, FATType: geometry.FAT12}
	geo.BytesPerSector = bps
	geo.SectorsPerCluster = 1
	geo.NumFATs = 2
	geo.SectorsPerFAT16 = sectorsPerFAT

	table := fattable.New(dev, geo)
	_, err := table.AllocFreeCluster()
	require.NoError(t, err)
	_, err = table.AllocFreeCluster()
	require.NoError(t, err)

	_, err = table.AllocFreeCluster()
	require.Error(t, err)
	assert.ErrorIs(t, err, errkind.NoSpace)
}

func TestFreeChainWalksUntilEOC(t *testing.T) {
	dev, geo := newFAT12Volume(t)
	table := fattable.New(dev, geo)

	require.NoError(t, table.Set(2, 3))
	require.NoError(t, table.Set(3, 4))
	require.NoError(t, table.Set(4, geo.FATType.EOC()))

	require.NoError(t, table.FreeChain(2))

	for _, c := range []uint32{2, 3, 4} {
		v, err := table.Get(c)
		require.NoError(t, err)
		assert.EqualValuesf(t, 0, v, "cluster %d should be free", c)
	}
}

func TestFAT16GetSet(t *testing.T) {
	dev, geo := newFAT16Volume(t)
	table := fattable.New(dev, geo)

	require.NoError(t, table.Set(8, 0xBEEF))
	v, err := table.Get(8)
	require.NoError(t, err)
	assert.EqualValues(t, 0xBEEF, v)
}

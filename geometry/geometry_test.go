package geometry_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/mdfat/fat12/errkind"
	"github.com/mdfat/fat12/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// build1440KBootSector returns a classic 1.44MB floppy boot sector: 512
// bytes/sector, 1 sector/cluster, 1 reserved sector, 2 FATs, 224 root
// entries, 2880 total sectors, 9 sectors/FAT.
func build1440KBootSector() []byte {
	raw := make([]byte, 512)
	copy(raw[0:3], []byte{0xEB, 0x3C, 0x90})
	copy(raw[3:11], []byte("MSDOS5.0"))
	binary.LittleEndian.PutUint16(raw[11:13], 512)
	raw[13] = 1
	binary.LittleEndian.PutUint16(raw[14:16], 1)
	raw[16] = 2
	binary.LittleEndian.PutUint16(raw[17:19], 224)
	binary.LittleEndian.PutUint16(raw[19:21], 2880)
	raw[21] = 0xF0
	binary.LittleEndian.PutUint16(raw[22:24], 9)
	binary.LittleEndian.PutUint16(raw[24:26], 18)
	binary.LittleEndian.PutUint16(raw[26:28], 2)
	raw[510] = 0x55
	raw[511] = 0xAA
	return raw
}

func TestParseClassicFloppyGeometry(t *testing.T) {
	g, warnings, err := geometry.Parse(bytes.NewReader(build1440KBootSector()))
	require.NoError(t, err)
	assert.Nil(t, warnings.ErrorOrNil())

	assert.EqualValues(t, 512, g.BytesPerSector)
	assert.EqualValues(t, 1, g.SectorsPerCluster)
	assert.EqualValues(t, 1, g.FirstFATSector)
	assert.EqualValues(t, 19, g.FirstRootSector)
	assert.EqualValues(t, 33, g.FirstDataSector)
	assert.EqualValues(t, 2880, g.TotalSectors)
	assert.EqualValues(t, 2847, g.ClusterCount)
	assert.Equal(t, geometry.FAT12, g.FATType)
}

func TestParseMissingSignatureIsWarningNotFatal(t *testing.T) {
	raw := build1440KBootSector()
	raw[510] = 0
	raw[511] = 0

	g, warnings, err := geometry.Parse(bytes.NewReader(raw))
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Error(t, warnings.ErrorOrNil())
}

func TestParseRejectsUnsupportedSectorSize(t *testing.T) {
	raw := build1440KBootSector()
	binary.LittleEndian.PutUint16(raw[11:13], 600)

	_, _, err := geometry.Parse(bytes.NewReader(raw))
	require.Error(t, err)
	assert.ErrorIs(t, err, errkind.InvalidImage)
}

func TestParseRejectsFAT32ByZeroRootEntryCount(t *testing.T) {
	raw := build1440KBootSector()
	binary.LittleEndian.PutUint16(raw[17:19], 0)

	_, _, err := geometry.Parse(bytes.NewReader(raw))
	require.Error(t, err)
	assert.ErrorIs(t, err, errkind.Fat32Unsupported)
}

func TestParseShortReadFails(t *testing.T) {
	_, _, err := geometry.Parse(bytes.NewReader(make([]byte, 10)))
	require.Error(t, err)
	assert.ErrorIs(t, err, errkind.IO)
}

package format

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
)

// Preset is a predefined FAT12 floppy geometry, the formatter's equivalent
// of the teacher's DiskGeometry table (disks/disks.go), decoded from an
// embedded CSV the same way.
type Preset struct {
	Slug              string `csv:"slug"`
	Name              string `csv:"name"`
	BytesPerSector    uint16 `csv:"bytes_per_sector"`
	SectorsPerCluster uint8  `csv:"sectors_per_cluster"`
	ReservedSectors   uint16 `csv:"reserved_sectors"`
	NumFATs           uint8  `csv:"num_fats"`
	RootEntryCount    uint16 `csv:"root_entry_count"`
	MediaDescriptor   uint8  `csv:"media_descriptor"`
	SectorsPerFAT     uint16 `csv:"sectors_per_fat"`
	SectorsPerTrack   uint16 `csv:"sectors_per_track"`
	NumHeads          uint16 `csv:"num_heads"`
	TotalSectors      uint32 `csv:"total_sectors"`
}

// TotalSizeBytes is the minimum image size for this preset.
func (p Preset) TotalSizeBytes() int64 {
	return int64(p.TotalSectors) * int64(p.BytesPerSector)
}

//go:embed geometries.csv
var rawPresetsCSV string

var presets map[string]Preset

func init() {
	presets = make(map[string]Preset)
	err := gocsv.UnmarshalToCallback(
		strings.NewReader(rawPresetsCSV),
		func(row Preset) error {
			if _, exists := presets[row.Slug]; exists {
				return fmt.Errorf("duplicate preset slug %q", row.Slug)
			}
			presets[row.Slug] = row
			return nil
		},
	)
	if err != nil && err != io.EOF {
		panic(fmt.Sprintf("format: malformed embedded geometry table: %s", err))
	}
}

// DefaultPreset is used whenever format is asked to create a new image with
// no existing length and no --geometry slug, per spec §4.7's 1.44MB
// default.
const DefaultPreset = "1440k"

// LookupPreset returns the predefined geometry for slug.
func LookupPreset(slug string) (Preset, error) {
	preset, ok := presets[slug]
	if !ok {
		return Preset{}, fmt.Errorf("no predefined floppy geometry with slug %q", slug)
	}
	return preset, nil
}

// Package volumes holds predefined volume geometries that cmd/ccfsctl's
// mkfs command can lay a fresh filesystem out onto, the same role disks.go
// plays for physical disk geometries in the engine this was built from.
package volumes

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/kestrelfs/ccfs/fs"
)

// Preset is one predefined volume geometry, loaded from presets.csv.
type Preset struct {
	Slug              string `csv:"slug"`
	Name              string `csv:"name"`
	TotalSizeBytes    int64  `csv:"total_size_bytes"`
	SectorsPerCluster uint8  `csv:"sectors_per_cluster"`
	FatCount          uint8  `csv:"fat_count"`
	RootDirSectors    uint32 `csv:"root_dir_sectors"`
	Notes             string `csv:"notes"`
}

// NumBlocks returns the number of 512-byte blocks TotalSizeBytes rounds up to.
func (p Preset) NumBlocks() uint64 {
	const blockSize = 512
	blocks := uint64(p.TotalSizeBytes) / blockSize
	if uint64(p.TotalSizeBytes)%blockSize != 0 {
		blocks++
	}
	return blocks
}

// Geometry converts the preset into the fs.Geometry that fs.Format expects.
func (p Preset) Geometry() fs.Geometry {
	return fs.Geometry{
		SectorsPerCluster: p.SectorsPerCluster,
		FatCount:          p.FatCount,
		RootDirSectors:    p.RootDirSectors,
	}
}

//go:embed presets.csv
var presetsRawCSV string

var presets map[string]Preset

func init() {
	presets = make(map[string]Preset)
	reader := strings.NewReader(presetsRawCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row Preset) error {
		if _, exists := presets[row.Slug]; exists {
			return fmt.Errorf("duplicate preset slug %q", row.Slug)
		}
		presets[row.Slug] = row
		return nil
	})
	if err != nil {
		panic(fmt.Sprintf("volumes: failed to parse embedded presets.csv: %s", err))
	}
}

// Get returns the predefined preset named by slug.
func Get(slug string) (Preset, error) {
	preset, ok := presets[slug]
	if !ok {
		return Preset{}, fmt.Errorf("no predefined volume preset named %q", slug)
	}
	return preset, nil
}

// List returns every predefined preset, in no particular order.
func List() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	return out
}

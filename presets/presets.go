// Package presets supplies named layout.Params presets, the way
// github.com/dargueta/disko's disks package supplies named disk
// geometries: a CSV table parsed once at init time with
// github.com/gocarina/gocsv and looked up by slug.
//
// Unlike disks.GetPredefinedDiskGeometry, whose CSV column set (cylinders,
// heads, sectors, bits per address unit) is specific to physical floppy
// media, this table's columns map directly onto layout.Params, since a
// RUFS diskfile has no physical geometry to describe.
package presets

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/rufs-go/rufs/layout"
)

//go:embed presets.csv
var rawCSV string

type row struct {
	Slug          string `csv:"slug"`
	Name          string `csv:"name"`
	MaxInodes     uint32 `csv:"max_inodes"`
	MaxDataBlocks uint32 `csv:"max_data_blocks"`
	Notes         string `csv:"notes"`
}

// Preset names a layout.Params with a human-readable slug and description.
type Preset struct {
	Slug   string
	Name   string
	Notes  string
	Params layout.Params
}

var bySlug map[string]Preset

func init() {
	var rows []row
	if err := gocsv.UnmarshalString(rawCSV, &rows); err != nil {
		panic(fmt.Sprintf("presets: malformed embedded CSV: %v", err))
	}

	bySlug = make(map[string]Preset, len(rows))
	for _, r := range rows {
		if _, exists := bySlug[r.Slug]; exists {
			panic(fmt.Sprintf("presets: duplicate slug %q", r.Slug))
		}
		bySlug[r.Slug] = Preset{
			Slug:  r.Slug,
			Name:  r.Name,
			Notes: r.Notes,
			Params: layout.Params{
				MaxInodes:   r.MaxInodes,
				MaxDataBlks: r.MaxDataBlocks,
			},
		}
	}
}

// Get returns the preset named by slug.
func Get(slug string) (Preset, error) {
	p, ok := bySlug[slug]
	if !ok {
		return Preset{}, fmt.Errorf("presets: no preset named %q (known: %s)", slug, strings.Join(Slugs(), ", "))
	}
	return p, nil
}

// Slugs returns every known preset slug, for CLI help text.
func Slugs() []string {
	out := make([]string, 0, len(bySlug))
	for slug := range bySlug {
		out = append(out, slug)
	}
	return out
}

// Package presets defines the named sensor readout modes of the quad-band
// camera and the mapping from raw buffer dimensions to de-interleaved image
// dimensions.
package presets

import (
	"fmt"
	"sort"
)

// Bytes per sample in the raw Bayer readout.
const SampleBytes = 2

// Preset is an immutable record describing one named readout mode. Raw
// dimensions cover the padded sensor buffer; image dimensions cover the
// de-interleaved output. Image dimensions never exceed raw dimensions and
// both must be even so the buffer splits into four equal bands.
type Preset struct {
	Name        string `toml:"-" json:"name" example:"MEDIUM" doc:"Preset name"`
	RawWidth    int    `toml:"raw_width" json:"raw_width" example:"2032" doc:"Sensor buffer width in samples"`
	RawHeight   int    `toml:"raw_height" json:"raw_height" example:"1080" doc:"Sensor buffer height in rows"`
	ImageWidth  int    `toml:"image_width" json:"image_width" example:"2024" doc:"Output image width in samples"`
	ImageHeight int    `toml:"image_height" json:"image_height" example:"1080" doc:"Output image height in rows"`
	Framerate   int    `toml:"framerate" json:"framerate" example:"15" doc:"Nominal capture rate in frames per second"`
}

// BandWidth returns the width of one band in samples.
func (p Preset) BandWidth() int { return p.ImageWidth / 2 }

// BandHeight returns the height of one band in rows.
func (p Preset) BandHeight() int { return p.ImageHeight / 2 }

// RawBytes returns the expected size of one raw capture buffer.
func (p Preset) RawBytes() int { return p.RawWidth * p.RawHeight * SampleBytes }

// FrameBytes returns the size of one de-interleaved output frame.
func (p Preset) FrameBytes() int { return p.ImageWidth * p.ImageHeight * SampleBytes }

// Validate checks the quadrant-splitting invariants.
func (p Preset) Validate() error {
	if p.RawWidth <= 0 || p.RawHeight <= 0 || p.ImageWidth <= 0 || p.ImageHeight <= 0 {
		return fmt.Errorf("preset %s: dimensions must be positive", p.Name)
	}
	if p.ImageWidth > p.RawWidth || p.ImageHeight > p.RawHeight {
		return fmt.Errorf("preset %s: image %dx%d exceeds raw %dx%d",
			p.Name, p.ImageWidth, p.ImageHeight, p.RawWidth, p.RawHeight)
	}
	if p.RawWidth%2 != 0 || p.RawHeight%2 != 0 || p.ImageWidth%2 != 0 || p.ImageHeight%2 != 0 {
		return fmt.Errorf("preset %s: dimensions must be even for band splitting", p.Name)
	}
	if p.Framerate <= 0 {
		return fmt.Errorf("preset %s: framerate must be positive", p.Name)
	}
	return nil
}

// Empirical sensor map for the quad-band IMX477 module. LOW and MEDIUM
// carry the readout padding measured on hardware; HIGH is the full-sensor
// mode with the same 8-column padding as MEDIUM.
var builtin = map[string]Preset{
	"LOW":    {Name: "LOW", RawWidth: 1344, RawHeight: 990, ImageWidth: 1328, ImageHeight: 990, Framerate: 30},
	"MEDIUM": {Name: "MEDIUM", RawWidth: 2032, RawHeight: 1080, ImageWidth: 2024, ImageHeight: 1080, Framerate: 15},
	"HIGH":   {Name: "HIGH", RawWidth: 4064, RawHeight: 3040, ImageWidth: 4056, ImageHeight: 3040, Framerate: 15},
}

// DefaultName is the preset used when neither flags nor provisioning
// select one.
const DefaultName = "MEDIUM"

// Table is an immutable set of named presets resolved once at startup.
type Table struct {
	presets map[string]Preset
}

// Builtin returns a table holding only the built-in sensor map.
func Builtin() *Table {
	m := make(map[string]Preset, len(builtin))
	for name, p := range builtin {
		m[name] = p
	}
	return &Table{presets: m}
}

// NewTable builds a table from explicit presets, keyed by name. Every
// entry must validate.
func NewTable(list ...Preset) (*Table, error) {
	m := make(map[string]Preset, len(list))
	for _, p := range list {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		m[p.Name] = p
	}
	return &Table{presets: m}, nil
}

// Get looks up a preset by name.
func (t *Table) Get(name string) (Preset, bool) {
	p, ok := t.presets[name]
	return p, ok
}

// Has reports whether name is a known preset.
func (t *Table) Has(name string) bool {
	_, ok := t.presets[name]
	return ok
}

// Names returns all preset names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.presets))
	for name := range t.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns all presets sorted by name.
func (t *Table) All() []Preset {
	all := make([]Preset, 0, len(t.presets))
	for _, name := range t.Names() {
		all = append(all, t.presets[name])
	}
	return all
}

// Package band de-interleaves the quad-band multiplexed sensor readout
// into a planar four-band image layout.
package band

import (
	"errors"
	"fmt"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/presets"
)

// ErrInvalidBufferSize reports a raw buffer whose length does not match
// the preset's sensor layout. The capture path treats this as fatal.
var ErrInvalidBufferSize = errors.New("invalid raw buffer size")

// ValidateSize checks that raw holds exactly one sensor buffer for the
// preset layout.
func ValidateSize(raw []byte, p presets.Preset) error {
	if len(raw) != p.RawBytes() {
		return fmt.Errorf("%w: got %d bytes, preset %s expects %d",
			ErrInvalidBufferSize, len(raw), p.Name, p.RawBytes())
	}
	return nil
}

// Deinterleave splits one raw capture buffer into its four bands and lays
// them out sequentially, each band as contiguous rows. The sensor reads the
// bands out as a 2x2 grid at half resolution inside a padded buffer; the
// grid origins sit at sample offsets 0, bandW, bandH*rawW and
// bandH*rawW+bandW with a row stride of rawW samples. The returned buffer
// is newly allocated and owned by the caller; raw is never mutated.
func Deinterleave(raw []byte, p presets.Preset) ([]byte, error) {
	if err := ValidateSize(raw, p); err != nil {
		return nil, err
	}

	rowBytes := p.BandWidth() * presets.SampleBytes
	rawStride := p.RawWidth * presets.SampleBytes
	bandH := p.BandHeight()

	srcOrigins := [4]int{
		0,
		rowBytes,
		bandH * rawStride,
		bandH*rawStride + rowBytes,
	}

	out := make([]byte, p.FrameBytes())
	dst := 0
	for _, origin := range srcOrigins {
		src := origin
		for row := 0; row < bandH; row++ {
			copy(out[dst:dst+rowBytes], raw[src:src+rowBytes])
			dst += rowBytes
			src += rawStride
		}
	}
	return out, nil
}

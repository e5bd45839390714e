//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"
)

// FormatReport describes one pixel format together with the modes the
// driver advertises for it.
type FormatReport struct {
	Format      FormatInfo
	Resolutions []ResolutionReport
}

// ResolutionReport couples a frame size with its achievable rates.
type ResolutionReport struct {
	Resolution Resolution
	Framerates []Framerate
}

// Probe enumerates every pixel format, frame size and frame interval a
// device advertises. Used during bring-up to confirm the sensor exposes
// the multiplexed modes before a capture is attempted.
func Probe(devicePath string) ([]FormatReport, error) {
	fd, err := open(devicePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}
	defer close(fd)

	formats, err := enumFormats(fd)
	if err != nil {
		return nil, err
	}

	reports := make([]FormatReport, 0, len(formats))
	for _, format := range formats {
		report := FormatReport{Format: format}

		resolutions, err := enumResolutions(fd, format.PixelFormat)
		if err != nil {
			return nil, err
		}
		for _, res := range resolutions {
			rates, err := enumFramerates(fd, format.PixelFormat, res.Width, res.Height)
			if err != nil {
				return nil, err
			}
			report.Resolutions = append(report.Resolutions, ResolutionReport{
				Resolution: res,
				Framerates: rates,
			})
		}

		reports = append(reports, report)
	}
	return reports, nil
}

func enumFormats(fd int) ([]FormatInfo, error) {
	var formats []FormatInfo
	for i := uint32(0); ; i++ {
		fmtdesc := v4l2Fmtdesc{index: i, typ: v4l2BufTypeVideoCapture}
		if err := ioctl(fd, vidiocEnumFmt, unsafe.Pointer(&fmtdesc)); err != nil {
			if errors.Is(err, syscall.EINVAL) {
				return formats, nil
			}
			return nil, fmt.Errorf("failed to enumerate format %d: %w", i, err)
		}
		formats = append(formats, FormatInfo{
			PixelFormat: fmtdesc.pixelformat,
			FormatName:  cstr(fmtdesc.description[:]),
			Emulated:    fmtdesc.flags&v4l2FmtFlagEmulated != 0,
		})
	}
}

func enumResolutions(fd int, pixelFormat uint32) ([]Resolution, error) {
	var resolutions []Resolution
	for i := uint32(0); ; i++ {
		frmsize := v4l2Frmsizeenum{index: i, pixelFormat: pixelFormat}
		if err := ioctl(fd, vidiocEnumFramesizes, unsafe.Pointer(&frmsize)); err != nil {
			if errors.Is(err, syscall.EINVAL) {
				return resolutions, nil
			}
			if errors.Is(err, syscall.ENOTTY) {
				// Driver cannot enumerate sizes at all.
				return nil, nil
			}
			return nil, fmt.Errorf("failed to enumerate frame size %d: %w", i, err)
		}

		switch frmsize.typ {
		case v4l2FrmsizeTypeDiscrete:
			resolutions = append(resolutions, Resolution{
				Width:  frmsize.discrete.width,
				Height: frmsize.discrete.height,
			})
		case v4l2FrmsizeTypeContinuous, v4l2FrmsizeTypeStepwise:
			// A range instead of a list; there is only one such entry.
			return stepwiseResolutions(&frmsize), nil
		}
	}
}

// stepwiseResolutions reduces a size range to concrete rows: the range
// corners plus whichever multiplexed sensor modes fit inside it.
func stepwiseResolutions(frmsize *v4l2Frmsizeenum) []Resolution {
	// The stepwise variant overlays the discrete one in the union.
	sw := (*v4l2FrmsizeStepwise)(unsafe.Pointer(&frmsize.discrete))

	candidates := []Resolution{
		{Width: sw.minWidth, Height: sw.minHeight},
		{Width: 1344, Height: 990},
		{Width: 2032, Height: 1080},
		{Width: 4064, Height: 3040},
		{Width: sw.maxWidth, Height: sw.maxHeight},
	}

	var resolutions []Resolution
	for _, c := range candidates {
		if !fitsStepwise(c, sw) {
			continue
		}
		if n := len(resolutions); n > 0 && resolutions[n-1] == c {
			continue
		}
		resolutions = append(resolutions, c)
	}
	return resolutions
}

func fitsStepwise(r Resolution, sw *v4l2FrmsizeStepwise) bool {
	if r.Width < sw.minWidth || r.Width > sw.maxWidth || r.Height < sw.minHeight || r.Height > sw.maxHeight {
		return false
	}
	if sw.stepWidth > 1 && (r.Width-sw.minWidth)%sw.stepWidth != 0 {
		return false
	}
	if sw.stepHeight > 1 && (r.Height-sw.minHeight)%sw.stepHeight != 0 {
		return false
	}
	return true
}

// v4l2FrmivalStepwise overlays the frame interval union when the driver
// reports a range. Three fractions, identical layout on every arch.
type v4l2FrmivalStepwise struct {
	min  v4l2Fract
	max  v4l2Fract
	step v4l2Fract
}

func enumFramerates(fd int, pixelFormat, width, height uint32) ([]Framerate, error) {
	var framerates []Framerate
	for i := uint32(0); ; i++ {
		frmival := v4l2Frmivalenum{
			index:       i,
			pixelFormat: pixelFormat,
			width:       width,
			height:      height,
		}
		if err := ioctl(fd, vidiocEnumFrameintervals, unsafe.Pointer(&frmival)); err != nil {
			if errors.Is(err, syscall.EINVAL) {
				return framerates, nil
			}
			if errors.Is(err, syscall.ENOTTY) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to enumerate frame interval %d: %w", i, err)
		}

		switch frmival.typ {
		case v4l2FrmivalTypeDiscrete:
			framerates = append(framerates, Framerate{
				Numerator:   frmival.discrete.numerator,
				Denominator: frmival.discrete.denominator,
			})
		case v4l2FrmivalTypeContinuous, v4l2FrmivalTypeStepwise:
			// Report the range ends: the slowest and fastest rates.
			sw := (*v4l2FrmivalStepwise)(unsafe.Pointer(&frmival.discrete))
			slow := Framerate{Numerator: sw.max.numerator, Denominator: sw.max.denominator}
			fast := Framerate{Numerator: sw.min.numerator, Denominator: sw.min.denominator}
			if slow == fast {
				return []Framerate{fast}, nil
			}
			return []Framerate{slow, fast}, nil
		}
	}
}

// FormatFourCC converts a 4-byte pixel format to a human-readable string.
func FormatFourCC(format uint32) string {
	b := make([]byte, 4)
	b[0] = byte(format & 0xFF)
	b[1] = byte((format >> 8) & 0xFF)
	b[2] = byte((format >> 16) & 0xFF)
	b[3] = byte((format >> 24) & 0xFF)
	return string(b)
}

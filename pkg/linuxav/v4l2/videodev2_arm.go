//go:build linux && arm && !arm64

package v4l2

import "unsafe"

// Compile-time struct size assertions for 32-bit ARM.
// These will cause build failures if struct sizes don't match kernel expectations.
var (
	_ [104]byte = [unsafe.Sizeof(v4l2Capability{})]byte{}
	_ [64]byte  = [unsafe.Sizeof(v4l2Fmtdesc{})]byte{}
	_ [8]byte   = [unsafe.Sizeof(v4l2FrmsizeDiscrete{})]byte{}
	_ [24]byte  = [unsafe.Sizeof(v4l2FrmsizeStepwise{})]byte{}
	_ [44]byte  = [unsafe.Sizeof(v4l2Frmsizeenum{})]byte{}
	_ [8]byte   = [unsafe.Sizeof(v4l2Fract{})]byte{}
	_ [52]byte  = [unsafe.Sizeof(v4l2Frmivalenum{})]byte{}
	_ [48]byte  = [unsafe.Sizeof(v4l2PixFormat{})]byte{}
	_ [204]byte = [unsafe.Sizeof(v4l2Format{})]byte{}
	_ [20]byte  = [unsafe.Sizeof(v4l2RequestBuffers{})]byte{}
	_ [68]byte  = [unsafe.Sizeof(v4l2Buffer{})]byte{}
	_ [8]byte   = [unsafe.Sizeof(v4l2Control{})]byte{}
	_ [204]byte = [unsafe.Sizeof(v4l2Streamparm{})]byte{}
)

// IOCTL constants for 32-bit ARM.
// Most values match 64-bit since the struct sizes are identical. The
// format and buffer ioctls differ because pointer alignment and the
// timeval size shrink those structs on 32-bit.
const (
	vidiocQuerycap           = 0x80685600
	vidiocEnumFmt            = 0xc0405602
	vidiocGFmt               = 0xc0cc5604
	vidiocSFmt               = 0xc0cc5605
	vidiocReqbufs            = 0xc0145608
	vidiocQuerybuf           = 0xc0445609
	vidiocQbuf               = 0xc044560f
	vidiocDqbuf              = 0xc0445611
	vidiocStreamon           = 0x40045612
	vidiocStreamoff          = 0x40045613
	vidiocSParm              = 0xc0cc5616
	vidiocGCtrl              = 0xc008561b
	vidiocSCtrl              = 0xc008561c
	vidiocEnumFramesizes     = 0xc02c564a
	vidiocEnumFrameintervals = 0xc034564b
)

// v4l2Capability has size 104 bytes (same as 64-bit).
type v4l2Capability struct {
	driver       [16]byte
	card         [32]byte
	busInfo      [32]byte
	version      uint32
	capabilities uint32
	deviceCaps   uint32
	reserved     [3]uint32
}

// v4l2Fmtdesc has size 64 bytes (same as 64-bit).
type v4l2Fmtdesc struct {
	index       uint32
	typ         uint32
	flags       uint32
	description [32]byte
	pixelformat uint32
	mbusCode    uint32
	reserved    [3]uint32
}

// v4l2FrmsizeDiscrete has size 8 bytes.
type v4l2FrmsizeDiscrete struct {
	width  uint32
	height uint32
}

// v4l2FrmsizeStepwise has size 24 bytes.
type v4l2FrmsizeStepwise struct {
	minWidth   uint32
	maxWidth   uint32
	stepWidth  uint32
	minHeight  uint32
	maxHeight  uint32
	stepHeight uint32
}

// v4l2Frmsizeenum has size 44 bytes (same as 64-bit).
type v4l2Frmsizeenum struct {
	index       uint32
	pixelFormat uint32
	typ         uint32
	discrete    v4l2FrmsizeDiscrete
	_           [16]byte
	reserved    [2]uint32
}

// v4l2Fract has size 8 bytes.
type v4l2Fract struct {
	numerator   uint32
	denominator uint32
}

// v4l2Frmivalenum has size 52 bytes (same as 64-bit).
type v4l2Frmivalenum struct {
	index       uint32
	pixelFormat uint32
	width       uint32
	height      uint32
	typ         uint32
	discrete    v4l2Fract
	_           [16]byte
	reserved    [2]uint32
}

// v4l2PixFormat has size 48 bytes (same as 64-bit).
type v4l2PixFormat struct {
	width        uint32
	height       uint32
	pixelformat  uint32
	field        uint32
	bytesperline uint32
	sizeimage    uint32
	colorspace   uint32
	priv         uint32
	flags        uint32
	ycbcrEnc     uint32
	quantization uint32
	xferFunc     uint32
}

// v4l2Format has size 204 bytes. The fmt union is 4-byte aligned on
// 32-bit, so there is no padding after the type field.
type v4l2Format struct {
	typ uint32
	pix v4l2PixFormat
	_   [152]byte
}

// v4l2RequestBuffers has size 20 bytes (same as 64-bit).
type v4l2RequestBuffers struct {
	count        uint32
	typ          uint32
	memory       uint32
	capabilities uint32
	reserved     [4]byte
}

// v4l2Buffer has size 68 bytes on 32-bit due to the 8-byte timeval.
type v4l2Buffer struct {
	index     uint32   // offset 0
	typ       uint32   // offset 4
	bytesused uint32   // offset 8
	flags     uint32   // offset 12
	field     uint32   // offset 16
	tsSec     int32    // offset 20
	tsUsec    int32    // offset 24
	timecode  [16]byte // offset 28 - struct v4l2_timecode
	sequence  uint32   // offset 44
	memory    uint32   // offset 48
	m         uint32   // offset 52 - union, mmap offset
	length    uint32   // offset 56
	reserved2 uint32   // offset 60
	requestFD int32    // offset 64
}

// mmapOffset returns the union field as the mmap offset set by QUERYBUF.
func (b *v4l2Buffer) mmapOffset() uint32 {
	return b.m
}

// timestampUS returns the driver timestamp in microseconds.
func (b *v4l2Buffer) timestampUS() int64 {
	return int64(b.tsSec)*1e6 + int64(b.tsUsec)
}

// v4l2Control has size 8 bytes.
type v4l2Control struct {
	id    uint32
	value int32
}

// v4l2Captureparm has size 40 bytes (embedded in v4l2Streamparm).
type v4l2Captureparm struct {
	capability   uint32
	capturemode  uint32
	timeperframe v4l2Fract
	extendedmode uint32
	readbuffers  uint32
	reserved     [4]uint32
}

// v4l2Streamparm has size 204 bytes (same as 64-bit).
type v4l2Streamparm struct {
	typ     uint32
	capture v4l2Captureparm
	_       [160]byte
}

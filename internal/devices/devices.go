// Package devices enumerates V4L2 capture devices for the devices
// subcommand and the diagnostics API, and resolves stable device IDs to
// /dev paths for the capture stack.
package devices

import (
	"fmt"
	"strings"
)

// DeviceInfo describes one V4L2 capture device.
type DeviceInfo struct {
	DevicePath   string
	DeviceName   string
	Driver       string
	DeviceID     string
	Caps         uint32
	Capabilities []string
}

// FormatMode is one advertised frame size with its achievable rates.
type FormatMode struct {
	Width  uint32
	Height uint32
	FPS    []float64
}

// FormatSupport is one pixel format a device advertises.
type FormatSupport struct {
	FourCC      string
	Description string
	Emulated    bool
	Modes       []FormatMode
}

// V4L2 capability flags (linux/videodev2.h).
const (
	CapVideoCapture       = 0x00000001
	CapVideoOutput        = 0x00000002
	CapVideoOverlay       = 0x00000004
	CapVBICapture         = 0x00000010
	CapVBIOutput          = 0x00000020
	CapSlicedVBICapture   = 0x00000040
	CapSlicedVBIOutput    = 0x00000080
	CapRDSCapture         = 0x00000100
	CapVideoOutputOverlay = 0x00000200
	CapHWFreqSeek         = 0x00000400
	CapRDSOutput          = 0x00000800
	CapVideoCaptureMplane = 0x00001000
	CapVideoOutputMplane  = 0x00002000
	CapVideoM2MMplane     = 0x00004000
	CapVideoM2M           = 0x00008000
	CapTuner              = 0x00010000
	CapAudio              = 0x00020000
	CapRadio              = 0x00040000
	CapModulator          = 0x00080000
	CapSDRCapture         = 0x00100000
	CapExtPixFormat       = 0x00200000
	CapSDROutput          = 0x00400000
	CapMetaCapture        = 0x00800000
	CapReadWrite          = 0x01000000
	CapAsyncIO            = 0x02000000
	CapStreaming          = 0x04000000
	CapMetaOutput         = 0x08000000
	CapTouch              = 0x10000000
	CapIOMC               = 0x20000000
)

// capNames maps capability flags to readable names, ordered by flag value
// so CapabilityNames output is deterministic.
var capNames = []struct {
	flag uint32
	name string
}{
	{CapVideoCapture, "Video Capture"},
	{CapVideoOutput, "Video Output"},
	{CapVideoOverlay, "Video Overlay"},
	{CapVBICapture, "VBI Capture"},
	{CapVBIOutput, "VBI Output"},
	{CapSlicedVBICapture, "Sliced VBI Capture"},
	{CapSlicedVBIOutput, "Sliced VBI Output"},
	{CapRDSCapture, "RDS Capture"},
	{CapVideoOutputOverlay, "Video Output Overlay"},
	{CapHWFreqSeek, "Hardware Frequency Seek"},
	{CapRDSOutput, "RDS Output"},
	{CapVideoCaptureMplane, "Multi-planar Video Capture"},
	{CapVideoOutputMplane, "Multi-planar Video Output"},
	{CapVideoM2MMplane, "Multi-planar Memory-to-Memory"},
	{CapVideoM2M, "Memory-to-Memory"},
	{CapTuner, "Tuner"},
	{CapAudio, "Audio"},
	{CapRadio, "Radio"},
	{CapModulator, "Modulator"},
	{CapSDRCapture, "Software Defined Radio Capture"},
	{CapExtPixFormat, "Extended Pixel Format"},
	{CapSDROutput, "Software Defined Radio Output"},
	{CapMetaCapture, "Metadata Capture"},
	{CapReadWrite, "Read/Write I/O"},
	{CapAsyncIO, "Asynchronous I/O"},
	{CapStreaming, "Streaming I/O"},
	{CapMetaOutput, "Metadata Output"},
	{CapTouch, "Touch Device"},
	{CapIOMC, "Media Controller I/O"},
}

// CapabilityNames converts V4L2 capability flags to readable strings.
func CapabilityNames(caps uint32) []string {
	var names []string
	for _, c := range capNames {
		if caps&c.flag != 0 {
			names = append(names, c.name)
		}
	}
	return names
}

// List returns all V4L2 capture devices on the system with translated
// capability names.
func List() ([]DeviceInfo, error) {
	found, err := findDevices()
	if err != nil {
		return nil, err
	}
	for i := range found {
		found[i].Capabilities = CapabilityNames(found[i].Caps)
	}
	return found, nil
}

// ResolvePath turns a device argument into an openable /dev path. Literal
// /dev paths pass through; anything else is treated as a stable device ID
// from /dev/v4l/by-id.
func ResolvePath(device string) (string, error) {
	if strings.HasPrefix(device, "/dev/") {
		return device, nil
	}
	path, err := resolveByID(device)
	if err != nil {
		return "", fmt.Errorf("device %q: %w", device, err)
	}
	return path, nil
}

// Formats probes which pixel formats, sizes and rates a device
// advertises. Used by the devices subcommand during field bring-up to
// confirm the sensor exposes its multiplexed modes.
func Formats(devicePath string) ([]FormatSupport, error) {
	return probeFormats(devicePath)
}

//go:build linux

package devices

import (
	"github.com/Adrian-Rod-Mol/arducam-apps/pkg/linuxav/v4l2"
)

func findDevices() ([]DeviceInfo, error) {
	found, err := v4l2.FindDevices()
	if err != nil {
		return nil, err
	}
	devices := make([]DeviceInfo, len(found))
	for i, d := range found {
		devices[i] = DeviceInfo{
			DevicePath: d.DevicePath,
			DeviceName: d.DeviceName,
			Driver:     d.Driver,
			DeviceID:   d.DeviceID,
			Caps:       d.Caps,
		}
	}
	return devices, nil
}

func resolveByID(deviceID string) (string, error) {
	return v4l2.GetDevicePathByID(deviceID)
}

func probeFormats(devicePath string) ([]FormatSupport, error) {
	reports, err := v4l2.Probe(devicePath)
	if err != nil {
		return nil, err
	}

	formats := make([]FormatSupport, 0, len(reports))
	for _, report := range reports {
		support := FormatSupport{
			FourCC:      v4l2.FormatFourCC(report.Format.PixelFormat),
			Description: report.Format.FormatName,
			Emulated:    report.Format.Emulated,
		}
		for _, res := range report.Resolutions {
			mode := FormatMode{
				Width:  res.Resolution.Width,
				Height: res.Resolution.Height,
			}
			for _, rate := range res.Framerates {
				mode.FPS = append(mode.FPS, rate.FPS())
			}
			support.Modes = append(support.Modes, mode)
		}
		formats = append(formats, support)
	}
	return formats, nil
}

//go:build darwin

package devices

import "fmt"

// No V4L2 stack on macOS; enumeration is empty and only literal paths
// resolve. Development machines run the simulator.
func findDevices() ([]DeviceInfo, error) {
	return []DeviceInfo{}, nil
}

func resolveByID(deviceID string) (string, error) {
	return "", fmt.Errorf("stable device IDs require V4L2, unavailable on this platform")
}

func probeFormats(devicePath string) ([]FormatSupport, error) {
	return nil, fmt.Errorf("format probing requires V4L2, unavailable on this platform")
}


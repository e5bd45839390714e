//go:build linux

package v4l2

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"
)

const sysVideoClass = "/sys/class/video4linux"

// FindDevices enumerates /sys/class/video4linux and returns every node
// that reports the video-capture capability. Nodes that cannot be
// opened or queried are skipped; media controller and metadata nodes
// fall out here.
func FindDevices() ([]DeviceInfo, error) {
	entries, err := os.ReadDir(sysVideoClass)
	if err != nil {
		if os.IsNotExist(err) {
			return []DeviceInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", sysVideoClass, err)
	}

	var devices []DeviceInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := queryNode(entry.Name())
		if err != nil {
			continue
		}
		if info.Caps&v4l2CapVideoCapture == 0 {
			continue
		}
		devices = append(devices, info)
	}
	return devices, nil
}

// queryNode opens /dev/<name> and fills a DeviceInfo from QUERYCAP and
// sysfs.
func queryNode(name string) (DeviceInfo, error) {
	devicePath := "/dev/" + name

	fd, err := open(devicePath)
	if err != nil {
		return DeviceInfo{}, err
	}
	defer close(fd)

	cap := v4l2Capability{}
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(&cap)); err != nil {
		return DeviceInfo{}, err
	}

	caps := cap.capabilities
	if caps&v4l2CapDeviceCaps != 0 {
		caps = cap.deviceCaps
	}

	index := readSysfsInt(filepath.Join(sysVideoClass, name, "index"))

	return DeviceInfo{
		DevicePath: devicePath,
		DeviceName: cstr(cap.card[:]),
		Driver:     cstr(cap.driver[:]),
		DeviceID:   stableID(name, cstr(cap.busInfo[:]), index),
		Caps:       caps,
	}, nil
}

// stableID returns an identifier that survives node renumbering. USB
// cameras get their /dev/v4l/by-id link name; CSI sensors have no by-id
// entry, so the bus info and index stand in.
func stableID(name, busInfo string, index int) string {
	if id := byIDLink(name, index); id != "" {
		return id
	}
	return syntheticID(busInfo, index)
}

// syntheticID builds an ID in the style of udev's by-path links.
func syntheticID(busInfo string, index int) string {
	if strings.HasPrefix(busInfo, "usb-") {
		return fmt.Sprintf("%s-video-index%d", busInfo, index)
	}
	return fmt.Sprintf("platform-%s-video-index%d", strings.TrimPrefix(busInfo, "platform:"), index)
}

// byIDLink finds the /dev/v4l/by-id symlink pointing at the node.
func byIDLink(name string, index int) string {
	const byIDDir = "/dev/v4l/by-id"

	entries, err := os.ReadDir(byIDDir)
	if err != nil {
		return ""
	}

	wantSuffix := fmt.Sprintf("-video-index%d", index)
	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 || !strings.HasSuffix(entry.Name(), wantSuffix) {
			continue
		}
		target, err := os.Readlink(filepath.Join(byIDDir, entry.Name()))
		if err != nil {
			continue
		}
		if filepath.Base(target) == name {
			return entry.Name()
		}
	}
	return ""
}

// GetDevicePathByID resolves a stable device ID back to its current
// /dev path.
func GetDevicePathByID(deviceID string) (string, error) {
	devices, err := FindDevices()
	if err != nil {
		return "", err
	}
	for _, device := range devices {
		if device.DeviceID == deviceID {
			return device.DevicePath, nil
		}
	}
	return "", fmt.Errorf("device with ID %s not found", deviceID)
}

func readSysfsInt(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	val, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return val
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

//go:build linux

package camera

// Open returns a camera for the given device path. The special path
// "simulator" selects the synthetic sensor.
func Open(devicePath string) (Camera, error) {
	if devicePath == SimulatorPath {
		return NewSimulator(), nil
	}
	return openV4L2(devicePath)
}

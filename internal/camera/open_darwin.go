//go:build darwin

package camera

import "github.com/Adrian-Rod-Mol/arducam-apps/internal/logging"

// Open returns the simulator on macOS, where there is no V4L2 stack.
// This keeps the full pipeline runnable on development machines.
func Open(devicePath string) (Camera, error) {
	if devicePath != SimulatorPath {
		logging.GetLogger("camera").Warn("V4L2 is unavailable on this platform, using simulator",
			"device", devicePath)
	}
	return NewSimulator(), nil
}

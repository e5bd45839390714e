package led

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/logging"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// New returns the LED controller for the board the node runs on. Field
// units are Raspberry Pis; anything else gets a no-op controller so the
// rest of the daemon never cares about LEDs.
func New(logger logging.Logger) Controller {
	boardModel := detectBoard()

	if !strings.Contains(boardModel, "Raspberry Pi") {
		if logger != nil {
			logger.Info("No LED support for this board", "board_model", boardModel)
		}
		return newNoop(logger)
	}

	name := findPiLED(sysfsLEDPath)
	if name == "" {
		if logger != nil {
			logger.Warn("Raspberry Pi without an activity LED", "board_model", boardModel)
		}
		return newNoop(logger)
	}

	if logger != nil {
		logger.Info("Using sysfs LED controller", "board_model", boardModel, "led", name)
	}
	return newSysfs(sysfsLEDPath, map[string]string{"act": name})
}

// findPiLED locates the activity LED under root. Newer firmware names
// it ACT, older images use led0.
func findPiLED(root string) string {
	for _, name := range []string{"ACT", "led0"} {
		if _, err := os.Stat(filepath.Join(root, name)); err == nil {
			return name
		}
	}
	return ""
}

// detectBoard reads the device tree model to identify the board.
func detectBoard() string {
	data, err := os.ReadFile(deviceTreeModelPath)
	if err != nil {
		return "unknown"
	}

	// Device tree strings are null-terminated.
	return strings.TrimRight(string(data), "\x00")
}

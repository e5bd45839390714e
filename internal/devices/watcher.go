package devices

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/api/models"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/events"
)

// Watcher publishes camera attach and detach events on the bus so
// operators see hardware changes in the event stream without polling.
type Watcher struct {
	bus    *events.Bus
	logger *slog.Logger
}

// NewWatcher creates a device watcher publishing to the given bus.
func NewWatcher(bus *events.Bus, logger *slog.Logger) *Watcher {
	return &Watcher{bus: bus, logger: logger}
}

// Run blocks delivering hotplug events until ctx is cancelled. On
// platforms without kernel uevents it blocks idle until cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	return w.watch(ctx)
}

// publish emits one discovery event. Added devices are enriched with
// capability details; removed ones only carry the path since the node
// can no longer be queried.
func (w *Watcher) publish(devicePath, action string) {
	if !strings.HasPrefix(devicePath, "/dev/video") {
		return
	}

	info := models.DeviceInfo{DevicePath: devicePath}
	if action != "removed" {
		if list, err := List(); err == nil {
			for _, dev := range list {
				if dev.DevicePath == devicePath {
					info = models.DeviceInfo{
						DevicePath:   dev.DevicePath,
						DeviceName:   dev.DeviceName,
						DeviceID:     dev.DeviceID,
						Caps:         dev.Caps,
						Capabilities: dev.Capabilities,
					}
					break
				}
			}
		}
	}

	w.bus.Publish(events.DeviceDiscoveryEvent{
		DeviceInfo: info,
		Action:     action,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
	w.logger.Info("Capture device "+action, "path", devicePath)
}

//go:build linux

package devices

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adrian-Rod-Mol/arducam-apps/pkg/linuxav/hotplug"
)

func (w *Watcher) watch(ctx context.Context) error {
	monitor, err := hotplug.NewMonitor(hotplug.SubsystemVideo4Linux)
	if err != nil {
		return fmt.Errorf("failed to open hotplug monitor: %w", err)
	}
	defer monitor.Close()

	eventCh := make(chan hotplug.Event, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- monitor.Run(ctx, eventCh)
	}()

	for ev := range eventCh {
		if ev.DevName == "" {
			continue
		}
		switch ev.Action {
		case hotplug.ActionAdd:
			w.publish("/dev/"+ev.DevName, "added")
		case hotplug.ActionRemove:
			w.publish("/dev/"+ev.DevName, "removed")
		case hotplug.ActionChange:
			w.publish("/dev/"+ev.DevName, "changed")
		}
	}

	err = <-errCh
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

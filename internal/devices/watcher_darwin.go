//go:build darwin

package devices

import "context"

func (w *Watcher) watch(ctx context.Context) error {
	w.logger.Debug("Device hotplug monitoring not supported on this platform")
	<-ctx.Done()
	return nil
}

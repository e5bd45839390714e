package systemd

import (
	"context"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// NotifyReady signals service startup completion to systemd.
// A no-op when not running under a Type=notify unit.
func NotifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("Failed to notify systemd readiness", "error", err)
		return
	}
	if sent {
		logger.Debug("Notified systemd: ready")
	}
}

// NotifyStopping signals that shutdown has begun so systemd extends the
// stop timeout while spans drain. A no-op outside systemd.
func NotifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("Failed to notify systemd shutdown", "error", err)
		return
	}
	if sent {
		logger.Debug("Notified systemd: stopping")
	}
}

// RunWatchdog sends keepalives at half the unit's WatchdogSec interval
// until ctx is cancelled. Returns immediately when the watchdog is not
// armed for this unit.
func RunWatchdog(ctx context.Context, logger *slog.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("Failed to query systemd watchdog", "error", err)
		return
	}
	if interval == 0 {
		return
	}

	logger.Info("Systemd watchdog armed", "interval", interval)
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				logger.Warn("Watchdog keepalive failed", "error", err)
			}
		}
	}
}

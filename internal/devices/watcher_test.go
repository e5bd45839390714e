package devices

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/events"
)

func TestWatcherPublishesRemoval(t *testing.T) {
	bus := events.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	w := NewWatcher(bus, logger)

	got := make(chan events.DeviceDiscoveryEvent, 1)
	unsub := events.Subscribe(bus, func(e events.DeviceDiscoveryEvent) { got <- e })
	defer unsub()

	w.publish("/dev/video7", "removed")

	select {
	case e := <-got:
		if e.Action != "removed" {
			t.Errorf("Action = %q, want %q", e.Action, "removed")
		}
		if e.DevicePath != "/dev/video7" {
			t.Errorf("DevicePath = %q, want %q", e.DevicePath, "/dev/video7")
		}
		if e.Timestamp == "" {
			t.Error("Timestamp not set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no discovery event published")
	}
}

func TestWatcherIgnoresNonVideoNodes(t *testing.T) {
	bus := events.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	w := NewWatcher(bus, logger)

	got := make(chan events.DeviceDiscoveryEvent, 1)
	unsub := events.Subscribe(bus, func(e events.DeviceDiscoveryEvent) { got <- e })
	defer unsub()

	// Media controller nodes share the video4linux subsystem but are
	// not capture devices.
	w.publish("/dev/media0", "added")

	select {
	case e := <-got:
		t.Fatalf("unexpected discovery event: %+v", e)
	case <-time.After(200 * time.Millisecond):
	}
}

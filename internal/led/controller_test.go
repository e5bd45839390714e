package led

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// newTestLED builds a fake /sys/class/leds tree with one LED.
func newTestLED(t *testing.T, name string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	for _, f := range []string{"trigger", "brightness"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("none"), 0644); err != nil {
			t.Fatalf("seed %s: %v", f, err)
		}
	}
	return root
}

func readLEDFile(t *testing.T, root, name, file string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, name, file))
	if err != nil {
		t.Fatalf("read %s: %v", file, err)
	}
	return string(data)
}

func TestSysfsSetWritesTriggerAndBrightness(t *testing.T) {
	root := newTestLED(t, "ACT")
	ctrl := newSysfs(root, map[string]string{"act": "ACT"})

	if err := ctrl.Set("act", true, "solid"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := readLEDFile(t, root, "ACT", "trigger"); got != "none" {
		t.Errorf("solid should release the trigger, got %q", got)
	}
	if got := readLEDFile(t, root, "ACT", "brightness"); got != "1" {
		t.Errorf("brightness = %q, want 1", got)
	}

	if err := ctrl.Set("act", true, "heartbeat"); err != nil {
		t.Fatalf("Set heartbeat: %v", err)
	}
	if got := readLEDFile(t, root, "ACT", "trigger"); got != "heartbeat" {
		t.Errorf("trigger = %q, want heartbeat", got)
	}

	if err := ctrl.Set("act", false, "none"); err != nil {
		t.Fatalf("Set off: %v", err)
	}
	if got := readLEDFile(t, root, "ACT", "brightness"); got != "0" {
		t.Errorf("brightness = %q, want 0", got)
	}
}

func TestSysfsSetKeepsTriggerWhenPatternEmpty(t *testing.T) {
	root := newTestLED(t, "ACT")
	ctrl := newSysfs(root, map[string]string{"act": "ACT"})

	if err := ctrl.Set("act", true, "heartbeat"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := ctrl.Set("act", false, ""); err != nil {
		t.Fatalf("Set without pattern: %v", err)
	}
	if got := readLEDFile(t, root, "ACT", "trigger"); got != "heartbeat" {
		t.Errorf("empty pattern should leave the trigger, got %q", got)
	}
}

func TestSysfsSetRejectsUnknownType(t *testing.T) {
	root := newTestLED(t, "ACT")
	ctrl := newSysfs(root, map[string]string{"act": "ACT"})

	if err := ctrl.Set("power", true, "solid"); err == nil {
		t.Error("unknown LED type should error")
	}
}

func TestSysfsSetMissingLED(t *testing.T) {
	ctrl := newSysfs(t.TempDir(), map[string]string{"act": "ACT"})

	if err := ctrl.Set("act", true, "solid"); err == nil {
		t.Error("missing LED directory should error")
	}
}

func TestSysfsAvailable(t *testing.T) {
	ctrl := newSysfs("/sys/class/leds", map[string]string{"act": "ACT"})

	available := ctrl.Available()
	if len(available) != 1 || available[0] != "act" {
		t.Errorf("Available() = %v, want [act]", available)
	}
}

func TestNoopController(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctrl := newNoop(logger)

	if err := ctrl.Set("act", true, "solid"); err != nil {
		t.Errorf("noop Set: %v", err)
	}
	if types := ctrl.Available(); len(types) != 0 {
		t.Errorf("Available() = %v, want empty", types)
	}
}

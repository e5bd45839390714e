package control

import (
	"testing"
	"time"
)

func TestGateStartStop(t *testing.T) {
	gate := NewGate("MEDIUM", 0)

	if gate.State().Capturing {
		t.Error("gate should start idle")
	}
	if !gate.StartCapture() {
		t.Error("StartCapture should succeed from idle")
	}
	if !gate.State().Capturing {
		t.Error("gate should report capturing after start")
	}
	if gate.StartCapture() {
		t.Error("StartCapture should fail while already capturing")
	}
	if !gate.StopCapture() {
		t.Error("StopCapture should succeed while capturing")
	}
	if gate.StopCapture() {
		t.Error("StopCapture should fail while idle")
	}
}

func TestGateShutdownIdempotent(t *testing.T) {
	gate := NewGate("MEDIUM", 0)
	gate.StartCapture()

	if !gate.Shutdown() {
		t.Error("first Shutdown should report the transition")
	}
	st := gate.State()
	if st.Capturing {
		t.Error("shutdown must close the capture gate")
	}
	if !st.Shutdown {
		t.Error("shutdown flag should be set")
	}

	if gate.Shutdown() {
		t.Error("repeated Shutdown should report no transition")
	}
	if gate.StartCapture() {
		t.Error("StartCapture must fail after shutdown")
	}
}

func TestGateExposureRejectedWhileCapturing(t *testing.T) {
	gate := NewGate("MEDIUM", 0)
	gate.StartCapture()

	if gate.RequestExposure(9000) {
		t.Error("exposure update must be rejected while capturing")
	}
	st := gate.State()
	if !st.Capturing {
		t.Error("rejected exposure must not disturb the gate")
	}
	if st.ExposurePending || st.ExposureUS != 0 {
		t.Errorf("exposure must be unchanged, got pending=%v us=%d", st.ExposurePending, st.ExposureUS)
	}
}

func TestGateExposureAppliedWhileIdle(t *testing.T) {
	gate := NewGate("MEDIUM", 0)
	gate.StartCapture()
	gate.StopCapture()

	if !gate.RequestExposure(9000) {
		t.Error("exposure update should be accepted while idle")
	}

	us, ok := gate.TakePendingExposure()
	if !ok || us != 9000 {
		t.Errorf("expected pending exposure 9000, got %d (pending=%v)", us, ok)
	}
	if _, again := gate.TakePendingExposure(); again {
		t.Error("pending exposure must be consumed exactly once")
	}
}

func TestGateInitialExposurePending(t *testing.T) {
	gate := NewGate("MEDIUM", 1000)

	us, ok := gate.TakePendingExposure()
	if !ok || us != 1000 {
		t.Errorf("initial exposure should be pending, got %d (pending=%v)", us, ok)
	}
}

func TestGatePresetSelection(t *testing.T) {
	gate := NewGate("MEDIUM", 0)

	if !gate.RequestPreset("HIGH") {
		t.Error("preset selection should succeed while idle")
	}
	if got := gate.State().Preset; got != "HIGH" {
		t.Errorf("expected preset HIGH, got %s", got)
	}

	gate.StartCapture()
	if gate.RequestPreset("LOW") {
		t.Error("preset selection must be rejected while capturing")
	}
	if got := gate.State().Preset; got != "HIGH" {
		t.Errorf("rejected selection must not change the preset, got %s", got)
	}
}

func TestGateChangedWakesWaiter(t *testing.T) {
	gate := NewGate("MEDIUM", 0)

	ch := gate.Changed()
	go gate.StartCapture()

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by a gate change")
	}

	if !gate.State().Capturing {
		t.Error("state change should be visible after wake")
	}
}

func TestGateChangedNotMissedBetweenSnapshotAndWait(t *testing.T) {
	gate := NewGate("MEDIUM", 0)

	// Grab the channel first, as the capture loop does, then mutate
	// before selecting. The close must still be observed.
	ch := gate.Changed()
	gate.StartCapture()

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("change before the select was lost")
	}
}

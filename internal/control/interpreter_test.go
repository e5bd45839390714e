package control

import (
	"context"
	"testing"
	"time"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/presets"
)

type callbackCounts struct {
	starts    int
	stops     int
	exposures []int64
	presets   []string
	shutdowns int
}

func newTestInterpreter(t *testing.T) (*Interpreter, *Gate, *callbackCounts) {
	t.Helper()
	gate := NewGate(presets.DefaultName, 0)
	counts := &callbackCounts{}
	interp := NewInterpreter(InterpreterOptions{
		Gate:       gate,
		Presets:    presets.Builtin(),
		OnStart:    func() { counts.starts++ },
		OnStop:     func() { counts.stops++ },
		OnExposure: func(us int64) { counts.exposures = append(counts.exposures, us) },
		OnPreset:   func(name string) { counts.presets = append(counts.presets, name) },
		OnShutdown: func() { counts.shutdowns++ },
	})
	return interp, gate, counts
}

func TestInterpreterStartStop(t *testing.T) {
	interp, gate, counts := newTestInterpreter(t)

	interp.Handle(Message{Key: KeyStart})
	if !gate.State().Capturing {
		t.Error("START should open the capture gate")
	}
	if counts.starts != 1 {
		t.Errorf("expected 1 start callback, got %d", counts.starts)
	}

	// Repeated START is a no-op and must not fire the callback again.
	interp.Handle(Message{Key: KeyStart})
	if counts.starts != 1 {
		t.Errorf("repeated START fired the callback, got %d", counts.starts)
	}

	interp.Handle(Message{Key: KeyStop})
	if gate.State().Capturing {
		t.Error("STOP should close the capture gate")
	}
	if counts.stops != 1 {
		t.Errorf("expected 1 stop callback, got %d", counts.stops)
	}

	interp.Handle(Message{Key: KeyStop})
	if counts.stops != 1 {
		t.Errorf("repeated STOP fired the callback, got %d", counts.stops)
	}
}

func TestInterpreterExposureWhileCapturing(t *testing.T) {
	interp, gate, counts := newTestInterpreter(t)

	interp.Handle(Message{Key: KeyStart})
	interp.Handle(Message{Key: KeyExposure, Value: 9000})

	st := gate.State()
	if st.ExposurePending || st.ExposureUS != 0 {
		t.Errorf("exposure must be rejected while capturing, got pending=%v us=%d",
			st.ExposurePending, st.ExposureUS)
	}
	if len(counts.exposures) != 0 {
		t.Errorf("rejected exposure fired the callback: %v", counts.exposures)
	}

	interp.Handle(Message{Key: KeyStop})
	interp.Handle(Message{Key: KeyExposure, Value: 9000})

	us, ok := gate.TakePendingExposure()
	if !ok || us != 9000 {
		t.Errorf("exposure should be pending after STOP, got %d (pending=%v)", us, ok)
	}
	if len(counts.exposures) != 1 || counts.exposures[0] != 9000 {
		t.Errorf("expected one exposure callback with 9000, got %v", counts.exposures)
	}
}

func TestInterpreterExposureBounds(t *testing.T) {
	cases := []struct {
		value    uint64
		accepted bool
	}{
		{50, false},
		{99, false},
		{100, true},
		{12000, true},
		{20000, true},
		{20001, false},
		{25000, false},
	}

	for _, tc := range cases {
		interp, gate, _ := newTestInterpreter(t)
		interp.Handle(Message{Key: KeyExposure, Value: tc.value})

		_, pending := gate.TakePendingExposure()
		if pending != tc.accepted {
			t.Errorf("exposure %d: accepted=%v, want %v", tc.value, pending, tc.accepted)
		}
	}
}

func TestInterpreterCloseIdempotent(t *testing.T) {
	interp, gate, counts := newTestInterpreter(t)

	interp.Handle(Message{Key: KeyStart})
	interp.Handle(Message{Key: KeyClose})
	interp.Handle(Message{Key: KeyClose})

	st := gate.State()
	if !st.Shutdown || st.Capturing {
		t.Errorf("CLOSE should shut the session down, got %+v", st)
	}
	if counts.shutdowns != 1 {
		t.Errorf("shutdown callback must fire exactly once, got %d", counts.shutdowns)
	}
}

func TestInterpreterPresetSelection(t *testing.T) {
	interp, gate, counts := newTestInterpreter(t)

	interp.Handle(Message{Key: "HIGH"})
	if got := gate.State().Preset; got != "HIGH" {
		t.Errorf("preset should change while idle, got %s", got)
	}
	if len(counts.presets) != 1 || counts.presets[0] != "HIGH" {
		t.Errorf("expected one preset callback with HIGH, got %v", counts.presets)
	}

	interp.Handle(Message{Key: KeyStart})
	interp.Handle(Message{Key: "LOW"})
	if got := gate.State().Preset; got != "HIGH" {
		t.Errorf("preset must not change while capturing, got %s", got)
	}
	if len(counts.presets) != 1 {
		t.Errorf("rejected preset fired the callback: %v", counts.presets)
	}
}

func TestInterpreterUnknownKeyIgnored(t *testing.T) {
	interp, gate, counts := newTestInterpreter(t)

	interp.Handle(Message{Key: "FOCUS", Value: 3})

	st := gate.State()
	if st.Capturing || st.Shutdown || st.ExposurePending {
		t.Errorf("unknown key must not disturb the gate, got %+v", st)
	}
	if counts.starts+counts.stops+counts.shutdowns+len(counts.exposures)+len(counts.presets) != 0 {
		t.Error("unknown key fired a callback")
	}
}

func TestInterpreterRunDrainsChannel(t *testing.T) {
	interp, gate, _ := newTestInterpreter(t)

	messages := make(chan Message, 4)
	messages <- Message{Key: KeyStart}
	messages <- Message{Key: KeyStop}
	close(messages)

	done := make(chan struct{})
	go func() {
		interp.Run(context.Background(), messages)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the channel closed")
	}
	if gate.State().Capturing {
		t.Error("messages were not applied in order")
	}
}

func TestInterpreterRunStopsOnContext(t *testing.T) {
	interp, _, _ := newTestInterpreter(t)

	ctx, cancel := context.WithCancel(context.Background())
	messages := make(chan Message)

	done := make(chan struct{})
	go func() {
		interp.Run(ctx, messages)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

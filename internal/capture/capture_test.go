package capture

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/band"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/camera"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/control"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/encoder"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/presets"
)

// Tiny geometry with a fast cadence keeps the pump tests quick.
var capPreset = presets.Preset{
	Name:        "CAP",
	RawWidth:    16,
	RawHeight:   8,
	ImageWidth:  12,
	ImageHeight: 6,
	Framerate:   500,
}

type pumpRecorder struct {
	mu      sync.Mutex
	outputs [][]byte
	metas   []encoder.Metadata
	starts  []int
	endCh   chan SpanStats
}

func newPumpRecorder() *pumpRecorder {
	return &pumpRecorder{endCh: make(chan SpanStats, 8)}
}

func (r *pumpRecorder) output(buf []byte, timestampUS int64, keyframe bool) {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	r.mu.Lock()
	r.outputs = append(r.outputs, cp)
	r.mu.Unlock()
}

func (r *pumpRecorder) metadata(md encoder.Metadata) {
	r.mu.Lock()
	r.metas = append(r.metas, md)
	r.mu.Unlock()
}

func (r *pumpRecorder) spanStart(p presets.Preset, spanIndex int) {
	r.mu.Lock()
	r.starts = append(r.starts, spanIndex)
	r.mu.Unlock()
}

func (r *pumpRecorder) spanEnd(stats SpanStats) {
	r.endCh <- stats
}

func (r *pumpRecorder) outputCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outputs)
}

func (r *pumpRecorder) snapshotOutputs() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.outputs))
	copy(out, r.outputs)
	return out
}

func (r *pumpRecorder) snapshotMetas() []encoder.Metadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]encoder.Metadata, len(r.metas))
	copy(out, r.metas)
	return out
}

func (r *pumpRecorder) spanStarts() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.starts))
	copy(out, r.starts)
	return out
}

func startPump(t *testing.T, cam camera.Camera, gate *control.Gate, rec *pumpRecorder, mutate func(*Options)) chan error {
	t.Helper()

	table, err := presets.NewTable(capPreset)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	opts := Options{
		Camera:          cam,
		Gate:            gate,
		Presets:         table,
		Workers:         2,
		FrameTimeout:    250 * time.Millisecond,
		OnOutputReady:   rec.output,
		OnMetadataReady: rec.metadata,
		OnSpanStart:     rec.spanStart,
		OnSpanEnd:       rec.spanEnd,
	}
	if mutate != nil {
		mutate(&opts)
	}

	loop, err := NewLoop(opts)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}

	errs := make(chan error, 1)
	go func() { errs <- loop.Run(context.Background()) }()
	return errs
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func waitSpanEnd(t *testing.T, rec *pumpRecorder) SpanStats {
	t.Helper()
	select {
	case stats := <-rec.endCh:
		return stats
	case <-time.After(3 * time.Second):
		t.Fatal("span did not end")
		return SpanStats{}
	}
}

func finish(t *testing.T, gate *control.Gate, errs chan error) {
	t.Helper()
	gate.Shutdown()
	select {
	case err := <-errs:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after shutdown")
	}
}

func TestSpanEmitsDeinterleavedFramesInOrder(t *testing.T) {
	sim := camera.NewSimulator()
	gate := control.NewGate("CAP", 0)
	rec := newPumpRecorder()
	errs := startPump(t, sim, gate, rec, nil)

	gate.StartCapture()
	waitFor(t, 3*time.Second, func() bool { return rec.outputCount() >= 5 }, "no frames emitted")
	gate.StopCapture()
	stats := waitSpanEnd(t, rec)
	finish(t, gate, errs)

	outputs := rec.snapshotOutputs()
	if uint64(len(outputs)) != stats.Frames {
		t.Errorf("emitted %d frames, span submitted %d", len(outputs), stats.Frames)
	}

	for i, out := range outputs {
		want, err := band.Deinterleave(camera.PatternFrame(capPreset, uint32(i)), capPreset)
		if err != nil {
			t.Fatalf("oracle failed: %v", err)
		}
		if !bytes.Equal(out, want) {
			t.Errorf("frame %d does not match the de-interleaved pattern", i)
		}
	}

	metas := rec.snapshotMetas()
	if len(metas) != len(outputs) {
		t.Fatalf("metadata count %d, outputs %d", len(metas), len(outputs))
	}
	for i, md := range metas {
		if md.Index != uint64(i) {
			t.Errorf("metadata %d has index %d", i, md.Index)
		}
		if md.Bytes != capPreset.FrameBytes() {
			t.Errorf("metadata %d reports %d bytes, want %d", i, md.Bytes, capPreset.FrameBytes())
		}
	}
}

func TestStallRestartsStreaming(t *testing.T) {
	sim := camera.NewSimulator()
	sim.StallAfter = 3
	gate := control.NewGate("CAP", 0)
	rec := newPumpRecorder()
	errs := startPump(t, sim, gate, rec, func(o *Options) {
		o.FrameTimeout = 25 * time.Millisecond
	})

	gate.StartCapture()
	// Getting past the stall budget requires at least one restart.
	waitFor(t, 3*time.Second, func() bool { return rec.outputCount() >= 5 }, "pump did not recover from the stall")
	gate.StopCapture()
	stats := waitSpanEnd(t, rec)
	finish(t, gate, errs)

	if sim.Starts() < 2 {
		t.Errorf("expected a streaming restart, starts=%d", sim.Starts())
	}
	if stats.Restarts < 1 {
		t.Errorf("span stats should count restarts, got %d", stats.Restarts)
	}

	// Order is preserved across the restart.
	outputs := rec.snapshotOutputs()
	for i, out := range outputs {
		want, _ := band.Deinterleave(camera.PatternFrame(capPreset, uint32(i)), capPreset)
		if !bytes.Equal(out, want) {
			t.Errorf("frame %d out of order after restart", i)
		}
	}
}

func TestCorruptFramesAreSkipped(t *testing.T) {
	sim := camera.NewSimulator()
	sim.CorruptEvery = 3
	gate := control.NewGate("CAP", 0)
	rec := newPumpRecorder()
	errs := startPump(t, sim, gate, rec, nil)

	gate.StartCapture()
	waitFor(t, 3*time.Second, func() bool { return rec.outputCount() >= 4 }, "no frames emitted")
	gate.StopCapture()
	stats := waitSpanEnd(t, rec)
	finish(t, gate, errs)

	outputs := rec.snapshotOutputs()
	if uint64(len(outputs)) != stats.Frames {
		t.Errorf("emitted %d, submitted %d; corrupt frames must not enter the pipeline", len(outputs), stats.Frames)
	}

	// Every third sensor sequence is corrupt, so the emitted data skips
	// those while staying dense and ordered.
	seq := uint32(0)
	for i, out := range outputs {
		for (seq+1)%3 == 0 {
			seq++
		}
		want, _ := band.Deinterleave(camera.PatternFrame(capPreset, seq), capPreset)
		if !bytes.Equal(out, want) {
			t.Errorf("frame %d should carry sensor sequence %d", i, seq)
		}
		seq++
	}
}

func TestRunTimeoutClosesGate(t *testing.T) {
	sim := camera.NewSimulator()
	gate := control.NewGate("CAP", 0)
	rec := newPumpRecorder()
	errs := startPump(t, sim, gate, rec, func(o *Options) {
		o.RunTimeout = 60 * time.Millisecond
	})

	gate.StartCapture()
	waitSpanEnd(t, rec)
	if gate.State().Capturing {
		t.Error("run timeout should close the capture gate")
	}

	// The pump survives and can open a new span.
	gate.StartCapture()
	waitSpanEnd(t, rec)
	finish(t, gate, errs)

	starts := rec.spanStarts()
	if len(starts) != 2 || starts[0] != 0 || starts[1] != 1 {
		t.Errorf("expected span indices [0 1], got %v", starts)
	}
}

func TestPendingExposureAppliedAtSpanStart(t *testing.T) {
	sim := camera.NewSimulator()
	gate := control.NewGate("CAP", 5000)
	rec := newPumpRecorder()
	errs := startPump(t, sim, gate, rec, nil)

	gate.StartCapture()
	waitFor(t, 3*time.Second, func() bool { return rec.outputCount() >= 1 }, "first span produced nothing")
	gate.StopCapture()
	waitSpanEnd(t, rec)

	if !gate.RequestExposure(9000) {
		t.Fatal("exposure request should succeed while idle")
	}
	gate.StartCapture()
	waitFor(t, 3*time.Second, func() bool { return len(sim.Exposures()) >= 2 }, "second exposure not applied")
	gate.StopCapture()
	waitSpanEnd(t, rec)
	finish(t, gate, errs)

	got := sim.Exposures()
	if len(got) != 2 || got[0] != 5000 || got[1] != 9000 {
		t.Errorf("exposures = %v, want [5000 9000]", got)
	}
}

func TestShutdownEndsRunMidSpan(t *testing.T) {
	sim := camera.NewSimulator()
	gate := control.NewGate("CAP", 0)
	rec := newPumpRecorder()
	errs := startPump(t, sim, gate, rec, nil)

	gate.StartCapture()
	waitFor(t, 3*time.Second, func() bool { return rec.outputCount() >= 2 }, "no frames emitted")

	gate.Shutdown()
	select {
	case err := <-errs:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after shutdown")
	}
	waitSpanEnd(t, rec)

	if sim.Stops() < 1 {
		t.Error("streaming should be stopped on shutdown")
	}
}

// failingCamera wraps the simulator and fails WaitFrame after a budget,
// standing in for a detached sensor.
type failingCamera struct {
	*camera.Simulator
	remaining int
}

func (f *failingCamera) WaitFrame(timeout time.Duration, dst []byte) (camera.Frame, error) {
	if f.remaining <= 0 {
		return camera.Frame{}, fmt.Errorf("sensor detached")
	}
	f.remaining--
	return f.Simulator.WaitFrame(timeout, dst)
}

func TestDeviceFailureIsFatal(t *testing.T) {
	cam := &failingCamera{Simulator: camera.NewSimulator(), remaining: 2}
	gate := control.NewGate("CAP", 0)
	rec := newPumpRecorder()
	errs := startPump(t, cam, gate, rec, nil)

	gate.StartCapture()
	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("expected a fatal device error")
		}
		if !strings.Contains(err.Error(), "device failed") {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not surface the device failure")
	}
	waitSpanEnd(t, rec)
}

func TestNewLoopValidatesOptions(t *testing.T) {
	table, err := presets.NewTable(capPreset)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	sim := camera.NewSimulator()
	gate := control.NewGate("CAP", 0)
	output := func([]byte, int64, bool) {}

	cases := []struct {
		name string
		opts Options
	}{
		{"missing camera", Options{Gate: gate, Presets: table, OnOutputReady: output}},
		{"missing gate", Options{Camera: sim, Presets: table, OnOutputReady: output}},
		{"missing presets", Options{Camera: sim, Gate: gate, OnOutputReady: output}},
		{"missing output", Options{Camera: sim, Gate: gate, Presets: table}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewLoop(tc.opts); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

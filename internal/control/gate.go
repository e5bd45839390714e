package control

import (
	"context"
	"sync"
)

// Gate is the shared capture state cell: whether the capture loop should
// stream, the pending exposure update, the preset selected for the next
// start, and the session shutdown flag. The state machine is the sole
// writer; the capture loop reads and consumes under the same lock. Every
// mutation closes the change channel so blocked waiters re-evaluate.
type Gate struct {
	mu         sync.Mutex
	capturing  bool
	shutdown   bool
	preset     string
	exposureUS int64
	pending    bool
	changed    chan struct{}
}

// GateState is a point-in-time snapshot of the gate.
type GateState struct {
	Capturing       bool   `json:"capturing"`
	Shutdown        bool   `json:"shutdown"`
	Preset          string `json:"preset"`
	ExposureUS      int64  `json:"exposure_us"`
	ExposurePending bool   `json:"exposure_pending"`
}

// NewGate builds a gate with the startup preset and initial exposure. The
// initial exposure is left pending so the capture loop applies it on the
// first start.
func NewGate(preset string, exposureUS int64) *Gate {
	return &Gate{
		preset:     preset,
		exposureUS: exposureUS,
		pending:    exposureUS > 0,
		changed:    make(chan struct{}),
	}
}

// State returns a snapshot of the gate.
func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GateState{
		Capturing:       g.capturing,
		Shutdown:        g.shutdown,
		Preset:          g.preset,
		ExposureUS:      g.exposureUS,
		ExposurePending: g.pending,
	}
}

// Changed returns a channel closed on the next gate mutation. Grab the
// channel before reading State so a change between the two is never
// missed.
func (g *Gate) Changed() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.changed
}

// Wait blocks until the gate changes or ctx is done.
func (g *Gate) Wait(ctx context.Context) {
	select {
	case <-g.Changed():
	case <-ctx.Done():
	}
}

// StartCapture opens the gate. It reports false when the gate is already
// capturing or shut down.
func (g *Gate) StartCapture() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.capturing || g.shutdown {
		return false
	}
	g.capturing = true
	g.notifyLocked()
	return true
}

// StopCapture closes the gate. It reports false when already idle.
func (g *Gate) StopCapture() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.capturing {
		return false
	}
	g.capturing = false
	g.notifyLocked()
	return true
}

// Shutdown closes the gate and marks the session terminal. It reports
// true only for the first call, making repeated CLOSE messages
// idempotent.
func (g *Gate) Shutdown() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.shutdown {
		return false
	}
	g.shutdown = true
	g.capturing = false
	g.notifyLocked()
	return true
}

// RequestExposure stores a pending exposure update. The idle check and
// the update happen under one lock acquisition so a concurrent start
// cannot slip between them; updates while capturing are rejected.
func (g *Gate) RequestExposure(us int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.capturing || g.shutdown {
		return false
	}
	g.exposureUS = us
	g.pending = true
	g.notifyLocked()
	return true
}

// RequestPreset selects the preset used by the next capture start.
// Rejected while capturing or after shutdown.
func (g *Gate) RequestPreset(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.capturing || g.shutdown {
		return false
	}
	g.preset = name
	g.notifyLocked()
	return true
}

// TakePendingExposure consumes the pending exposure update, if any.
func (g *Gate) TakePendingExposure() (int64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.pending {
		return 0, false
	}
	g.pending = false
	return g.exposureUS, true
}

func (g *Gate) notifyLocked() {
	close(g.changed)
	g.changed = make(chan struct{})
}

// Package camera abstracts the quad-band sensor behind a small interface
// so the capture loop can run against real V4L2 hardware or a simulator.
package camera

import (
	"errors"
	"time"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/presets"
)

// DefaultBufferCount is the number of kernel capture buffers requested
// when streaming starts.
const DefaultBufferCount = 4

// SimulatorPath selects the synthetic camera instead of a device node.
const SimulatorPath = "simulator"

var (
	// ErrTimeout is returned by WaitFrame when no frame arrives within
	// the deadline. The capture loop restarts streaming to recover.
	ErrTimeout = errors.New("timed out waiting for frame")

	// ErrCorruptFrame is returned when the sensor delivered a frame
	// flagged as bad or with the wrong byte count. The frame is skipped.
	ErrCorruptFrame = errors.New("captured frame was corrupt")
)

// Frame describes one raw readout copied into the caller's buffer.
type Frame struct {
	SequenceID  uint32
	TimestampUS int64
}

// Camera is a configured quad-band sensor. Implementations are driven by
// a single goroutine; methods are not safe for concurrent use.
type Camera interface {
	// Configure applies the capture geometry and rate for a preset.
	// Only legal while streaming is stopped.
	Configure(p presets.Preset) error

	// SetExposure sets the sensor exposure time in microseconds.
	SetExposure(us int64) error

	StartStreaming() error
	StopStreaming() error

	// WaitFrame blocks until the next raw frame has been copied into
	// dst or the timeout elapses. dst must hold exactly one raw frame
	// of the configured preset.
	WaitFrame(timeout time.Duration, dst []byte) (Frame, error)

	Close() error
}

// Package capture runs the gate-driven frame pump: it owns the sensor
// for the life of the process, opens a capture span whenever the gate
// opens, and feeds raw frames into a fresh de-interleave pipeline for
// each span.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/camera"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/control"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/encoder"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/logging"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/metrics"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/presets"
)

// DefaultFrameTimeout bounds one WaitFrame call. A sensor that stays
// silent this long is considered stalled and streaming is restarted.
const DefaultFrameTimeout = time.Second

// rawPoolSize bounds how many released raw buffers are kept for reuse.
const rawPoolSize = 16

// SpanStats summarizes one capture span, from gate open to gate close.
type SpanStats struct {
	Index    int
	Preset   string
	Frames   uint64
	Restarts int
	Duration time.Duration
}

// Options wires the frame pump to its collaborators. OnOutputReady and
// OnMetadataReady are handed to each span's pipeline unchanged.
type Options struct {
	Camera  camera.Camera
	Gate    *control.Gate
	Presets presets.Source

	Workers      int
	FrameTimeout time.Duration
	// RunTimeout bounds a single span; when it elapses the gate is
	// closed as if STOP had arrived. Zero means unbounded.
	RunTimeout time.Duration

	OnOutputReady   encoder.OutputFn
	OnMetadataReady encoder.MetadataFn

	// OnSpanStart fires before the first frame of a span, OnSpanEnd
	// after its pipeline has drained.
	OnSpanStart func(p presets.Preset, spanIndex int)
	OnSpanEnd   func(stats SpanStats)

	// OnRecovered fires after a stalled stream was restarted in place.
	OnRecovered func(err error)
}

// Loop is the capture state machine. One Loop runs per process.
type Loop struct {
	opts   Options
	logger *slog.Logger
	pool   chan []byte
	spans  int
}

// NewLoop validates the wiring and builds the frame pump.
func NewLoop(opts Options) (*Loop, error) {
	if opts.Camera == nil {
		return nil, fmt.Errorf("capture: camera is required")
	}
	if opts.Gate == nil {
		return nil, fmt.Errorf("capture: gate is required")
	}
	if opts.Presets == nil {
		return nil, fmt.Errorf("capture: preset table is required")
	}
	if opts.OnOutputReady == nil {
		return nil, fmt.Errorf("capture: OnOutputReady callback is required")
	}
	if opts.FrameTimeout <= 0 {
		opts.FrameTimeout = DefaultFrameTimeout
	}

	return &Loop{
		opts:   opts,
		logger: logging.GetLogger("capture"),
		pool:   make(chan []byte, rawPoolSize),
	}, nil
}

// Run drives the pump until ctx is cancelled or the gate shuts down.
// Device and pipeline failures are fatal and returned to the caller.
func (l *Loop) Run(ctx context.Context) error {
	for {
		st := l.opts.Gate.State()
		if st.Shutdown || ctx.Err() != nil {
			return nil
		}

		if !st.Capturing {
			// Grab the wake channel before re-reading state so a
			// transition between the two is never missed.
			ch := l.opts.Gate.Changed()
			st = l.opts.Gate.State()
			if st.Shutdown {
				return nil
			}
			if !st.Capturing {
				select {
				case <-ctx.Done():
					return nil
				case <-ch:
				}
				continue
			}
		}

		if err := l.runSpan(ctx, st); err != nil {
			return err
		}
	}
}

// runSpan captures frames until the gate closes, then drains the span's
// pipeline so every submitted frame is emitted.
func (l *Loop) runSpan(ctx context.Context, st control.GateState) error {
	preset, ok := l.opts.Presets.Get(st.Preset)
	if !ok {
		return fmt.Errorf("capture: preset %q selected but not in table", st.Preset)
	}

	if err := l.opts.Camera.Configure(preset); err != nil {
		return fmt.Errorf("capture: configure failed: %w", err)
	}
	if us, pending := l.opts.Gate.TakePendingExposure(); pending {
		if err := l.opts.Camera.SetExposure(us); err != nil {
			return fmt.Errorf("capture: exposure update failed: %w", err)
		}
		l.logger.Info("Exposure applied", "exposure_us", us)
	}

	spanIndex := l.spans
	l.spans++
	if l.opts.OnSpanStart != nil {
		l.opts.OnSpanStart(preset, spanIndex)
	}

	enc, err := encoder.New(encoder.Options{
		Preset:          preset,
		Workers:         l.opts.Workers,
		OnOutputReady:   l.opts.OnOutputReady,
		OnMetadataReady: l.opts.OnMetadataReady,
		OnInputReleased: l.releaseRaw,
	})
	if err != nil {
		return err
	}
	enc.Start()

	if err := l.opts.Camera.StartStreaming(); err != nil {
		enc.Stop()
		return fmt.Errorf("capture: streaming start failed: %w", err)
	}

	l.logger.Info("Capture span opened", "span", spanIndex, "preset", preset.Name)
	metrics.SetCapturing(true)
	started := time.Now()

	stats := SpanStats{Index: spanIndex, Preset: preset.Name}
	spanErr := l.pumpFrames(ctx, preset, enc, &stats)

	stopErr := l.opts.Camera.StopStreaming()
	enc.Stop()
	metrics.SetCapturing(false)

	stats.Duration = time.Since(started)
	emitted := enc.Emitted()
	l.logger.Info("Capture span closed",
		"span", spanIndex,
		"frames", stats.Frames,
		"emitted", emitted,
		"restarts", stats.Restarts,
		"duration", stats.Duration.Round(time.Millisecond))
	if l.opts.OnSpanEnd != nil {
		l.opts.OnSpanEnd(stats)
	}

	if spanErr != nil {
		return spanErr
	}
	if stopErr != nil {
		return fmt.Errorf("capture: streaming stop failed: %w", stopErr)
	}
	return nil
}

// pumpFrames moves frames from the sensor into the pipeline until the
// gate closes, the run timeout fires, or the device fails.
func (l *Loop) pumpFrames(ctx context.Context, preset presets.Preset, enc *encoder.Encoder, stats *SpanStats) error {
	var deadline time.Time
	if l.opts.RunTimeout > 0 {
		deadline = time.Now().Add(l.opts.RunTimeout)
	}

	for {
		st := l.opts.Gate.State()
		if !st.Capturing || st.Shutdown || ctx.Err() != nil {
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			l.logger.Warn("Run timeout reached, closing capture gate",
				"timeout", l.opts.RunTimeout)
			l.opts.Gate.StopCapture()
			return nil
		}

		buf := l.takeRaw(preset.RawBytes())
		frame, err := l.opts.Camera.WaitFrame(l.opts.FrameTimeout, buf)
		switch {
		case err == nil:
			metrics.IncFrameCaptured()
			if submitErr := enc.Submit(buf, frame.TimestampUS); submitErr != nil {
				return fmt.Errorf("capture: submit failed: %w", submitErr)
			}
			stats.Frames++

		case errors.Is(err, camera.ErrTimeout):
			l.releaseRaw(buf)
			l.logger.Warn("Sensor stalled, restarting stream",
				"timeout", l.opts.FrameTimeout)
			metrics.IncCameraRestart()
			stats.Restarts++
			if restartErr := l.restartStreaming(); restartErr != nil {
				return restartErr
			}
			if l.opts.OnRecovered != nil {
				l.opts.OnRecovered(err)
			}

		case errors.Is(err, camera.ErrCorruptFrame):
			l.releaseRaw(buf)
			metrics.IncFrameDropped()

		default:
			l.releaseRaw(buf)
			return fmt.Errorf("capture: device failed: %w", err)
		}
	}
}

func (l *Loop) restartStreaming() error {
	if err := l.opts.Camera.StopStreaming(); err != nil {
		return fmt.Errorf("capture: restart stop failed: %w", err)
	}
	if err := l.opts.Camera.StartStreaming(); err != nil {
		return fmt.Errorf("capture: restart start failed: %w", err)
	}
	return nil
}

// takeRaw reuses a released buffer when one of the right size is
// available, otherwise allocates.
func (l *Loop) takeRaw(size int) []byte {
	select {
	case buf := <-l.pool:
		if len(buf) == size {
			return buf
		}
		// Preset changed between spans; let the old buffer go.
	default:
	}
	return make([]byte, size)
}

// releaseRaw returns a buffer to the pool, dropping it when full.
func (l *Loop) releaseRaw(raw []byte) {
	if raw == nil {
		return
	}
	select {
	case l.pool <- raw:
	default:
	}
}

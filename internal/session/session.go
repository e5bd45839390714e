// Package session wires the capture stack together and owns its lifetime:
// one control channel, one interpreter, one capture loop, one sink. A
// session runs from process start until CLOSE, a fatal error, or a signal.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/camera"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/capture"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/control"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/encoder"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/events"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/journal"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/logging"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/metrics"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/presets"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/sink"
)

// messageQueueDepth buffers decoded control messages between the reader
// and the interpreter so a slow transition never stalls the socket.
const messageQueueDepth = 16

// Options wires a session. Gate, Presets, Camera and Sink are required;
// Journal and Bus are optional collaborators.
type Options struct {
	Gate    *control.Gate
	Presets presets.Source
	Camera  camera.Camera
	Sink    sink.Sink
	Journal *journal.Journal
	Bus     *events.Bus

	// ControlAddr is the operator message server. Empty selects
	// standalone mode: the gate opens at start and the session runs
	// until the run timeout or a signal.
	ControlAddr string

	// DevicePath tags capture error events with the sensor node.
	DevicePath string

	Workers      int
	FrameTimeout time.Duration
	RunTimeout   time.Duration
}

// Status is a point-in-time snapshot for the diagnostics API.
type Status struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Preset    string `json:"preset"`
	// ExposureUS is the most recently accepted exposure, which the
	// sensor picks up at the next capture start.
	ExposureUS int64                   `json:"exposure_us"`
	StartedAt  time.Time               `json:"started_at"`
	Spans      int                     `json:"spans"`
	Standalone bool                    `json:"standalone"`
	Pipeline   metrics.PipelineMetrics `json:"pipeline"`
}

// Session drives one capture session. Build with New, run once with Run.
type Session struct {
	id     string
	opts   Options
	logger *slog.Logger

	client *control.Client
	interp *control.Interpreter
	loop   *capture.Loop

	failOnce sync.Once
	mu       sync.Mutex
	err      error
	started  time.Time
	spans    int
	spanRow  int64

	spanFrames  atomic.Uint64
	spanBytes   atomic.Uint64
	totalFrames atomic.Uint64
}

// New validates the wiring and builds a session. Address validation
// happens here so a bad control target fails before the camera opens.
func New(opts Options) (*Session, error) {
	if opts.Gate == nil {
		return nil, fmt.Errorf("session: gate is required")
	}
	if opts.Presets == nil {
		return nil, fmt.Errorf("session: preset source is required")
	}
	if opts.Camera == nil {
		return nil, fmt.Errorf("session: camera is required")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("session: sink is required")
	}

	s := &Session{
		id:     uuid.NewString(),
		opts:   opts,
		logger: logging.GetLogger("session"),
	}

	if opts.ControlAddr != "" {
		client, err := control.NewClient(opts.ControlAddr)
		if err != nil {
			return nil, err
		}
		s.client = client
	}

	s.interp = control.NewInterpreter(control.InterpreterOptions{
		Gate:       opts.Gate,
		Presets:    opts.Presets,
		OnExposure: s.exposureChanged,
		OnPreset:   s.presetChanged,
	})

	loop, err := capture.NewLoop(capture.Options{
		Camera:          opts.Camera,
		Gate:            opts.Gate,
		Presets:         opts.Presets,
		Workers:         opts.Workers,
		FrameTimeout:    opts.FrameTimeout,
		RunTimeout:      opts.RunTimeout,
		OnOutputReady:   s.writeFrame,
		OnMetadataReady: s.frameEmitted,
		OnSpanStart:     s.spanStarted,
		OnSpanEnd:       s.spanEnded,
		OnRecovered:     s.captureRecovered,
	})
	if err != nil {
		return nil, err
	}
	s.loop = loop
	return s, nil
}

// ID returns the session identifier used in journal rows and events.
func (s *Session) ID() string { return s.id }

// Run drives the session until CLOSE, a fatal error, or ctx cancellation.
// On return the pipeline has drained and the sink is closed. A non-nil
// error means the session ended on a fatal.
func (s *Session) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.started = time.Now()
	s.mu.Unlock()
	metrics.ResetPipelineMetrics()

	s.logger.Info("Session starting",
		"session_id", s.id,
		"standalone", s.client == nil)
	s.publishState(events.StateIdle)

	var wg sync.WaitGroup

	// Gate shutdown cancels the context so blocked socket reads unwind.
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.watchShutdown(runCtx, cancel)
	}()

	if s.client != nil {
		messages := make(chan control.Message, messageQueueDepth)
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := s.client.Run(runCtx, messages); err != nil {
				s.fatal("control channel lost", err)
			}
		}()
		go func() {
			defer wg.Done()
			s.interp.Run(runCtx, messages)
		}()
	} else {
		s.logger.Info("No control address configured, opening capture gate")
		s.opts.Gate.StartCapture()
	}

	if err := s.loop.Run(runCtx); err != nil {
		s.fatal("capture loop failed", err)
	}

	// The loop returned with its last span drained. Make the end state
	// visible to every goroutine and collaborator.
	s.opts.Gate.Shutdown()
	cancel()
	wg.Wait()

	if err := s.opts.Sink.Close(); err != nil {
		s.logger.Warn("Sink close failed", "error", err)
	}
	s.publishState(events.StateClosed)

	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	s.logger.Info("Session closed",
		"session_id", s.id,
		"spans", s.spans,
		"frames", s.totalFrames.Load())
	return err
}

// Status snapshots the session for /api/status.
func (s *Session) Status() Status {
	st := s.opts.Gate.State()
	state := events.StateIdle
	switch {
	case st.Shutdown:
		state = events.StateClosed
	case st.Capturing:
		state = events.StateCapturing
	}

	s.mu.Lock()
	started := s.started
	spans := s.spans
	s.mu.Unlock()

	return Status{
		SessionID:  s.id,
		State:      state,
		Preset:     st.Preset,
		ExposureUS: st.ExposureUS,
		StartedAt:  started,
		Spans:      spans,
		Standalone: s.client == nil,
		Pipeline:   metrics.GetPipelineMetrics(),
	}
}

// watchShutdown cancels the run context once the gate reaches shutdown.
func (s *Session) watchShutdown(ctx context.Context, cancel context.CancelFunc) {
	for {
		ch := s.opts.Gate.Changed()
		if s.opts.Gate.State().Shutdown {
			cancel()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ch:
		}
	}
}

// writeFrame hands one in-order frame to the sink. Sink failures are
// fatal: the shutdown flag goes up and the pipeline drains to discard.
func (s *Session) writeFrame(buf []byte, timestampUS int64, _ bool) {
	if err := s.opts.Sink.WriteFrame(buf, timestampUS); err != nil {
		s.fatal("sink write failed", err)
		return
	}
	s.spanFrames.Add(1)
	s.spanBytes.Add(uint64(len(buf)))
	s.totalFrames.Add(1)
}

func (s *Session) frameEmitted(md encoder.Metadata) {
	if s.opts.Bus == nil {
		return
	}
	s.opts.Bus.Publish(events.FrameEmittedEvent{
		Index:       md.Index,
		Bytes:       md.Bytes,
		TimestampUS: md.TimestampUS,
		Preset:      s.opts.Gate.State().Preset,
	})
}

func (s *Session) spanStarted(p presets.Preset, spanIndex int) {
	s.spanFrames.Store(0)
	s.spanBytes.Store(0)

	s.mu.Lock()
	s.spans++
	exposure := s.opts.Gate.State().ExposureUS
	s.mu.Unlock()

	if err := s.opts.Sink.BeginSpan(sink.SpanInfo{
		SessionID: s.id,
		Index:     spanIndex,
		Preset:    p,
		StartedAt: time.Now(),
	}); err != nil {
		s.fatal("sink span open failed", err)
	}

	if s.opts.Journal != nil {
		row, err := s.opts.Journal.BeginSpan(context.Background(), s.id, spanIndex, p.Name, exposure)
		if err != nil {
			s.logger.Warn("Journal span open failed", "error", err)
			row = 0
		}
		s.mu.Lock()
		s.spanRow = row
		s.mu.Unlock()
	}

	s.publishState(events.StateCapturing)
}

func (s *Session) spanEnded(stats capture.SpanStats) {
	if err := s.opts.Sink.EndSpan(); err != nil {
		s.logger.Warn("Sink span close failed", "error", err)
	}

	if s.opts.Journal != nil {
		s.mu.Lock()
		row := s.spanRow
		s.spanRow = 0
		failed := s.err != nil
		s.mu.Unlock()
		if row != 0 {
			status := journal.StatusCompleted
			if failed {
				status = journal.StatusAborted
			}
			err := s.opts.Journal.EndSpan(context.Background(), row,
				s.spanFrames.Load(), s.spanBytes.Load(), stats.Restarts, status)
			if err != nil {
				s.logger.Warn("Journal span close failed", "error", err)
			}
		}
	}

	if !s.opts.Gate.State().Shutdown {
		s.publishState(events.StateIdle)
	}

	// Standalone sessions have no operator to send another START; the
	// first span is the whole session.
	if s.client == nil {
		s.opts.Gate.Shutdown()
	}
}

func (s *Session) exposureChanged(us int64) {
	if s.opts.Bus == nil {
		return
	}
	s.opts.Bus.Publish(events.ExposureChangedEvent{
		ExposureUS: us,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Session) presetChanged(name string) {
	if s.opts.Bus == nil {
		return
	}
	s.opts.Bus.Publish(events.PresetChangedEvent{
		Preset:    name,
		Source:    "control",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// captureRecovered reports a stall the capture loop survived by
// restarting the stream.
func (s *Session) captureRecovered(err error) {
	if s.opts.Bus == nil {
		return
	}
	s.opts.Bus.Publish(events.CaptureErrorEvent{
		DevicePath: s.opts.DevicePath,
		Message:    "stream restarted after stall",
		Error:      err.Error(),
		Fatal:      false,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}

// fatal records the first fatal error and raises the shutdown flag. The
// capture loop and network goroutines unwind cooperatively from there.
func (s *Session) fatal(msg string, err error) {
	s.failOnce.Do(func() {
		s.logger.Error(msg, "error", err)
		s.mu.Lock()
		s.err = fmt.Errorf("%s: %w", msg, err)
		s.mu.Unlock()
		if s.opts.Bus != nil {
			s.opts.Bus.Publish(events.CaptureErrorEvent{
				DevicePath: s.opts.DevicePath,
				Message:    msg,
				Error:      err.Error(),
				Fatal:      true,
				Timestamp:  time.Now().UTC().Format(time.RFC3339),
			})
		}
		s.opts.Gate.Shutdown()
	})
}

func (s *Session) publishState(state string) {
	if s.opts.Bus == nil {
		return
	}
	s.opts.Bus.Publish(events.SessionStateChangedEvent{
		SessionID: s.id,
		State:     state,
		Preset:    s.opts.Gate.State().Preset,
		Frames:    s.totalFrames.Load(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

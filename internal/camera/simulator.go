package camera

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/presets"
)

// Simulator produces synthetic raw frames at the configured preset's
// cadence. It stands in for the sensor on development machines and in
// tests, where StallAfter and CorruptEvery script failure behavior.
type Simulator struct {
	// StallAfter stops frame production after that many frames per
	// streaming span, forcing WaitFrame timeouts until a restart.
	// Zero means never stall.
	StallAfter int

	// CorruptEvery makes every Nth frame report ErrCorruptFrame.
	// Zero disables corruption.
	CorruptEvery int

	mu         sync.Mutex
	preset     presets.Preset
	template   []byte
	configured bool
	streaming  bool
	closed     bool

	sequence uint32
	produced int
	nextDue  time.Time

	configures int
	starts     int
	stops      int
	exposures  []int64
}

// NewSimulator returns an unconfigured simulator.
func NewSimulator() *Simulator {
	return &Simulator{}
}

// PatternFrame returns the exact raw frame the simulator produces for a
// sequence number. Tests use it to compute expected pipeline output.
func PatternFrame(p presets.Preset, seq uint32) []byte {
	frame := buildTemplate(p)
	stampSequence(frame, seq)
	return frame
}

// buildTemplate fills a raw frame with its sample index, so every
// position carries a distinct, predictable value.
func buildTemplate(p presets.Preset) []byte {
	buf := make([]byte, p.RawBytes())
	for i := 0; i < len(buf); i += presets.SampleBytes {
		binary.LittleEndian.PutUint16(buf[i:], uint16(i/presets.SampleBytes))
	}
	return buf
}

// stampSequence overwrites the first sample with the sequence number so
// consecutive frames differ.
func stampSequence(frame []byte, seq uint32) {
	binary.LittleEndian.PutUint16(frame, uint16(seq))
}

func (s *Simulator) Configure(p presets.Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streaming {
		return fmt.Errorf("cannot configure while streaming")
	}
	if err := p.Validate(); err != nil {
		return err
	}

	s.preset = p
	s.template = buildTemplate(p)
	s.configured = true
	s.configures++
	return nil
}

func (s *Simulator) SetExposure(us int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exposures = append(s.exposures, us)
	return nil
}

func (s *Simulator) StartStreaming() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.configured {
		return fmt.Errorf("simulator has no configured preset")
	}
	if s.streaming {
		return fmt.Errorf("simulator is already streaming")
	}

	s.streaming = true
	s.produced = 0
	s.starts++
	s.nextDue = time.Now().Add(s.framePeriodLocked())
	return nil
}

func (s *Simulator) StopStreaming() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streaming {
		s.streaming = false
		s.stops++
	}
	return nil
}

func (s *Simulator) WaitFrame(timeout time.Duration, dst []byte) (Frame, error) {
	s.mu.Lock()
	if !s.streaming {
		s.mu.Unlock()
		return Frame{}, fmt.Errorf("simulator is not streaming")
	}
	if len(dst) != len(s.template) {
		s.mu.Unlock()
		return Frame{}, fmt.Errorf("destination holds %d bytes, raw frame is %d", len(dst), len(s.template))
	}

	if s.StallAfter > 0 && s.produced >= s.StallAfter {
		s.mu.Unlock()
		time.Sleep(timeout)
		return Frame{}, ErrTimeout
	}

	due := s.nextDue
	s.mu.Unlock()

	if wait := time.Until(due); wait > 0 {
		if wait > timeout {
			time.Sleep(timeout)
			return Frame{}, ErrTimeout
		}
		time.Sleep(wait)
	}

	s.mu.Lock()
	seq := s.sequence
	s.sequence++
	s.produced++
	s.nextDue = s.nextDue.Add(s.framePeriodLocked())
	if now := time.Now(); s.nextDue.Before(now) {
		s.nextDue = now.Add(s.framePeriodLocked())
	}

	corrupt := s.CorruptEvery > 0 && int(seq+1)%s.CorruptEvery == 0
	if !corrupt {
		copy(dst, s.template)
		stampSequence(dst, seq)
	}
	s.mu.Unlock()

	if corrupt {
		return Frame{}, ErrCorruptFrame
	}
	return Frame{
		SequenceID:  seq,
		TimestampUS: time.Now().UnixMicro(),
	}, nil
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = false
	s.closed = true
	return nil
}

func (s *Simulator) framePeriodLocked() time.Duration {
	if s.preset.Framerate <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(s.preset.Framerate)
}

// Starts reports how many times streaming was started.
func (s *Simulator) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// Stops reports how many times streaming was stopped.
func (s *Simulator) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// Configures reports how many times a preset was applied.
func (s *Simulator) Configures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configures
}

// Exposures returns every exposure value applied, in order.
func (s *Simulator) Exposures() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.exposures))
	copy(out, s.exposures)
	return out
}

// Closed reports whether Close has been called.
func (s *Simulator) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

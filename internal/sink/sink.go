// Package sink delivers emitted frames to their destinations: the
// operator's image channel over TCP, per-session folders of raw files,
// or nowhere for diagnostics. Frames arrive in capture order and every
// destination sees the same bytes.
package sink

import (
	"context"
	"strings"
	"time"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/presets"
)

// SpanInfo identifies one capture span for sinks that rotate per span.
type SpanInfo struct {
	SessionID string
	Index     int
	Preset    presets.Preset
	StartedAt time.Time
}

// Sink consumes emitted frames. Calls arrive from a single goroutine in
// capture order. A WriteFrame error is fatal for the session.
type Sink interface {
	BeginSpan(span SpanInfo) error
	WriteFrame(buf []byte, timestampUS int64) error
	EndSpan() error
	Close() error
}

// ForTarget builds the sink for an output target. A tcp:// address
// dials the operator's image channel (the dial happens here, so a dead
// receiver fails the startup rather than the first frame); any other
// non-empty value is a directory for per-span capture folders; empty
// discards frames.
func ForTarget(ctx context.Context, target string) (Sink, error) {
	switch {
	case target == "":
		return NewDiscard(), nil
	case strings.HasPrefix(target, "tcp://"):
		s, err := NewTCPSink(target)
		if err != nil {
			return nil, err
		}
		if err := s.Connect(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return NewFileSink(target)
	}
}

// Multi fans every call out to all sinks, returning the first error.
func Multi(sinks ...Sink) Sink {
	return multiSink(sinks)
}

type multiSink []Sink

func (m multiSink) BeginSpan(span SpanInfo) error {
	for _, s := range m {
		if err := s.BeginSpan(span); err != nil {
			return err
		}
	}
	return nil
}

func (m multiSink) WriteFrame(buf []byte, timestampUS int64) error {
	for _, s := range m {
		if err := s.WriteFrame(buf, timestampUS); err != nil {
			return err
		}
	}
	return nil
}

func (m multiSink) EndSpan() error {
	for _, s := range m {
		if err := s.EndSpan(); err != nil {
			return err
		}
	}
	return nil
}

func (m multiSink) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

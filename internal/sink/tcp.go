package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/control"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/logging"
)

// TCPSink streams frames to the operator's image channel. The protocol
// is headerless: frames are fixed-size for the active preset, so the
// receiver reassembles them by byte count alone.
type TCPSink struct {
	addr   string
	conn   net.Conn
	logger *slog.Logger
}

// NewTCPSink validates the image channel address.
func NewTCPSink(addr string) (*TCPSink, error) {
	dial, err := control.ParseTCPAddr(addr)
	if err != nil {
		return nil, err
	}
	return &TCPSink{
		addr:   dial,
		logger: logging.GetLogger("sink"),
	}, nil
}

// Connect dials the image channel. The node is the connecting side.
func (s *TCPSink) Connect(ctx context.Context) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("image channel connect %s: %w", s.addr, err)
	}
	s.conn = conn
	s.logger.Info("Image channel connected", "addr", s.addr)
	return nil
}

func (s *TCPSink) BeginSpan(span SpanInfo) error {
	return nil
}

func (s *TCPSink) WriteFrame(buf []byte, timestampUS int64) error {
	if s.conn == nil {
		return fmt.Errorf("image channel %s is not connected", s.addr)
	}
	n, err := s.conn.Write(buf)
	if err != nil {
		return fmt.Errorf("image channel write after %d of %d bytes: %w", n, len(buf), err)
	}
	return nil
}

func (s *TCPSink) EndSpan() error {
	return nil
}

func (s *TCPSink) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

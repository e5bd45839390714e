package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/logging"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/metrics"
)

// MaxPayload bounds one control read. The operator sends one message per
// write with no framing, so each read yields one payload.
const MaxPayload = 256

// ParseTCPAddr validates a tcp://<host>:<port> address and returns the
// dial target. Malformed addresses fail fast at startup.
func ParseTCPAddr(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", raw, err)
	}
	if u.Scheme != "tcp" {
		return "", fmt.Errorf("invalid address %q: scheme must be tcp", raw)
	}
	host, port := u.Hostname(), u.Port()
	if host == "" || port == "" {
		return "", fmt.Errorf("invalid address %q: host and port are required", raw)
	}
	return net.JoinHostPort(host, port), nil
}

// Client dials the operator's message server and feeds decoded messages
// to the interpreter. The node is the connecting side; the operator host
// listens.
type Client struct {
	addr   string
	logger *slog.Logger
}

// NewClient validates the control address and builds a client.
func NewClient(addr string) (*Client, error) {
	dial, err := ParseTCPAddr(addr)
	if err != nil {
		return nil, err
	}
	return &Client{
		addr:   dial,
		logger: logging.GetLogger("control"),
	}, nil
}

// Run connects and decodes inbound payloads into messages until the
// server closes the connection or ctx is cancelled. The messages channel
// is closed on return so the interpreter unblocks. Connection loss is
// returned as an error; cancellation returns nil.
func (c *Client) Run(ctx context.Context, messages chan<- Message) error {
	defer close(messages)

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("control connect %s: %w", c.addr, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	c.logger.Info("Control channel connected", "addr", c.addr)

	buf := make([]byte, MaxPayload)
	for {
		n, readErr := conn.Read(buf)
		if readErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(readErr, io.EOF) {
				c.logger.Info("Control channel closed by server")
				return fmt.Errorf("control channel closed: %w", readErr)
			}
			return fmt.Errorf("control read %s: %w", c.addr, readErr)
		}

		msg, decodeErr := Decode(buf[:n])
		if decodeErr != nil {
			if errors.Is(decodeErr, ErrShortPayload) {
				c.logger.Debug("Dropping short payload", "bytes", n)
				continue
			}
			metrics.IncControlReject("malformed")
			c.logger.Warn("Dropping malformed message", "error", decodeErr)
			continue
		}

		c.logger.Debug("Control message received", "key", msg.Key, "value", msg.Value)

		select {
		case messages <- msg:
		case <-ctx.Done():
			return nil
		}
	}
}

// Package provision fetches the startup preset from the operator host.
// Field units boot headless on a direct ethernet link; the operator side
// hands out the capture preset once the link is up, so a node can be
// re-provisioned without touching its local config.
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/control"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/logging"
)

// DefaultAddr is the operator-side provision listener. Direct host-to-host
// ethernet links come up on the 10.42.0.0/24 subnet with the operator at .1.
const DefaultAddr = "tcp://10.42.0.1:32121"

// linkPrefix marks the shared-link subnet the node waits for before dialing.
const linkPrefix = "10.42."

// minPayload filters out the empty keepalive writes some operator consoles
// emit before the real preset. Mirrors the control channel's floor.
const minPayload = 3

// Options configures a Provisioner. Zero values select the defaults used
// in the field: DefaultAddr, 300 link probes, one second apart.
type Options struct {
	// Addr is the provision server in tcp://host:port form.
	Addr string
	// LinkRetries bounds how many times the local interfaces are probed
	// for a direct-link address before giving up.
	LinkRetries int
	// Interval spaces both link probes and dial retries.
	Interval time.Duration
}

// Provisioner waits for the direct link and fetches the initial preset.
type Provisioner struct {
	addr     string
	retries  int
	interval time.Duration
	logger   *slog.Logger

	// addrs is swapped in tests to simulate link state.
	addrs func() ([]net.Addr, error)
}

// New validates the server address and applies defaults.
func New(opts Options) (*Provisioner, error) {
	raw := opts.Addr
	if raw == "" {
		raw = DefaultAddr
	}
	dial, err := control.ParseTCPAddr(raw)
	if err != nil {
		return nil, err
	}
	retries := opts.LinkRetries
	if retries <= 0 {
		retries = 300
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Second
	}
	return &Provisioner{
		addr:     dial,
		retries:  retries,
		interval: interval,
		logger:   logging.GetLogger("provision"),
		addrs:    net.InterfaceAddrs,
	}, nil
}

// Run waits for the direct link, then fetches the preset name from the
// provision server. Callers fall back to their configured preset on error.
func (p *Provisioner) Run(ctx context.Context) (string, error) {
	if err := p.WaitForLink(ctx); err != nil {
		return "", err
	}
	return p.Fetch(ctx)
}

// WaitForLink blocks until a local interface holds a 10.42.* address or
// the probe budget runs out. The operator host assigns the address when
// the cable comes up, so this doubles as a link-present check.
func (p *Provisioner) WaitForLink(ctx context.Context) error {
	for attempt := 1; attempt <= p.retries; attempt++ {
		if addr, ok := p.directLinkAddr(); ok {
			p.logger.Info("Direct link detected", "addr", addr, "attempt", attempt)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.interval):
		}
	}
	return fmt.Errorf("no %s* address on any interface after %d probes", linkPrefix, p.retries)
}

func (p *Provisioner) directLinkAddr() (string, bool) {
	addrs, err := p.addrs()
	if err != nil {
		p.logger.Warn("Interface enumeration failed", "error", err)
		return "", false
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil {
			continue
		}
		if strings.HasPrefix(ip.String(), linkPrefix) {
			return ip.String(), true
		}
	}
	return "", false
}

// Fetch dials the provision server, retrying until it is reachable, and
// reads one payload of at least minPayload bytes: the preset name.
func (p *Provisioner) Fetch(ctx context.Context) (string, error) {
	conn, err := p.dialWithRetry(ctx)
	if err != nil {
		return "", err
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

	buf := make([]byte, 1024)
	for {
		n, readErr := conn.Read(buf)
		if readErr != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("provision read %s: %w", p.addr, readErr)
		}
		if n < minPayload {
			p.logger.Debug("Dropping short provision payload", "bytes", n)
			continue
		}
		preset := strings.TrimSpace(string(buf[:n]))
		p.logger.Info("Preset provisioned", "preset", preset)
		return preset, nil
	}
}

func (p *Provisioner) dialWithRetry(ctx context.Context) (net.Conn, error) {
	var dialer net.Dialer
	for {
		conn, err := dialer.DialContext(ctx, "tcp", p.addr)
		if err == nil {
			p.logger.Info("Provision server connected", "addr", p.addr)
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Debug("Provision server not reachable yet", "addr", p.addr, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.interval):
		}
	}
}

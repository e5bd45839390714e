//go:build linux

// Package hotplug watches kernel uevents for device arrivals and
// removals. It listens on a NETLINK_KOBJECT_UEVENT socket directly,
// so it needs neither cgo nor a running udev.
package hotplug

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"syscall"
)

// Action values the kernel emits for device nodes.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionChange = "change"
)

// SubsystemVideo4Linux is the subsystem capture nodes register under.
const SubsystemVideo4Linux = "video4linux"

// Event is one kernel device event, reduced to the fields a capture
// daemon acts on.
type Event struct {
	Action    string // "add", "remove", "change", ...
	SysPath   string // kernel object path from the uevent header
	Subsystem string
	DevName   string // node name relative to /dev, e.g. "video0"
}

// netlinkKobjectUEvent is the netlink protocol for kernel object events.
const netlinkKobjectUEvent = 15

// Monitor receives kernel uevents, optionally restricted to a set of
// subsystems. The filter is fixed at construction.
type Monitor struct {
	fd     int
	filter map[string]struct{}
}

// NewMonitor opens the uevent socket. With no subsystems given, every
// event passes through.
func NewMonitor(subsystems ...string) (*Monitor, error) {
	fd, err := syscall.Socket(syscall.AF_NETLINK, syscall.SOCK_DGRAM|syscall.SOCK_CLOEXEC, netlinkKobjectUEvent)
	if err != nil {
		return nil, err
	}

	// Group 1 is the kernel's broadcast group. udev re-broadcasts its
	// processed events on group 2, which we never join, so no libudev
	// framing ever arrives here.
	addr := &syscall.SockaddrNetlink{
		Family: syscall.AF_NETLINK,
		Groups: 1,
	}
	if err := syscall.Bind(fd, addr); err != nil {
		syscall.Close(fd)
		return nil, err
	}

	m := &Monitor{fd: fd}
	if len(subsystems) > 0 {
		m.filter = make(map[string]struct{}, len(subsystems))
		for _, s := range subsystems {
			m.filter[s] = struct{}{}
		}
	}
	return m, nil
}

// Close releases the socket. Run returns once the fd is gone.
func (m *Monitor) Close() error {
	return syscall.Close(m.fd)
}

// accepts reports whether the event passes the subsystem filter.
func (m *Monitor) accepts(ev Event) bool {
	if len(m.filter) == 0 {
		return true
	}
	_, ok := m.filter[ev.Subsystem]
	return ok
}

// Run delivers matching events to ch until ctx is cancelled or the
// socket fails. It closes ch on return.
func (m *Monitor) Run(ctx context.Context, ch chan<- Event) error {
	defer close(ch)

	buf := make([]byte, 8192)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// A bounded read timeout keeps the loop responsive to ctx.
		tv := syscall.Timeval{Sec: 1}
		if err := syscall.SetsockoptTimeval(m.fd, syscall.SOL_SOCKET, syscall.SO_RCVTIMEO, &tv); err != nil {
			return err
		}

		n, _, err := syscall.Recvfrom(m.fd, buf, 0)
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EINTR) {
				continue
			}
			return err
		}
		if n == 0 {
			continue
		}

		ev, ok := parseUEvent(buf[:n])
		if !ok || !m.accepts(ev) {
			continue
		}

		select {
		case ch <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// parseUEvent decodes a kernel uevent message of the form
// "ACTION@KOBJ\0KEY=VALUE\0KEY=VALUE\0...".
func parseUEvent(data []byte) (Event, bool) {
	parts := bytes.Split(data, []byte{0})
	if len(parts) == 0 || len(parts[0]) == 0 {
		return Event{}, false
	}

	header := string(parts[0])
	action, sysPath, found := strings.Cut(header, "@")
	if !found || action == "" {
		return Event{}, false
	}

	ev := Event{Action: action, SysPath: sysPath}
	for _, part := range parts[1:] {
		if len(part) == 0 {
			continue
		}
		key, value, ok := strings.Cut(string(part), "=")
		if !ok || key == "" {
			continue
		}
		switch key {
		case "SUBSYSTEM":
			ev.Subsystem = value
		case "DEVNAME":
			ev.DevName = value
		}
	}
	return ev, true
}

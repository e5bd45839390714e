// Package systemd integrates the node with the service manager: readiness
// and shutdown notifications, watchdog keepalives and unit control over D-Bus.
package systemd

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

// UnitName is the systemd unit the node ships as.
const UnitName = "arducam-node.service"

// Manager drives the node's own unit over the systemd D-Bus API. It
// exists for the update flow, which stages a new binary and then needs
// the running service bounced onto it.
type Manager struct {
	conn *dbus.Conn
}

// NewManager connects to systemd. The node normally runs as a system
// unit, so the system bus is tried first with a fallback to the session
// bus for development setups.
func NewManager(ctx context.Context) (*Manager, error) {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		conn, err = dbus.NewUserConnectionContext(ctx)
		if err != nil {
			return nil, err
		}
	}
	return &Manager{conn: conn}, nil
}

// ActiveState reports a unit's ActiveState property, such as "active"
// or "failed".
func (m *Manager) ActiveState(ctx context.Context, unit string) (string, error) {
	prop, err := m.conn.GetUnitPropertyContext(ctx, unit, "ActiveState")
	if err != nil {
		return "", err
	}
	state, ok := prop.Value.Value().(string)
	if !ok {
		return "", fmt.Errorf("unexpected ActiveState type %T", prop.Value.Value())
	}
	return state, nil
}

// RestartService restarts a unit and waits for the queued job to finish,
// so a staged binary that fails to start surfaces as an error instead of
// a silently dead service.
func (m *Manager) RestartService(ctx context.Context, unit string) error {
	// go-systemd requires a buffered channel for the job result.
	done := make(chan string, 1)
	if _, err := m.conn.RestartUnitContext(ctx, unit, "replace", done); err != nil {
		return err
	}
	select {
	case result := <-done:
		if result != "done" {
			return fmt.Errorf("restart job for %s finished as %q", unit, result)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the D-Bus connection.
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}

package led

import (
	"log/slog"
	"sync"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/events"
)

// Manager drives the board activity LED from capture session state:
// heartbeat while the node idles between spans, solid while frames are
// flowing, off once the session closes.
type Manager struct {
	controller  Controller
	eventBus    *events.Bus
	unsubscribe func()
	logger      *slog.Logger
	ledType     string

	stateMux  sync.Mutex
	lastState string
}

// NewManager creates an LED manager that reacts to session state changes.
func NewManager(controller Controller, eventBus *events.Bus, logger *slog.Logger) *Manager {
	return &Manager{
		controller: controller,
		eventBus:   eventBus,
		logger:     logger,
		ledType:    pickLED(controller),
	}
}

// pickLED chooses which LED the manager drives. The activity LED is
// preferred where the board has one (Raspberry Pi), then the generic
// system LED, then whatever the controller lists first.
func pickLED(controller Controller) string {
	available := controller.Available()
	for _, want := range []string{"act", "system"} {
		for _, ledType := range available {
			if ledType == want {
				return ledType
			}
		}
	}
	if len(available) > 0 {
		return available[0]
	}
	return "act"
}

// Start begins listening for session state change events and puts the
// LED into the idle pattern so the node signals liveness from boot.
func (m *Manager) Start() {
	m.unsubscribe = events.Subscribe(m.eventBus, m.handleEvent)
	m.apply(events.StateIdle)
	m.logger.Info("LED manager started", "led", m.ledType)
}

// Stop unsubscribes from events and releases the LED back to manual control.
func (m *Manager) Stop() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	if err := m.controller.Set(m.ledType, false, "none"); err != nil {
		m.logger.Debug("Failed to release LED", "error", err)
	}
	m.logger.Info("LED manager stopped")
}

// handleEvent processes a single session state change.
func (m *Manager) handleEvent(event events.SessionStateChangedEvent) {
	m.logger.Debug("Session state changed",
		"session_id", event.SessionID,
		"state", event.State)
	m.apply(event.State)
}

// apply maps a session state onto an LED pattern. Repeated events for
// the same state are deduplicated to avoid pointless sysfs writes.
func (m *Manager) apply(state string) {
	m.stateMux.Lock()
	defer m.stateMux.Unlock()

	if state == m.lastState {
		return
	}
	m.lastState = state

	var err error
	switch state {
	case events.StateCapturing:
		err = m.controller.Set(m.ledType, true, "solid")
	case events.StateIdle:
		err = m.controller.Set(m.ledType, true, "heartbeat")
	case events.StateClosed:
		err = m.controller.Set(m.ledType, false, "none")
	default:
		return
	}
	if err != nil {
		m.logger.Warn("Failed to set LED pattern", "state", state, "error", err)
	}
}

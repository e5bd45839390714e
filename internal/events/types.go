package events

import (
	"github.com/kelindar/event"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/api/models"
)

// Event type identifiers required by kelindar/event.
const (
	TypeSessionStateChanged uint32 = iota + 1
	TypeFrameEmitted
	TypeExposureChanged
	TypePresetChanged
	TypeDeviceDiscovery
	TypeCaptureError
)

// Session states carried by SessionStateChangedEvent.
const (
	StateIdle      = "idle"
	StateCapturing = "capturing"
	StateClosed    = "closed"
)

// SessionStateChangedEvent represents a capture session state transition
// Used for LED control, journal recording and other reactive subsystems.
type SessionStateChangedEvent struct {
	SessionID string `json:"session_id" example:"0b9fbf2e-6c5a-4f3e-9a14-3f61f0a0a6d2" doc:"Capture session identifier"`
	State     string `json:"state" example:"capturing" doc:"Session state: idle, capturing, closed"`
	Preset    string `json:"preset" example:"MEDIUM" doc:"Active resolution preset"`
	Frames    uint64 `json:"frames" example:"1350" doc:"Frames emitted so far in this session"`
	Timestamp string `json:"timestamp" example:"2025-06-03T10:30:00Z" doc:"Event timestamp"`
}

func (e SessionStateChangedEvent) Type() uint32 { return TypeSessionStateChanged }
func (e SessionStateChangedEvent) publish(d *event.Dispatcher) { event.Publish(d, e) }

// FrameEmittedEvent represents one de-interleaved quad-band frame handed to
// the output sink in index order.
type FrameEmittedEvent struct {
	Index       uint64 `json:"index" example:"42" doc:"Monotonic frame index within the session"`
	Bytes       int    `json:"bytes" example:"4374720" doc:"Frame payload size in bytes"`
	TimestampUS int64  `json:"timestamp_us" example:"1717409400123456" doc:"Sensor timestamp in microseconds"`
	Preset      string `json:"preset" example:"MEDIUM" doc:"Active resolution preset"`
}

func (e FrameEmittedEvent) Type() uint32 { return TypeFrameEmitted }
func (e FrameEmittedEvent) publish(d *event.Dispatcher) { event.Publish(d, e) }

// ExposureChangedEvent represents an exposure update accepted by the
// control state machine and applied to the sensor.
type ExposureChangedEvent struct {
	ExposureUS int64  `json:"exposure_us" example:"12000" doc:"Exposure time in microseconds"`
	Timestamp  string `json:"timestamp" example:"2025-06-03T10:30:00Z" doc:"Event timestamp"`
}

func (e ExposureChangedEvent) Type() uint32 { return TypeExposureChanged }
func (e ExposureChangedEvent) publish(d *event.Dispatcher) { event.Publish(d, e) }

// PresetChangedEvent represents a resolution preset selection.
type PresetChangedEvent struct {
	Preset    string `json:"preset" example:"HIGH" doc:"Selected resolution preset"`
	Source    string `json:"source" example:"provision" doc:"Selection source: flag, config, provision"`
	Timestamp string `json:"timestamp" example:"2025-06-03T10:30:00Z" doc:"Event timestamp"`
}

func (e PresetChangedEvent) Type() uint32 { return TypePresetChanged }
func (e PresetChangedEvent) publish(d *event.Dispatcher) { event.Publish(d, e) }

// DeviceDiscoveryEvent represents camera device hotplug events.
type DeviceDiscoveryEvent struct {
	models.DeviceInfo
	Action    string `json:"action" example:"added" doc:"Action type: added, removed, changed"`
	Timestamp string `json:"timestamp" example:"2025-06-03T10:30:00Z" doc:"Event timestamp"`
}

func (e DeviceDiscoveryEvent) Type() uint32 { return TypeDeviceDiscovery }
func (e DeviceDiscoveryEvent) publish(d *event.Dispatcher) { event.Publish(d, e) }

// CaptureErrorEvent represents a camera or pipeline failure. Non-fatal
// errors (device timeouts recovered by a restart) keep the session alive.
type CaptureErrorEvent struct {
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Message    string `json:"message" example:"camera restarted after timeout" doc:"Error message"`
	Error      string `json:"error" example:"device timeout" doc:"Detailed error description"`
	Fatal      bool   `json:"fatal" example:"false" doc:"Whether the failure ended the session"`
	Timestamp  string `json:"timestamp" example:"2025-06-03T10:30:00Z" doc:"Error timestamp"`
}

func (e CaptureErrorEvent) Type() uint32 { return TypeCaptureError }
func (e CaptureErrorEvent) publish(d *event.Dispatcher) { event.Publish(d, e) }

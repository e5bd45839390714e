// Package models holds the request/response bodies of the diagnostics
// API. The API never drives capture; that stays on the wire protocol.
// Its only mutation is tuning module log levels.
package models

import (
	"time"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/metrics"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/presets"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Status models. StatusData mirrors session.Status plus the pipeline
// counters so one poll answers "what is the node doing right now".
type StatusData struct {
	SessionID  string                  `json:"session_id" example:"0b9fbf2e-6c5a-4f3e-9a14-3f61f0a0a6d2" doc:"Capture session identifier"`
	State      string                  `json:"state" example:"capturing" doc:"Session state: idle, capturing, closed"`
	Preset     string                  `json:"preset" example:"MEDIUM" doc:"Active resolution preset"`
	ExposureUS int64                   `json:"exposure_us" example:"1000" doc:"Sensor exposure in microseconds"`
	StartedAt  time.Time               `json:"started_at" doc:"Session start time"`
	Spans      int                     `json:"spans" example:"3" doc:"Capture spans opened this session"`
	Standalone bool                    `json:"standalone" example:"false" doc:"True when no control channel is configured"`
	Pipeline   metrics.PipelineMetrics `json:"pipeline" doc:"Pipeline counters"`
}

type StatusResponse struct {
	Body StatusData
}

// Preset models
type PresetData struct {
	Presets []presets.Preset `json:"presets" doc:"Loaded resolution presets"`
	Count   int              `json:"count" example:"3" doc:"Number of presets"`
}

type PresetResponse struct {
	Body PresetData
}

// Device models
type DeviceInfo struct {
	DevicePath   string   `json:"device_path" example:"/dev/video0" doc:"System device path"`
	DeviceName   string   `json:"device_name" example:"unicam" doc:"Device name"`
	Driver       string   `json:"driver" example:"unicam" doc:"Kernel driver bound to the device"`
	DeviceID     string   `json:"device_id" example:"platform-fe801000.csi-video-index0" doc:"Stable device identifier"`
	Caps         uint32   `json:"caps" example:"69206017" doc:"Raw V4L2 capability flags"`
	Capabilities []string `json:"capabilities" example:"[\"Video Capture\", \"Streaming I/O\"]" doc:"Device capabilities"`
}

type DeviceData struct {
	Devices []DeviceInfo `json:"devices" doc:"List of V4L2 capture devices"`
	Count   int          `json:"count" example:"1" doc:"Number of devices found"`
}

type DeviceResponse struct {
	Body DeviceData
}

// Session journal models
type SessionSpan struct {
	ID         int64      `json:"id" example:"12" doc:"Journal row identifier"`
	SessionID  string     `json:"session_id" example:"0b9fbf2e-6c5a-4f3e-9a14-3f61f0a0a6d2" doc:"Capture session identifier"`
	SpanIndex  int        `json:"span_index" example:"0" doc:"Span index within the session"`
	Preset     string     `json:"preset" example:"MEDIUM" doc:"Resolution preset of the span"`
	ExposureUS int64      `json:"exposure_us" example:"1000" doc:"Sensor exposure in microseconds"`
	StartedAt  time.Time  `json:"started_at" doc:"Span start time"`
	EndedAt    *time.Time `json:"ended_at,omitempty" doc:"Span end time, absent while recording"`
	Frames     uint64     `json:"frames" example:"1350" doc:"Frames written to the sink"`
	Bytes      uint64     `json:"bytes" example:"5905872000" doc:"Bytes written to the sink"`
	Restarts   int        `json:"restarts" example:"0" doc:"Sensor stalls recovered by restart"`
	Status     string     `json:"status" example:"completed" doc:"Span status: recording, completed, aborted"`
}

type SessionData struct {
	Spans []SessionSpan `json:"spans" doc:"Capture spans, newest first"`
	Count int           `json:"count" example:"5" doc:"Number of spans returned"`
}

type SessionResponse struct {
	Body SessionData
}

// Log models
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp" doc:"Log entry time"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"capture" doc:"Originating module"`
	Message    string         `json:"message" example:"Capture span opened" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

type LogData struct {
	Entries []LogEntry `json:"entries" doc:"Recent log entries, oldest first"`
	Count   int        `json:"count" example:"120" doc:"Number of entries returned"`
}

type LogResponse struct {
	Body LogData
}

type LogLevelData struct {
	Module string `json:"module" example:"camera" doc:"Module logger"`
	Level  string `json:"level" example:"debug" doc:"Applied level"`
}

type LogLevelResponse struct {
	Body LogLevelData
}

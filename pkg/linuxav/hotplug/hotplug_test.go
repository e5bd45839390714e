//go:build linux

package hotplug

import (
	"context"
	"errors"
	"testing"
)

func TestParseUEvent(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  Event
		ok    bool
	}{
		{
			name:  "empty input",
			input: []byte{},
		},
		{
			name:  "only null bytes",
			input: []byte{0, 0, 0},
		},
		{
			name:  "no @ separator",
			input: []byte("invalid"),
		},
		{
			name:  "missing action",
			input: []byte("@/devices/foo"),
		},
		{
			name:  "capture node added",
			input: []byte("add@/devices/platform/soc/fe801000.csi/video4linux/video0\x00ACTION=add\x00SUBSYSTEM=video4linux\x00DEVNAME=video0\x00MAJOR=81\x00MINOR=0\x00"),
			want: Event{
				Action:    "add",
				SysPath:   "/devices/platform/soc/fe801000.csi/video4linux/video0",
				Subsystem: "video4linux",
				DevName:   "video0",
			},
			ok: true,
		},
		{
			name:  "capture node removed",
			input: []byte("remove@/devices/platform/soc/fe801000.csi/video4linux/video0\x00SUBSYSTEM=video4linux\x00DEVNAME=video0\x00"),
			want: Event{
				Action:    "remove",
				SysPath:   "/devices/platform/soc/fe801000.csi/video4linux/video0",
				Subsystem: "video4linux",
				DevName:   "video0",
			},
			ok: true,
		},
		{
			name:  "unrelated subsystem still parses",
			input: []byte("change@/devices/sound/card0\x00SUBSYSTEM=sound\x00"),
			want: Event{
				Action:    "change",
				SysPath:   "/devices/sound/card0",
				Subsystem: "sound",
			},
			ok: true,
		},
		{
			name:  "value containing equals",
			input: []byte("add@/devices/usb/1-1\x00SUBSYSTEM=usb\x00PRODUCT=1234/5678=rev\x00"),
			want: Event{
				Action:    "add",
				SysPath:   "/devices/usb/1-1",
				Subsystem: "usb",
			},
			ok: true,
		},
		{
			name:  "trailing and doubled nulls",
			input: []byte("add@/devices/foo\x00\x00SUBSYSTEM=video4linux\x00\x00\x00"),
			want: Event{
				Action:    "add",
				SysPath:   "/devices/foo",
				Subsystem: "video4linux",
			},
			ok: true,
		},
		{
			name:  "header only",
			input: []byte("add@\x00"),
			want:  Event{Action: "add"},
			ok:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseUEvent(tt.input)
			if ok != tt.ok {
				t.Fatalf("parseUEvent ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("parseUEvent = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMonitorFilter(t *testing.T) {
	unfiltered := &Monitor{fd: -1}
	if !unfiltered.accepts(Event{Subsystem: "sound"}) {
		t.Error("monitor without filters should accept every subsystem")
	}

	m := &Monitor{fd: -1, filter: map[string]struct{}{SubsystemVideo4Linux: {}}}
	if !m.accepts(Event{Subsystem: SubsystemVideo4Linux}) {
		t.Error("filtered monitor should accept video4linux")
	}
	if m.accepts(Event{Subsystem: "usb"}) {
		t.Error("filtered monitor should reject other subsystems")
	}
}

func TestMonitorSocketLifecycle(t *testing.T) {
	m, err := NewMonitor(SubsystemVideo4Linux)
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	if m.fd <= 0 {
		t.Errorf("expected a valid fd, got %d", m.fd)
	}

	if err := m.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := m.Close(); err == nil {
		t.Error("second Close should fail with a bad descriptor")
	}
}

func TestMonitorRunCancellation(t *testing.T) {
	m, err := NewMonitor()
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := make(chan Event, 1)
	if runErr := m.Run(ctx, ch); !errors.Is(runErr, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", runErr)
	}
	if _, open := <-ch; open {
		t.Error("Run should close the event channel on return")
	}
}

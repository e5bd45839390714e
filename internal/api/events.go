package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/events"
)

// registerEventRoutes streams bus events over server-sent events so an
// operator can watch a node live without polling.
func (s *Server) registerEventRoutes() {
	if s.options.Bus == nil {
		return
	}

	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Event stream",
		Description: "Live session state, frame, exposure, preset, device and error events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"state-changed":    events.SessionStateChangedEvent{},
		"frame-emitted":    events.FrameEmittedEvent{},
		"exposure-changed": events.ExposureChangedEvent{},
		"preset-changed":   events.PresetChangedEvent{},
		"device-discovery": events.DeviceDiscoveryEvent{},
		"capture-error":    events.CaptureErrorEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 16)
		unsubscribers := []func(){
			events.SubscribeToChannel[events.SessionStateChangedEvent](s.options.Bus, eventCh),
			events.SubscribeToChannel[events.FrameEmittedEvent](s.options.Bus, eventCh),
			events.SubscribeToChannel[events.ExposureChangedEvent](s.options.Bus, eventCh),
			events.SubscribeToChannel[events.PresetChangedEvent](s.options.Bus, eventCh),
			events.SubscribeToChannel[events.DeviceDiscoveryEvent](s.options.Bus, eventCh),
			events.SubscribeToChannel[events.CaptureErrorEvent](s.options.Bus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Late joiners get the current session state up front instead of
		// waiting for the next transition.
		if s.options.Status != nil {
			st := s.options.Status()
			snapshot := events.SessionStateChangedEvent{
				SessionID: st.SessionID,
				State:     st.State,
				Preset:    st.Preset,
				Frames:    st.Pipeline.FramesEmitted,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			}
			if err := send.Data(snapshot); err != nil {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				if err := send.Data(ev); err != nil {
					// Client went away.
					return
				}
			}
		}
	})
}

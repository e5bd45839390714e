package events

import (
	"sync"
	"testing"
	"time"
)

func TestPublishReachesSubscriber(t *testing.T) {
	bus := New()
	received := make(chan FrameEmittedEvent, 1)

	unsub := Subscribe(bus, func(e FrameEmittedEvent) { received <- e })
	defer unsub()

	sent := FrameEmittedEvent{
		Index:       42,
		Bytes:       4374720,
		TimestampUS: 1717409400123456,
		Preset:      "MEDIUM",
	}
	bus.Publish(sent)

	got := <-received
	if got != sent {
		t.Errorf("received %+v, sent %+v", got, sent)
	}
}

func TestPublishFansOutToAllSubscribers(_ *testing.T) {
	bus := New()
	first := make(chan SessionStateChangedEvent, 1)
	second := make(chan SessionStateChangedEvent, 1)

	unsub1 := Subscribe(bus, func(e SessionStateChangedEvent) { first <- e })
	defer unsub1()
	unsub2 := Subscribe(bus, func(e SessionStateChangedEvent) { second <- e })
	defer unsub2()

	bus.Publish(SessionStateChangedEvent{SessionID: "fan-out", State: StateCapturing})

	<-first
	<-second
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()
	received := make(chan CaptureErrorEvent, 1)

	unsub := Subscribe(bus, func(e CaptureErrorEvent) { received <- e })

	bus.Publish(CaptureErrorEvent{DevicePath: "/dev/video0"})
	<-received

	unsub()

	bus.Publish(CaptureErrorEvent{DevicePath: "/dev/video1"})
	select {
	case e := <-received:
		t.Fatalf("received %+v after unsubscribe", e)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSubscriptionIsTypeScoped(t *testing.T) {
	bus := New()
	frames := make(chan FrameEmittedEvent, 1)
	states := make(chan SessionStateChangedEvent, 1)

	unsubFrames := Subscribe(bus, func(e FrameEmittedEvent) { frames <- e })
	defer unsubFrames()
	unsubStates := Subscribe(bus, func(e SessionStateChangedEvent) { states <- e })
	defer unsubStates()

	bus.Publish(FrameEmittedEvent{Index: 1})
	<-frames
	select {
	case e := <-states:
		t.Fatalf("state subscriber received a frame event: %+v", e)
	case <-time.After(20 * time.Millisecond):
	}

	bus.Publish(SessionStateChangedEvent{State: StateIdle})
	<-states
	select {
	case e := <-frames:
		t.Fatalf("frame subscriber received a state event: %+v", e)
	case <-time.After(20 * time.Millisecond):
	}
}

// Every event type must reach a multiplexing consumer, the shape the
// diagnostics event stream uses.
func TestEveryEventTypeIsRoutable(t *testing.T) {
	bus := New()
	ch := make(chan any, 16)

	unsubscribers := []func(){
		SubscribeToChannel[SessionStateChangedEvent](bus, ch),
		SubscribeToChannel[FrameEmittedEvent](bus, ch),
		SubscribeToChannel[ExposureChangedEvent](bus, ch),
		SubscribeToChannel[PresetChangedEvent](bus, ch),
		SubscribeToChannel[DeviceDiscoveryEvent](bus, ch),
		SubscribeToChannel[CaptureErrorEvent](bus, ch),
	}
	defer func() {
		for _, unsub := range unsubscribers {
			unsub()
		}
	}()

	published := []Event{
		SessionStateChangedEvent{SessionID: "route", State: StateCapturing},
		FrameEmittedEvent{Index: 7},
		ExposureChangedEvent{ExposureUS: 12000},
		PresetChangedEvent{Preset: "HIGH", Source: "provision"},
		DeviceDiscoveryEvent{Action: "added"},
		CaptureErrorEvent{DevicePath: "/dev/video0"},
	}
	for _, ev := range published {
		bus.Publish(ev)
	}

	seen := map[uint32]bool{}
	for range published {
		select {
		case got := <-ch:
			ev, ok := got.(Event)
			if !ok {
				t.Fatalf("channel carried a non-event %T", got)
			}
			seen[ev.Type()] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out with %d/%d event types seen", len(seen), len(published))
		}
	}
	if len(seen) != len(published) {
		t.Errorf("expected %d distinct event types, saw %d", len(published), len(seen))
	}
}

func TestConcurrentPublishers(_ *testing.T) {
	bus := New()
	const publishers = 10
	const perPublisher = 100

	received := make(chan struct{}, publishers*perPublisher)
	unsub := Subscribe(bus, func(_ FrameEmittedEvent) { received <- struct{}{} })
	defer unsub()

	var wg sync.WaitGroup
	for range publishers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perPublisher {
				bus.Publish(FrameEmittedEvent{Index: uint64(i)})
			}
		}()
	}
	wg.Wait()

	for range publishers * perPublisher {
		<-received
	}
}

func TestSubscribeToChannelForwards(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[SessionStateChangedEvent](bus, ch)
	defer unsub()

	bus.Publish(SessionStateChangedEvent{SessionID: "forward", State: StateIdle})

	got := <-ch
	state, ok := got.(SessionStateChangedEvent)
	if !ok {
		t.Fatalf("expected SessionStateChangedEvent, got %T", got)
	}
	if state.SessionID != "forward" {
		t.Errorf("session_id = %q", state.SessionID)
	}
}

// A stalled channel consumer must not hold up other subscribers of the
// same event type.
func TestFullChannelDoesNotStallBus(t *testing.T) {
	bus := New()
	stalled := make(chan any) // no buffer, no reader

	unsubStalled := SubscribeToChannel[FrameEmittedEvent](bus, stalled)
	defer unsubStalled()

	const total = 100
	received := make(chan struct{}, total)
	unsub := Subscribe(bus, func(_ FrameEmittedEvent) { received <- struct{}{} })
	defer unsub()

	for i := range total {
		bus.Publish(FrameEmittedEvent{Index: uint64(i)})
	}

	for range total {
		select {
		case <-received:
		case <-time.After(2 * time.Second):
			t.Fatal("live subscriber starved behind a stalled channel")
		}
	}
}

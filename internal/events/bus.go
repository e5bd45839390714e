// Package events is the in-process pub/sub fabric between the capture
// pipeline and its observers, currently the LED manager and the
// diagnostics event stream.
package events

import "github.com/kelindar/event"

// Event is the closed set of messages the bus carries. Type satisfies
// the kelindar/event contract; publish recovers the concrete type for
// dispatch, which the generic kelindar API needs and an interface
// value would hide.
type Event interface {
	Type() uint32
	publish(d *event.Dispatcher)
}

// Bus routes typed events from publishers to subscribers. Handlers run
// on their subscription's goroutine, so Publish never waits for them.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates an event bus with its own dispatcher.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish delivers ev to every subscriber registered for its concrete
// type.
func (b *Bus) Publish(ev Event) {
	ev.publish(b.dispatcher)
}

// Subscribe registers handler for the event type it accepts. The
// returned function removes the subscription.
func Subscribe[T Event](bus *Bus, handler func(T)) func() {
	return event.Subscribe(bus.dispatcher, handler)
}

// SubscribeToChannel forwards events of one type into ch, dropping
// events when ch is full so a stalled consumer cannot back up its
// subscription. Built for consumers that multiplex several event types
// over a single select loop, such as the diagnostics event stream.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return Subscribe(bus, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

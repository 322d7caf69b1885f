// Package bus is the in-process publish/subscribe backbone. Every component
// of a session communicates only through it; no component holds a direct
// reference to another.
//
// Delivery is synchronous and in subscription order. A handler that panics is
// isolated: the failure is logged and remaining subscribers still receive the
// event. There is no retained history; a late subscriber never sees past
// events.
package bus

import (
	"fmt"
	"log/slog"
	"time"

	evbus "github.com/asaskevich/EventBus"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	Topic   string
	At      time.Time
	Payload any
}

// Handler receives published events for a subscribed topic.
type Handler func(Event)

// Bus wraps an EventBus instance with panic isolation and typed topics.
// Each session owns its own Bus, so sessions share no subscriber state.
type Bus struct {
	inner evbus.Bus
	log   *slog.Logger
}

// New creates an empty bus. A nil logger falls back to slog.Default.
func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{inner: evbus.New(), log: log}
}

// Publish delivers payload to all current subscribers of topic, in
// subscription order. Fire and forget: handler failures never reach the
// publisher.
func (b *Bus) Publish(topic string, payload any) {
	b.inner.Publish(topic, Event{Topic: topic, At: time.Now(), Payload: payload})
}

// Subscription is a cancelable handle returned by Subscribe.
type Subscription struct {
	bus     *Bus
	topic   string
	wrapped func(Event)
}

// Cancel removes the subscription. Safe to call once; subsequent calls
// return an error from the underlying bus.
func (s *Subscription) Cancel() error {
	return s.bus.inner.Unsubscribe(s.topic, s.wrapped)
}

// Subscribe registers h for topic and returns a cancelable handle.
func (b *Bus) Subscribe(topic string, h Handler) (*Subscription, error) {
	wrapped := func(ev Event) {
		defer func() {
			if r := recover(); r != nil {
				b.log.Error("event handler panicked",
					"topic", topic, "panic", fmt.Sprint(r))
			}
		}()
		h(ev)
	}
	if err := b.inner.Subscribe(topic, wrapped); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return &Subscription{bus: b, topic: topic, wrapped: wrapped}, nil
}

// MustSubscribe is Subscribe for wiring done at session construction, where
// a failure is a programming defect.
func (b *Bus) MustSubscribe(topic string, h Handler) *Subscription {
	sub, err := b.Subscribe(topic, h)
	if err != nil {
		panic(err)
	}
	return sub
}

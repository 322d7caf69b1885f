package bus

import (
	"testing"

	"github.com/matryer/is"
)

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	is := is.New(t)
	b := New(nil)

	var got []int
	for i := 0; i < 3; i++ {
		i := i
		_, err := b.Subscribe("topic", func(Event) { got = append(got, i) })
		is.NoErr(err)
	}

	b.Publish("topic", nil)
	is.Equal(got, []int{0, 1, 2})
}

func TestPanickingHandlerIsIsolated(t *testing.T) {
	is := is.New(t)
	b := New(nil)

	delivered := false
	b.MustSubscribe("topic", func(Event) { panic("handler bug") })
	b.MustSubscribe("topic", func(Event) { delivered = true })

	b.Publish("topic", nil)
	is.True(delivered) // second subscriber still receives the event
}

func TestCancelStopsDelivery(t *testing.T) {
	is := is.New(t)
	b := New(nil)

	calls := 0
	sub := b.MustSubscribe("topic", func(Event) { calls++ })

	b.Publish("topic", nil)
	is.NoErr(sub.Cancel())
	b.Publish("topic", nil)

	is.Equal(calls, 1)
}

func TestLateSubscriberSeesNoHistory(t *testing.T) {
	b := New(nil)
	b.Publish("topic", "early")

	calls := 0
	b.MustSubscribe("topic", func(Event) { calls++ })
	if calls != 0 {
		t.Errorf("late subscriber received %d past events", calls)
	}
}

func TestEventCarriesTopicAndPayload(t *testing.T) {
	is := is.New(t)
	b := New(nil)

	var got Event
	b.MustSubscribe("speech:started", func(ev Event) { got = ev })
	b.Publish("speech:started", 42)

	is.Equal(got.Topic, "speech:started")
	is.Equal(got.Payload, 42)
	is.True(!got.At.IsZero())
}

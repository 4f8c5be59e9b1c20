package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversInOrderToAllSubscribers(t *testing.T) {
	b := NewBus()
	var got []Type
	b.Subscribe(func(ev Event) { got = append(got, ev.Type) })
	b.Subscribe(func(ev Event) { got = append(got, ev.Type) })

	b.Publish(Event{Type: RunStarted})
	b.Publish(Event{Type: StepCompleted})

	require.Equal(t, []Type{RunStarted, RunStarted, StepCompleted, StepCompleted}, got)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	calls := 0
	id := b.Subscribe(func(Event) { calls++ })
	b.Publish(Event{Type: RunStarted})
	b.Unsubscribe(id)
	b.Publish(Event{Type: RunStarted})
	require.Equal(t, 1, calls)
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	b := NewBus()
	second := false
	b.Subscribe(func(Event) { panic("boom") })
	b.Subscribe(func(Event) { second = true })
	require.NotPanics(t, func() { b.Publish(Event{Type: RunStarted}) })
	require.True(t, second)
}

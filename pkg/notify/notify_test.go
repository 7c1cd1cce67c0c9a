package notify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestSubscribeFiltersBySelector(t *testing.T) {
	bus := NewBus(16)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.Subscribe(ctx, "time-series")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(Event{Kind: ADDED, Path: "other/topic"}))
	require.NoError(t, bus.Publish(Event{Kind: ADDED, Path: "time-series/string/x"}))

	ev := receive(t, events)
	assert.Equal(t, ADDED, ev.Kind)
	assert.Equal(t, "time-series/string/x", ev.Path)
}

func TestEventsArriveInPublishOrder(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.Subscribe(ctx, "a")
	require.NoError(t, err)

	received := make(chan []Event, 1)
	go func() {
		var got []Event
		for len(got) < 20 {
			select {
			case ev := <-events:
				got = append(got, ev)
			case <-time.After(2 * time.Second):
				received <- got
				return
			}
		}
		received <- got
	}()

	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(Event{
			Kind:     APPENDED,
			Path:     "a/b",
			Sequence: uint64(i),
			Value:    structpb.NewStringValue(fmt.Sprint(i)),
		}))
	}

	got := <-received
	require.Len(t, got, 20)
	for i, ev := range got {
		assert.Equal(t, uint64(i), ev.Sequence)
		assert.Equal(t, fmt.Sprint(i), ev.Value.GetStringValue())
	}
}

func TestPublishWaitsForSubscriberToDrain(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.Subscribe(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, bus.Publish(Event{Kind: ADDED, Path: "a"}))

	published := make(chan error, 1)
	go func() {
		published <- bus.Publish(Event{Kind: UPDATED, Path: "a"})
	}()

	// the buffer holds the first event, so the second publish is parked
	assert.Never(t, func() bool { return len(published) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	assert.Equal(t, ADDED, receive(t, events).Kind)
	assert.Equal(t, UPDATED, receive(t, events).Kind)
	select {
	case err := <-published:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("publish still blocked after the subscriber drained")
	}
}

func TestCancelClosesSubscription(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := bus.Subscribe(ctx, "a")
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

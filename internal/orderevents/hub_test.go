package orderevents

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBacklogAndFanout(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	require.NoError(t, hub.Broadcast(ctx, Event{Event: EventOrderUpdated, ID: "1", Status: "awaiting_payment"}))

	sub, backlog, err := hub.Subscribe(StreamOrders)
	require.NoError(t, err)
	defer sub.Close()
	require.Len(t, backlog, 1)
	assert.Equal(t, "1", backlog[0].ID)

	require.NoError(t, hub.Broadcast(ctx, Event{Event: EventOrderPaid, ID: "1", Status: "paid"}))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, EventOrderPaid, ev.Event)
	case <-time.After(time.Second):
		t.Fatal("expected event")
	}
}

func TestOrderStreamOnlyReceivesItsOrder(t *testing.T) {
	hub := NewHub()
	sub, backlog, err := hub.Subscribe(OrderStream("7"))
	require.NoError(t, err)
	defer sub.Close()
	assert.Empty(t, backlog)

	_ = hub.Broadcast(context.Background(), Event{Event: EventOrderPaid, ID: "8", Status: "paid"})
	_ = hub.Broadcast(context.Background(), Event{Event: EventOrderPaid, ID: "7", Status: "paid"})

	ev := <-sub.Events()
	assert.Equal(t, "7", ev.ID)
	select {
	case extra := <-sub.Events():
		t.Fatalf("unexpected event %+v", extra)
	default:
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub()
	sub, _, err := hub.Subscribe(StreamOrders)
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < DefaultSubscriberBuffer*3; i++ {
		hub.Publish(StreamOrders, Event{Event: EventOrderUpdated, ID: "1"})
	}
	assert.Len(t, sub.Events(), DefaultSubscriberBuffer)
}

func TestClosedOrderStreamIsDropped(t *testing.T) {
	hub := NewHub()
	sub, _, err := hub.Subscribe(OrderStream("3"))
	require.NoError(t, err)
	sub.Close()
	sub.Close()

	hub.mu.RLock()
	_, ok := hub.streams[OrderStream("3")]
	hub.mu.RUnlock()
	assert.False(t, ok)
}

func TestSubscribeWhileLastWatcherLeaves(t *testing.T) {
	hub := NewHub()
	name := OrderStream("9")

	for i := 0; i < 500; i++ {
		leaving, _, err := hub.Subscribe(name)
		require.NoError(t, err)

		var (
			wg      sync.WaitGroup
			staying *Subscription
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			leaving.Close()
		}()
		go func() {
			defer wg.Done()
			sub, _, err := hub.Subscribe(name)
			assert.NoError(t, err)
			staying = sub
		}()
		wg.Wait()
		require.NotNil(t, staying)

		hub.Publish(name, Event{Event: EventOrderUpdated, ID: "9"})
		select {
		case ev := <-staying.Events():
			assert.Equal(t, "9", ev.ID)
		default:
			t.Fatalf("iteration %d: subscriber missed the event", i)
		}
		staying.Close()
	}

	hub.mu.RLock()
	_, ok := hub.streams[name]
	hub.mu.RUnlock()
	assert.False(t, ok)
}

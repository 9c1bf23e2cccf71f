package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvEvent(t *testing.T, ch <-chan Event[string]) Event[string] {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event[string]{}
	}
}

func TestBroker_PublishToSubscriber(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := broker.Subscribe(ctx)
	broker.Publish(RegisteredEvent, "payload")

	ev := recvEvent(t, sub)
	assert.Equal(t, RegisteredEvent, ev.Type)
	assert.Equal(t, "payload", ev.Payload)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestBroker_MultipleSubscribers(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := broker.Subscribe(ctx)
	b := broker.Subscribe(ctx)
	assert.Equal(t, 2, broker.SubscriberCount())

	broker.Publish(RemovedEvent, "gone")

	assert.Equal(t, "gone", recvEvent(t, a).Payload)
	assert.Equal(t, "gone", recvEvent(t, b).Payload)
}

func TestBroker_CancelRemovesSubscriber(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub := broker.Subscribe(ctx)
	require.Equal(t, 1, broker.SubscriberCount())

	cancel()

	// The channel closes once the cancellation is observed.
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, broker.SubscriberCount())
}

func TestBroker_Close(t *testing.T) {
	broker := NewBroker[string]()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := broker.Subscribe(ctx)
	broker.Close()

	_, ok := <-sub
	assert.False(t, ok, "subscriber channel should be closed")

	// Publishing and re-closing after Close are no-ops.
	broker.Publish(RegisteredEvent, "late")
	broker.Close()

	// Subscribing to a closed broker yields a closed channel.
	late := broker.Subscribe(ctx)
	_, ok = <-late
	assert.False(t, ok)
}

func TestBroker_PublishDoesNotBlockOnFullBuffer(t *testing.T) {
	broker := NewBrokerWithBuffer[string](1)
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := broker.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Second publish overflows the buffer and must be dropped, not
		// block.
		broker.Publish(RegisteredEvent, "first")
		broker.Publish(RegisteredEvent, "second")
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}

	assert.Equal(t, "first", recvEvent(t, sub).Payload)
}

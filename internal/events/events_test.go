package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/pkg/queue"
)

func newTestBus(t *testing.T) (*Bus, *queue.MemoryQueue) {
	q, err := queue.NewMemoryQueue(&queue.MemoryQueueConfig{BufferSize: 16})
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return NewBus(q), q
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "conversation:42", ConversationTopic(42))
	assert.Equal(t, "user:7", UserTopic(7))
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus, _ := newTestBus(t)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	bus.now = func() time.Time { return fixed }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Event, 1)
	require.NoError(t, bus.Subscribe(ctx, TopicOrders, func(ctx context.Context, topic string, event *Event) error {
		got <- event
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, TopicOrders, OrderPlaced, OrderPlacedPayload{
		OrderID:   3,
		OrderNo:   "MK3",
		VendorIDs: []uint64{1, 2},
		Total:     "12.50",
	}))

	select {
	case event := <-got:
		assert.Equal(t, OrderPlaced, event.Type)
		assert.NotEmpty(t, event.ID)
		assert.True(t, fixed.Equal(event.OccurredAt))

		var payload OrderPlacedPayload
		require.NoError(t, event.Decode(&payload))
		assert.Equal(t, uint64(3), payload.OrderID)
		assert.Equal(t, []uint64{1, 2}, payload.VendorIDs)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_UniqueIDs(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ids := make(chan string, 2)
	require.NoError(t, bus.Subscribe(ctx, TopicTickets, func(ctx context.Context, topic string, event *Event) error {
		ids <- event.ID
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, TopicTickets, TicketCreated, TicketPayload{TicketID: 1}))
	require.NoError(t, bus.Publish(ctx, TopicTickets, TicketCreated, TicketPayload{TicketID: 1}))

	first, second := <-ids, <-ids
	assert.NotEqual(t, first, second)
}

func TestBus_PublishUnencodable(t *testing.T) {
	bus, _ := newTestBus(t)
	err := bus.Publish(context.Background(), TopicOrders, OrderPlaced, make(chan int))
	assert.Error(t, err)
}

func TestBus_PublishClosedQueue(t *testing.T) {
	bus, q := newTestBus(t)
	require.NoError(t, q.Close())

	err := bus.Publish(context.Background(), TopicOrders, OrderPlaced, OrderPlacedPayload{})
	assert.True(t, errors.Is(err, queue.ErrQueueClosed))
}

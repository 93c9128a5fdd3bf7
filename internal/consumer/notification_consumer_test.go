package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketplace/internal/events"
	"marketplace/internal/model"
	"marketplace/internal/repository/repotest"
	"marketplace/pkg/queue"
)

// MockNotifier mock notifier
type MockNotifier struct {
	mock.Mock
	delivered chan uint64
}

func (m *MockNotifier) Notify(ctx context.Context, userID uint64, kind string, payload interface{}) error {
	args := m.Called(ctx, userID, kind, payload)
	m.delivered <- userID
	return args.Error(0)
}

type staticAdmins []uint64

func (a staticAdmins) AdminIDs(ctx context.Context) ([]uint64, error) {
	return a, nil
}

type harness struct {
	bus      *events.Bus
	notifier *MockNotifier
	store    *repotest.Store
}

func start(t *testing.T, admins AdminLister) *harness {
	t.Helper()
	q, err := queue.NewMemoryQueue(nil)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	h := &harness{
		bus:      events.NewBus(q),
		notifier: &MockNotifier{delivered: make(chan uint64, 16)},
		store:    repotest.NewStore(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	c := NewNotificationConsumer(h.bus, h.notifier, h.store.Vendors(), admins)
	require.NoError(t, c.Start(ctx))
	return h
}

// collect waits for n deliveries
func (h *harness) collect(t *testing.T, n int) []uint64 {
	t.Helper()
	var got []uint64
	for i := 0; i < n; i++ {
		select {
		case id := <-h.notifier.delivered:
			got = append(got, id)
		case <-time.After(2 * time.Second):
			t.Fatalf("expected %d notifications, got %d", n, len(got))
		}
	}
	return got
}

func (h *harness) quiet(t *testing.T) {
	t.Helper()
	select {
	case id := <-h.notifier.delivered:
		t.Fatalf("unexpected notification for user %d", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOrderEventsNotifyVendorsAndCustomer(t *testing.T) {
	h := start(t, staticAdmins{})
	x := h.store.AddVendor(model.Vendor{UserID: 10, Status: model.VendorStatusApproved})
	y := h.store.AddVendor(model.Vendor{UserID: 20, Status: model.VendorStatusApproved})
	h.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	ctx := context.Background()
	require.NoError(t, h.bus.Publish(ctx, events.TopicOrders, events.OrderPlaced, events.OrderPlacedPayload{
		OrderID:   1,
		UserID:    5,
		VendorIDs: []uint64{x.ID, y.ID},
	}))
	assert.ElementsMatch(t, []uint64{10, 20}, h.collect(t, 2))

	// the acting vendor is not told about its own change
	require.NoError(t, h.bus.Publish(ctx, events.TopicOrders, events.OrderTransitioned, events.OrderTransitionedPayload{
		OrderID:   1,
		UserID:    5,
		VendorIDs: []uint64{x.ID},
		To:        string(model.OrderStatusShipped),
		ActorID:   10,
	}))
	assert.Equal(t, []uint64{5}, h.collect(t, 1))
	h.quiet(t)

	h.notifier.AssertCalled(t, "Notify", mock.Anything, uint64(5), events.OrderTransitioned, mock.Anything)
}

func TestTicketEvents(t *testing.T) {
	h := start(t, staticAdmins{100, 101})
	h.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ctx := context.Background()

	require.NoError(t, h.bus.Publish(ctx, events.TopicTickets, events.TicketCreated, events.TicketPayload{
		TicketID: 1, CreatedBy: 7, Channel: string(model.ChannelMessage),
	}))
	h.quiet(t)

	require.NoError(t, h.bus.Publish(ctx, events.TopicTickets, events.TicketCreated, events.TicketPayload{
		TicketID: 2, CreatedBy: 7, Channel: string(model.ChannelEmail),
	}))
	assert.ElementsMatch(t, []uint64{100, 101}, h.collect(t, 2))

	require.NoError(t, h.bus.Publish(ctx, events.TopicTickets, events.TicketStatusChange, events.TicketPayload{
		TicketID: 2, CreatedBy: 7, Status: string(model.TicketResolved),
	}))
	assert.Equal(t, []uint64{7}, h.collect(t, 1))
}

func TestDeliveryFailureIsSwallowed(t *testing.T) {
	h := start(t, staticAdmins{})
	h.notifier.On("Notify", mock.Anything, uint64(3), events.VendorApproved, mock.Anything).Return(errors.New("push gateway down"))
	h.notifier.On("Notify", mock.Anything, uint64(4), events.BadgeAwarded, mock.Anything).Return(nil)
	ctx := context.Background()

	require.NoError(t, h.bus.Publish(ctx, events.TopicVendors, events.VendorApproved, events.VendorPayload{VendorID: 1, UserID: 3}))
	assert.Equal(t, []uint64{3}, h.collect(t, 1))

	require.NoError(t, h.bus.Publish(ctx, events.TopicVendors, events.BadgeAwarded, events.VendorPayload{VendorID: 2, UserID: 4, Badge: "first_sale"}))
	assert.Equal(t, []uint64{4}, h.collect(t, 1))
	h.notifier.AssertExpectations(t)
}

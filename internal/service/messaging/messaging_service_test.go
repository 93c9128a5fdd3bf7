package messaging

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/events"
	"marketplace/internal/model"
	"marketplace/internal/repository/repotest"
	"marketplace/pkg/lock"
	"marketplace/pkg/queue"
	"marketplace/pkg/utils"
)

type published struct {
	topic     string
	eventType string
	payload   events.MessagePayload
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(ctx context.Context, topic, eventType string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic, eventType, payload.(events.MessagePayload)})
	return nil
}

func (p *recordingPublisher) on(topic string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.topic == topic {
			out = append(out, e)
		}
	}
	return out
}

// tick is a clock advancing one second per reading
type tick struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tick) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	store     *repotest.Store
	publisher *recordingPublisher
	svc       MessagingService

	customer model.Actor
	vendor   model.Actor
	admin    model.Actor
	outsider model.Actor
}

func setup(t *testing.T, limits Limits) *fixture {
	t.Helper()
	store := repotest.NewStore()
	f := &fixture{store: store, publisher: &recordingPublisher{}}
	svc := NewMessagingService(store.Conversations(), store.Users(), store.Orders(), store.Tickets(), lock.NewMemoryLocker(), f.publisher, nil, limits, nil)
	clock := &tick{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	svc.(*messagingService).now = clock.now
	f.svc = svc

	c := store.AddUser(model.User{Username: "cust", Email: "c@example.com", Role: model.RoleCustomer})
	v := store.AddUser(model.User{Username: "vend", Email: "v@example.com", Role: model.RoleVendor, FullName: "Vera Vendor"})
	a := store.AddUser(model.User{Username: "root", Email: "a@example.com", Role: model.RoleAdmin})
	o := store.AddUser(model.User{Username: "other", Email: "o@example.com", Role: model.RoleCustomer})
	vendor := store.AddVendor(model.Vendor{UserID: v.ID, BusinessName: "V", Status: model.VendorStatusApproved})

	f.customer = model.Actor{UserID: c.ID, Role: model.RoleCustomer}
	f.vendor = model.Actor{UserID: v.ID, Role: model.RoleVendor, VendorID: vendor.ID}
	f.admin = model.Actor{UserID: a.ID, Role: model.RoleAdmin}
	f.outsider = model.Actor{UserID: o.ID, Role: model.RoleCustomer}
	return f
}

func defaultLimits() Limits {
	return Limits{MaxContentLength: 20, MaxParticipants: 10}
}

func (f *fixture) direct(t *testing.T) *model.Conversation {
	t.Helper()
	conv, err := f.svc.CreateConversation(context.Background(), f.customer, &CreateRequest{
		Kind:           Direct{},
		ParticipantIDs: []uint64{f.vendor.UserID},
	})
	require.NoError(t, err)
	return conv
}

func (f *fixture) say(t *testing.T, actor model.Actor, convID uint64, content string) *model.Message {
	t.Helper()
	msg, err := f.svc.AppendMessage(context.Background(), actor, &AppendRequest{ConversationID: convID, Content: content})
	require.NoError(t, err)
	return msg
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		name    string
		t       model.ConversationType
		orderID uint64
		want    Kind
		wantErr bool
	}{
		{"default direct", "", 0, Direct{}, false},
		{"direct", model.ConversationDirect, 9, Direct{}, false},
		{"order", model.ConversationOrder, 9, OrderThread{OrderID: 9}, false},
		{"order without anchor", model.ConversationOrder, 0, nil, true},
		{"support", model.ConversationSupport, 0, SupportThread{}, false},
		{"unknown", "group", 0, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKind(tt.t, tt.orderID, 0)
			if tt.wantErr {
				assert.ErrorIs(t, err, utils.ErrInvalidParam)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKindAnchors(t *testing.T) {
	var conv model.Conversation
	assert.ErrorIs(t, OrderThread{}.anchor(&conv), utils.ErrInvalidParam)

	require.NoError(t, SupportThread{TicketID: 5}.anchor(&conv))
	assert.Equal(t, model.ConversationSupport, conv.Type)
	require.NotNil(t, conv.TicketID)
	assert.Equal(t, uint64(5), *conv.TicketID)
}

func TestCreateConversation(t *testing.T) {
	f := setup(t, defaultLimits())
	ctx := context.Background()

	conv, err := f.svc.CreateConversation(ctx, f.customer, &CreateRequest{
		Kind:           Direct{},
		Title:          " hello ",
		ParticipantIDs: []uint64{f.vendor.UserID, f.vendor.UserID, f.customer.UserID},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ConversationDirect, conv.Type)
	require.NotNil(t, conv.Title)
	assert.Equal(t, "hello", *conv.Title)
	require.Len(t, conv.Participants, 2)
	assert.Equal(t, model.ParticipantCustomer, conv.Participant(f.customer.UserID).Role)
	assert.Equal(t, model.ParticipantVendor, conv.Participant(f.vendor.UserID).Role)

	support, err := f.svc.CreateConversation(ctx, f.vendor, &CreateRequest{
		Kind:           SupportThread{TicketID: 77},
		ParticipantIDs: []uint64{f.admin.UserID},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ParticipantAdmin, support.Participant(f.vendor.UserID).Role)
	assert.Equal(t, model.ParticipantAdmin, support.Participant(f.admin.UserID).Role)
	require.NotNil(t, support.TicketID)
	assert.Equal(t, uint64(77), *support.TicketID)

	stored, err := f.svc.GetConversation(ctx, f.vendor, conv.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Participants, 2)
}

func TestCreateConversationValidation(t *testing.T) {
	f := setup(t, Limits{MaxContentLength: 20, MaxParticipants: 2})
	ctx := context.Background()

	tests := []struct {
		name  string
		actor model.Actor
		req   *CreateRequest
		want  error
	}{
		{"anonymous", model.Actor{}, &CreateRequest{Kind: Direct{}, ParticipantIDs: []uint64{f.vendor.UserID}}, utils.ErrUnauthorized},
		{"no kind", f.customer, &CreateRequest{ParticipantIDs: []uint64{f.vendor.UserID}}, utils.ErrInvalidParam},
		{"only the creator", f.customer, &CreateRequest{Kind: Direct{}, ParticipantIDs: []uint64{f.customer.UserID}}, utils.ErrInvalidParam},
		{"nobody", f.customer, &CreateRequest{Kind: Direct{}}, utils.ErrInvalidParam},
		{"unknown user", f.customer, &CreateRequest{Kind: Direct{}, ParticipantIDs: []uint64{4242}}, utils.ErrInvalidParam},
		{"too many", f.customer, &CreateRequest{Kind: Direct{}, ParticipantIDs: []uint64{f.vendor.UserID, f.admin.UserID}}, utils.ErrInvalidParam},
		{"order without anchor", f.customer, &CreateRequest{Kind: OrderThread{}, ParticipantIDs: []uint64{f.vendor.UserID}}, utils.ErrInvalidParam},
		{"missing order", f.customer, &CreateRequest{Kind: OrderThread{OrderID: 4242}, ParticipantIDs: []uint64{f.vendor.UserID}}, utils.ErrOrderNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateConversation(ctx, tt.actor, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	convs, participants, _, _ := f.store.Counts()
	assert.Zero(t, convs)
	assert.Zero(t, participants)
}

func TestOrderThreadAccess(t *testing.T) {
	f := setup(t, defaultLimits())
	ctx := context.Background()
	order := &model.Order{
		OrderNo:     "T1",
		UserID:      f.customer.UserID,
		TotalAmount: decimal.NewFromInt(5),
		Items:       []model.OrderItem{{ProductID: 1, VendorID: f.vendor.VendorID, Quantity: 1, UnitPrice: decimal.NewFromInt(5), LineTotal: decimal.NewFromInt(5)}},
	}
	require.NoError(t, f.store.Orders().Create(ctx, order))

	conv, err := f.svc.CreateConversation(ctx, f.vendor, &CreateRequest{
		Kind:           OrderThread{OrderID: order.ID},
		ParticipantIDs: []uint64{f.customer.UserID},
	})
	require.NoError(t, err)
	require.NotNil(t, conv.OrderID)
	assert.Equal(t, order.ID, *conv.OrderID)

	_, err = f.svc.CreateConversation(ctx, f.outsider, &CreateRequest{
		Kind:           OrderThread{OrderID: order.ID},
		ParticipantIDs: []uint64{f.customer.UserID},
	})
	assert.ErrorIs(t, err, utils.ErrForbidden)
}

func TestSupportThreadAccess(t *testing.T) {
	f := setup(t, defaultLimits())
	ctx := context.Background()
	ticket := &model.SupportTicket{
		VendorID:    f.vendor.VendorID,
		CreatedBy:   f.vendor.UserID,
		Subject:     "payout",
		Description: "missing payout",
		Priority:    model.PriorityMedium,
		Status:      model.TicketOpen,
		Channel:     model.ChannelMessage,
	}
	require.NoError(t, f.store.Tickets().Create(ctx, ticket))

	tests := []struct {
		name     string
		actor    model.Actor
		ticketID uint64
		wantErr  error
	}{
		{"ticket vendor", f.vendor, ticket.ID, nil},
		{"admin", f.admin, ticket.ID, nil},
		{"customer", f.customer, ticket.ID, utils.ErrForbidden},
		{"other user", f.outsider, ticket.ID, utils.ErrForbidden},
		{"unknown ticket", f.vendor, ticket.ID + 100, utils.ErrTicketNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, _, _, _ := f.store.Counts()
			participant := f.admin.UserID
			if tt.actor.UserID == f.admin.UserID {
				participant = f.vendor.UserID
			}
			conv, err := f.svc.CreateConversation(ctx, tt.actor, &CreateRequest{
				Kind:           SupportThread{TicketID: tt.ticketID},
				ParticipantIDs: []uint64{participant},
			})
			after, _, _, _ := f.store.Counts()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before, after)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, conv.TicketID)
			assert.Equal(t, ticket.ID, *conv.TicketID)
		})
	}
}

func TestAppendSurvivesLeaseExpiry(t *testing.T) {
	f := setup(t, defaultLimits())
	ctx := context.Background()
	conv := f.direct(t)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	svc := NewMessagingService(f.store.Conversations(), f.store.Users(), f.store.Orders(), f.store.Tickets(),
		lock.NewRedisLocker(client, lock.RedisLockerConfig{Prefix: "lock:", TTL: time.Second}),
		f.publisher, nil, defaultLimits(), nil)
	// the store write outlives the lease
	svc.(*messagingService).now = func() time.Time {
		mr.FastForward(2 * time.Second)
		return time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	}

	msg, err := svc.AppendMessage(ctx, f.customer, &AppendRequest{ConversationID: conv.ID, Content: "hi"})
	require.NoError(t, err)
	require.NotNil(t, msg)

	thread, err := f.svc.Thread(ctx, f.customer, conv.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.Equal(t, msg.ID, thread[0].ID)
}

func TestCreateConversationStoreFailure(t *testing.T) {
	f := setup(t, defaultLimits())
	f.store.FailOn("Conversations.Create", errors.New("deadlock"))

	_, err := f.svc.CreateConversation(context.Background(), f.customer, &CreateRequest{
		Kind:           Direct{},
		ParticipantIDs: []uint64{f.vendor.UserID},
	})
	assert.ErrorIs(t, err, utils.ErrDependencyUnavailable)
	convs, participants, _, _ := f.store.Counts()
	assert.Zero(t, convs)
	assert.Zero(t, participants)
}

func TestAppendAndThread(t *testing.T) {
	f := setup(t, defaultLimits())
	ctx := context.Background()
	conv := f.direct(t)

	first := f.say(t, f.customer, conv.ID, "  hi  ")
	second := f.say(t, f.vendor, conv.ID, "hello")
	third := f.say(t, f.customer, conv.ID, "bye")
	assert.Equal(t, []int64{1, 2, 3}, []int64{first.Seq, second.Seq, third.Seq})
	assert.Equal(t, "hi", first.Content)

	thread, err := f.svc.Thread(ctx, f.vendor, conv.ID, 0, 0)
	require.NoError(t, err)
	again, err := f.svc.Thread(ctx, f.vendor, conv.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, thread, 3)
	assert.Equal(t, thread, again)
	for i, m := range thread {
		assert.Equal(t, int64(i+1), m.Seq)
		require.NotNil(t, m.Sender)
		assert.Empty(t, m.Sender.Email)
	}
	assert.Equal(t, "Vera Vendor", thread[1].Sender.FullName)

	tail, err := f.svc.Thread(ctx, f.customer, conv.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, second.ID, tail[0].ID)

	stored, err := f.svc.GetConversation(ctx, f.customer, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, third.CreatedAt, stored.LastActivityAt)
	assert.Equal(t, int64(3), stored.MessageCount)

	_, err = f.svc.Thread(ctx, f.outsider, conv.ID, 0, 0)
	assert.ErrorIs(t, err, utils.ErrForbidden)
	_, err = f.svc.Thread(ctx, f.admin, conv.ID, 0, 0)
	assert.NoError(t, err)
}

func TestAppendEvents(t *testing.T) {
	f := setup(t, defaultLimits())
	conv := f.direct(t)
	msg := f.say(t, f.customer, conv.ID, "ping")

	onConv := f.publisher.on(events.ConversationTopic(conv.ID))
	require.Len(t, onConv, 1)
	assert.Equal(t, events.MessageCreated, onConv[0].eventType)
	assert.Equal(t, msg.ID, onConv[0].payload.MessageID)
	assert.Equal(t, "ping", onConv[0].payload.Content)

	assert.Len(t, f.publisher.on(events.UserTopic(f.vendor.UserID)), 1)
	assert.Empty(t, f.publisher.on(events.UserTopic(f.customer.UserID)))
}

func TestAppendValidation(t *testing.T) {
	f := setup(t, defaultLimits())
	ctx := context.Background()
	conv := f.direct(t)

	tests := []struct {
		name  string
		actor model.Actor
		req   *AppendRequest
		want  error
	}{
		{"nil", f.customer, nil, utils.ErrInvalidParam},
		{"empty", f.customer, &AppendRequest{ConversationID: conv.ID, Content: "   "}, utils.ErrInvalidParam},
		{"too long", f.customer, &AppendRequest{ConversationID: conv.ID, Content: strings.Repeat("x", 21)}, utils.ErrInvalidParam},
		{"file without url", f.customer, &AppendRequest{ConversationID: conv.ID, Content: "doc", Type: model.MessageFile}, utils.ErrInvalidParam},
		{"unknown type", f.customer, &AppendRequest{ConversationID: conv.ID, Content: "x", Type: "video"}, utils.ErrInvalidParam},
		{"system from customer", f.customer, &AppendRequest{ConversationID: conv.ID, Content: "x", Type: model.MessageSystem}, utils.ErrForbidden},
		{"not a participant", f.outsider, &AppendRequest{ConversationID: conv.ID, Content: "x"}, utils.ErrForbidden},
		{"admin outside the conversation", f.admin, &AppendRequest{ConversationID: conv.ID, Content: "x"}, utils.ErrForbidden},
		{"missing conversation", f.customer, &AppendRequest{ConversationID: 4242, Content: "x"}, utils.ErrConversationNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AppendMessage(ctx, tt.actor, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// multibyte content is measured in characters
	_, err := f.svc.AppendMessage(ctx, f.customer, &AppendRequest{ConversationID: conv.ID, Content: strings.Repeat("é", 20)})
	assert.NoError(t, err)

	msg, err := f.svc.AppendMessage(ctx, f.customer, &AppendRequest{ConversationID: conv.ID, Content: "invoice", Type: model.MessageFile, FileURL: "https://files/1.pdf"})
	require.NoError(t, err)
	require.NotNil(t, msg.FileURL)
}

func TestConcurrentAppendsKeepOrder(t *testing.T) {
	f := setup(t, defaultLimits())
	conv := f.direct(t)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		actor := f.customer
		if i%2 == 1 {
			actor = f.vendor
		}
		go func(actor model.Actor) {
			defer wg.Done()
			_, err := f.svc.AppendMessage(context.Background(), actor, &AppendRequest{ConversationID: conv.ID, Content: "m"})
			assert.NoError(t, err)
		}(actor)
	}
	wg.Wait()

	thread, err := f.svc.Thread(context.Background(), f.customer, conv.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, thread, n)
	for i, m := range thread {
		assert.Equal(t, int64(i+1), m.Seq)
	}

	onConv := f.publisher.on(events.ConversationTopic(conv.ID))
	require.Len(t, onConv, n)
	for i, e := range onConv {
		assert.Equal(t, int64(i+1), e.payload.Seq)
	}
}

func TestEditAndDelete(t *testing.T) {
	f := setup(t, defaultLimits())
	ctx := context.Background()
	conv := f.direct(t)
	msg := f.say(t, f.customer, conv.ID, "typo")

	_, err := f.svc.EditMessage(ctx, f.vendor, msg.ID, "hijack")
	assert.ErrorIs(t, err, utils.ErrForbidden)

	edited, err := f.svc.EditMessage(ctx, f.customer, msg.ID, "fixed")
	require.NoError(t, err)
	assert.Equal(t, "fixed", edited.Content)
	assert.NotNil(t, edited.EditedAt)

	err = f.svc.DeleteMessage(ctx, f.vendor, msg.ID)
	assert.ErrorIs(t, err, utils.ErrForbidden)
	require.NoError(t, f.svc.DeleteMessage(ctx, f.customer, msg.ID))

	thread, err := f.svc.Thread(ctx, f.customer, conv.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.True(t, thread[0].IsDeleted)
	assert.Empty(t, thread[0].Content)

	_, err = f.svc.EditMessage(ctx, f.customer, msg.ID, "again")
	assert.ErrorIs(t, err, utils.ErrInvalidTransition)
	assert.ErrorIs(t, f.svc.DeleteMessage(ctx, f.customer, msg.ID), utils.ErrInvalidTransition)
	assert.ErrorIs(t, f.svc.DeleteMessage(ctx, f.customer, 4242), utils.ErrNotFound)

	other := f.say(t, f.vendor, conv.ID, "rude")
	require.NoError(t, f.svc.DeleteMessage(ctx, f.admin, other.ID))

	onConv := f.publisher.on(events.ConversationTopic(conv.ID))
	types := make([]string, 0, len(onConv))
	for _, e := range onConv {
		types = append(types, e.eventType)
	}
	assert.Equal(t, []string{
		events.MessageCreated,
		events.MessageEdited,
		events.MessageDeleted,
		events.MessageCreated,
		events.MessageDeleted,
	}, types)
	assert.Empty(t, onConv[2].payload.Content)
}

func TestMarkReadAndList(t *testing.T) {
	f := setup(t, defaultLimits())
	ctx := context.Background()
	older := f.direct(t)
	newer, err := f.svc.CreateConversation(ctx, f.customer, &CreateRequest{Kind: Direct{}, ParticipantIDs: []uint64{f.admin.UserID}})
	require.NoError(t, err)

	list, total, err := f.svc.ListConversations(ctx, f.customer, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, newer.ID, list[0].ID)

	f.say(t, f.vendor, older.ID, "bump")
	list, _, err = f.svc.ListConversations(ctx, f.customer, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, older.ID, list[0].ID)

	require.NoError(t, f.svc.MarkRead(ctx, f.customer, older.ID))
	p, err := f.store.Conversations().GetParticipant(ctx, older.ID, f.customer.UserID)
	require.NoError(t, err)
	assert.NotNil(t, p.LastReadAt)

	assert.ErrorIs(t, f.svc.MarkRead(ctx, f.outsider, older.ID), utils.ErrForbidden)
	assert.ErrorIs(t, f.svc.MarkRead(ctx, f.customer, 4242), utils.ErrConversationNotFound)
}

func TestSubscribe(t *testing.T) {
	store := repotest.NewStore()
	q, err := queue.NewMemoryQueue(nil)
	require.NoError(t, err)
	defer q.Close()
	bus := events.NewBus(q)
	svc := NewMessagingService(store.Conversations(), store.Users(), store.Orders(), store.Tickets(), lock.NewMemoryLocker(), bus, bus, defaultLimits(), nil)

	a := store.AddUser(model.User{Username: "a", Email: "a@example.com", Role: model.RoleCustomer})
	b := store.AddUser(model.User{Username: "b", Email: "b@example.com", Role: model.RoleVendor})
	c := store.AddUser(model.User{Username: "c", Email: "c@example.com", Role: model.RoleCustomer})
	alice := model.Actor{UserID: a.ID, Role: model.RoleCustomer}
	bob := model.Actor{UserID: b.ID, Role: model.RoleVendor}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conv, err := svc.CreateConversation(ctx, alice, &CreateRequest{Kind: Direct{}, ParticipantIDs: []uint64{b.ID}})
	require.NoError(t, err)

	thread := make(chan events.MessagePayload, 4)
	inbox := make(chan events.MessagePayload, 4)
	collect := func(ch chan events.MessagePayload) events.Handler {
		return func(ctx context.Context, topic string, event *events.Event) error {
			var p events.MessagePayload
			if err := event.Decode(&p); err != nil {
				return err
			}
			ch <- p
			return nil
		}
	}
	require.NoError(t, svc.Subscribe(ctx, alice, conv.ID, collect(thread)))
	require.NoError(t, svc.SubscribeInbox(ctx, bob, collect(inbox)))
	assert.ErrorIs(t, svc.Subscribe(ctx, model.Actor{UserID: c.ID, Role: model.RoleCustomer}, conv.ID, collect(thread)), utils.ErrForbidden)

	for _, content := range []string{"one", "two"} {
		_, err := svc.AppendMessage(ctx, alice, &AppendRequest{ConversationID: conv.ID, Content: content})
		require.NoError(t, err)
	}

	for _, ch := range []chan events.MessagePayload{thread, inbox} {
		for want := int64(1); want <= 2; want++ {
			select {
			case p := <-ch:
				assert.Equal(t, want, p.Seq)
				assert.Equal(t, conv.ID, p.ConversationID)
			case <-time.After(2 * time.Second):
				t.Fatal("message event not delivered")
			}
		}
	}
}

package handler

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/events"
	"marketplace/internal/model"
	"marketplace/internal/repository/repotest"
	"marketplace/internal/service/messaging"
	"marketplace/pkg/lock"
	"marketplace/pkg/queue"
)

type conversationFixture struct {
	handler *ConversationHandler
	svc     messaging.MessagingService
	alice   model.Actor
	bob     model.Actor
	eve     model.Actor
}

func newConversationFixture(t *testing.T) *conversationFixture {
	t.Helper()
	store := repotest.NewStore()
	alice := store.AddUser(model.User{Username: "alice", Email: "alice@example.com", Role: model.RoleCustomer})
	bob := store.AddUser(model.User{Username: "bob", Email: "bob@example.com", Role: model.RoleVendor})
	eve := store.AddUser(model.User{Username: "eve", Email: "eve@example.com", Role: model.RoleCustomer})

	q, err := queue.NewMemoryQueue(nil)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	bus := events.NewBus(q)

	svc := messaging.NewMessagingService(
		store.Conversations(),
		store.Users(),
		store.Orders(),
		store.Tickets(),
		lock.NewMemoryLocker(),
		bus,
		bus,
		messaging.Limits{MaxContentLength: 100, MaxParticipants: 10},
		nil,
	)
	return &conversationFixture{
		handler: NewConversationHandler(svc, time.Hour),
		svc:     svc,
		alice:   model.Actor{UserID: alice.ID, Role: model.RoleCustomer},
		bob:     model.Actor{UserID: bob.ID, Role: model.RoleVendor},
		eve:     model.Actor{UserID: eve.ID, Role: model.RoleCustomer},
	}
}

func (f *conversationFixture) router(a model.Actor) *gin.Engine {
	r := as(a)
	h := f.handler
	r.POST("/conversations", h.Create)
	r.GET("/conversations", h.List)
	r.GET("/conversations/:id", h.Get)
	r.GET("/conversations/:id/messages", h.Thread)
	r.POST("/conversations/:id/messages", h.Append)
	r.POST("/conversations/:id/read", h.MarkRead)
	r.GET("/conversations/:id/stream", h.Stream)
	r.PATCH("/messages/:message_id", h.Edit)
	r.DELETE("/messages/:message_id", h.DeleteMessage)
	return r
}

func TestConversationHandler_Flow(t *testing.T) {
	f := newConversationFixture(t)
	alice, bob, eve := f.router(f.alice), f.router(f.bob), f.router(f.eve)

	w := request(alice, http.MethodPost, "/conversations", map[string]interface{}{
		"title":           "Question about my order",
		"participant_ids": []uint64{f.bob.UserID},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var conv model.Conversation
	decode(t, w, &conv)
	base := fmt.Sprintf("/conversations/%d", conv.ID)

	w = request(alice, http.MethodPost, base+"/messages", map[string]string{"content": "Hello"})
	require.Equal(t, http.StatusCreated, w.Code)
	var msg model.Message
	decode(t, w, &msg)
	assert.Equal(t, int64(1), msg.Seq)

	w = request(bob, http.MethodPost, base+"/messages", map[string]string{"content": "Hi, how can I help?"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = request(bob, http.MethodGet, base+"/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var thread []model.Message
	decode(t, w, &thread)
	require.Len(t, thread, 2)
	assert.Equal(t, "Hello", thread[0].Content)

	w = request(bob, http.MethodGet, base+"/messages?after_seq=1", nil)
	decode(t, w, &thread)
	require.Len(t, thread, 1)
	assert.Equal(t, int64(2), thread[0].Seq)

	// outsiders can neither read nor write
	assert.Equal(t, http.StatusForbidden, request(eve, http.MethodGet, base+"/messages", nil).Code)
	assert.Equal(t, http.StatusForbidden, request(eve, http.MethodPost, base+"/messages", map[string]string{"content": "hi"}).Code)

	// only the sender edits
	msgPath := fmt.Sprintf("/messages/%d", msg.ID)
	assert.Equal(t, http.StatusForbidden, request(bob, http.MethodPatch, msgPath, map[string]string{"content": "x"}).Code)
	assert.Equal(t, http.StatusOK, request(alice, http.MethodPatch, msgPath, map[string]string{"content": "Hello there"}).Code)
	assert.Equal(t, http.StatusOK, request(alice, http.MethodDelete, msgPath, nil).Code)

	w = request(bob, http.MethodGet, base+"/messages", nil)
	decode(t, w, &thread)
	assert.Empty(t, thread[0].Content)

	assert.Equal(t, http.StatusOK, request(bob, http.MethodPost, base+"/read", nil).Code)
	assert.Equal(t, http.StatusOK, request(bob, http.MethodGet, "/conversations", nil).Code)
	assert.Equal(t, http.StatusOK, request(bob, http.MethodGet, base, nil).Code)
	assert.Equal(t, http.StatusNotFound, request(bob, http.MethodGet, "/conversations/999", nil).Code)
}

func TestConversationHandler_Validation(t *testing.T) {
	f := newConversationFixture(t)
	alice := f.router(f.alice)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
	}{
		{name: "no participants", method: http.MethodPost, path: "/conversations", body: map[string]interface{}{"participant_ids": []uint64{}}},
		{name: "unknown type", method: http.MethodPost, path: "/conversations", body: map[string]interface{}{"type": "group", "participant_ids": []uint64{f.bob.UserID}}},
		{name: "order thread without order", method: http.MethodPost, path: "/conversations", body: map[string]interface{}{"type": "order", "participant_ids": []uint64{f.bob.UserID}}},
		{name: "negative cursor", method: http.MethodGet, path: "/conversations/1/messages?after_seq=-1"},
		{name: "limit too large", method: http.MethodGet, path: "/conversations/1/messages?limit=500"},
		{name: "bad file url", method: http.MethodPost, path: "/conversations/1/messages", body: map[string]string{"type": "file", "file_url": "not a url"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, request(alice, tt.method, tt.path, tt.body).Code)
		})
	}
}

func TestConversationHandler_Stream(t *testing.T) {
	f := newConversationFixture(t)
	conv, err := f.svc.CreateConversation(context.Background(), f.alice, &messaging.CreateRequest{
		Kind:           messaging.Direct{},
		ParticipantIDs: []uint64{f.bob.UserID},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(f.router(f.bob))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/conversations/%d/stream", srv.URL, conv.ID), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// headers are flushed after the subscription is in place
	_, err = f.svc.AppendMessage(context.Background(), f.alice, &messaging.AppendRequest{
		ConversationID: conv.ID,
		Content:        "ping",
	})
	require.NoError(t, err)

	scanner := bufio.NewScanner(resp.Body)
	var eventLine, dataLine string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") {
			eventLine = line
		}
		if strings.HasPrefix(line, "data:") {
			dataLine = line
			break
		}
	}
	assert.Equal(t, "event:"+events.MessageCreated, eventLine)
	assert.Contains(t, dataLine, `"content":"ping"`)
}

func TestConversationHandler_StreamForbidden(t *testing.T) {
	f := newConversationFixture(t)
	conv, err := f.svc.CreateConversation(context.Background(), f.alice, &messaging.CreateRequest{
		Kind:           messaging.Direct{},
		ParticipantIDs: []uint64{f.bob.UserID},
	})
	require.NoError(t, err)

	w := request(f.router(f.eve), http.MethodGet, fmt.Sprintf("/conversations/%d/stream", conv.ID), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

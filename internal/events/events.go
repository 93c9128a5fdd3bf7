package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"marketplace/pkg/queue"
)

// Topics
const (
	TopicOrders  = "orders"
	TopicTickets = "tickets"
	TopicVendors = "vendors"
)

// Event types
const (
	OrderPlaced        = "order.placed"
	OrderTransitioned  = "order.transitioned"
	VendorApproved     = "vendor.approved"
	VendorRejected     = "vendor.rejected"
	VendorPlanChanged  = "vendor.plan_changed"
	BadgeAwarded       = "badge.awarded"
	MessageCreated     = "message.created"
	MessageEdited      = "message.edited"
	MessageDeleted     = "message.deleted"
	TicketCreated      = "ticket.created"
	TicketStatusChange = "ticket.status_changed"
)

// ConversationTopic carries every message event of one conversation
func ConversationTopic(conversationID uint64) string {
	return "conversation:" + strconv.FormatUint(conversationID, 10)
}

// UserTopic carries message events addressed to one participant
func UserTopic(userID uint64) string {
	return "user:" + strconv.FormatUint(userID, 10)
}

// Event is the envelope put on the bus
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// Publisher is what the services emit events through
type Publisher interface {
	Publish(ctx context.Context, topic, eventType string, payload interface{}) error
}

// Handler consumes one event
type Handler func(ctx context.Context, topic string, event *Event) error

// Subscriber registers handlers for a topic. Delivery is at least once and
// only ordered within one topic.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler Handler) error
}

// Bus wraps a queue with the event envelope
type Bus struct {
	queue queue.Queue
	now   func() time.Time
}

// NewBus creates an event bus over q
func NewBus(q queue.Queue) *Bus {
	return &Bus{queue: q, now: time.Now}
}

// Publish wraps payload in an envelope and publishes it on topic
func (b *Bus) Publish(ctx context.Context, topic, eventType string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	data, err := json.Marshal(Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: b.now().UTC(),
		Payload:    raw,
	})
	if err != nil {
		return err
	}
	return b.queue.Publish(ctx, topic, data)
}

// Subscribe delivers decoded envelopes of topic to handler
func (b *Bus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return b.queue.Subscribe(ctx, topic, func(ctx context.Context, topic string, message []byte) error {
		var event Event
		if err := json.Unmarshal(message, &event); err != nil {
			return fmt.Errorf("decode event on %s: %w", topic, err)
		}
		return handler(ctx, topic, &event)
	})
}

package consumer

import (
	"context"
	"fmt"

	"marketplace/internal/events"
	"marketplace/internal/model"
	"marketplace/internal/repository"
	"marketplace/pkg/log"
)

// Notifier is the delivery side of the consumer
type Notifier interface {
	Notify(ctx context.Context, userID uint64, kind string, payload interface{}) error
}

// AdminLister lists the admins ticket notifications go to
type AdminLister interface {
	AdminIDs(ctx context.Context) ([]uint64, error)
}

// NotificationConsumer turns domain events into user notifications. A failed
// delivery is logged and dropped; it never reaches the producer of the event.
type NotificationConsumer struct {
	subscriber events.Subscriber
	notifier   Notifier
	vendorRepo repository.VendorRepository
	admins     AdminLister
}

// NewNotificationConsumer creates a notification consumer
func NewNotificationConsumer(
	subscriber events.Subscriber,
	notifier Notifier,
	vendorRepo repository.VendorRepository,
	admins AdminLister,
) *NotificationConsumer {
	return &NotificationConsumer{
		subscriber: subscriber,
		notifier:   notifier,
		vendorRepo: vendorRepo,
		admins:     admins,
	}
}

// Start subscribes to the order, ticket and vendor topics. Subscriptions end with ctx.
func (c *NotificationConsumer) Start(ctx context.Context) error {
	log.Info("Starting notification consumer")

	topics := map[string]events.Handler{
		events.TopicOrders:  c.handleOrder,
		events.TopicTickets: c.handleTicket,
		events.TopicVendors: c.handleVendor,
	}
	for topic, handler := range topics {
		if err := c.subscriber.Subscribe(ctx, topic, handler); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}

func (c *NotificationConsumer) handleOrder(ctx context.Context, topic string, event *events.Event) error {
	switch event.Type {
	case events.OrderPlaced:
		var p events.OrderPlacedPayload
		if err := event.Decode(&p); err != nil {
			return err
		}
		c.notifyUsers(ctx, event.Type, c.vendorUsers(ctx, p.VendorIDs), p)

	case events.OrderTransitioned:
		var p events.OrderTransitionedPayload
		if err := event.Decode(&p); err != nil {
			return err
		}
		recipients := append([]uint64{p.UserID}, c.vendorUsers(ctx, p.VendorIDs)...)
		c.notifyUsers(ctx, event.Type, excluding(recipients, p.ActorID), p)
	}
	return nil
}

func (c *NotificationConsumer) handleTicket(ctx context.Context, topic string, event *events.Event) error {
	var p events.TicketPayload
	if err := event.Decode(&p); err != nil {
		return err
	}

	switch event.Type {
	case events.TicketCreated:
		// message tickets reach admins through their conversation
		if p.Channel != string(model.ChannelEmail) {
			return nil
		}
		admins, err := c.admins.AdminIDs(ctx)
		if err != nil {
			log.WithFields(map[string]interface{}{
				"ticket_id": p.TicketID,
				"error":     err.Error(),
			}).Warn("Admin lookup failed, ticket notification dropped")
			return nil
		}
		c.notifyUsers(ctx, event.Type, admins, p)

	case events.TicketStatusChange:
		c.notifyUsers(ctx, event.Type, []uint64{p.CreatedBy}, p)
	}
	return nil
}

func (c *NotificationConsumer) handleVendor(ctx context.Context, topic string, event *events.Event) error {
	var p events.VendorPayload
	if err := event.Decode(&p); err != nil {
		return err
	}
	if p.UserID != 0 {
		c.notifyUsers(ctx, event.Type, []uint64{p.UserID}, p)
	}
	return nil
}

// vendorUsers maps vendor ids onto their owning users
func (c *NotificationConsumer) vendorUsers(ctx context.Context, vendorIDs []uint64) []uint64 {
	if len(vendorIDs) == 0 {
		return nil
	}
	vendors, err := c.vendorRepo.GetByIDs(ctx, vendorIDs)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"vendor_ids": vendorIDs,
			"error":      err.Error(),
		}).Warn("Vendor lookup failed, vendor notifications dropped")
		return nil
	}
	users := make([]uint64, 0, len(vendors))
	for _, v := range vendors {
		users = append(users, v.UserID)
	}
	return users
}

func (c *NotificationConsumer) notifyUsers(ctx context.Context, kind string, userIDs []uint64, payload interface{}) {
	seen := make(map[uint64]bool, len(userIDs))
	for _, id := range userIDs {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		if err := c.notifier.Notify(ctx, id, kind, payload); err != nil {
			log.WithFields(map[string]interface{}{
				"user_id": id,
				"kind":    kind,
				"error":   err.Error(),
			}).Warn("Failed to deliver notification")
		}
	}
}

func excluding(ids []uint64, exclude uint64) []uint64 {
	out := ids[:0]
	for _, id := range ids {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}

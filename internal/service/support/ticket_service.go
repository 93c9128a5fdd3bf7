package support

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"marketplace/internal/events"
	"marketplace/internal/model"
	"marketplace/internal/monitor"
	"marketplace/internal/repository"
	"marketplace/internal/service/messaging"
	"marketplace/pkg/log"
	"marketplace/pkg/utils"
)

const maxSubjectLength = 200

// Conversations is the part of the messaging service the router needs
type Conversations interface {
	CreateConversation(ctx context.Context, actor model.Actor, req *messaging.CreateRequest) (*model.Conversation, error)
	AppendMessage(ctx context.Context, actor model.Actor, req *messaging.AppendRequest) (*model.Message, error)
	DeleteConversation(ctx context.Context, conversationID uint64) error
}

// Admins lists the users a support thread is routed to
type Admins interface {
	AdminIDs(ctx context.Context) ([]uint64, error)
}

// CreateTicketRequest opens a ticket
type CreateTicketRequest struct {
	Subject     string
	Description string
	Priority    model.TicketPriority
	Channel     model.TicketChannel
}

// Ticket routing outcomes
const (
	outcomeLinked   = "linked"
	outcomeUnlinked = "unlinked"
	outcomeEmail    = "email"
)

// TicketService support ticket router interface
type TicketService interface {
	// CreateTicket persists a ticket and routes it by channel
	CreateTicket(ctx context.Context, actor model.Actor, req *CreateTicketRequest) (*model.SupportTicket, error)

	// UpdateStatus sets a ticket's status (admin)
	UpdateStatus(ctx context.Context, actor model.Actor, ticketID uint64, status model.TicketStatus) (*model.SupportTicket, error)

	// GetTicket gets a ticket visible to the actor
	GetTicket(ctx context.Context, actor model.Actor, ticketID uint64) (*model.SupportTicket, error)

	// ListTickets lists tickets; vendors only see their own
	ListTickets(ctx context.Context, actor model.Actor, filter repository.TicketFilter, page, pageSize int) ([]*model.SupportTicket, int64, error)
}

// ticketService ticket service implementation
type ticketService struct {
	ticketRepo    repository.TicketRepository
	conversations Conversations
	admins        Admins
	publisher     events.Publisher
	metrics       *monitor.Metrics
	now           func() time.Time
}

// NewTicketService creates a ticket service. metrics may be nil.
func NewTicketService(
	ticketRepo repository.TicketRepository,
	conversations Conversations,
	admins Admins,
	publisher events.Publisher,
	metrics *monitor.Metrics,
) TicketService {
	return &ticketService{
		ticketRepo:    ticketRepo,
		conversations: conversations,
		admins:        admins,
		publisher:     publisher,
		metrics:       metrics,
		now:           time.Now,
	}
}

func validPriority(p model.TicketPriority) bool {
	switch p {
	case model.PriorityLow, model.PriorityMedium, model.PriorityHigh, model.PriorityUrgent:
		return true
	}
	return false
}

// CreateTicket always persists the ticket. Routing a message-channel ticket
// into a conversation is best effort: without admins, or when any step of
// it fails, the ticket stays unlinked.
func (s *ticketService) CreateTicket(ctx context.Context, actor model.Actor, req *CreateTicketRequest) (*model.SupportTicket, error) {
	if actor.VendorID == 0 {
		return nil, utils.ErrForbidden
	}
	if req == nil {
		return nil, utils.ErrInvalidParam
	}
	subject := strings.TrimSpace(req.Subject)
	description := strings.TrimSpace(req.Description)
	if subject == "" || utf8.RuneCountInString(subject) > maxSubjectLength {
		return nil, utils.Errorf(utils.CodeInvalidParam, "subject must be 1 to %d characters", maxSubjectLength)
	}
	if description == "" {
		return nil, utils.Errorf(utils.CodeInvalidParam, "description is required")
	}
	priority := req.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}
	if !validPriority(priority) {
		return nil, utils.Errorf(utils.CodeInvalidParam, "unknown priority %q", priority)
	}
	if req.Channel != model.ChannelEmail && req.Channel != model.ChannelMessage {
		return nil, utils.Errorf(utils.CodeInvalidParam, "channel must be email or message")
	}

	ticket := &model.SupportTicket{
		VendorID:    actor.VendorID,
		CreatedBy:   actor.UserID,
		Subject:     subject,
		Description: description,
		Priority:    priority,
		Status:      model.TicketOpen,
		Channel:     req.Channel,
		CreatedAt:   s.now(),
	}
	if err := s.ticketRepo.Create(ctx, ticket); err != nil {
		return nil, utils.Unavailable(err, "failed to create ticket")
	}

	outcome := outcomeEmail
	if ticket.Channel == model.ChannelMessage {
		outcome = outcomeUnlinked
		if s.routeToConversation(ctx, actor, ticket) {
			outcome = outcomeLinked
		}
	}
	s.metrics.RecordTicket(string(ticket.Channel), outcome)

	log.WithFields(map[string]interface{}{
		"ticket_id": ticket.ID,
		"vendor_id": ticket.VendorID,
		"channel":   ticket.Channel,
		"priority":  ticket.Priority,
		"outcome":   outcome,
	}).Info("Support ticket created")

	s.publish(ctx, events.TicketCreated, ticket)
	return ticket, nil
}

// routeToConversation opens a support thread with every admin, links it and
// posts the description as its first message. A conversation that cannot be
// linked is deleted again.
func (s *ticketService) routeToConversation(ctx context.Context, actor model.Actor, ticket *model.SupportTicket) bool {
	logger := log.WithContext(ctx).WithField("ticket_id", ticket.ID)

	adminIDs, err := s.admins.AdminIDs(ctx)
	if err != nil {
		logger.WithError(err).Warn("Admin lookup failed, ticket left unlinked")
		return false
	}
	if len(adminIDs) == 0 {
		logger.Warn("No admins available, ticket left unlinked")
		return false
	}

	conv, err := s.conversations.CreateConversation(ctx, actor, &messaging.CreateRequest{
		Kind:           messaging.SupportThread{TicketID: ticket.ID},
		Title:          ticket.Subject,
		ParticipantIDs: adminIDs,
	})
	if err != nil {
		logger.WithError(err).Warn("Failed to open support conversation")
		return false
	}

	if err := s.ticketRepo.LinkConversation(ctx, ticket.ID, conv.ID); err != nil {
		logger.WithError(err).WithField("conversation_id", conv.ID).Warn("Failed to link conversation, removing it")
		if err := s.conversations.DeleteConversation(ctx, conv.ID); err != nil {
			logger.WithError(err).WithField("conversation_id", conv.ID).Error("Failed to remove unlinked conversation")
		}
		return false
	}
	ticket.ConversationID = &conv.ID

	if _, err := s.conversations.AppendMessage(ctx, actor, &messaging.AppendRequest{
		ConversationID: conv.ID,
		Content:        ticket.Description,
	}); err != nil {
		logger.WithError(err).WithField("conversation_id", conv.ID).Warn("Failed to post ticket description")
	}
	return true
}

// UpdateStatus sets a ticket's status. Any order is allowed; the first
// resolving status stamps resolved_at.
func (s *ticketService) UpdateStatus(ctx context.Context, actor model.Actor, ticketID uint64, status model.TicketStatus) (*model.SupportTicket, error) {
	if !actor.IsAdmin() {
		return nil, utils.ErrForbidden
	}
	if !status.Valid() {
		return nil, utils.Errorf(utils.CodeInvalidParam, "unknown ticket status %q", status)
	}
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := s.ticketRepo.UpdateStatus(ctx, ticketID, status, s.now()); err != nil {
		return nil, utils.Unavailable(err, "failed to update ticket")
	}
	ticket, err = s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	log.WithFields(map[string]interface{}{
		"ticket_id": ticket.ID,
		"status":    ticket.Status,
		"admin_id":  actor.UserID,
	}).Info("Ticket status updated")

	s.publish(ctx, events.TicketStatusChange, ticket)
	return ticket, nil
}

func (s *ticketService) loadTicket(ctx context.Context, id uint64) (*model.SupportTicket, error) {
	ticket, err := s.ticketRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, utils.ErrTicketNotFound
	}
	if err != nil {
		return nil, utils.Unavailable(err, "failed to load ticket")
	}
	return ticket, nil
}

// GetTicket gets a ticket
func (s *ticketService) GetTicket(ctx context.Context, actor model.Actor, ticketID uint64) (*model.SupportTicket, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !actor.ActsFor(ticket.VendorID) {
		return nil, utils.ErrForbidden
	}
	return ticket, nil
}

// ListTickets lists tickets
func (s *ticketService) ListTickets(ctx context.Context, actor model.Actor, filter repository.TicketFilter, page, pageSize int) ([]*model.SupportTicket, int64, error) {
	if !actor.IsAdmin() {
		if actor.VendorID == 0 {
			return nil, 0, utils.ErrForbidden
		}
		filter.VendorID = actor.VendorID
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, utils.Errorf(utils.CodeInvalidParam, "unknown ticket status %q", filter.Status)
	}
	tickets, total, err := s.ticketRepo.List(ctx, filter, page, pageSize)
	if err != nil {
		return nil, 0, utils.Unavailable(err, "failed to list tickets")
	}
	return tickets, total, nil
}

func (s *ticketService) publish(ctx context.Context, eventType string, ticket *model.SupportTicket) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, events.TopicTickets, eventType, events.TicketPayload{
		TicketID:  ticket.ID,
		VendorID:  ticket.VendorID,
		CreatedBy: ticket.CreatedBy,
		Subject:   ticket.Subject,
		Priority:  string(ticket.Priority),
		Channel:   string(ticket.Channel),
		Status:    string(ticket.Status),
	})
	if err != nil {
		log.WithContext(ctx).WithFields(map[string]interface{}{
			"event":     eventType,
			"ticket_id": ticket.ID,
			"error":     err.Error(),
		}).Error("Failed to publish ticket event")
	}
}

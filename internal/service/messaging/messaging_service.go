package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"marketplace/internal/events"
	"marketplace/internal/model"
	"marketplace/internal/monitor"
	"marketplace/internal/repository"
	"marketplace/pkg/lock"
	"marketplace/pkg/log"
	"marketplace/pkg/utils"
)

// Limits bound conversation size and message length
type Limits struct {
	MaxContentLength int
	MaxParticipants  int
}

// CreateRequest opens a conversation
type CreateRequest struct {
	Kind           Kind
	Title          string
	ParticipantIDs []uint64
}

// AppendRequest posts a message
type AppendRequest struct {
	ConversationID uint64
	Content        string
	Type           model.MessageType
	FileURL        string
}

// MessagingService conversation and message service interface
type MessagingService interface {
	// CreateConversation opens a conversation between the actor and participants
	CreateConversation(ctx context.Context, actor model.Actor, req *CreateRequest) (*model.Conversation, error)

	// GetConversation gets a conversation the actor takes part in
	GetConversation(ctx context.Context, actor model.Actor, conversationID uint64) (*model.Conversation, error)

	// ListConversations lists the actor's conversations by recent activity
	ListConversations(ctx context.Context, actor model.Actor, page, pageSize int) ([]*model.Conversation, int64, error)

	// DeleteConversation removes a conversation with everything in it
	DeleteConversation(ctx context.Context, conversationID uint64) error

	// AppendMessage appends a message to a conversation
	AppendMessage(ctx context.Context, actor model.Actor, req *AppendRequest) (*model.Message, error)

	// Thread returns messages after afterSeq in sequence order, all when limit <= 0
	Thread(ctx context.Context, actor model.Actor, conversationID uint64, afterSeq int64, limit int) ([]*model.Message, error)

	// EditMessage replaces the content of the actor's own message
	EditMessage(ctx context.Context, actor model.Actor, messageID uint64, content string) (*model.Message, error)

	// DeleteMessage soft-deletes a message
	DeleteMessage(ctx context.Context, actor model.Actor, messageID uint64) error

	// MarkRead stamps the actor's read position
	MarkRead(ctx context.Context, actor model.Actor, conversationID uint64) error

	// Subscribe delivers message events of one conversation
	Subscribe(ctx context.Context, actor model.Actor, conversationID uint64, handler events.Handler) error

	// SubscribeInbox delivers message events addressed to the actor
	SubscribeInbox(ctx context.Context, actor model.Actor, handler events.Handler) error
}

// messagingService messaging service implementation
type messagingService struct {
	convRepo   repository.ConversationRepository
	userRepo   repository.UserRepository
	orderRepo  repository.OrderRepository
	ticketRepo repository.TicketRepository
	locker     lock.Locker
	publisher  events.Publisher
	subscriber events.Subscriber
	limits     Limits
	metrics    *monitor.Metrics
	now        func() time.Time
}

// NewMessagingService creates a messaging service. subscriber and metrics may be nil.
func NewMessagingService(
	convRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	orderRepo repository.OrderRepository,
	ticketRepo repository.TicketRepository,
	locker lock.Locker,
	publisher events.Publisher,
	subscriber events.Subscriber,
	limits Limits,
	metrics *monitor.Metrics,
) MessagingService {
	return &messagingService{
		convRepo:   convRepo,
		userRepo:   userRepo,
		orderRepo:  orderRepo,
		ticketRepo: ticketRepo,
		locker:     locker,
		publisher:  publisher,
		subscriber: subscriber,
		limits:     limits,
		metrics:    metrics,
		now:        time.Now,
	}
}

// CreateConversation creates the conversation and its participants in one
// store call, so no conversation is ever observable without participants.
func (s *messagingService) CreateConversation(ctx context.Context, actor model.Actor, req *CreateRequest) (conv *model.Conversation, err error) {
	defer func() { s.metrics.RecordMessage("create_conversation", err) }()

	if actor.UserID == 0 {
		return nil, utils.ErrUnauthorized
	}
	if req == nil || req.Kind == nil {
		return nil, utils.Errorf(utils.CodeInvalidParam, "conversation kind is required")
	}

	others := dedupe(req.ParticipantIDs, actor.UserID)
	if len(others) == 0 {
		return nil, utils.Errorf(utils.CodeInvalidParam, "at least one participant besides the creator is required")
	}
	if s.limits.MaxParticipants > 0 && len(others)+1 > s.limits.MaxParticipants {
		return nil, utils.Errorf(utils.CodeInvalidParam, "a conversation holds at most %d participants", s.limits.MaxParticipants)
	}

	conv = &model.Conversation{CreatedBy: actor.UserID}
	if err := req.Kind.anchor(conv); err != nil {
		return nil, err
	}
	if title := strings.TrimSpace(req.Title); title != "" {
		conv.Title = &title
	}
	switch kind := req.Kind.(type) {
	case OrderThread:
		if err := s.checkOrderAccess(ctx, actor, kind.OrderID); err != nil {
			return nil, err
		}
	case SupportThread:
		if kind.TicketID != 0 {
			if err := s.checkTicketAccess(ctx, actor, kind.TicketID); err != nil {
				return nil, err
			}
		}
	}

	ids := append([]uint64{actor.UserID}, others...)
	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, utils.Unavailable(err, "failed to load participants")
	}
	byID := make(map[uint64]*model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	now := s.now()
	for i, id := range ids {
		user, ok := byID[id]
		if !ok || !user.IsActive() {
			return nil, utils.Errorf(utils.CodeInvalidParam, "user %d cannot join conversations", id)
		}
		conv.Participants = append(conv.Participants, model.ConversationParticipant{
			UserID:   id,
			Role:     participantRole(req.Kind, user, i == 0),
			JoinedAt: now,
		})
	}
	conv.CreatedAt = now
	conv.LastActivityAt = now

	if err := s.convRepo.Create(ctx, conv); err != nil {
		return nil, utils.Unavailable(err, "failed to create conversation")
	}

	log.WithFields(map[string]interface{}{
		"conversation_id": conv.ID,
		"type":            conv.Type,
		"created_by":      actor.UserID,
		"participants":    len(conv.Participants),
	}).Info("Conversation created")
	return conv, nil
}

// checkOrderAccess allows the purchaser, a vendor on the order and admins
func (s *messagingService) checkOrderAccess(ctx context.Context, actor model.Actor, orderID uint64) error {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return utils.ErrOrderNotFound
	}
	if err != nil {
		return utils.Unavailable(err, "failed to load order")
	}
	if actor.IsAdmin() || order.UserID == actor.UserID {
		return nil
	}
	if actor.VendorID != 0 && order.FulfillmentFor(actor.VendorID) != nil {
		return nil
	}
	return utils.ErrForbidden
}

// checkTicketAccess allows the ticket's vendor and admins
func (s *messagingService) checkTicketAccess(ctx context.Context, actor model.Actor, ticketID uint64) error {
	ticket, err := s.ticketRepo.GetByID(ctx, ticketID)
	if errors.Is(err, repository.ErrNotFound) {
		return utils.ErrTicketNotFound
	}
	if err != nil {
		return utils.Unavailable(err, "failed to load ticket")
	}
	if actor.IsAdmin() || actor.ActsFor(ticket.VendorID) {
		return nil
	}
	return utils.ErrForbidden
}

func dedupe(ids []uint64, exclude uint64) []uint64 {
	seen := make(map[uint64]bool, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 || id == exclude || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// loadConversation loads a conversation the actor may read
func (s *messagingService) loadConversation(ctx context.Context, actor model.Actor, id uint64) (*model.Conversation, error) {
	conv, err := s.convRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, utils.ErrConversationNotFound
	}
	if err != nil {
		return nil, utils.Unavailable(err, "failed to load conversation")
	}
	if conv.Participant(actor.UserID) == nil && !actor.IsAdmin() {
		return nil, utils.ErrForbidden
	}
	return conv, nil
}

// GetConversation gets a conversation
func (s *messagingService) GetConversation(ctx context.Context, actor model.Actor, conversationID uint64) (*model.Conversation, error) {
	return s.loadConversation(ctx, actor, conversationID)
}

// ListConversations lists conversations
func (s *messagingService) ListConversations(ctx context.Context, actor model.Actor, page, pageSize int) ([]*model.Conversation, int64, error) {
	if actor.UserID == 0 {
		return nil, 0, utils.ErrUnauthorized
	}
	convs, total, err := s.convRepo.ListByUser(ctx, actor.UserID, page, pageSize)
	if err != nil {
		return nil, 0, utils.Unavailable(err, "failed to list conversations")
	}
	return convs, total, nil
}

// DeleteConversation is the compensation step of callers that could not
// finish wiring a fresh conversation.
func (s *messagingService) DeleteConversation(ctx context.Context, conversationID uint64) error {
	if err := s.convRepo.Delete(ctx, conversationID); err != nil {
		return utils.Unavailable(err, "failed to delete conversation")
	}
	return nil
}

func (s *messagingService) validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", utils.Errorf(utils.CodeInvalidParam, "message content is required")
	}
	if s.limits.MaxContentLength > 0 && utf8.RuneCountInString(content) > s.limits.MaxContentLength {
		return "", utils.Errorf(utils.CodeInvalidParam, "message exceeds %d characters", s.limits.MaxContentLength)
	}
	return content, nil
}

// AppendMessage stores the message, then publishes it. Appends to one
// conversation are serialized so events leave in sequence order.
func (s *messagingService) AppendMessage(ctx context.Context, actor model.Actor, req *AppendRequest) (msg *model.Message, err error) {
	if req == nil {
		return nil, utils.ErrInvalidParam
	}
	ctx, span := monitor.StartSpan(ctx, "messaging.AppendMessage", attribute.Int64("conversation.id", int64(req.ConversationID)))
	defer func() {
		monitor.EndSpan(span, err)
		s.metrics.RecordMessage("append", err)
	}()

	content, err := s.validateContent(req.Content)
	if err != nil {
		return nil, err
	}
	msgType := req.Type
	if msgType == "" {
		msgType = model.MessageText
	}
	switch msgType {
	case model.MessageText:
	case model.MessageFile:
		if strings.TrimSpace(req.FileURL) == "" {
			return nil, utils.Errorf(utils.CodeInvalidParam, "file messages require a file url")
		}
	case model.MessageSystem:
		if !actor.IsAdmin() {
			return nil, utils.ErrForbidden
		}
	default:
		return nil, utils.Errorf(utils.CodeInvalidParam, "unknown message type %q", msgType)
	}

	conv, err := s.convRepo.GetByID(ctx, req.ConversationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, utils.ErrConversationNotFound
	}
	if err != nil {
		return nil, utils.Unavailable(err, "failed to load conversation")
	}
	if conv.Participant(actor.UserID) == nil {
		return nil, utils.ErrForbidden
	}

	msg = &model.Message{
		ConversationID: conv.ID,
		SenderID:       actor.UserID,
		Content:        content,
		Type:           msgType,
	}
	if url := strings.TrimSpace(req.FileURL); url != "" {
		msg.FileURL = &url
	}

	key := fmt.Sprintf("conversation:%d:append", conv.ID)
	err = s.locker.WithLock(ctx, key, func(ctx context.Context) error {
		msg.CreatedAt = s.now()
		err := s.convRepo.AppendMessage(ctx, msg)
		if errors.Is(err, repository.ErrNotFound) {
			return utils.ErrConversationNotFound
		}
		if err != nil {
			return utils.Unavailable(err, "failed to append message")
		}
		s.publishMessage(ctx, conv, events.MessageCreated, msg)
		return nil
	})
	if err != nil {
		if _, ok := utils.IsAppError(err); !ok {
			err = utils.Unavailable(err, "failed to serialize append")
		}
		return nil, err
	}
	return msg, nil
}

// publishMessage fans an event out to the conversation and to every other participant
func (s *messagingService) publishMessage(ctx context.Context, conv *model.Conversation, eventType string, msg *model.Message) {
	if s.publisher == nil {
		return
	}
	payload := events.MessagePayload{
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		Seq:            msg.Seq,
		SenderID:       msg.SenderID,
		Type:           string(msg.Type),
	}
	if !msg.IsDeleted {
		payload.Content = msg.Content
	}

	topics := []string{events.ConversationTopic(conv.ID)}
	for _, p := range conv.Participants {
		if p.UserID != msg.SenderID {
			topics = append(topics, events.UserTopic(p.UserID))
		}
	}
	for _, topic := range topics {
		if err := s.publisher.Publish(ctx, topic, eventType, payload); err != nil {
			log.WithContext(ctx).WithFields(map[string]interface{}{
				"topic":      topic,
				"event":      eventType,
				"message_id": msg.ID,
				"error":      err.Error(),
			}).Warn("Failed to publish message event")
		}
	}
}

// Thread returns the thread. Deleted messages keep their place with content removed.
func (s *messagingService) Thread(ctx context.Context, actor model.Actor, conversationID uint64, afterSeq int64, limit int) ([]*model.Message, error) {
	if _, err := s.loadConversation(ctx, actor, conversationID); err != nil {
		return nil, err
	}
	messages, err := s.convRepo.ListMessages(ctx, conversationID, afterSeq, limit)
	if err != nil {
		return nil, utils.Unavailable(err, "failed to list messages")
	}
	for _, m := range messages {
		redact(m)
	}
	return messages, nil
}

// redact strips a message to what any participant may see
func redact(m *model.Message) {
	if m.IsDeleted {
		m.Content = ""
		m.FileURL = nil
	}
	if m.Sender != nil {
		m.Sender = &model.User{
			ID:       m.Sender.ID,
			Username: m.Sender.Username,
			FullName: m.Sender.DisplayName(),
			Role:     m.Sender.Role,
		}
	}
}

func (s *messagingService) loadMessage(ctx context.Context, id uint64) (*model.Message, error) {
	msg, err := s.convRepo.GetMessage(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, utils.Errorf(utils.CodeNotFound, "message not found")
	}
	if err != nil {
		return nil, utils.Unavailable(err, "failed to load message")
	}
	return msg, nil
}

// EditMessage edits a live message of the sender
func (s *messagingService) EditMessage(ctx context.Context, actor model.Actor, messageID uint64, content string) (msg *model.Message, err error) {
	defer func() { s.metrics.RecordMessage("edit", err) }()

	content, err = s.validateContent(content)
	if err != nil {
		return nil, err
	}
	msg, err = s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != actor.UserID {
		return nil, utils.ErrForbidden
	}
	if msg.IsDeleted {
		return nil, utils.Errorf(utils.CodeInvalidTransition, "deleted messages cannot be edited")
	}

	now := s.now()
	err = s.convRepo.EditMessage(ctx, msg.ID, content, now)
	if errors.Is(err, repository.ErrPredicateFailed) {
		return nil, utils.Errorf(utils.CodeInvalidTransition, "deleted messages cannot be edited")
	}
	if err != nil {
		return nil, utils.Unavailable(err, "failed to edit message")
	}
	msg.Content = content
	msg.EditedAt = &now

	if conv, err := s.convRepo.GetByID(ctx, msg.ConversationID); err == nil {
		s.publishMessage(ctx, conv, events.MessageEdited, msg)
	}
	return msg, nil
}

// DeleteMessage soft-deletes a message of the sender; admins may delete any
func (s *messagingService) DeleteMessage(ctx context.Context, actor model.Actor, messageID uint64) (err error) {
	defer func() { s.metrics.RecordMessage("delete", err) }()

	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != actor.UserID && !actor.IsAdmin() {
		return utils.ErrForbidden
	}
	if msg.IsDeleted {
		return utils.Errorf(utils.CodeInvalidTransition, "message already deleted")
	}

	now := s.now()
	err = s.convRepo.SoftDeleteMessage(ctx, msg.ID, now)
	if errors.Is(err, repository.ErrPredicateFailed) {
		return utils.Errorf(utils.CodeInvalidTransition, "message already deleted")
	}
	if err != nil {
		return utils.Unavailable(err, "failed to delete message")
	}
	msg.IsDeleted = true
	msg.RemovedAt = &now

	log.WithFields(map[string]interface{}{
		"message_id":      msg.ID,
		"conversation_id": msg.ConversationID,
		"deleted_by":      actor.UserID,
	}).Info("Message deleted")

	if conv, err := s.convRepo.GetByID(ctx, msg.ConversationID); err == nil {
		s.publishMessage(ctx, conv, events.MessageDeleted, msg)
	}
	return nil
}

// MarkRead marks the conversation read up to now
func (s *messagingService) MarkRead(ctx context.Context, actor model.Actor, conversationID uint64) error {
	_, err := s.convRepo.GetParticipant(ctx, conversationID, actor.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		if _, err := s.loadConversation(ctx, actor, conversationID); err != nil {
			return err
		}
		return utils.ErrForbidden
	}
	if err != nil {
		return utils.Unavailable(err, "failed to load participant")
	}
	if err := s.convRepo.MarkRead(ctx, conversationID, actor.UserID, s.now()); err != nil {
		return utils.Unavailable(err, "failed to mark read")
	}
	return nil
}

// Subscribe subscribes a participant to a conversation's events
func (s *messagingService) Subscribe(ctx context.Context, actor model.Actor, conversationID uint64, handler events.Handler) error {
	if s.subscriber == nil {
		return utils.Errorf(utils.CodeDependencyUnavailable, "live updates are disabled")
	}
	if _, err := s.loadConversation(ctx, actor, conversationID); err != nil {
		return err
	}
	if err := s.subscriber.Subscribe(ctx, events.ConversationTopic(conversationID), handler); err != nil {
		return utils.Unavailable(err, "failed to subscribe")
	}
	return nil
}

// SubscribeInbox subscribes the actor to events of every conversation it takes part in
func (s *messagingService) SubscribeInbox(ctx context.Context, actor model.Actor, handler events.Handler) error {
	if s.subscriber == nil {
		return utils.Errorf(utils.CodeDependencyUnavailable, "live updates are disabled")
	}
	if actor.UserID == 0 {
		return utils.ErrUnauthorized
	}
	if err := s.subscriber.Subscribe(ctx, events.UserTopic(actor.UserID), handler); err != nil {
		return utils.Unavailable(err, "failed to subscribe")
	}
	return nil
}

package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"marketplace/internal/events"
	"marketplace/internal/model"
	"marketplace/internal/service/messaging"
	"marketplace/pkg/utils"
)

const streamBuffer = 64

// ConversationHandler conversation and message handler
type ConversationHandler struct {
	messaging messaging.MessagingService
	heartbeat time.Duration
}

// NewConversationHandler creates a conversation handler. Live streams send
// a comment line every heartbeat to keep proxies from closing them.
func NewConversationHandler(messagingService messaging.MessagingService, heartbeat time.Duration) *ConversationHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &ConversationHandler{
		messaging: messagingService,
		heartbeat: heartbeat,
	}
}

// CreateConversationRequest create conversation request
type CreateConversationRequest struct {
	Type           model.ConversationType `json:"type" binding:"omitempty,oneof=direct order support"`
	OrderID        uint64                 `json:"order_id"`
	TicketID       uint64                 `json:"ticket_id"`
	Title          string                 `json:"title" binding:"max=200"`
	ParticipantIDs []uint64               `json:"participant_ids" binding:"required,min=1"`
}

// AppendMessageRequest post message request
type AppendMessageRequest struct {
	Content string            `json:"content"`
	Type    model.MessageType `json:"type" binding:"omitempty,oneof=text file system"`
	FileURL string            `json:"file_url" binding:"omitempty,url,max=500"`
}

// EditMessageRequest edit message request
type EditMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// Create opens a conversation
func (h *ConversationHandler) Create(c *gin.Context) {
	var req CreateConversationRequest
	if !bindJSON(c, &req) {
		return
	}

	kind, err := messaging.ParseKind(req.Type, req.OrderID, req.TicketID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	conv, err := h.messaging.CreateConversation(c.Request.Context(), actor(c), &messaging.CreateRequest{
		Kind:           kind,
		Title:          req.Title,
		ParticipantIDs: req.ParticipantIDs,
	})
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.CreatedResponse(c, conv)
}

// List lists the caller's conversations
func (h *ConversationHandler) List(c *gin.Context) {
	page, pageSize := pageParams(c)

	convs, total, err := h.messaging.ListConversations(c.Request.Context(), actor(c), page, pageSize)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessPageResponse(c, convs, total, page, pageSize)
}

// Get gets a conversation
func (h *ConversationHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	conv, err := h.messaging.GetConversation(c.Request.Context(), actor(c), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, conv)
}

// Thread returns messages after the after_seq query parameter
func (h *ConversationHandler) Thread(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	afterSeq, err := strconv.ParseInt(c.DefaultQuery("after_seq", "0"), 10, 64)
	if err != nil || afterSeq < 0 {
		utils.HandleError(c, utils.Errorf(utils.CodeInvalidParam, "after_seq must be a non-negative integer"))
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 || limit > maxPageSize {
		utils.HandleError(c, utils.Errorf(utils.CodeInvalidParam, "limit must be between 0 and %d", maxPageSize))
		return
	}

	messages, err := h.messaging.Thread(c.Request.Context(), actor(c), id, afterSeq, limit)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, messages)
}

// Append posts a message
func (h *ConversationHandler) Append(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req AppendMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	msg, err := h.messaging.AppendMessage(c.Request.Context(), actor(c), &messaging.AppendRequest{
		ConversationID: id,
		Content:        req.Content,
		Type:           req.Type,
		FileURL:        req.FileURL,
	})
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.CreatedResponse(c, msg)
}

// Edit replaces a message's content
func (h *ConversationHandler) Edit(c *gin.Context) {
	id, ok := pathID(c, "message_id")
	if !ok {
		return
	}
	var req EditMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	msg, err := h.messaging.EditMessage(c.Request.Context(), actor(c), id, req.Content)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, msg)
}

// DeleteMessage soft-deletes a message
func (h *ConversationHandler) DeleteMessage(c *gin.Context) {
	id, ok := pathID(c, "message_id")
	if !ok {
		return
	}

	if err := h.messaging.DeleteMessage(c.Request.Context(), actor(c), id); err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, nil)
}

// MarkRead stamps the caller's read position
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.messaging.MarkRead(c.Request.Context(), actor(c), id); err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, nil)
}

// Stream pushes message events of one conversation as server-sent events.
// Clients that miss events catch up through Thread.
func (h *ConversationHandler) Stream(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	h.stream(c, func(ctx context.Context, handler events.Handler) error {
		return h.messaging.Subscribe(ctx, actor(c), id, handler)
	})
}

// Inbox pushes message events addressed to the caller
func (h *ConversationHandler) Inbox(c *gin.Context) {
	h.stream(c, func(ctx context.Context, handler events.Handler) error {
		return h.messaging.SubscribeInbox(ctx, actor(c), handler)
	})
}

func (h *ConversationHandler) stream(c *gin.Context, subscribe func(ctx context.Context, handler events.Handler) error) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	pending := make(chan *events.Event, streamBuffer)
	err := subscribe(ctx, func(ctx context.Context, topic string, event *events.Event) error {
		select {
		case pending <- event:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-pending:
			c.SSEvent(event.Type, event)
			c.Writer.Flush()
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": ping\n\n")
			c.Writer.Flush()
		}
	}
}

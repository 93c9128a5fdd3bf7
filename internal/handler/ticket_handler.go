package handler

import (
	"github.com/gin-gonic/gin"

	"marketplace/internal/model"
	"marketplace/internal/repository"
	"marketplace/internal/service/support"
	"marketplace/pkg/utils"
)

// TicketHandler support ticket handler
type TicketHandler struct {
	ticketService support.TicketService
}

// NewTicketHandler creates a ticket handler
func NewTicketHandler(ticketService support.TicketService) *TicketHandler {
	return &TicketHandler{ticketService: ticketService}
}

// CreateTicketRequest create ticket request
type CreateTicketRequest struct {
	Subject     string               `json:"subject" binding:"required,notblank,max=200"`
	Description string               `json:"description" binding:"required,notblank"`
	Priority    model.TicketPriority `json:"priority" binding:"omitempty,oneof=low medium high urgent"`
	Channel     model.TicketChannel  `json:"channel" binding:"required,oneof=email message"`
}

// UpdateTicketStatusRequest status change request
type UpdateTicketStatusRequest struct {
	Status model.TicketStatus `json:"status" binding:"required,oneof=open in_progress resolved closed"`
}

// Create opens a ticket for the caller's vendor
func (h *TicketHandler) Create(c *gin.Context) {
	var req CreateTicketRequest
	if !bindJSON(c, &req) {
		return
	}

	ticket, err := h.ticketService.CreateTicket(c.Request.Context(), actor(c), &support.CreateTicketRequest{
		Subject:     req.Subject,
		Description: req.Description,
		Priority:    req.Priority,
		Channel:     req.Channel,
	})
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.CreatedResponse(c, ticket)
}

// Get gets a ticket
func (h *TicketHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	ticket, err := h.ticketService.GetTicket(c.Request.Context(), actor(c), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, ticket)
}

// List lists tickets, optionally by status
func (h *TicketHandler) List(c *gin.Context) {
	page, pageSize := pageParams(c)
	filter := repository.TicketFilter{Status: model.TicketStatus(c.Query("status"))}

	tickets, total, err := h.ticketService.ListTickets(c.Request.Context(), actor(c), filter, page, pageSize)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessPageResponse(c, tickets, total, page, pageSize)
}

// UpdateStatus sets a ticket's status
func (h *TicketHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateTicketStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	ticket, err := h.ticketService.UpdateStatus(c.Request.Context(), actor(c), id, req.Status)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, ticket)
}

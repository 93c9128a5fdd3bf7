package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"marketplace/internal/model"
)

// TicketFilter narrows ticket listings
type TicketFilter struct {
	VendorID uint64
	Status   model.TicketStatus
}

// TicketRepository support ticket repository interface
type TicketRepository interface {
	// Create ticket
	Create(ctx context.Context, ticket *model.SupportTicket) error

	// Get ticket by ID
	GetByID(ctx context.Context, id uint64) (*model.SupportTicket, error)

	// Link a conversation to a ticket that has none yet
	LinkConversation(ctx context.Context, ticketID, conversationID uint64) error

	// Set status, stamping resolved_at the first time a resolving status is set
	UpdateStatus(ctx context.Context, id uint64, status model.TicketStatus, at time.Time) error

	// List tickets, newest first
	List(ctx context.Context, filter TicketFilter, page, pageSize int) ([]*model.SupportTicket, int64, error)
}

type ticketRepository struct {
	db *gorm.DB
}

// NewTicketRepository creates a ticket repository
func NewTicketRepository(db *gorm.DB) TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *model.SupportTicket) error {
	return translate(r.db.WithContext(ctx).Create(ticket).Error)
}

func (r *ticketRepository) GetByID(ctx context.Context, id uint64) (*model.SupportTicket, error) {
	var ticket model.SupportTicket
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&ticket).Error; err != nil {
		return nil, translate(err)
	}
	return &ticket, nil
}

func (r *ticketRepository) LinkConversation(ctx context.Context, ticketID, conversationID uint64) error {
	result := r.db.WithContext(ctx).
		Model(&model.SupportTicket{}).
		Where("id = ? AND conversation_id IS NULL", ticketID).
		Update("conversation_id", conversationID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPredicateFailed
	}
	return nil
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, id uint64, status model.TicketStatus, at time.Time) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": at,
	}
	if status.Resolves() {
		updates["resolved_at"] = gorm.Expr("COALESCE(resolved_at, ?)", at)
	}

	return r.db.WithContext(ctx).
		Model(&model.SupportTicket{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter, page, pageSize int) ([]*model.SupportTicket, int64, error) {
	var tickets []*model.SupportTicket
	var total int64

	db := r.db.WithContext(ctx).Model(&model.SupportTicket{})
	if filter.VendorID != 0 {
		db = db.Where("vendor_id = ?", filter.VendorID)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Order("created_at DESC, id DESC").
		Offset(offset(page, pageSize)).
		Limit(pageSize).
		Find(&tickets).Error
	return tickets, total, err
}

package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketplace/internal/model"
)

// ConversationRepository conversation and message store interface
type ConversationRepository interface {
	// Create conversation and its participants in one transaction
	Create(ctx context.Context, conv *model.Conversation) error

	// Get conversation by ID with participants
	GetByID(ctx context.Context, id uint64) (*model.Conversation, error)

	// Delete conversation with its participants and messages
	Delete(ctx context.Context, id uint64) error

	// List conversations the user takes part in, most recent activity first
	ListByUser(ctx context.Context, userID uint64, page, pageSize int) ([]*model.Conversation, int64, error)

	// Get the participant row of a user
	GetParticipant(ctx context.Context, conversationID, userID uint64) (*model.ConversationParticipant, error)

	// Stamp a participant's last read time
	MarkRead(ctx context.Context, conversationID, userID uint64, at time.Time) error

	// Append message, assigning the next sequence number of its conversation
	AppendMessage(ctx context.Context, msg *model.Message) error

	// List messages with seq greater than afterSeq in ascending order
	ListMessages(ctx context.Context, conversationID uint64, afterSeq int64, limit int) ([]*model.Message, error)

	// Get message by ID
	GetMessage(ctx context.Context, id uint64) (*model.Message, error)

	// Replace the content of a live message
	EditMessage(ctx context.Context, id uint64, content string, at time.Time) error

	// Flag a live message as deleted
	SoftDeleteMessage(ctx context.Context, id uint64, at time.Time) error
}

// conversationRepository conversation repository implementation
type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a conversation repository
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// Create creates a conversation
func (r *conversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(conv).Error; err != nil {
			return err
		}
		for i := range conv.Participants {
			conv.Participants[i].ConversationID = conv.ID
		}
		if len(conv.Participants) > 0 {
			if err := tx.Create(&conv.Participants).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return translate(err)
}

// GetByID gets a conversation
func (r *conversationRepository) GetByID(ctx context.Context, id uint64) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("id = ?", id).
		First(&conv).Error
	if err != nil {
		return nil, translate(err)
	}
	return &conv, nil
}

// Delete deletes a conversation
func (r *conversationRepository) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&model.ConversationParticipant{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.Conversation{}).Error
	})
}

// ListByUser lists a user's conversations
func (r *conversationRepository) ListByUser(ctx context.Context, userID uint64, page, pageSize int) ([]*model.Conversation, int64, error) {
	var convs []*model.Conversation
	var total int64

	sub := r.db.Model(&model.ConversationParticipant{}).Select("conversation_id").Where("user_id = ?", userID)
	db := r.db.WithContext(ctx).Model(&model.Conversation{}).Where("id IN (?)", sub)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Preload("Participants").
		Order("last_activity_at DESC, id DESC").
		Offset(offset(page, pageSize)).
		Limit(pageSize).
		Find(&convs).Error
	return convs, total, err
}

// GetParticipant gets a participant
func (r *conversationRepository) GetParticipant(ctx context.Context, conversationID, userID uint64) (*model.ConversationParticipant, error) {
	var p model.ConversationParticipant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// MarkRead marks a conversation read for a participant
func (r *conversationRepository) MarkRead(ctx context.Context, conversationID, userID uint64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("last_read_at", at).Error
}

// AppendMessage appends a message. The counter update holds the row lock on
// the conversation until commit, so sequence numbers are gapless per conversation.
func (r *conversationRepository) AppendMessage(ctx context.Context, msg *model.Message) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Updates(map[string]interface{}{
				"message_count":    gorm.Expr("message_count + 1"),
				"last_activity_at": msg.CreatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}

		var seq int64
		if err := tx.Model(&model.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Pluck("message_count", &seq).Error; err != nil {
			return err
		}
		msg.Seq = seq

		return tx.Omit(clause.Associations).Create(msg).Error
	})
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return translate(err)
}

// ListMessages lists messages with their senders
func (r *conversationRepository) ListMessages(ctx context.Context, conversationID uint64, afterSeq int64, limit int) ([]*model.Message, error) {
	var msgs []*model.Message
	db := r.db.WithContext(ctx).
		Preload("Sender").
		Where("conversation_id = ? AND seq > ?", conversationID, afterSeq).
		Order("seq ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	err := db.Find(&msgs).Error
	return msgs, err
}

// GetMessage gets a message
func (r *conversationRepository) GetMessage(ctx context.Context, id uint64) (*model.Message, error) {
	var msg model.Message
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error; err != nil {
		return nil, translate(err)
	}
	return &msg, nil
}

// EditMessage edits a message
func (r *conversationRepository) EditMessage(ctx context.Context, id uint64, content string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{
			"content":   content,
			"edited_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPredicateFailed
	}
	return nil
}

// SoftDeleteMessage soft deletes a message
func (r *conversationRepository) SoftDeleteMessage(ctx context.Context, id uint64, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"removed_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPredicateFailed
	}
	return nil
}

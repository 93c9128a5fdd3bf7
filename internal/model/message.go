package model

import (
	"time"
)

// ConversationType conversation kind const
type ConversationType string

const (
	ConversationDirect  ConversationType = "direct"
	ConversationOrder   ConversationType = "order"
	ConversationSupport ConversationType = "support"
)

// ParticipantRole is the role a user plays inside one conversation
type ParticipantRole string

const (
	ParticipantAdmin    ParticipantRole = "admin"
	ParticipantCustomer ParticipantRole = "customer"
	ParticipantVendor   ParticipantRole = "vendor"
	ParticipantMember   ParticipantRole = "participant"
)

// Conversation thread header. MessageCount doubles as the sequence
// allocator for the conversation's messages.
type Conversation struct {
	ID             uint64           `gorm:"primaryKey;autoIncrement;comment:conversation id" json:"id"`
	Title          *string          `gorm:"type:varchar(200);comment:title" json:"title,omitempty"`
	Type           ConversationType `gorm:"type:varchar(20);not null;comment:direct, order or support" json:"type"`
	OrderID        *uint64          `gorm:"type:bigint unsigned;index;comment:anchored order" json:"order_id,omitempty"`
	TicketID       *uint64          `gorm:"type:bigint unsigned;index;comment:anchored support ticket" json:"ticket_id,omitempty"`
	CreatedBy      uint64           `gorm:"type:bigint unsigned;not null;comment:creator user id" json:"created_by"`
	MessageCount   int64            `gorm:"type:bigint;not null;default:0;comment:messages appended" json:"message_count"`
	LastActivityAt time.Time        `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index;comment:last activity" json:"last_activity_at"`
	CreatedAt      time.Time        `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;comment:created at" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP;comment:updated at" json:"updated_at"`

	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
}

// TableName set name
func (Conversation) TableName() string {
	return "conversations"
}

// Participant returns the participant row of userID, if loaded
func (c *Conversation) Participant(userID uint64) *ConversationParticipant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// ConversationParticipant binds a user to a conversation
type ConversationParticipant struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement;comment:participant id" json:"id"`
	ConversationID uint64          `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_participant,priority:1;comment:conversation id" json:"conversation_id"`
	UserID         uint64          `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_participant,priority:2;index;comment:user id" json:"user_id"`
	Role           ParticipantRole `gorm:"type:varchar(20);not null;comment:role in conversation" json:"role"`
	LastReadAt     *time.Time      `gorm:"type:timestamp;comment:last read" json:"last_read_at,omitempty"`
	JoinedAt       time.Time       `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;comment:joined at" json:"joined_at"`
}

// TableName set name
func (ConversationParticipant) TableName() string {
	return "conversation_participants"
}

// MessageType message type const
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

// Message is append-only; deletion only flags it
type Message struct {
	ID             uint64      `gorm:"primaryKey;autoIncrement;comment:message id" json:"id"`
	ConversationID uint64      `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_message_seq,priority:1;comment:conversation id" json:"conversation_id"`
	Seq            int64       `gorm:"type:bigint;not null;uniqueIndex:uk_message_seq,priority:2;comment:position in conversation" json:"seq"`
	SenderID       uint64      `gorm:"type:bigint unsigned;not null;index;comment:sender user id" json:"sender_id"`
	Content        string      `gorm:"type:text;not null;comment:content" json:"content"`
	Type           MessageType `gorm:"type:varchar(20);not null;default:'text';comment:text, file or system" json:"type"`
	FileURL        *string     `gorm:"type:varchar(500);comment:attached file" json:"file_url,omitempty"`
	IsDeleted      bool        `gorm:"not null;default:false;comment:soft delete flag" json:"is_deleted"`
	EditedAt       *time.Time  `gorm:"type:timestamp;comment:edited at" json:"edited_at,omitempty"`
	RemovedAt      *time.Time  `gorm:"type:timestamp;comment:soft deleted at" json:"removed_at,omitempty"`
	CreatedAt      time.Time   `gorm:"type:timestamp(3);not null;default:CURRENT_TIMESTAMP(3);comment:created at" json:"created_at"`

	Sender *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}

// TableName set name
func (Message) TableName() string {
	return "messages"
}

package model

import (
	"time"
)

// TicketPriority ticket priority const
type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
	PriorityUrgent TicketPriority = "urgent"
)

// TicketStatus ticket status const
type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketResolved   TicketStatus = "resolved"
	TicketClosed     TicketStatus = "closed"
)

// Valid reports whether s is a known status
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketOpen, TicketInProgress, TicketResolved, TicketClosed:
		return true
	}
	return false
}

// Resolves reports whether moving into s stamps the resolution time
func (s TicketStatus) Resolves() bool {
	return s == TicketResolved || s == TicketClosed
}

// TicketChannel how the platform answers a ticket
type TicketChannel string

const (
	ChannelEmail   TicketChannel = "email"
	ChannelMessage TicketChannel = "message"
)

// SupportTicket support ticket raised by a vendor
type SupportTicket struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement;comment:ticket id" json:"id"`
	VendorID       uint64         `gorm:"type:bigint unsigned;not null;index;comment:vendor id" json:"vendor_id"`
	CreatedBy      uint64         `gorm:"type:bigint unsigned;not null;comment:vendor user id" json:"created_by"`
	Subject        string         `gorm:"type:varchar(200);not null;comment:subject" json:"subject"`
	Description    string         `gorm:"type:text;not null;comment:description" json:"description"`
	Priority       TicketPriority `gorm:"type:varchar(20);not null;default:'medium';comment:priority" json:"priority"`
	Status         TicketStatus   `gorm:"type:varchar(20);not null;default:'open';index;comment:status" json:"status"`
	Channel        TicketChannel  `gorm:"type:varchar(20);not null;comment:email or message" json:"channel"`
	ConversationID *uint64        `gorm:"type:bigint unsigned;comment:linked conversation" json:"conversation_id,omitempty"`
	CreatedAt      time.Time      `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index;comment:created at" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP;comment:updated at" json:"updated_at"`
	ResolvedAt     *time.Time     `gorm:"type:timestamp;comment:first resolution" json:"resolved_at,omitempty"`
}

// TableName set name
func (SupportTicket) TableName() string {
	return "support_tickets"
}

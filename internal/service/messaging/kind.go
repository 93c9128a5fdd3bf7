package messaging

import (
	"marketplace/internal/model"
	"marketplace/pkg/utils"
)

// Kind is the closed set of conversation variants. Each variant carries the
// anchor it requires.
type Kind interface {
	Type() model.ConversationType
	anchor(conv *model.Conversation) error
}

// Direct is a free conversation between users
type Direct struct{}

// OrderThread discusses one order
type OrderThread struct {
	OrderID uint64
}

// SupportThread answers one support ticket
type SupportThread struct {
	TicketID uint64
}

func (Direct) Type() model.ConversationType        { return model.ConversationDirect }
func (OrderThread) Type() model.ConversationType   { return model.ConversationOrder }
func (SupportThread) Type() model.ConversationType { return model.ConversationSupport }

func (Direct) anchor(conv *model.Conversation) error {
	conv.Type = model.ConversationDirect
	return nil
}

func (k OrderThread) anchor(conv *model.Conversation) error {
	if k.OrderID == 0 {
		return utils.Errorf(utils.CodeInvalidParam, "order thread requires an order")
	}
	id := k.OrderID
	conv.Type = model.ConversationOrder
	conv.OrderID = &id
	return nil
}

func (k SupportThread) anchor(conv *model.Conversation) error {
	conv.Type = model.ConversationSupport
	if k.TicketID != 0 {
		id := k.TicketID
		conv.TicketID = &id
	}
	return nil
}

// ParseKind builds a variant from its wire form
func ParseKind(t model.ConversationType, orderID, ticketID uint64) (Kind, error) {
	switch t {
	case model.ConversationDirect, "":
		return Direct{}, nil
	case model.ConversationOrder:
		if orderID == 0 {
			return nil, utils.Errorf(utils.CodeInvalidParam, "order_id is required for order conversations")
		}
		return OrderThread{OrderID: orderID}, nil
	case model.ConversationSupport:
		return SupportThread{TicketID: ticketID}, nil
	}
	return nil, utils.Errorf(utils.CodeInvalidParam, "unknown conversation type %q", t)
}

// participantRole is the role a user holds inside a new conversation. The
// creator of a support thread administers it.
func participantRole(kind Kind, user *model.User, creator bool) model.ParticipantRole {
	if creator {
		if _, ok := kind.(SupportThread); ok {
			return model.ParticipantAdmin
		}
	}
	switch user.Role {
	case model.RoleAdmin:
		return model.ParticipantAdmin
	case model.RoleVendor:
		return model.ParticipantVendor
	case model.RoleCustomer:
		return model.ParticipantCustomer
	}
	return model.ParticipantMember
}
